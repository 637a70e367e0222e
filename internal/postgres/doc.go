// Package postgres opens the primary/replica pool used by the database
// health check.
//
// Connections are opened through the pgx database/sql driver and combined
// with dbresolver so writes go to the primary and reads round-robin across
// replicas. Connect must be called before DB or Ping; Close is registered as
// a shutdown cleanup hook.
package postgres
