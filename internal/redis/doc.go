// Package redis provides the cache client behind the hits counter.
//
// Commands issued by request handlers go through a circuit breaker so a
// failing cache answers fast instead of holding connections open while the
// server drains. Commands are never retried, and health pings bypass the
// breaker.
package redis
