package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/LerianStudio/opsdemo/internal/log"
	"github.com/bxcodec/dbresolver/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 10
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
)

var (
	// ErrNilClient is returned when a postgres client receiver is nil.
	ErrNilClient = errors.New("postgres client is nil")
	// ErrInvalidConfig indicates the provided postgres configuration is invalid.
	ErrInvalidConfig = errors.New("invalid postgres config")
	// ErrNotConnected is returned by DB and Ping before Connect succeeds.
	ErrNotConnected = errors.New("postgres client is not connected")
	// ErrClosed is returned once Close has run. A closed client never reopens.
	ErrClosed = errors.New("postgres client is closed")

	dbOpenFn = sql.Open

	createResolverFn = func(primaryDB, replicaDB *sql.DB) (_ dbresolver.DB, err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("failed to create resolver: %v", recovered)
			}
		}()

		connectionDB := dbresolver.New(
			dbresolver.WithPrimaryDBs(primaryDB),
			dbresolver.WithReplicaDBs(replicaDB),
			dbresolver.WithLoadBalancer(dbresolver.RoundRobinLB),
		)

		if connectionDB == nil {
			return nil, errors.New("resolver returned nil connection")
		}

		return connectionDB, nil
	}

	credentialsPattern = regexp.MustCompile(`://[^@\s]+@`)
	passwordPattern    = regexp.MustCompile(`(?i)(password=)([^\s&]+)`)
)

// Config configures the database pool. ReplicaDSN defaults to PrimaryDSN.
type Config struct {
	PrimaryDSN   string
	ReplicaDSN   string
	MaxOpenConns int
	MaxIdleConns int
	Logger       log.Logger
}

func (cfg Config) withDefaults() Config {
	if strings.TrimSpace(cfg.ReplicaDSN) == "" {
		cfg.ReplicaDSN = cfg.PrimaryDSN
	}

	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = defaultMaxOpenConns
	}

	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = defaultMaxIdleConns
	}

	if cfg.MaxIdleConns > cfg.MaxOpenConns {
		cfg.MaxIdleConns = cfg.MaxOpenConns
	}

	cfg.Logger = log.OrNop(cfg.Logger)

	return cfg
}

func (cfg Config) validate() error {
	if strings.TrimSpace(cfg.PrimaryDSN) == "" {
		return fmt.Errorf("%w: primary dsn is required", ErrInvalidConfig)
	}

	return nil
}

// Client owns the resolver built from the primary and replica pools.
type Client struct {
	cfg      Config
	logger   log.Logger
	mu       sync.RWMutex
	resolver dbresolver.DB
	closed   bool
}

// New validates cfg. No connection is opened until Connect.
func New(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg = cfg.withDefaults()

	return &Client{cfg: cfg, logger: cfg.Logger}, nil
}

// Connect opens both pools, builds the resolver and pings it. A previous
// resolver is kept if the new one fails and closed if it succeeds. Connect
// fails with ErrClosed after Close.
func (c *Client) Connect(ctx context.Context) error {
	if c == nil {
		return ErrNilClient
	}

	if c.isClosed() {
		return ErrClosed
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled before database connection: %w", err)
	}

	c.logger.Log(ctx, log.LevelInfo, "connecting to primary and replica databases")

	primary, err := c.open(c.cfg.PrimaryDSN)
	if err != nil {
		return err
	}

	replica, err := c.open(c.cfg.ReplicaDSN)
	if err != nil {
		_ = primary.Close()

		return err
	}

	resolver, err := createResolverFn(primary, replica)
	if err != nil {
		_ = primary.Close()
		_ = replica.Close()

		c.logger.Log(ctx, log.LevelError, "failed to create resolver", log.Err(err))

		return fmt.Errorf("failed to create resolver: %w", err)
	}

	if err := resolver.PingContext(ctx); err != nil {
		_ = resolver.Close()

		sanitized := sanitizeSensitiveString(err.Error())
		c.logger.Log(ctx, log.LevelError, "failed to ping database", log.String("error", sanitized))

		return fmt.Errorf("failed to ping database: %s", sanitized)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = resolver.Close()

		return ErrClosed
	}

	previous := c.resolver
	c.resolver = resolver
	c.mu.Unlock()

	if previous != nil {
		if err := previous.Close(); err != nil {
			c.logger.Log(ctx, log.LevelWarn, "failed to close previous database connection", log.Err(err))
		}
	}

	c.logger.Log(ctx, log.LevelInfo, "connected to postgres")

	return nil
}

func (c *Client) open(dsn string) (*sql.DB, error) {
	db, err := dbOpenFn("pgx", dsn)
	if err != nil {
		sanitized := sanitizeSensitiveString(err.Error())
		c.logger.Log(context.Background(), log.LevelError, "failed to open database", log.String("error", sanitized))

		return nil, fmt.Errorf("failed to open database: %s", sanitized)
	}

	db.SetMaxOpenConns(c.cfg.MaxOpenConns)
	db.SetMaxIdleConns(c.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	return db, nil
}

// DB returns the resolver.
func (c *Client) DB() (dbresolver.DB, error) {
	if c == nil {
		return nil, ErrNilClient
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrClosed
	}

	if c.resolver == nil {
		return nil, ErrNotConnected
	}

	return c.resolver, nil
}

// Ping checks the resolver.
func (c *Client) Ping(ctx context.Context) error {
	db, err := c.DB()
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping: %s", sanitizeSensitiveString(err.Error()))
	}

	return nil
}

// Close closes the resolver and its pools for good. Closing an unconnected
// or already closed client is a no-op.
func (c *Client) Close() error {
	if c == nil {
		return ErrNilClient
	}

	c.mu.Lock()
	resolver := c.resolver
	c.resolver = nil
	c.closed = true
	c.mu.Unlock()

	if resolver == nil {
		return nil
	}

	if err := resolver.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.closed
}

// sanitizeSensitiveString masks credentials embedded in connection strings.
func sanitizeSensitiveString(s string) string {
	s = credentialsPattern.ReplaceAllString(s, "://***@")

	return passwordPattern.ReplaceAllString(s, "${1}***")
}
