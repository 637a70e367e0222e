package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/LerianStudio/opsdemo/internal/circuitbreaker"
	"github.com/LerianStudio/opsdemo/internal/log"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

const (
	defaultDialTimeout  = 3 * time.Second
	defaultReadTimeout  = 2 * time.Second
	defaultWriteTimeout = 2 * time.Second
)

var (
	// ErrNilClient is returned when a redis client receiver is nil.
	ErrNilClient = errors.New("redis client is nil")
	// ErrInvalidConfig indicates the provided redis configuration is invalid.
	ErrInvalidConfig = errors.New("invalid redis config")
	// ErrClosed is returned by commands issued after Close.
	ErrClosed = errors.New("redis client is closed")
)

// Config configures the cache client.
type Config struct {
	Address      string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Breaker      circuitbreaker.Config
	Logger       log.Logger
}

func (cfg Config) withDefaults() Config {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}

	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}

	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	if cfg.Breaker == (circuitbreaker.Config{}) {
		cfg.Breaker = circuitbreaker.CacheConfig()
	}

	cfg.Logger = log.OrNop(cfg.Logger)

	return cfg
}

func (cfg Config) validate() error {
	if strings.TrimSpace(cfg.Address) == "" {
		return fmt.Errorf("%w: address is required", ErrInvalidConfig)
	}

	if cfg.DB < 0 || cfg.DB > 15 {
		return fmt.Errorf("%w: db must be between 0 and 15, got %d", ErrInvalidConfig, cfg.DB)
	}

	return nil
}

// Client wraps a go-redis client with a circuit breaker.
type Client struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	logger  log.Logger

	closeOnce sync.Once
	closeErr  error
	mu        sync.RWMutex
	closed    bool
}

// New validates cfg and creates a client. No connection is made until the
// first command; call Connect to verify the server is reachable.
func New(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg = cfg.withDefaults()

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   -1,
	})

	return &Client{
		client:  rdb,
		breaker: circuitbreaker.New("redis", cfg.Breaker, cfg.Logger),
		logger:  cfg.Logger,
	}, nil
}

// Connect pings the server once and logs the outcome.
func (c *Client) Connect(ctx context.Context) error {
	if c == nil {
		return ErrNilClient
	}

	if err := c.Ping(ctx); err != nil {
		c.logger.Log(ctx, log.LevelError, "failed to connect to redis", log.Err(err))

		return fmt.Errorf("redis connect: %w", err)
	}

	c.logger.Log(ctx, log.LevelInfo, "connected to redis",
		log.String("address", c.client.Options().Addr),
	)

	return nil
}

// Ping checks the server without going through the breaker.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return ErrNilClient
	}

	if c.isClosed() {
		return ErrClosed
	}

	return c.client.Ping(ctx).Err()
}

// Incr increments key and returns its new value. Failures count against the
// breaker; while it is open the call returns gobreaker.ErrOpenState without
// reaching the server.
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	if c == nil {
		return 0, ErrNilClient
	}

	if c.isClosed() {
		return 0, ErrClosed
	}

	v, err := c.breaker.Execute(func() (any, error) {
		return c.client.Incr(ctx, key).Result()
	})
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}

	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("redis incr %s: unexpected result type %T", key, v)
	}

	return n, nil
}

// Breaker exposes the circuit breaker for health reporting.
func (c *Client) Breaker() *gobreaker.CircuitBreaker {
	if c == nil {
		return nil
	}

	return c.breaker
}

// Close releases the connection pool. It is safe to call more than once;
// later calls return the result of the first.
func (c *Client) Close() error {
	if c == nil {
		return ErrNilClient
	}

	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.closeErr = c.client.Close()
		if c.closeErr != nil {
			c.logger.Log(context.Background(), log.LevelWarn, "failed to close redis client", log.Err(c.closeErr))
		}
	})

	return c.closeErr
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.closed
}
