// Package circuitbreaker builds sony/gobreaker breakers from named presets
// and logs their state transitions.
package circuitbreaker

import (
	"context"
	"time"

	"github.com/LerianStudio/opsdemo/internal/log"
	"github.com/sony/gobreaker"
)

// Config holds the trip and recovery thresholds of one breaker.
type Config struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
	FailureRatio        float64
	MinRequests         uint32
}

// DefaultConfig provides balanced settings for most dependencies.
func DefaultConfig() Config {
	return Config{
		MaxRequests:         3,
		Interval:            2 * time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 15,
		FailureRatio:        0.5,
		MinRequests:         10,
	}
}

// CacheConfig fails fast: a slow cache should not hold request handlers.
func CacheConfig() Config {
	return Config{
		MaxRequests:         2,
		Interval:            time.Minute,
		Timeout:             10 * time.Second,
		ConsecutiveFailures: 5,
		FailureRatio:        0.4,
		MinRequests:         5,
	}
}

// DatabaseConfig is more tolerant of transient network failures.
func DatabaseConfig() Config {
	return Config{
		MaxRequests:         5,
		Interval:            3 * time.Minute,
		Timeout:             45 * time.Second,
		ConsecutiveFailures: 20,
		FailureRatio:        0.6,
		MinRequests:         15,
	}
}

// New creates a breaker named name. Every state change is logged at warn level.
func New(name string, cfg Config, logger log.Logger) *gobreaker.CircuitBreaker {
	logger = log.OrNop(logger)

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return shouldTrip(cfg, counts)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Log(context.Background(), log.LevelWarn, "circuit breaker state changed",
				log.String("breaker", name),
				log.String("from", from.String()),
				log.String("to", to.String()),
			)
		},
	})
}

func shouldTrip(cfg Config, counts gobreaker.Counts) bool {
	if cfg.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
		return true
	}

	if counts.Requests == 0 || counts.Requests < cfg.MinRequests {
		return false
	}

	return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
}
