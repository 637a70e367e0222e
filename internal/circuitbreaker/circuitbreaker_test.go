//go:build unit

package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/LerianStudio/opsdemo/internal/log"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend down")

type captureLogger struct {
	log.NopLogger
	mu       sync.Mutex
	messages []string
}

func (c *captureLogger) Log(_ context.Context, _ log.Level, msg string, _ ...log.Field) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = append(c.messages, msg)
}

func TestShouldTrip(t *testing.T) {
	t.Parallel()

	cfg := Config{ConsecutiveFailures: 3, FailureRatio: 0.5, MinRequests: 4}

	tests := []struct {
		name   string
		counts gobreaker.Counts
		want   bool
	}{
		{name: "no requests", counts: gobreaker.Counts{}, want: false},
		{name: "consecutive failures", counts: gobreaker.Counts{Requests: 3, TotalFailures: 3, ConsecutiveFailures: 3}, want: true},
		{name: "ratio below min requests", counts: gobreaker.Counts{Requests: 3, TotalFailures: 2, ConsecutiveFailures: 1}, want: false},
		{name: "ratio reached", counts: gobreaker.Counts{Requests: 4, TotalFailures: 2, ConsecutiveFailures: 1}, want: true},
		{name: "ratio not reached", counts: gobreaker.Counts{Requests: 10, TotalFailures: 2, ConsecutiveFailures: 1}, want: false},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, shouldTrip(cfg, tt.counts))
		})
	}
}

func TestNewTripsAndLogs(t *testing.T) {
	t.Parallel()

	logger := &captureLogger{}
	cb := New("cache", Config{ConsecutiveFailures: 2, Timeout: time.Minute, MaxRequests: 1}, logger)

	for i := 0; i < 2; i++ {
		_, err := cb.Execute(func() (any, error) { return nil, errBackend })
		require.ErrorIs(t, err, errBackend)
	}

	assert.Equal(t, gobreaker.StateOpen, cb.State())
	assert.Equal(t, "cache", cb.Name())

	_, err := cb.Execute(func() (any, error) { return "unreachable", nil })
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)

	logger.mu.Lock()
	defer logger.mu.Unlock()
	assert.Equal(t, []string{"circuit breaker state changed"}, logger.messages)
}

func TestPresets(t *testing.T) {
	t.Parallel()

	for _, cfg := range []Config{DefaultConfig(), CacheConfig(), DatabaseConfig()} {
		assert.Positive(t, cfg.MaxRequests)
		assert.Positive(t, cfg.Timeout)
		assert.Positive(t, cfg.ConsecutiveFailures)
		assert.Greater(t, cfg.FailureRatio, 0.0)
	}

	assert.Less(t, CacheConfig().ConsecutiveFailures, DatabaseConfig().ConsecutiveFailures)
}
