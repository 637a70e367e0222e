//go:build unit

package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/LerianStudio/opsdemo/internal/circuitbreaker"
	"github.com/alicebob/miniredis/v2"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, mr *miniredis.Miniredis) *Client {
	t.Helper()

	c, err := New(Config{
		Address:     mr.Addr(),
		DialTimeout: 200 * time.Millisecond,
		ReadTimeout: 200 * time.Millisecond,
		Breaker: circuitbreaker.Config{
			MaxRequests:         1,
			Timeout:             time.Minute,
			ConsecutiveFailures: 3,
			FailureRatio:        1,
			MinRequests:         100,
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "empty address", cfg: Config{}},
		{name: "blank address", cfg: Config{Address: "   "}},
		{name: "db out of range", cfg: Config{Address: "localhost:6379", DB: 16}},
		{name: "negative db", cfg: Config{Address: "localhost:6379", DB: -1}},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, err := New(tt.cfg)

			assert.Nil(t, c)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	t.Parallel()

	c, err := New(Config{Address: "localhost:6379"})
	require.NoError(t, err)
	defer c.Close()

	opts := c.client.Options()
	assert.Equal(t, defaultDialTimeout, opts.DialTimeout)
	assert.Equal(t, defaultReadTimeout, opts.ReadTimeout)
	assert.Equal(t, "redis", c.Breaker().Name())
}

func TestConnectAndIncr(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	c := newTestClient(t, mr)
	ctx := context.Background()

	require.NoError(t, c.Connect(ctx))

	for want := int64(1); want <= 3; want++ {
		got, err := c.Incr(ctx, "hits")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	stored, err := mr.Get("hits")
	require.NoError(t, err)
	assert.Equal(t, "3", stored)
}

func TestIncr_Concurrent(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	c := newTestClient(t, mr)

	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := c.Incr(context.Background(), "hits")
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	stored, err := mr.Get("hits")
	require.NoError(t, err)
	assert.Equal(t, "20", stored)
}

func TestIncr_BreakerOpensWhenServerGone(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	c := newTestClient(t, mr)
	ctx := context.Background()

	_, err := c.Incr(ctx, "hits")
	require.NoError(t, err)

	mr.Close()

	for i := 0; i < 3; i++ {
		_, err = c.Incr(ctx, "hits")
		require.Error(t, err)
	}

	assert.Equal(t, gobreaker.StateOpen, c.Breaker().State())

	_, err = c.Incr(ctx, "hits")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestConnect_Unreachable(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	c, err := New(Config{Address: addr, DialTimeout: 100 * time.Millisecond})
	require.NoError(t, err)
	defer c.Close()

	assert.Error(t, c.Connect(context.Background()))
}

func TestPing_BypassesOpenBreaker(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	c := newTestClient(t, mr)

	mr.SetError("ERR server busy")

	for i := 0; i < 3; i++ {
		_, _ = c.Incr(context.Background(), "hits")
	}

	require.Equal(t, gobreaker.StateOpen, c.Breaker().State())

	mr.SetError("")
	assert.NoError(t, c.Ping(context.Background()))
}

func TestClose_Idempotent(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	c := newTestClient(t, mr)

	require.NoError(t, c.Close())
	assert.NoError(t, c.Close())

	_, err := c.Incr(context.Background(), "hits")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.Ping(context.Background()), ErrClosed)
}

func TestNilClient(t *testing.T) {
	t.Parallel()

	var c *Client

	assert.ErrorIs(t, c.Connect(context.Background()), ErrNilClient)
	assert.ErrorIs(t, c.Ping(context.Background()), ErrNilClient)
	assert.ErrorIs(t, c.Close(), ErrNilClient)
	assert.Nil(t, c.Breaker())

	_, err := c.Incr(context.Background(), "hits")
	assert.ErrorIs(t, err, ErrNilClient)
}
