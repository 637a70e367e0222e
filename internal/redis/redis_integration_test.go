//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedisContainer(t *testing.T) (string, func()) {
	t.Helper()

	ctx := context.Background()

	container, err := tcredis.Run(ctx,
		"redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	return endpoint, func() {
		require.NoError(t, container.Terminate(ctx))
	}
}

func TestIntegration_IncrAndClose(t *testing.T) {
	addr, cleanup := setupRedisContainer(t)
	t.Cleanup(cleanup)

	ctx := context.Background()

	c, err := New(Config{Address: addr})
	require.NoError(t, err)

	require.NoError(t, c.Connect(ctx))

	first, err := c.Incr(ctx, "integration:hits")
	require.NoError(t, err)

	second, err := c.Incr(ctx, "integration:hits")
	require.NoError(t, err)
	assert.Equal(t, first+1, second)

	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Ping(ctx), ErrClosed)
}
