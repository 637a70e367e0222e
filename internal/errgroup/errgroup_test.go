//go:build unit

package errgroup_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LerianStudio/opsdemo/internal/errgroup"
)

func TestWithContext_AllSucceed(t *testing.T) {
	t.Parallel()

	group, _ := errgroup.WithContext(context.Background())

	var ran atomic.Int32

	for _, name := range []string{"postgres", "redis", "telemetry"} {
		group.Go(name, func(context.Context) error {
			ran.Add(1)
			return nil
		})
	}

	require.NoError(t, group.Wait())
	assert.Equal(t, int32(3), ran.Load())
}

func TestWithContext_FirstErrorCancelsAndIsNamed(t *testing.T) {
	t.Parallel()

	expectedErr := errors.New("connection refused")
	group, groupCtx := errgroup.WithContext(context.Background())

	group.Go("redis", func(context.Context) error { return expectedErr })
	group.Go("postgres", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})

	err := group.Wait()
	require.Error(t, err)
	assert.ErrorIs(t, err, expectedErr)
	assert.Equal(t, "redis: connection refused", err.Error())
	assert.ErrorIs(t, groupCtx.Err(), context.Canceled)
}

func TestWithContext_PanicRecovered(t *testing.T) {
	t.Parallel()

	group, _ := errgroup.WithContext(context.Background())

	group.Go("telemetry", func(context.Context) error {
		panic("exporter exploded")
	})

	err := group.Wait()
	require.Error(t, err)
	assert.ErrorIs(t, err, errgroup.ErrPanicRecovered)
	assert.Contains(t, err.Error(), "telemetry")
	assert.Contains(t, err.Error(), "exporter exploded")
}

func TestWithContext_WaitCancelsContext(t *testing.T) {
	t.Parallel()

	group, groupCtx := errgroup.WithContext(context.Background())
	group.Go("noop", func(context.Context) error { return nil })

	require.NoError(t, group.Wait())

	select {
	case <-groupCtx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled after Wait")
	}
}

func TestZeroValueGroup(t *testing.T) {
	t.Parallel()

	var group errgroup.Group

	group.SetLogger(nil)
	group.Go("task", func(ctx context.Context) error {
		assert.NotNil(t, ctx)
		return nil
	})

	assert.NoError(t, group.Wait())
}
