//go:build unit

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LerianStudio/opsdemo/internal/server"
	"github.com/gofiber/fiber/v2"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeState struct {
	state atomic.Int32
}

func (f *fakeState) State() server.State { return server.State(f.state.Load()) }
func (f *fakeState) Draining() bool      { return f.State() != server.StateRunning }
func (f *fakeState) set(s server.State)  { f.state.Store(int32(s)) }

type fakeBreaker struct {
	state  gobreaker.State
	counts gobreaker.Counts
}

func (f *fakeBreaker) State() gobreaker.State   { return f.state }
func (f *fakeBreaker) Counts() gobreaker.Counts { return f.counts }

func okCheck(context.Context) error { return nil }

func healthApp(h *Health) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/health", h.Health())
	app.Get("/health/live", h.Live())
	app.Get("/health/ready", h.Ready())

	return app
}

func getJSON(t *testing.T, app *fiber.App, path string) (int, map[string]any) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	return resp.StatusCode, body
}

func checksOf(t *testing.T, body map[string]any) map[string]any {
	t.Helper()

	checks, ok := body["checks"].(map[string]any)
	require.True(t, ok, "checks missing from %v", body)

	return checks
}

func TestHealth_NoDependencies(t *testing.T) {
	t.Parallel()

	app := healthApp(NewHealth(&fakeState{}, time.Second))

	code, body := getJSON(t, app, "/health")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusAvailable, body["status"])
	assert.Equal(t, "running", body["state"])
	assert.Contains(t, body, "uptime")
	assert.Empty(t, checksOf(t, body))
}

func TestHealth_DisabledDependencyDoesNotFail(t *testing.T) {
	t.Parallel()

	app := healthApp(NewHealth(&fakeState{}, time.Second,
		DependencyCheck{Name: "database"},
		DependencyCheck{Name: "cache", Check: okCheck},
	))

	code, body := getJSON(t, app, "/health")

	assert.Equal(t, http.StatusOK, code)

	checks := checksOf(t, body)
	assert.Equal(t, CheckDisabled, checks["database"].(map[string]any)["status"])
	assert.Equal(t, CheckUp, checks["cache"].(map[string]any)["status"])
}

func TestHealth_FailingDependencyDegrades(t *testing.T) {
	t.Parallel()

	app := healthApp(NewHealth(&fakeState{}, time.Second,
		DependencyCheck{Name: "database", Check: okCheck},
		DependencyCheck{Name: "cache", Check: func(context.Context) error { return errors.New("dial tcp: refused") }},
	))

	code, body := getJSON(t, app, "/health")

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusDegraded, body["status"])

	cache := checksOf(t, body)["cache"].(map[string]any)
	assert.Equal(t, CheckDown, cache["status"])
	assert.Equal(t, "dial tcp: refused", cache["error"])
}

func TestHealth_CheckTimeout(t *testing.T) {
	t.Parallel()

	app := healthApp(NewHealth(&fakeState{}, 20*time.Millisecond,
		DependencyCheck{Name: "database", Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	))

	code, _ := getJSON(t, app, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestHealth_OpenBreakerSkipsPing(t *testing.T) {
	t.Parallel()

	var pinged atomic.Bool

	app := healthApp(NewHealth(&fakeState{}, time.Second, DependencyCheck{
		Name: "cache",
		Check: func(context.Context) error {
			pinged.Store(true)
			return nil
		},
		Breaker: &fakeBreaker{state: gobreaker.StateOpen, counts: gobreaker.Counts{ConsecutiveFailures: 5}},
	}))

	code, body := getJSON(t, app, "/health")

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, pinged.Load())

	cache := checksOf(t, body)["cache"].(map[string]any)
	assert.Equal(t, "open", cache["circuit_breaker_state"])
	assert.Equal(t, ErrCircuitOpen.Error(), cache["error"])
	assert.InDelta(t, 5, cache["consecutive_failures"], 0)
}

func TestHealth_DegradedWhileDraining(t *testing.T) {
	t.Parallel()

	state := &fakeState{}
	state.set(server.StateDraining)

	app := healthApp(NewHealth(state, time.Second, DependencyCheck{Name: "database", Check: okCheck}))

	code, body := getJSON(t, app, "/health")

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusDegraded, body["status"])
	assert.Equal(t, "draining", body["state"])
}

func TestHealth_DoesNotPingDependenciesAfterShutdownBegins(t *testing.T) {
	t.Parallel()

	var pings atomic.Int32

	counting := func(context.Context) error {
		pings.Add(1)
		return nil
	}

	state := &fakeState{}
	state.set(server.StateTerminating)

	app := healthApp(NewHealth(state, time.Second,
		DependencyCheck{Name: "database", Check: counting},
		DependencyCheck{Name: "cache"},
	))

	code, body := getJSON(t, app, "/health")

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusDegraded, body["status"])
	assert.Equal(t, "terminating", body["state"])
	assert.Contains(t, body, "uptime_seconds")

	checks := checksOf(t, body)
	assert.Equal(t, CheckSkipped, checks["database"].(map[string]any)["status"])
	assert.Equal(t, CheckDisabled, checks["cache"].(map[string]any)["status"])
	assert.Zero(t, pings.Load())
}

func TestLive_AlwaysOK(t *testing.T) {
	t.Parallel()

	state := &fakeState{}
	app := healthApp(NewHealth(state, time.Second))

	for _, s := range []server.State{server.StateRunning, server.StateDraining, server.StateTerminating} {
		state.set(s)

		code, body := getJSON(t, app, "/health/live")

		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, StatusAlive, body["status"])
		assert.Equal(t, s.String(), body["state"])
	}
}

func TestReady_RunningAndHealthy(t *testing.T) {
	t.Parallel()

	app := healthApp(NewHealth(&fakeState{}, time.Second, DependencyCheck{Name: "database", Check: okCheck}))

	code, body := getJSON(t, app, "/health/ready")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusReady, body["status"])
}

func TestReady_NotReadyWhenCheckFails(t *testing.T) {
	t.Parallel()

	app := healthApp(NewHealth(&fakeState{}, time.Second, DependencyCheck{
		Name:  "database",
		Check: func(context.Context) error { return errors.New("down") },
	}))

	code, body := getJSON(t, app, "/health/ready")

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusNotReady, body["status"])
}

func TestReady_DrainingSkipsChecks(t *testing.T) {
	t.Parallel()

	var pinged atomic.Bool

	state := &fakeState{}
	app := healthApp(NewHealth(state, time.Second, DependencyCheck{
		Name: "database",
		Check: func(context.Context) error {
			pinged.Store(true)
			return nil
		},
	}))

	state.set(server.StateDraining)

	code, body := getJSON(t, app, "/health/ready")

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusDraining, body["status"])
	assert.False(t, pinged.Load())
}

func TestReady_FollowsCoordinator(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	hooks := server.NewHookRegistry()
	require.NoError(t, hooks.Register("hold", func(context.Context) error {
		<-release
		return nil
	}))

	coord := server.NewCoordinator(nil, hooks, server.NewExitPolicy(server.WithExitFunc(func(int) {})), nil)
	app := healthApp(NewHealth(coord, time.Second))

	code, _ := getJSON(t, app, "/health/ready")
	assert.Equal(t, http.StatusOK, code)

	coord.Shutdown(server.ManualCause("test"))

	code, body := getJSON(t, app, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusDraining, body["status"])

	close(release)
	coord.Wait()
}

func TestNewHealth_DefaultTimeout(t *testing.T) {
	t.Parallel()

	h := NewHealth(nil, 0)

	assert.Equal(t, 2*time.Second, h.timeout)
	assert.Equal(t, server.StateRunning, h.currentState())
}
