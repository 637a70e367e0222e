//go:build unit

package metrics_test

import (
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/LerianStudio/opsdemo/internal/metrics"
	"github.com/LerianStudio/opsdemo/internal/server"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRequest(t *testing.T) {
	m := metrics.New()

	m.ObserveRequest("GET", "/ping", 200, 5*time.Millisecond)
	m.ObserveRequest("GET", "/ping", 200, 7*time.Millisecond)
	m.ObserveRequest("GET", "/api/hits", 503, time.Millisecond)

	expected := `
# HELP opsdemo_http_requests_total Total number of HTTP requests by method, route and status code
# TYPE opsdemo_http_requests_total counter
opsdemo_http_requests_total{method="GET",route="/api/hits",status_code="503"} 1
opsdemo_http_requests_total{method="GET",route="/ping",status_code="200"} 2
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "opsdemo_http_requests_total"))
	count, err := testutil.GatherAndCount(m.Registry(), "opsdemo_http_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestShutdownStateAndConnections(t *testing.T) {
	m := metrics.New()
	conns := server.NewConnRegistry()
	m.TrackConnections(conns)

	a, b := net.Pipe()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	conns.Track(a)

	m.SetShutdownState(server.StateDraining)
	m.IncHits()

	expected := `
# HELP opsdemo_open_connections Number of open inbound HTTP connections
# TYPE opsdemo_open_connections gauge
opsdemo_open_connections 1
# HELP opsdemo_shutdown_state Shutdown state: 0 running, 1 draining, 2 terminating, 3 exited
# TYPE opsdemo_shutdown_state gauge
opsdemo_shutdown_state 1
# HELP opsdemo_hits_total Total number of hits recorded by the hits endpoint
# TYPE opsdemo_hits_total counter
opsdemo_hits_total 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"opsdemo_open_connections", "opsdemo_shutdown_state", "opsdemo_hits_total"))
}

func TestHandlerServesTextExposition(t *testing.T) {
	m := metrics.New()
	m.ObserveRequest("GET", "/", 200, time.Millisecond)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/metrics", m.Handler())

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
	assert.Contains(t, string(body), `opsdemo_http_requests_total{method="GET",route="/",status_code="200"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
