package http

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/LerianStudio/opsdemo/internal/server"
	"github.com/gofiber/fiber/v2"
	"github.com/sony/gobreaker"
)

// Health and readiness status values.
const (
	StatusAvailable = "available"
	StatusDegraded  = "degraded"
	StatusAlive     = "alive"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
	StatusDraining  = "draining"

	CheckUp       = "up"
	CheckDown     = "down"
	CheckDisabled = "disabled"
	CheckSkipped  = "skipped"
)

// ErrCircuitOpen is reported for a dependency whose circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// StateReader exposes the shutdown state. *server.Coordinator satisfies it.
type StateReader interface {
	State() server.State
}

// BreakerReader exposes a circuit breaker's state and counters.
type BreakerReader interface {
	State() gobreaker.State
	Counts() gobreaker.Counts
}

// DependencyCheck represents a health check configuration for a single dependency.
type DependencyCheck struct {
	// Name is the identifier for this dependency in the health response.
	Name string

	// Check pings the dependency. A nil Check marks the dependency as not
	// configured; it reports "disabled" and never fails the check.
	Check func(ctx context.Context) error

	// Breaker is optional. While it is open the dependency is reported down
	// without being pinged.
	Breaker BreakerReader
}

// DependencyStatus represents the health status of a single dependency.
type DependencyStatus struct {
	Status              string `json:"status"`
	Error               string `json:"error,omitempty"`
	LatencyMs           int64  `json:"latency_ms,omitempty"`
	CircuitBreakerState string `json:"circuit_breaker_state,omitempty"`
	ConsecutiveFailures uint32 `json:"consecutive_failures,omitempty"`
}

// Health serves the health, liveness and readiness endpoints.
type Health struct {
	state   StateReader
	checks  []DependencyCheck
	timeout time.Duration
	started time.Time
	now     func() time.Time
}

// NewHealth creates the health handlers. The policy is AND: every configured
// dependency must be up for the service to be healthy.
func NewHealth(state StateReader, timeout time.Duration, checks ...DependencyCheck) *Health {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	return &Health{
		state:   state,
		checks:  checks,
		timeout: timeout,
		started: time.Now(),
		now:     time.Now,
	}
}

func (h *Health) currentState() server.State {
	if h.state == nil {
		return server.StateRunning
	}

	return h.state.State()
}

func (h *Health) uptime() time.Duration {
	return h.now().Sub(h.started).Truncate(time.Second)
}

// Health returns 200 "available" when the service is running and every
// configured dependency is up, and 503 "degraded" otherwise. Once shutdown has
// begun the dependencies are reported "skipped" and never pinged, since their
// pools may already be closed by the cleanup hooks.
func (h *Health) Health() fiber.Handler {
	return func(c *fiber.Ctx) error {
		state := h.currentState()

		var (
			checks  map[string]*DependencyStatus
			healthy bool
		)

		if state == server.StateRunning {
			checks, healthy = h.evaluate(c.UserContext())
		} else {
			checks = h.skipped()
		}

		status, code := StatusAvailable, fiber.StatusOK
		if !healthy {
			status, code = StatusDegraded, fiber.StatusServiceUnavailable
		}

		return c.Status(code).JSON(fiber.Map{
			"status":         status,
			"state":          state.String(),
			"uptime":         h.uptime().String(),
			"uptime_seconds": int64(h.uptime().Seconds()),
			"checks":         checks,
		})
	}
}

// Live answers 200 for as long as the process can serve requests.
func (h *Health) Live() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": StatusAlive,
			"state":  h.currentState().String(),
		})
	}
}

// Ready answers 503 "draining" as soon as shutdown begins, without consulting
// the dependencies. While running it applies the same checks as Health.
func (h *Health) Ready() fiber.Handler {
	return func(c *fiber.Ctx) error {
		state := h.currentState()
		if state != server.StateRunning {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": StatusDraining,
				"state":  state.String(),
			})
		}

		checks, healthy := h.evaluate(c.UserContext())
		if !healthy {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": StatusNotReady,
				"state":  state.String(),
				"checks": checks,
			})
		}

		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": StatusReady,
			"state":  state.String(),
			"checks": checks,
		})
	}
}

// evaluate runs every configured check concurrently, each bounded by the
// check timeout.
func (h *Health) evaluate(ctx context.Context) (map[string]*DependencyStatus, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	statuses := make(map[string]*DependencyStatus, len(h.checks))
	results := make([]*DependencyStatus, len(h.checks))

	var wg sync.WaitGroup

	for i, dep := range h.checks {
		i, dep := i, dep

		wg.Add(1)

		go func() {
			defer wg.Done()

			results[i] = h.check(ctx, dep)
		}()
	}

	wg.Wait()

	healthy := true

	for i, dep := range h.checks {
		statuses[dep.Name] = results[i]

		if results[i].Status == CheckDown {
			healthy = false
		}
	}

	return statuses, healthy
}

// skipped reports every dependency without touching it.
func (h *Health) skipped() map[string]*DependencyStatus {
	statuses := make(map[string]*DependencyStatus, len(h.checks))

	for _, dep := range h.checks {
		if dep.Check == nil {
			statuses[dep.Name] = &DependencyStatus{Status: CheckDisabled}
			continue
		}

		statuses[dep.Name] = &DependencyStatus{Status: CheckSkipped}
	}

	return statuses
}

func (h *Health) check(ctx context.Context, dep DependencyCheck) *DependencyStatus {
	if dep.Check == nil {
		return &DependencyStatus{Status: CheckDisabled}
	}

	status := &DependencyStatus{Status: CheckUp}

	if dep.Breaker != nil {
		status.CircuitBreakerState = dep.Breaker.State().String()
		status.ConsecutiveFailures = dep.Breaker.Counts().ConsecutiveFailures

		if dep.Breaker.State() == gobreaker.StateOpen {
			status.Status = CheckDown
			status.Error = ErrCircuitOpen.Error()

			return status
		}
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	err := dep.Check(ctx)
	status.LatencyMs = time.Since(start).Milliseconds()

	if err != nil {
		status.Status = CheckDown
		status.Error = err.Error()
	}

	return status
}
