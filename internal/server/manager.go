package server

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/LerianStudio/opsdemo/internal/log"
	"github.com/LerianStudio/opsdemo/internal/runtime"
	"github.com/gofiber/fiber/v2"
)

// ServerManager binds a fiber app to a tracked listener and hands its
// lifecycle to a Coordinator.
type ServerManager struct {
	httpServer     *fiber.App
	httpAddress    string
	coordinator    *Coordinator
	logger         log.Logger
	listener       *Listener
	serversStarted chan struct{}
	startedOnce    sync.Once
	shutdownChan   <-chan struct{}
	mu             sync.Mutex
}

// NewServerManager creates a new instance of ServerManager.
// If logger is nil, a no-op logger is used.
func NewServerManager(coordinator *Coordinator, logger log.Logger) *ServerManager {
	logger = log.OrNop(logger)

	if coordinator == nil {
		coordinator = NewCoordinator(nil, nil, nil, logger)
	}

	return &ServerManager{
		coordinator:    coordinator,
		logger:         logger,
		serversStarted: make(chan struct{}),
	}
}

// WithHTTPServer configures the HTTP server for the ServerManager.
func (sm *ServerManager) WithHTTPServer(app *fiber.App, address string) *ServerManager {
	sm.httpServer = app
	sm.httpAddress = address

	return sm
}

// WithShutdownChannel replaces OS signal handling with a channel whose close
// starts a manual shutdown. Tests use it to trigger shutdown deterministically.
func (sm *ServerManager) WithShutdownChannel(ch <-chan struct{}) *ServerManager {
	sm.shutdownChan = ch

	return sm
}

// ServersStarted returns a channel that is closed once the listener is bound
// and the serve goroutine has been launched.
func (sm *ServerManager) ServersStarted() <-chan struct{} {
	return sm.serversStarted
}

// Addr returns the bound address, or nil before start.
func (sm *ServerManager) Addr() net.Addr {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.listener == nil {
		return nil
	}

	return sm.listener.Addr()
}

// Coordinator returns the shutdown coordinator driving this manager.
func (sm *ServerManager) Coordinator() *Coordinator {
	return sm.coordinator
}

// StartWithGracefulShutdownWithError binds the listener, serves the app and
// blocks until the coordinator reaches Exited. It returns an error without
// starting anything when no server is configured or the address cannot be bound.
func (sm *ServerManager) StartWithGracefulShutdownWithError() error {
	if sm.httpServer == nil {
		return ErrNoServersConfigured
	}

	ln, err := Listen("tcp", sm.httpAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", sm.httpAddress, err)
	}

	sm.mu.Lock()
	sm.listener = ln
	sm.mu.Unlock()

	sm.coordinator.WithListener(ln)
	sm.httpServer.Server().ConnState = ConnStateHook(sm.coordinator.Connections())

	sm.startServers(ln)
	sm.watchTriggers()

	sm.coordinator.Wait()

	return sm.coordinator.Report().Err()
}

func (sm *ServerManager) startServers(ln *Listener) {
	ctx := context.Background()

	runtime.SafeGo(ctx, sm.logger, "server", "start_http_server", runtime.ReportFault, sm.coordinator.Fault,
		func(ctx context.Context) {
			sm.logger.Log(ctx, log.LevelInfo, "Starting HTTP server", log.String("address", ln.Addr().String()))

			if err := sm.httpServer.Listener(ln); err != nil && !sm.coordinator.Draining() {
				sm.coordinator.Fault(fmt.Errorf("HTTP server: %w", err))
			}
		},
	)

	sm.startedOnce.Do(func() {
		close(sm.serversStarted)
	})
}

func (sm *ServerManager) watchTriggers() {
	if sm.shutdownChan == nil {
		sm.coordinator.HandleSignals()
		return
	}

	go func() {
		select {
		case <-sm.shutdownChan:
			sm.coordinator.Shutdown(ManualCause("shutdown channel closed"))
		case <-sm.coordinator.Done():
		}
	}()
}
