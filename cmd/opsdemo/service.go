package main

import (
	"context"
	"fmt"
	"time"

	"github.com/LerianStudio/opsdemo/internal/config"
	"github.com/LerianStudio/opsdemo/internal/errgroup"
	"github.com/LerianStudio/opsdemo/internal/log"
	"github.com/LerianStudio/opsdemo/internal/metrics"
	httpx "github.com/LerianStudio/opsdemo/internal/net/http"
	"github.com/LerianStudio/opsdemo/internal/postgres"
	"github.com/LerianStudio/opsdemo/internal/redis"
	"github.com/LerianStudio/opsdemo/internal/server"
	"github.com/LerianStudio/opsdemo/internal/telemetry"
	"github.com/LerianStudio/opsdemo/internal/zap"
	"github.com/gofiber/fiber/v2"
)

const (
	connectTimeout = 10 * time.Second
	tracerName     = "opsdemo"
	description    = "graceful shutdown demo service"
)

var loadConfig = config.Load

type service struct {
	cfg       *config.Config
	logger    log.Logger
	coord     *server.Coordinator
	metrics   *metrics.Metrics
	telemetry *telemetry.Telemetry
	db        *postgres.Client
	cache     *redis.Client
}

// newService builds every collaborator and connects the configured
// dependencies. exitFn replaces os.Exit when not nil.
func newService(ctx context.Context, cfg *config.Config, exitFn server.ExitFunc) (*service, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	logger, _, err := zap.New(zap.Config{
		Environment: zap.Environment(cfg.EnvName),
		Level:       cfg.LogLevel,
		ServiceName: cfg.ServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	s := &service{cfg: cfg, logger: logger, metrics: metrics.New()}

	s.telemetry, err = telemetry.New(ctx, telemetry.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.EnvName,
		Endpoint:       cfg.Telemetry.Endpoint,
		Enabled:        cfg.Telemetry.Enabled,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	exit := server.NewExitPolicy(
		server.WithExitFunc(exitFn),
		server.WithCleanupFailureExit(cfg.Shutdown.FailOnCleanupError),
	)

	s.coord = server.NewCoordinator(server.NewConnRegistry(), server.NewHookRegistry(), exit, logger).
		WithHardDeadline(cfg.Shutdown.HardDeadline).
		WithGraceWindow(cfg.Shutdown.GraceWindow)

	s.metrics.TrackConnections(s.coord.Connections())
	s.coord.OnStateChange(s.metrics.SetShutdownState)

	if err := s.connectDependencies(ctx); err != nil {
		s.abort(ctx)

		return nil, err
	}

	if err := s.registerHooks(); err != nil {
		s.closeDependencies()
		s.abort(ctx)

		return nil, err
	}

	return s, nil
}

// abort releases the tracer provider when startup fails before the
// coordinator owns it as a cleanup hook.
func (s *service) abort(ctx context.Context) {
	if err := s.telemetry.Shutdown(context.WithoutCancel(ctx)); err != nil {
		s.logger.Log(ctx, log.LevelWarn, "telemetry shutdown after failed startup", log.Err(err))
	}
}

// connectDependencies opens the database and cache concurrently. Either
// failing aborts startup.
func (s *service) connectDependencies(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	var err error

	if s.cfg.Database.Enabled() {
		s.db, err = postgres.New(postgres.Config{
			PrimaryDSN:   s.cfg.Database.PrimaryDSN,
			ReplicaDSN:   s.cfg.Database.ReplicaDSN,
			MaxOpenConns: s.cfg.Database.MaxOpenConns,
			MaxIdleConns: s.cfg.Database.MaxIdleConns,
			Logger:       s.logger,
		})
		if err != nil {
			return err
		}
	}

	if s.cfg.Redis.Enabled() {
		s.cache, err = redis.New(redis.Config{
			Address:  s.cfg.Redis.Address,
			Password: s.cfg.Redis.Password,
			DB:       s.cfg.Redis.DB,
			Logger:   s.logger,
		})
		if err != nil {
			return err
		}
	}

	group, _ := errgroup.WithContext(ctx)
	group.SetLogger(s.logger)

	if s.db != nil {
		group.Go("database", s.db.Connect)
	}

	if s.cache != nil {
		group.Go("cache", s.cache.Connect)
	}

	if err := group.Wait(); err != nil {
		s.closeDependencies()

		return fmt.Errorf("connect dependencies: %w", err)
	}

	return nil
}

func (s *service) closeDependencies() {
	if s.db != nil {
		_ = s.db.Close()
	}

	if s.cache != nil {
		_ = s.cache.Close()
	}
}

func (s *service) registerHooks() error {
	hooks := s.coord.Hooks()

	if s.db != nil {
		if err := hooks.Register("database", func(context.Context) error { return s.db.Close() }); err != nil {
			return err
		}
	}

	if s.cache != nil {
		if err := hooks.Register("cache", func(context.Context) error { return s.cache.Close() }); err != nil {
			return err
		}
	}

	return hooks.Register("telemetry", s.telemetry.Shutdown)
}

func (s *service) healthChecks() []httpx.DependencyCheck {
	database := httpx.DependencyCheck{Name: "database"}
	if s.db != nil {
		database.Check = s.db.Ping
	}

	cache := httpx.DependencyCheck{Name: "cache"}
	if s.cache != nil {
		cache.Check = s.cache.Ping
		cache.Breaker = s.cache.Breaker()
	}

	return []httpx.DependencyCheck{database, cache}
}

func (s *service) counter() httpx.Counter {
	if s.cache != nil {
		return s.cache
	}

	return &httpx.MemoryCounter{}
}

// newApp assembles the fiber app. Recovery is the innermost middleware so a
// panic reaches logging, tracing, metrics and the Connection: close marker as
// a plain 500 error.
func (s *service) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               s.cfg.ServiceName,
		DisableStartupMessage: true,
		ErrorHandler:          httpx.FiberErrorHandler,
	})

	health := httpx.NewHealth(s.coord, s.cfg.Health.CheckTimeout, s.healthChecks()...)

	app.Use(
		httpx.WithRequestID(),
		httpx.WithHTTPLogging(s.logger),
		httpx.WithTelemetry(s.telemetry.Tracer(tracerName), s.telemetry.Propagator(),
			"/metrics", "/health", "/health/live", "/health/ready"),
		httpx.WithMetrics(s.metrics),
		httpx.WithConnectionClose(s.coord),
		httpx.WithRecover(s.logger, s.coord.Fault),
	)

	app.Get("/", httpx.Welcome(s.cfg.ServiceName, description))
	app.Get("/ping", httpx.Ping)
	app.Get("/version", httpx.Version(s.cfg.Version))
	app.Get("/api/hits", httpx.Hits(s.coord, s.counter(), s.metrics))
	app.Get("/health", health.Health())
	app.Get("/health/live", health.Live())
	app.Get("/health/ready", health.Ready())
	app.Get("/metrics", s.metrics.Handler())

	return app
}

// run serves until the coordinator exits the process.
func (s *service) run() error {
	return s.serve(nil)
}

func (s *service) serve(shutdownChan <-chan struct{}) error {
	sm := server.NewServerManager(s.coord, s.logger).WithHTTPServer(s.newApp(), s.cfg.Address())
	if shutdownChan != nil {
		sm.WithShutdownChannel(shutdownChan)
	}

	s.logger.Log(context.Background(), log.LevelInfo, "service starting",
		log.String("address", s.cfg.Address()),
		log.String("version", s.cfg.Version),
		log.Bool("database", s.db != nil),
		log.Bool("cache", s.cache != nil),
	)

	return sm.StartWithGracefulShutdownWithError()
}
