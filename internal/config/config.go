// Package config loads service settings from environment variables.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// ErrInvalidConfig wraps every validation failure returned by Load.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full service configuration.
type Config struct {
	Port    int    `env:"PORT" envDefault:"8080" validate:"min=1,max=65535"`
	EnvName string `env:"ENV_NAME" envDefault:"production" validate:"oneof=production staging development local"`
	// LogLevel overrides the level implied by EnvName when set.
	LogLevel    string `env:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn error"`
	Version     string `env:"VERSION" envDefault:"0.0.0"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"opsdemo" validate:"required"`

	Shutdown  Shutdown  `envPrefix:"SHUTDOWN_"`
	Database  Database  `envPrefix:"DB_"`
	Redis     Redis     `envPrefix:"REDIS_"`
	Health    Health    `envPrefix:"HEALTH_"`
	Telemetry Telemetry `envPrefix:"OTEL_"`
}

// Shutdown bounds the graceful shutdown.
type Shutdown struct {
	HardDeadline       time.Duration `env:"HARD_DEADLINE" envDefault:"30s" validate:"gt=0"`
	GraceWindow        time.Duration `env:"GRACE_WINDOW" envDefault:"5s" validate:"gt=0,ltfield=HardDeadline"`
	FailOnCleanupError bool          `env:"FAIL_ON_CLEANUP_ERROR" envDefault:"true"`
}

// Database configures the postgres pool. An empty PrimaryDSN disables it.
type Database struct {
	PrimaryDSN   string `env:"PRIMARY_DSN"`
	ReplicaDSN   string `env:"REPLICA_DSN"`
	MaxOpenConns int    `env:"MAX_OPEN_CONNS" envDefault:"25" validate:"gt=0"`
	MaxIdleConns int    `env:"MAX_IDLE_CONNS" envDefault:"10" validate:"gte=0,ltefield=MaxOpenConns"`
}

// Enabled reports whether a database is configured.
func (d Database) Enabled() bool {
	return d.PrimaryDSN != ""
}

// Redis configures the cache client. An empty Address disables it.
type Redis struct {
	Address  string `env:"ADDRESS"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0" validate:"gte=0,lte=15"`
}

// Enabled reports whether a cache is configured.
func (r Redis) Enabled() bool {
	return r.Address != ""
}

// Health configures the health and readiness checks.
type Health struct {
	CheckTimeout time.Duration `env:"CHECK_TIMEOUT" envDefault:"2s" validate:"gt=0"`
}

// Telemetry configures OpenTelemetry tracing.
type Telemetry struct {
	Enabled  bool   `env:"ENABLED" envDefault:"false"`
	Endpoint string `env:"EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317" validate:"required_if=Enabled true"`
}

// Address returns the listen address for Port.
func (c *Config) Address() string {
	return ":" + strconv.Itoa(c.Port)
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	return LoadFrom(nil)
}

// LoadFrom parses environment from vars instead of the process environment
// when vars is not nil.
func LoadFrom(vars map[string]string) (*Config, error) {
	cfg := &Config{}

	opts := env.Options{}
	if vars != nil {
		opts.Environment = vars
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			errs := make([]error, 0, len(verrs))
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}

			return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
		}

		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}
