// Package bootstrap wires outboxd's collaborators (storage, broker, audit
// mirror, lease heartbeat, observability) into a running Processor,
// assembling a Launcher out of individually constructed components.
package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	validator "gopkg.in/go-playground/validator.v9"

	"github.com/marcusPrado02/outboxd/internal/observability"
	"github.com/marcusPrado02/outboxd/pkg/mlog"
	"github.com/marcusPrado02/outboxd/pkg/mretry"
)

// Config is the full set of env-var driven knobs outboxd needs to run.
// Struct tags follow validator.v9 conventions; fields without a `validate`
// tag are optional or carry their own defaulting logic.
type Config struct {
	EnvName string `env:"ENV_NAME"`
	LogLevel string `env:"LOG_LEVEL"`

	PostgresPrimaryDSN string `env:"OUTBOXD_POSTGRES_PRIMARY_DSN" validate:"required"`
	PostgresReplicaDSN string `env:"OUTBOXD_POSTGRES_REPLICA_DSN"`
	PostgresMigrationsPath string `env:"OUTBOXD_POSTGRES_MIGRATIONS_PATH"`

	RabbitMQURL string `env:"OUTBOXD_RABBITMQ_URL" validate:"required"`

	MongoURI string `env:"OUTBOXD_MONGO_URI"`
	MongoDatabase string `env:"OUTBOXD_MONGO_DATABASE"`
	MongoCollection string `env:"OUTBOXD_MONGO_COLLECTION"`
	MongoEnabled bool `env:"OUTBOXD_MONGO_ENABLED"`

	RedisURL string `env:"OUTBOXD_REDIS_URL"`
	RedisEnabled bool `env:"OUTBOXD_REDIS_ENABLED"`

	BatchSize int `env:"OUTBOXD_BATCH_SIZE" validate:"gte=1"`
	MaxWorkers int `env:"OUTBOXD_MAX_WORKERS" validate:"gte=1"`
	MaxAttempts int `env:"OUTBOXD_MAX_ATTEMPTS" validate:"gte=1"`
	FixedDelay time.Duration `env:"OUTBOXD_FIXED_DELAY"`
	ShutdownTimeout time.Duration `env:"OUTBOXD_SHUTDOWN_TIMEOUT"`

	HealthWarningThreshold int64 `env:"OUTBOXD_HEALTH_WARNING_THRESHOLD" validate:"gte=1"`
	HealthErrorThreshold int64 `env:"OUTBOXD_HEALTH_ERROR_THRESHOLD" validate:"gtfield=HealthWarningThreshold"`

	RetentionEnabled bool `env:"OUTBOXD_RETENTION_ENABLED"`
	RetentionMaxAge time.Duration `env:"OUTBOXD_RETENTION_MAX_AGE"`
	RetentionInterval time.Duration `env:"OUTBOXD_RETENTION_INTERVAL"`

	Retry mretry.Config
}

// DefaultConfig seeds every knob that has a sane production-ready default,
// leaving the required, deployment-specific fields (DSNs, URLs) zeroed.
func DefaultConfig() Config {
	return Config{
		EnvName:                "local",
		LogLevel:               "info",
		PostgresMigrationsPath: "internal/adapters/postgres/migrations",
		MongoCollection:        "outbox_audit",
		BatchSize:              10,
		MaxWorkers:             5,
		MaxAttempts:            5,
		FixedDelay:             60 * time.Second,
		ShutdownTimeout:        10 * time.Second,
		HealthWarningThreshold: observability.DefaultHealthThresholds().WarningThreshold,
		HealthErrorThreshold:   observability.DefaultHealthThresholds().ErrorThreshold,
		RetentionEnabled:       false,
		RetentionMaxAge:        30 * 24 * time.Hour,
		RetentionInterval:      24 * time.Hour,
		Retry: mretry.DefaultMetadataOutboxConfig().
			WithInitialBackoff(100 * time.Millisecond).
			WithMaxBackoff(30 * time.Second),
	}
}

// LoadConfig loads a .env file when present (silently skipped otherwise,
// for ENV_NAME=local), overlays environment variables onto DefaultConfig,
// and validates the result.
func LoadConfig(logger mlog.Logger) (Config, error) {
	envName := getenvOrDefault("ENV_NAME", "local")

	if envName == "local" {
		if err := godotenv.Load(); err != nil {
			logger.Infof("bootstrap: no .env file found, using process environment only")
		} else {
			logger.Info("bootstrap: loaded environment from .env")
		}
	}

	cfg := DefaultConfig()
	setFromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate runs struct-tag validation for the engine-level knobs and the
// backoff schedule's own cross-field invariant, which a generic validator
// tag can't express.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("bootstrap: invalid config: %w", err)
	}

	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("bootstrap: invalid retry config: %w", err)
	}

	return nil
}

func getenvOrDefault(key, defaultValue string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return defaultValue
	}

	return v
}

func getenvBoolOrDefault(key string, defaultValue bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}

	return b
}

func getenvIntOrDefault(key string, defaultValue int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}

	return n
}

func getenvInt64OrDefault(key string, defaultValue int64) int64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultValue
	}

	return n
}

func getenvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}

	return d
}

// setFromEnv overlays every OUTBOXD_* (and ENV_NAME/LOG_LEVEL) environment
// variable present onto cfg, leaving cfg's current value untouched when the
// variable is unset or malformed. Specialized per-field instead of
// reflected over struct tags since this config mixes strings, bools, ints,
// int64s, and durations that reflection alone can't dispatch on safely.
func setFromEnv(cfg *Config) {
	cfg.EnvName = getenvOrDefault("ENV_NAME", cfg.EnvName)
	cfg.LogLevel = getenvOrDefault("LOG_LEVEL", cfg.LogLevel)

	cfg.PostgresPrimaryDSN = getenvOrDefault("OUTBOXD_POSTGRES_PRIMARY_DSN", cfg.PostgresPrimaryDSN)
	cfg.PostgresReplicaDSN = getenvOrDefault("OUTBOXD_POSTGRES_REPLICA_DSN", cfg.PostgresReplicaDSN)
	cfg.PostgresMigrationsPath = getenvOrDefault("OUTBOXD_POSTGRES_MIGRATIONS_PATH", cfg.PostgresMigrationsPath)

	cfg.RabbitMQURL = getenvOrDefault("OUTBOXD_RABBITMQ_URL", cfg.RabbitMQURL)

	cfg.MongoURI = getenvOrDefault("OUTBOXD_MONGO_URI", cfg.MongoURI)
	cfg.MongoDatabase = getenvOrDefault("OUTBOXD_MONGO_DATABASE", cfg.MongoDatabase)
	cfg.MongoCollection = getenvOrDefault("OUTBOXD_MONGO_COLLECTION", cfg.MongoCollection)
	cfg.MongoEnabled = getenvBoolOrDefault("OUTBOXD_MONGO_ENABLED", cfg.MongoEnabled)

	cfg.RedisURL = getenvOrDefault("OUTBOXD_REDIS_URL", cfg.RedisURL)
	cfg.RedisEnabled = getenvBoolOrDefault("OUTBOXD_REDIS_ENABLED", cfg.RedisEnabled)

	cfg.BatchSize = getenvIntOrDefault("OUTBOXD_BATCH_SIZE", cfg.BatchSize)
	cfg.MaxWorkers = getenvIntOrDefault("OUTBOXD_MAX_WORKERS", cfg.MaxWorkers)
	cfg.MaxAttempts = getenvIntOrDefault("OUTBOXD_MAX_ATTEMPTS", cfg.MaxAttempts)
	cfg.FixedDelay = getenvDurationOrDefault("OUTBOXD_FIXED_DELAY", cfg.FixedDelay)
	cfg.ShutdownTimeout = getenvDurationOrDefault("OUTBOXD_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)

	cfg.HealthWarningThreshold = getenvInt64OrDefault("OUTBOXD_HEALTH_WARNING_THRESHOLD", cfg.HealthWarningThreshold)
	cfg.HealthErrorThreshold = getenvInt64OrDefault("OUTBOXD_HEALTH_ERROR_THRESHOLD", cfg.HealthErrorThreshold)

	cfg.RetentionEnabled = getenvBoolOrDefault("OUTBOXD_RETENTION_ENABLED", cfg.RetentionEnabled)
	cfg.RetentionMaxAge = getenvDurationOrDefault("OUTBOXD_RETENTION_MAX_AGE", cfg.RetentionMaxAge)
	cfg.RetentionInterval = getenvDurationOrDefault("OUTBOXD_RETENTION_INTERVAL", cfg.RetentionInterval)

	cfg.Retry.MaxRetries = getenvIntOrDefault("OUTBOXD_RETRY_MAX_RETRIES", cfg.Retry.MaxRetries)
	cfg.Retry.InitialBackoff = getenvDurationOrDefault("OUTBOXD_RETRY_INITIAL_BACKOFF", cfg.Retry.InitialBackoff)
	cfg.Retry.MaxBackoff = getenvDurationOrDefault("OUTBOXD_RETRY_MAX_BACKOFF", cfg.Retry.MaxBackoff)
}
