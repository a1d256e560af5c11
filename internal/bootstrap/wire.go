package bootstrap

import (
	"context"
	"fmt"
	"time"

	libCircuitBreaker "github.com/LerianStudio/lib-commons/v2/commons/circuitbreaker"
	libZap "github.com/LerianStudio/lib-commons/v2/commons/zap"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/marcusPrado02/outboxd/internal/adapters/mongodb"
	"github.com/marcusPrado02/outboxd/internal/adapters/postgres"
	"github.com/marcusPrado02/outboxd/internal/adapters/rabbitmq"
	mredis "github.com/marcusPrado02/outboxd/internal/adapters/redis"
	"github.com/marcusPrado02/outboxd/internal/observability"
	"github.com/marcusPrado02/outboxd/internal/processor"
	"github.com/marcusPrado02/outboxd/pkg/mcircuitbreaker"
	"github.com/marcusPrado02/outboxd/pkg/mlog"
)

// Runtime bundles every collaborator Wire constructs, so main.go can reach
// the pieces it needs directly (the Processor, for an embedding caller)
// while the Launcher drives the long-running ones.
type Runtime struct {
	Config    Config
	Logger    mlog.Logger
	Postgres  *postgres.Connection
	Processor *processor.Processor
	Launcher  *Launcher
}

// WireOption overrides one piece of the default wiring, primarily for
// tests that want a fake meter or logger without running the full
// environment-variable driven LoadConfig path.
type WireOption func(*wireOptions)

type wireOptions struct {
	meter  metric.Meter
	reader sdkmetric.Reader
}

// WithMeter overrides the otel meter used for metrics and the RabbitMQ
// circuit breaker's state gauge; takes precedence over WithReader and the
// default.
func WithMeter(meter metric.Meter) WireOption {
	return func(o *wireOptions) { o.meter = meter }
}

// WithReader supplies the sdkmetric.Reader the engine's meter provider
// exports through (a PeriodicReader wrapping an OTLP or Prometheus
// exporter, typically). Ignored if WithMeter is also given. Defaults to a
// ManualReader, since no metrics-backend exporter ships in this module —
// operators wanting real export wire their own exporter's reader here.
func WithReader(reader sdkmetric.Reader) WireOption {
	return func(o *wireOptions) { o.reader = reader }
}

// Wire constructs every collaborator this engine needs from cfg and
// assembles them into a running-ready App: Postgres
// storage + migrations, the NOTIFY wake-up bridge, a RabbitMQ publisher
// behind a lib-commons circuit breaker, an optional MongoDB audit mirror,
// an optional Redis lease heartbeat, otel metrics, and the Processor
// itself. Nothing is started; call app.Launcher.Run(ctx) to start it all.
func Wire(ctx context.Context, cfg Config, logger mlog.Logger, opts ...WireOption) (*Runtime, error) {
	options := wireOptions{reader: sdkmetric.NewManualReader()}
	for _, opt := range opts {
		opt(&options)
	}

	if options.meter == nil {
		telemetry := (&observability.Telemetry{ServiceName: "outboxd", DeploymentEnv: cfg.EnvName}).
			Initialize(options.reader)
		options.meter = telemetry.MetricProvider.Meter("outboxd")
	}

	pg := &postgres.Connection{
		PrimaryDSN:     cfg.PostgresPrimaryDSN,
		ReplicaDSN:     firstNonEmpty(cfg.PostgresReplicaDSN, cfg.PostgresPrimaryDSN),
		MigrationsPath: cfg.PostgresMigrationsPath,
		Logger:         logger,
	}

	db, err := pg.GetDB(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: postgres: %w", err)
	}

	repo := postgres.NewOutboxPostgreSQLRepository(db)

	metrics, err := observability.NewOtelMetrics(options.meter)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: metrics: %w", err)
	}

	publisher, cbWatcher, err := wirePublisher(cfg, logger, options.meter)
	if err != nil {
		return nil, err
	}

	processorOpts := []processor.Option{
		processor.WithMetrics(metrics),
		processor.WithRetryConfig(cfg.Retry),
		processor.WithMaxWorkers(cfg.MaxWorkers),
		processor.WithBatchSize(cfg.BatchSize),
		processor.WithMaxAttempts(cfg.MaxAttempts),
		processor.WithFixedDelay(cfg.FixedDelay),
		processor.WithShutdownTimeout(cfg.ShutdownTimeout),
	}

	if cfg.MongoEnabled {
		mirror, err := wireMongoMirror(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}

		processorOpts = append(processorOpts, processor.WithMirror(mirror))
	}

	if cfg.RedisEnabled {
		leaser, err := wireRedisLeaser(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}

		processorOpts = append(processorOpts, processor.WithLeaser(leaser))
	}

	proc := processor.NewProcessor(logger, repo, publisher, processorOpts...)

	listener := &postgres.NotifyListener{DSN: pg.PrimaryDSN, Logger: logger, Waker: proc}

	launcher := NewLauncher(WithLogger(logger)).
		Add("processor", NewProcessorApp(proc.Start, proc.Stop)).
		Add("postgres-notify-listener", NewListenerApp(listener.Start, listener.Stop))

	if cbWatcher != nil {
		launcher.Add("rabbitmq-circuit-breaker-watch", cbWatcher)
	}

	if cfg.RetentionEnabled {
		launcher.Add("retention", NewRetentionApp(logger, repo, cfg.RetentionInterval, cfg.RetentionMaxAge))
	}

	return &Runtime{
		Config:    cfg,
		Logger:    logger,
		Postgres:  pg,
		Processor: proc,
		Launcher:  launcher,
	}, nil
}

const circuitBreakerWatchInterval = 5 * time.Second

// wirePublisher builds the RabbitMQ publisher behind a lib-commons circuit
// breaker and an App that bridges the breaker's polled state into the
// engine's own metrics vocabulary (see rabbitmq.WatchState's doc comment
// for why polling, not a push subscription).
func wirePublisher(cfg Config, logger mlog.Logger, meter metric.Meter) (processor.Publisher, App, error) {
	conn := &rabbitmq.Connection{URL: cfg.RabbitMQURL, Logger: logger}

	base := rabbitmq.NewPublisher(conn, logger)

	cbLogger, err := libZap.InitializeLoggerWithError()
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: circuit breaker logger: %w", err)
	}

	manager := libCircuitBreaker.NewManager(cbLogger)
	cb := manager.GetOrCreate("outboxd-rabbitmq-publisher", libCircuitBreaker.DefaultConfig())

	wrapped, err := rabbitmq.NewPublisherCircuitBreaker(base, cb)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: circuit breaker: %w", err)
	}

	stateListener, err := rabbitmq.NewMetricStateListener(meter)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: circuit breaker metrics: %w", err)
	}

	watcher := watchStateApp{wrapper: wrapped, listener: stateListener}

	return wrapped, watcher, nil
}

type watchStateApp struct {
	wrapper  *rabbitmq.PublisherCircuitBreaker
	listener mcircuitbreaker.StateListener
}

func (a watchStateApp) Run(ctx context.Context) error {
	rabbitmq.WatchState(ctx, a.wrapper, a.listener, "outboxd-rabbitmq-publisher", circuitBreakerWatchInterval)
	return nil
}

func wireMongoMirror(ctx context.Context, cfg Config, logger mlog.Logger) (processor.Mirror, error) {
	conn := &mongodb.Connection{URI: cfg.MongoURI, Database: cfg.MongoDatabase, Logger: logger}

	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("bootstrap: mongo: %w", err)
	}

	return mongodb.NewAuditMirrorRepository(conn, cfg.MongoCollection), nil
}

func wireRedisLeaser(ctx context.Context, cfg Config, logger mlog.Logger) (processor.Leaser, error) {
	conn := &mredis.Connection{ConnectionStringSource: cfg.RedisURL, Logger: logger}

	pool, err := conn.NewPool(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: redis: %w", err)
	}

	return mredis.NewLeaseHeartbeat(pool), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
