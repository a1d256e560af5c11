package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics is the counters and timers surface the engine reports: published
// (tag topic), failed (tags topic, reason), dead (tag topic), per-message
// publish latency (tag topic), and per-batch processing duration (tag
// size). A NoopMetrics is used when the host process doesn't care to wire
// an otel meter provider; OtelMetrics is the production implementation.
type Metrics interface {
	IncEnqueued(ctx context.Context, topic string)
	IncPublished(ctx context.Context, topic string)
	IncFailed(ctx context.Context, topic, reason string)
	IncDead(ctx context.Context, topic string)
	ObservePublishLatency(ctx context.Context, topic string, seconds float64)
	ObserveBatchDuration(ctx context.Context, size int, seconds float64)
	SetBacklog(ctx context.Context, status string, count int64)
}

// OtelMetrics is a Metrics implementation backed by the
// go.opentelemetry.io/otel/metric API: one counter per event kind, a
// histogram for publish latency and batch duration, and a gauge for the
// current per-status backlog.
type OtelMetrics struct {
	enqueued       metric.Int64Counter
	published      metric.Int64Counter
	failed         metric.Int64Counter
	dead           metric.Int64Counter
	publishLatency metric.Float64Histogram
	batchDuration  metric.Float64Histogram
	backlogGauge   metric.Int64Gauge
}

// NewOtelMetrics creates the engine's metric instruments against meter.
func NewOtelMetrics(meter metric.Meter) (*OtelMetrics, error) {
	enqueued, err := meter.Int64Counter("outbox.messages.enqueued",
		metric.WithDescription("Messages appended to the outbox"))
	if err != nil {
		return nil, err
	}

	published, err := meter.Int64Counter("outbox.messages.published",
		metric.WithDescription("Messages successfully published to the broker"))
	if err != nil {
		return nil, err
	}

	failed, err := meter.Int64Counter("outbox.messages.failed",
		metric.WithDescription("Publish attempts that failed and were scheduled for retry"))
	if err != nil {
		return nil, err
	}

	dead, err := meter.Int64Counter("outbox.messages.dead",
		metric.WithDescription("Messages routed to the dead letter state"))
	if err != nil {
		return nil, err
	}

	publishLatency, err := meter.Float64Histogram("outbox.publish.latency",
		metric.WithDescription("Seconds spent publishing a single message"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	batchDuration, err := meter.Float64Histogram("outbox.batch.duration",
		metric.WithDescription("Seconds spent processing one batch"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	backlogGauge, err := meter.Int64Gauge("outbox.backlog",
		metric.WithDescription("Current row count per outbox status"))
	if err != nil {
		return nil, err
	}

	return &OtelMetrics{
		enqueued:       enqueued,
		published:      published,
		failed:         failed,
		dead:           dead,
		publishLatency: publishLatency,
		batchDuration:  batchDuration,
		backlogGauge:   backlogGauge,
	}, nil
}

func (m *OtelMetrics) IncEnqueued(ctx context.Context, topic string) {
	m.enqueued.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *OtelMetrics) IncPublished(ctx context.Context, topic string) {
	m.published.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *OtelMetrics) IncFailed(ctx context.Context, topic, reason string) {
	m.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic), attribute.String("reason", reason)))
}

func (m *OtelMetrics) IncDead(ctx context.Context, topic string) {
	m.dead.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *OtelMetrics) ObservePublishLatency(ctx context.Context, topic string, seconds float64) {
	m.publishLatency.Record(ctx, seconds, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *OtelMetrics) ObserveBatchDuration(ctx context.Context, size int, seconds float64) {
	m.batchDuration.Record(ctx, seconds, metric.WithAttributes(attribute.Int("size", size)))
}

func (m *OtelMetrics) SetBacklog(ctx context.Context, status string, count int64) {
	m.backlogGauge.Record(ctx, count, metric.WithAttributes(attribute.String("status", status)))
}

// NoopMetrics discards every observation. It's the default when a host
// process doesn't configure a meter provider.
type NoopMetrics struct{}

func (NoopMetrics) IncEnqueued(context.Context, string)                {}
func (NoopMetrics) IncPublished(context.Context, string)               {}
func (NoopMetrics) IncFailed(context.Context, string, string)          {}
func (NoopMetrics) IncDead(context.Context, string)                    {}
func (NoopMetrics) ObservePublishLatency(context.Context, string, float64) {}
func (NoopMetrics) ObserveBatchDuration(context.Context, int, float64)     {}
func (NoopMetrics) SetBacklog(context.Context, string, int64)          {}
