package rabbitmq

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/marcusPrado02/outboxd/pkg/mcircuitbreaker"
)

// ErrNilMetricsFactory marks construction of a MetricStateListener with a
// nil meter.
var ErrNilMetricsFactory = errors.New("rabbitmq: meter cannot be nil")

// MetricStateListener implements mcircuitbreaker.StateListener, publishing
// the publisher circuit breaker's state as a gauge so it shows up
// alongside the outbox backlog gauges in the same dashboard.
type MetricStateListener struct {
	gauge metric.Int64Gauge
}

// NewMetricStateListener builds a listener recording state transitions
// through meter.
func NewMetricStateListener(meter metric.Meter) (*MetricStateListener, error) {
	if meter == nil {
		return nil, ErrNilMetricsFactory
	}

	gauge, err := meter.Int64Gauge(
		"outboxd_rabbitmq_circuit_breaker_state",
		metric.WithDescription("Current state of the RabbitMQ publisher circuit breaker (0=closed, 1=open, 2=half-open)"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricStateListener{gauge: gauge}, nil
}

// OnCircuitBreakerStateChange records the breaker's new state.
func (l *MetricStateListener) OnCircuitBreakerStateChange(event mcircuitbreaker.StateChangeEvent) {
	value := stateToMetricValue(event.ToState)
	l.gauge.Record(context.Background(), value, metric.WithAttributes(attribute.String("service", event.ServiceName)))
}

func stateToMetricValue(state mcircuitbreaker.State) int64 {
	switch state {
	case mcircuitbreaker.StateClosed:
		return 0
	case mcircuitbreaker.StateOpen:
		return 1
	case mcircuitbreaker.StateHalfOpen:
		return 2
	default:
		return -1
	}
}

var _ mcircuitbreaker.StateListener = (*MetricStateListener)(nil)
