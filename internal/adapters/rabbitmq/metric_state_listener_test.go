package rabbitmq

import (
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/marcusPrado02/outboxd/pkg/mcircuitbreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricStateListener_NilMeter_ReturnsError(t *testing.T) {
	_, err := NewMetricStateListener(nil)
	require.ErrorIs(t, err, ErrNilMetricsFactory)
}

func TestNewMetricStateListener_ValidMeter_ReturnsListener(t *testing.T) {
	meter := sdkmetric.NewMeterProvider().Meter("test")

	listener, err := NewMetricStateListener(meter)

	require.NoError(t, err)
	assert.NotNil(t, listener)
}

func TestMetricStateListener_OnStateChange_DoesNotPanic(t *testing.T) {
	meter := sdkmetric.NewMeterProvider().Meter("test")
	listener, err := NewMetricStateListener(meter)
	require.NoError(t, err)

	listener.OnCircuitBreakerStateChange(mcircuitbreaker.StateChangeEvent{
		ServiceName: "rabbitmq-producer", FromState: mcircuitbreaker.StateClosed, ToState: mcircuitbreaker.StateOpen,
	})
	listener.OnCircuitBreakerStateChange(mcircuitbreaker.StateChangeEvent{
		ServiceName: "rabbitmq-producer", FromState: mcircuitbreaker.StateOpen, ToState: mcircuitbreaker.StateHalfOpen,
	})
	listener.OnCircuitBreakerStateChange(mcircuitbreaker.StateChangeEvent{
		ServiceName: "rabbitmq-producer", FromState: mcircuitbreaker.StateHalfOpen, ToState: mcircuitbreaker.StateClosed,
	})
}

func TestStateToMetricValue(t *testing.T) {
	tests := []struct {
		state    mcircuitbreaker.State
		expected int64
	}{
		{mcircuitbreaker.StateClosed, 0},
		{mcircuitbreaker.StateOpen, 1},
		{mcircuitbreaker.StateHalfOpen, 2},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, stateToMetricValue(tt.state))
		})
	}
}
