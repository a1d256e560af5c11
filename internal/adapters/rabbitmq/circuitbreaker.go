package rabbitmq

import (
	"context"
	"errors"
	"time"

	libCircuitBreaker "github.com/LerianStudio/lib-commons/v2/commons/circuitbreaker"

	"github.com/marcusPrado02/outboxd/internal/processor"
	"github.com/marcusPrado02/outboxd/pkg/mcircuitbreaker"
)

// breaker is the subset of libCircuitBreaker.CircuitBreaker that
// PublisherCircuitBreaker needs; satisfied by lib-commons' own breaker as
// well as a test stub.
type breaker interface {
	Execute(func() (any, error)) (any, error)
	State() libCircuitBreaker.State
	Counts() libCircuitBreaker.Counts
}

// PublisherCircuitBreaker wraps a processor.Publisher so a broker outage
// fails fast once the breaker trips, instead of every in-flight worker in
// the batch blocking on its own dial timeout.
type PublisherCircuitBreaker struct {
	pub processor.Publisher
	cb  breaker
}

// NewPublisherCircuitBreaker wraps pub with cb. Both arguments are required.
func NewPublisherCircuitBreaker(pub processor.Publisher, cb breaker) (*PublisherCircuitBreaker, error) {
	if pub == nil {
		return nil, errors.New("rabbitmq: pub cannot be nil")
	}

	if cb == nil {
		return nil, errors.New("rabbitmq: cb cannot be nil")
	}

	return &PublisherCircuitBreaker{pub: pub, cb: cb}, nil
}

// Publish runs the wrapped publisher's Publish through the circuit breaker.
func (w *PublisherCircuitBreaker) Publish(ctx context.Context, topic string, payload []byte, headers map[string]string, partitionKey *string) error {
	_, err := w.cb.Execute(func() (any, error) {
		return nil, w.pub.Publish(ctx, topic, payload, headers, partitionKey)
	})

	return err
}

// State reports the breaker's current state, used by health reporting.
func (w *PublisherCircuitBreaker) State() libCircuitBreaker.State {
	return w.cb.State()
}

func convertState(s libCircuitBreaker.State) mcircuitbreaker.State {
	switch s {
	case libCircuitBreaker.StateClosed:
		return mcircuitbreaker.StateClosed
	case libCircuitBreaker.StateOpen:
		return mcircuitbreaker.StateOpen
	case libCircuitBreaker.StateHalfOpen:
		return mcircuitbreaker.StateHalfOpen
	default:
		return mcircuitbreaker.StateUnknown
	}
}

// WatchState polls w's breaker state every interval and forwards every
// transition to listener in this module's own vocabulary. It registers no
// listener with lib-commons' circuit breaker manager; polling State() is
// the adapter's own bridge rather than a push subscription, and a
// transition that reverts within one interval is not seen. The first poll
// uses the breaker's state at call time as its baseline, so that state
// itself is not reported. interval should be short relative to how quickly an
// operator needs to notice a trip (a few seconds is typical). WatchState
// blocks until ctx is done.
func WatchState(ctx context.Context, w *PublisherCircuitBreaker, listener mcircuitbreaker.StateListener, serviceName string, interval time.Duration) {
	if listener == nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := convertState(w.State())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := convertState(w.State())
			if current == last {
				continue
			}

			listener.OnCircuitBreakerStateChange(mcircuitbreaker.StateChangeEvent{
				ServiceName: serviceName,
				FromState:   last,
				ToState:     current,
			})

			last = current
		}
	}
}
