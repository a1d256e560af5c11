// Package mcircuitbreaker adapts circuit breaker state transitions, reported
// by lib-commons in its own vocabulary, into a local, dependency-free event
// type that the rest of this module's logging and metrics code can consume
// without importing lib-commons directly.
package mcircuitbreaker

import (
	libCircuitBreaker "github.com/LerianStudio/lib-commons/v2/commons/circuitbreaker"
)

// State mirrors gobreaker's three-state model.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
	StateUnknown
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Counts mirrors gobreaker.Counts.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// StateChangeEvent is fired whenever a named circuit breaker transitions
// state.
type StateChangeEvent struct {
	ServiceName string
	FromState   State
	ToState     State
	Counts      Counts
}

// StateListener receives StateChangeEvents.
type StateListener interface {
	OnCircuitBreakerStateChange(event StateChangeEvent)
}

// LibCommonsAdapter implements lib-commons' StateChangeListener and forwards
// every transition to a wrapped StateListener, translating types along the
// way.
type LibCommonsAdapter struct {
	listener StateListener
}

// NewLibCommonsAdapter wraps listener, which may be nil. A nil listener
// makes the adapter a no-op rather than a source of panics.
func NewLibCommonsAdapter(listener StateListener) *LibCommonsAdapter {
	return &LibCommonsAdapter{listener: listener}
}

// OnStateChange implements libCircuitBreaker.StateChangeListener.
func (a *LibCommonsAdapter) OnStateChange(serviceName string, from, to libCircuitBreaker.State, counts libCircuitBreaker.Counts) {
	if a.listener == nil {
		return
	}

	a.listener.OnCircuitBreakerStateChange(StateChangeEvent{
		ServiceName: serviceName,
		FromState:   convertState(from),
		ToState:     convertState(to),
		Counts: Counts{
			Requests:             counts.Requests,
			TotalSuccesses:       counts.TotalSuccesses,
			TotalFailures:        counts.TotalFailures,
			ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
			ConsecutiveFailures:  counts.ConsecutiveFailures,
		},
	})
}

func convertState(s libCircuitBreaker.State) State {
	switch s {
	case libCircuitBreaker.StateClosed:
		return StateClosed
	case libCircuitBreaker.StateOpen:
		return StateOpen
	case libCircuitBreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateUnknown
	}
}

var _ libCircuitBreaker.StateChangeListener = (*LibCommonsAdapter)(nil)
