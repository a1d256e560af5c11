package rabbitmq

import (
	"context"
	"errors"
	"testing"
	"time"

	libCircuitBreaker "github.com/LerianStudio/lib-commons/v2/commons/circuitbreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcusPrado02/outboxd/pkg/mcircuitbreaker"
)

type recordingStateListener struct {
	events []mcircuitbreaker.StateChangeEvent
}

func (l *recordingStateListener) OnCircuitBreakerStateChange(event mcircuitbreaker.StateChangeEvent) {
	l.events = append(l.events, event)
}

func TestWatchState_ReportsTransitionToOpen(t *testing.T) {
	cfg := libCircuitBreaker.Config{
		MaxRequests:         1,
		ConsecutiveFailures: 2,
		FailureRatio:        0.5,
		MinRequests:         1,
	}
	cb := newTestBreaker(t, "outboxd-test-watch", cfg)
	pub := &fakePub{err: errors.New("connection refused")}

	wrapper, err := NewPublisherCircuitBreaker(pub, cb)
	require.NoError(t, err)

	listener := &recordingStateListener{}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	// WatchState takes the breaker's current state as its baseline, so it
	// must be watching a closed breaker before the trip it should report.
	done := make(chan struct{})
	go func() {
		WatchState(ctx, wrapper, listener, "rabbitmq-producer", 10*time.Millisecond)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)

	for i := 0; i < 2; i++ {
		_ = wrapper.Publish(context.Background(), "orders", []byte("{}"), nil, nil)
	}
	require.Equal(t, libCircuitBreaker.StateOpen, wrapper.State())

	<-done

	require.NotEmpty(t, listener.events)
	assert.Equal(t, mcircuitbreaker.StateOpen, listener.events[0].ToState)
}

func TestWatchState_NilListenerReturnsImmediately(t *testing.T) {
	cb := newTestBreaker(t, "outboxd-test-watch-nil", libCircuitBreaker.DefaultConfig())
	wrapper, err := NewPublisherCircuitBreaker(&fakePub{}, cb)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		WatchState(context.Background(), wrapper, nil, "svc", time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WatchState with a nil listener should return immediately")
	}
}
