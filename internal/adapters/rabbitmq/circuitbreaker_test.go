package rabbitmq

import (
	"context"
	"errors"
	"testing"
	"time"

	libCircuitBreaker "github.com/LerianStudio/lib-commons/v2/commons/circuitbreaker"
	libZap "github.com/LerianStudio/lib-commons/v2/commons/zap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePub struct {
	err   error
	calls int
}

func (f *fakePub) Publish(_ context.Context, _ string, _ []byte, _ map[string]string, _ *string) error {
	f.calls++
	return f.err
}

func newTestBreaker(t *testing.T, name string, cfg libCircuitBreaker.Config) breaker {
	t.Helper()

	logger, err := libZap.InitializeLoggerWithError()
	require.NoError(t, err)

	manager := libCircuitBreaker.NewManager(logger)

	return manager.GetOrCreate(name, cfg)
}

func TestNewPublisherCircuitBreaker_NilPub_ReturnsError(t *testing.T) {
	cb := newTestBreaker(t, "outboxd-test-nil-pub", libCircuitBreaker.DefaultConfig())

	wrapper, err := NewPublisherCircuitBreaker(nil, cb)
	assert.Error(t, err)
	assert.Nil(t, wrapper)
}

func TestNewPublisherCircuitBreaker_NilBreaker_ReturnsError(t *testing.T) {
	wrapper, err := NewPublisherCircuitBreaker(&fakePub{}, nil)
	assert.Error(t, err)
	assert.Nil(t, wrapper)
}

func TestPublisherCircuitBreaker_Publish_Success(t *testing.T) {
	cb := newTestBreaker(t, "outboxd-test-success", libCircuitBreaker.DefaultConfig())
	pub := &fakePub{}

	wrapper, err := NewPublisherCircuitBreaker(pub, cb)
	require.NoError(t, err)

	err = wrapper.Publish(context.Background(), "orders", []byte("{}"), nil, nil)
	assert.NoError(t, err)
	assert.Equal(t, 1, pub.calls)
}

func TestPublisherCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cfg := libCircuitBreaker.Config{
		MaxRequests:         1,
		ConsecutiveFailures: 3,
		FailureRatio:        0.5,
		MinRequests:         1,
	}
	cb := newTestBreaker(t, "outboxd-test-opens", cfg)
	pub := &fakePub{err: errors.New("connection refused")}

	wrapper, err := NewPublisherCircuitBreaker(pub, cb)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_ = wrapper.Publish(context.Background(), "orders", []byte("{}"), nil, nil)
	}

	assert.Equal(t, libCircuitBreaker.StateOpen, wrapper.State())

	start := time.Now()
	err = wrapper.Publish(context.Background(), "orders", []byte("{}"), nil, nil)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}
