package rabbitmq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeHealthChecker struct {
	healthy    bool
	channelErr error
}

func (f *fakeHealthChecker) HealthCheck() bool { return f.healthy }

func (f *fakeHealthChecker) EnsureChannelWithContext(_ context.Context) error {
	return f.channelErr
}

func TestNewRabbitMQHealthCheckFunc_ReturnsFunction(t *testing.T) {
	fn := NewRabbitMQHealthCheckFunc(&fakeHealthChecker{healthy: true})
	assert.NotNil(t, fn)
}

func TestRabbitMQHealthCheckFunc_ReturnsErrorWhenUnhealthy(t *testing.T) {
	fn := NewRabbitMQHealthCheckFunc(&fakeHealthChecker{healthy: false})
	assert.ErrorIs(t, fn(context.Background()), ErrRabbitMQUnhealthy)
}

func TestRabbitMQHealthCheckFunc_ReturnsNilWhenHealthy(t *testing.T) {
	fn := NewRabbitMQHealthCheckFunc(&fakeHealthChecker{healthy: true})
	assert.NoError(t, fn(context.Background()))
}

func TestRabbitMQHealthCheckFunc_ReturnsErrorWhenChannelUnavailable(t *testing.T) {
	fn := NewRabbitMQHealthCheckFunc(&fakeHealthChecker{healthy: true, channelErr: errors.New("channel closed")})
	assert.ErrorIs(t, fn(context.Background()), ErrRabbitMQChannelUnavailable)
}

func TestRabbitMQHealthCheckFunc_HandlesNilConnection(t *testing.T) {
	fn := NewRabbitMQHealthCheckFunc(nil)
	assert.ErrorIs(t, fn(context.Background()), ErrRabbitMQUnhealthy)
}

func TestRabbitMQHealthCheckFunc_RespectsContextCancellation(t *testing.T) {
	fn := NewRabbitMQHealthCheckFunc(&fakeHealthChecker{healthy: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, fn(ctx), context.Canceled)
}

func TestRabbitMQHealthCheckFunc_RespectsContextDeadlineExceeded(t *testing.T) {
	fn := NewRabbitMQHealthCheckFunc(&fakeHealthChecker{healthy: true})

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(10 * time.Millisecond)

	assert.ErrorIs(t, fn(ctx), context.DeadlineExceeded)
}

func TestRabbitMQHealthCheckFunc_ErrorWrappingPreservesOriginalError(t *testing.T) {
	originalErr := errors.New("channel closed by server")
	fn := NewRabbitMQHealthCheckFunc(&fakeHealthChecker{healthy: true, channelErr: originalErr})

	err := fn(context.Background())
	assert.ErrorIs(t, err, ErrRabbitMQChannelUnavailable)
	assert.ErrorIs(t, err, originalErr)
}
