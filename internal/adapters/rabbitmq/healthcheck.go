package rabbitmq

import (
	"context"
	"errors"
	"fmt"
)

// ErrRabbitMQUnhealthy marks a connection whose HealthCheck failed or is nil.
var ErrRabbitMQUnhealthy = errors.New("rabbitmq: connection unhealthy")

// ErrRabbitMQChannelUnavailable marks a connection whose channel could not
// be confirmed usable.
var ErrRabbitMQChannelUnavailable = errors.New("rabbitmq: channel unavailable")

// RabbitMQHealthChecker is the subset of Connection that a health probe
// needs, narrowed so it can be mocked without pulling in amqp091-go.
type RabbitMQHealthChecker interface {
	HealthCheck() bool
	EnsureChannelWithContext(ctx context.Context) error
}

// NewRabbitMQHealthCheckFunc adapts conn into a context-aware health probe
// suitable for wiring into a readiness endpoint alongside the Postgres and
// Mongo checks.
func NewRabbitMQHealthCheckFunc(conn RabbitMQHealthChecker) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if conn == nil || !conn.HealthCheck() {
			return ErrRabbitMQUnhealthy
		}

		if err := conn.EnsureChannelWithContext(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrRabbitMQChannelUnavailable, err)
		}

		return nil
	}
}
