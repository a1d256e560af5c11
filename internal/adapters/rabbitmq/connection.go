// Package rabbitmq is the default OutboundPublisher for the outbox
// engine: a connection wrapper over amqp091-go, a circuit breaker around
// publish calls, and a health check function.
package rabbitmq

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/marcusPrado02/outboxd/pkg/mlog"
)

// Connection owns a single amqp091-go connection/channel pair. It does not
// defer a Close() right after dialing — that would tear the channel down
// before a single message is ever published.
type Connection struct {
	URL    string
	Logger mlog.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// Connect dials the broker and opens a channel. Safe to call again after
// the connection has dropped: it replaces both conn and channel.
func (c *Connection) Connect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := amqp.Dial(c.URL)
	if err != nil {
		return fmt.Errorf("rabbitmq: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq: open channel: %w", err)
	}

	c.conn = conn
	c.channel = ch

	c.Logger.Info("rabbitmq: connected")

	return nil
}

// Channel returns the current channel, connecting first if necessary.
func (c *Connection) Channel(ctx context.Context) (*amqp.Channel, error) {
	c.mu.Lock()
	ch := c.channel
	healthy := ch != nil && !ch.IsClosed()
	c.mu.Unlock()

	if healthy {
		return ch, nil
	}

	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.channel, nil
}

// HealthCheck reports whether the underlying connection is open.
func (c *Connection) HealthCheck() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn != nil && !c.conn.IsClosed()
}

// EnsureChannelWithContext verifies the channel is usable, reconnecting if
// it was closed by the broker.
func (c *Connection) EnsureChannelWithContext(ctx context.Context) error {
	_, err := c.Channel(ctx)
	return err
}

// Close tears down the channel and connection.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil {
		_ = c.channel.Close()
	}

	if c.conn != nil {
		return c.conn.Close()
	}

	return nil
}
