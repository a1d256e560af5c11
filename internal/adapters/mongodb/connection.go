// Package mongodb is the audit-mirror sidecar for the outbox engine: a
// best-effort copy of terminal (PUBLISHED/DEAD) messages into a MongoDB
// collection so an operator can query headers and payloads ad hoc without
// the relational schema's column constraints getting in the way.
package mongodb

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/marcusPrado02/outboxd/pkg/mlog"
)

// Connection lazily opens and caches a mongo.Client.
type Connection struct {
	URI      string
	Database string
	Logger   mlog.Logger

	mu     sync.Mutex
	client *mongo.Client
}

// Connect dials MongoDB and verifies it with a ping.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(c.URI))
	if err != nil {
		return fmt.Errorf("mongodb: connect: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongodb: ping: %w", err)
	}

	c.client = client
	c.Logger.Info("mongodb: connected")

	return nil
}

// GetClient returns the cached client, connecting first if necessary.
func (c *Connection) GetClient(ctx context.Context) (*mongo.Client, error) {
	c.mu.Lock()
	connected := c.client != nil
	c.mu.Unlock()

	if !connected {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.client, nil
}

// HealthCheck pings the primary.
func (c *Connection) HealthCheck(ctx context.Context) bool {
	client, err := c.GetClient(ctx)
	if err != nil {
		return false
	}

	return client.Ping(ctx, readpref.Primary()) == nil
}

// Close disconnects the client.
func (c *Connection) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}

	return c.client.Disconnect(ctx)
}
