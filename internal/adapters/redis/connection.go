// Package redis backs the Processor's lease-extension heartbeat: while a
// publish is in flight, a redsync mutex keyed by the message id is
// refreshed with a short TTL, so a crashed worker's mutex expires. The
// database row itself stays PROCESSING: MarkProcessing only leases PENDING
// or eligible FAILED rows, and nothing in this module moves a stuck
// PROCESSING row back.
package redis

import (
	"context"

	redsyncredis "github.com/go-redsync/redsync/v4/redis"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"

	"github.com/marcusPrado02/outboxd/pkg/mlog"
)

// Connection is a hub for a single redis client, mirroring the shape of
// this module's Postgres and Mongo connection wrappers.
type Connection struct {
	ConnectionStringSource string
	Logger                 mlog.Logger

	Client    *redis.Client
	Connected bool
}

// Connect parses ConnectionStringSource and opens the client, verifying it
// with a ping.
func (rc *Connection) Connect(ctx context.Context) error {
	rc.Logger.Info("redis: connecting")

	opts, err := redis.ParseURL(rc.ConnectionStringSource)
	if err != nil {
		return err
	}

	client := redis.NewClient(opts)

	if _, err := client.Ping(ctx).Result(); err != nil {
		rc.Logger.Errorf("redis: ping: %v", err)
		return err
	}

	rc.Client = client
	rc.Connected = true

	rc.Logger.Info("redis: connected")

	return nil
}

// GetClient returns the cached client, connecting first if necessary.
func (rc *Connection) GetClient(ctx context.Context) (*redis.Client, error) {
	if rc.Client == nil {
		if err := rc.Connect(ctx); err != nil {
			return nil, err
		}
	}

	return rc.Client, nil
}

// NewPool builds a redsync Pool backed by this connection's client, for use
// in constructing a LeaseHeartbeat.
func (rc *Connection) NewPool(ctx context.Context) (redsyncredis.Pool, error) {
	client, err := rc.GetClient(ctx)
	if err != nil {
		return nil, err
	}

	return goredis.NewPool(client), nil
}
