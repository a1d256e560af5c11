// Package postgres is the storage adapter for the outbox engine: a
// dbresolver-backed primary/replica connection, golang-migrate schema
// management, and the OutboxPostgreSQLRepository implementation of
// outbox.Repository.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bxcodec/dbresolver/v2"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/marcusPrado02/outboxd/pkg/mlog"
)

// Connection is a hub for the outbox engine's primary/replica Postgres
// pair: FetchBatch reads may hit a replica, every mutating primitive
// (markProcessing, markPublished, ...) pins to the primary.
type Connection struct {
	PrimaryDSN      string
	ReplicaDSN      string
	MigrationsPath  string
	Logger          mlog.Logger
	DB              dbresolver.DB
	connected       bool
}

// Connect opens the primary and replica pools, runs pending migrations
// against the primary, and verifies connectivity with a ping.
func (c *Connection) Connect(ctx context.Context) error {
	c.Logger.Info("postgres: connecting to primary and replica")

	primary, err := sql.Open("pgx", c.PrimaryDSN)
	if err != nil {
		return fmt.Errorf("postgres: open primary: %w", err)
	}

	replica, err := sql.Open("pgx", c.ReplicaDSN)
	if err != nil {
		return fmt.Errorf("postgres: open replica: %w", err)
	}

	c.DB = dbresolver.New(
		dbresolver.WithPrimaryDBs(primary),
		dbresolver.WithReplicaDBs(replica),
		dbresolver.WithLoadBalancer(dbresolver.RoundRobinLB),
	)

	if c.MigrationsPath != "" {
		if err := c.migrate(primary); err != nil {
			return err
		}
	}

	if err := c.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}

	c.connected = true
	c.Logger.Info("postgres: connected")

	return nil
}

func (c *Connection) migrate(primary *sql.DB) error {
	driver, err := postgres.WithInstance(primary, &postgres.Config{
		MultiStatementEnabled: true,
		SchemaName:            "public",
	})
	if err != nil {
		return fmt.Errorf("postgres: migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+c.MigrationsPath, "outboxd", driver)
	if err != nil {
		return fmt.Errorf("postgres: migration source: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("postgres: migrate up: %w", err)
	}

	return nil
}

// GetDB returns the resolver-backed connection pool, connecting first if
// necessary.
func (c *Connection) GetDB(ctx context.Context) (dbresolver.DB, error) {
	if !c.connected {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	return c.DB, nil
}
