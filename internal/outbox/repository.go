package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the storage contract the processor and enqueuer depend on.
// The Postgres implementation lives in internal/adapters/postgres;
// this interface is what lets both sides be tested against a mock.
//
//go:generate mockgen -destination=repository_mock.go -package=outbox . Repository
type Repository interface {
	// Append inserts msg as PENDING. Appended in the caller's transaction
	// when one is present in ctx, so a business-data write and its outbox
	// row commit or roll back together.
	Append(ctx context.Context, msg *Message) error

	// FetchBatch returns up to limit messages eligible for leasing: PENDING,
	// or FAILED with NextAttemptAt at or before now. The returned rows are
	// candidates only — markProcessing is what actually leases one.
	FetchBatch(ctx context.Context, limit int, now time.Time) ([]*Message, error)

	// MarkProcessing is the sole concurrency-correctness primitive: an
	// atomic compare-and-set that moves id from PENDING or eligible FAILED
	// into PROCESSING. It returns (true, nil) if this call won the lease,
	// (false, nil) if another worker already had or took it.
	MarkProcessing(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)

	// MarkPublished moves id from PROCESSING to PUBLISHED.
	MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error

	// MarkFailed records a failed publish attempt and schedules a retry at
	// nextAttemptAt, moving id from PROCESSING back to FAILED.
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, nextAttemptAt time.Time) error

	// MarkDead moves id from PROCESSING (a leased row whose final attempt
	// failed) or FAILED to DEAD. Terminal: no further attempts.
	MarkDead(ctx context.Context, id uuid.UUID, reason string) error

	// FindByID looks up a message by its primary key.
	FindByID(ctx context.Context, id uuid.UUID) (*Message, error)

	// FindByAggregateID looks up a message by the aggregate it was raised
	// for. aggregateID and aggregateType must both be non-blank.
	FindByAggregateID(ctx context.Context, aggregateID, aggregateType string) (*Message, error)

	// CountByStatus returns, for each status, the number of rows currently
	// in it — the raw material for the observability Health function.
	CountByStatus(ctx context.Context) (map[OutboxStatus]int64, error)

	// DeletePublishedOlderThan permanently removes PUBLISHED rows whose
	// PublishedAt predates cutoff, returning the number removed.
	DeletePublishedOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Appender is the narrow slice of Repository the enqueuer needs; splitting
// it out lets business code depend on "can append a message" without
// pulling in the processor's leasing API.
type Appender interface {
	Append(ctx context.Context, msg *Message) error
}
