package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/bxcodec/dbresolver/v2"
	"github.com/google/uuid"

	"github.com/marcusPrado02/outboxd/internal/outbox"
	"github.com/marcusPrado02/outboxd/pkg/constant"
	"github.com/marcusPrado02/outboxd/pkg/dbtx"
	"github.com/marcusPrado02/outboxd/pkg/errs"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// OutboxPostgreSQLRepository is the Postgres implementation of
// outbox.Repository. Its zero value is usable once DB is set; FindByAggregateID's
// validation behavior works even against a zero-value repository.
type OutboxPostgreSQLRepository struct {
	DB dbresolver.DB
}

// NewOutboxPostgreSQLRepository constructs a repository bound to db.
func NewOutboxPostgreSQLRepository(db dbresolver.DB) *OutboxPostgreSQLRepository {
	return &OutboxPostgreSQLRepository{DB: db}
}

// executor returns a transaction-scoped executor when ctx carries one
// (set by dbtx.RunInTransaction / dbtx.ContextWithTx), otherwise the
// resolver-backed pool.
func (r *OutboxPostgreSQLRepository) executor(ctx context.Context) interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
} {
	if tx := dbtx.TxFromContext(ctx); tx != nil {
		return tx
	}

	return r.DB
}

// Append inserts msg as PENDING, scoped to ctx's transaction when present.
func (r *OutboxPostgreSQLRepository) Append(ctx context.Context, msg *outbox.Message) error {
	headers, err := json.Marshal(msg.Headers)
	if err != nil {
		return errs.RepositoryError{Op: "Append", Err: err}
	}

	query, args, err := psql.Insert("outbox_message").
		Columns("id", "aggregate_type", "aggregate_id", "event_type", "topic", "partition_key",
			"content_type", "payload", "headers", "status", "attempts", "max_attempts", "created_at").
		Values(msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Topic, msg.PartitionKey,
			msg.ContentType, msg.Payload, headers, string(msg.Status), msg.Attempts, msg.MaxAttempts, msg.CreatedAt).
		ToSql()
	if err != nil {
		return errs.RepositoryError{Op: "Append", Err: err}
	}

	if _, err := r.executor(ctx).ExecContext(ctx, query, args...); err != nil {
		return errs.RepositoryError{Op: "Append", Err: err}
	}

	return nil
}

// FetchBatch returns up to limit PENDING or eligible-FAILED rows ordered by
// age. It intentionally doesn't use FOR UPDATE SKIP LOCKED: markProcessing's
// atomic CAS is the sole concurrency-correctness primitive, so two workers
// reading the same candidate here is expected and harmless.
func (r *OutboxPostgreSQLRepository) FetchBatch(ctx context.Context, limit int, now time.Time) ([]*outbox.Message, error) {
	query, args, err := psql.Select(messageColumns...).
		From("outbox_message").
		Where(sq.Or{
			sq.Eq{"status": string(outbox.StatusPending)},
			sq.And{
				sq.Eq{"status": string(outbox.StatusFailed)},
				sq.Or{
					sq.Eq{"next_attempt_at": nil},
					sq.LtOrEq{"next_attempt_at": now},
				},
			},
		}).
		OrderBy("created_at ASC", "id ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, errs.RepositoryError{Op: "FetchBatch", Err: err}
	}

	rows, err := r.executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.RepositoryError{Op: "FetchBatch", Err: err}
	}
	defer rows.Close()

	var messages []*outbox.Message

	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, errs.RepositoryError{Op: "FetchBatch", Err: err}
		}

		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// MarkProcessing is the atomic compare-and-set lease primitive: it moves id
// from PENDING, or eligible FAILED, into PROCESSING in one UPDATE, and
// reports whether this call's row was the one affected.
func (r *OutboxPostgreSQLRepository) MarkProcessing(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	query, args, err := psql.Update("outbox_message").
		Set("status", string(outbox.StatusProcessing)).
		Set("last_attempt_at", now).
		Where(sq.And{
			sq.Eq{"id": id},
			sq.Eq{"status": []string{string(outbox.StatusPending), string(outbox.StatusFailed)}},
			sq.Or{
				sq.Eq{"next_attempt_at": nil},
				sq.LtOrEq{"next_attempt_at": now},
			},
		}).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return false, errs.RepositoryError{Op: "MarkProcessing", Err: err}
	}

	var returnedID uuid.UUID

	err = r.executor(ctx).QueryRowContext(ctx, query, args...).Scan(&returnedID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}

	if err != nil {
		return false, errs.RepositoryError{Op: "MarkProcessing", Err: err}
	}

	return true, nil
}

// terminalStatuses guards MarkPublished/MarkFailed/MarkDead from
// transitioning a row that already reached a terminal state, so each
// primitive honors its own no-op-on-terminal-rows contract even if called
// out of turn.
var terminalStatuses = []string{string(outbox.StatusPublished), string(outbox.StatusDead)}

// MarkPublished moves id from PROCESSING to PUBLISHED. Idempotent: calling
// it again on an already-PUBLISHED row affects zero rows.
func (r *OutboxPostgreSQLRepository) MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	query, args, err := psql.Update("outbox_message").
		Set("status", string(outbox.StatusPublished)).
		Set("published_at", publishedAt).
		Where(sq.Eq{"id": id}).
		Where(sq.NotEq{"status": terminalStatuses}).
		ToSql()
	if err != nil {
		return errs.RepositoryError{Op: "MarkPublished", Err: err}
	}

	if _, err := r.executor(ctx).ExecContext(ctx, query, args...); err != nil {
		return errs.RepositoryError{Op: "MarkPublished", Err: err}
	}

	return nil
}

// MarkFailed records a failed publish attempt and schedules a retry.
func (r *OutboxPostgreSQLRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, nextAttemptAt time.Time) error {
	query, args, err := psql.Update("outbox_message").
		Set("status", string(outbox.StatusFailed)).
		Set("attempts", sq.Expr("attempts + 1")).
		Set("last_error", outbox.SanitizeErrorMessage(reason)).
		Set("next_attempt_at", nextAttemptAt).
		Where(sq.Eq{"id": id}).
		Where(sq.NotEq{"status": terminalStatuses}).
		ToSql()
	if err != nil {
		return errs.RepositoryError{Op: "MarkFailed", Err: err}
	}

	if _, err := r.executor(ctx).ExecContext(ctx, query, args...); err != nil {
		return errs.RepositoryError{Op: "MarkFailed", Err: err}
	}

	return nil
}

// MarkDead moves id to DEAD, terminal: no further attempts.
func (r *OutboxPostgreSQLRepository) MarkDead(ctx context.Context, id uuid.UUID, reason string) error {
	query, args, err := psql.Update("outbox_message").
		Set("status", string(outbox.StatusDead)).
		Set("attempts", sq.Expr("attempts + 1")).
		Set("last_error", outbox.SanitizeErrorMessage(reason)).
		Where(sq.Eq{"id": id}).
		Where(sq.NotEq{"status": terminalStatuses}).
		ToSql()
	if err != nil {
		return errs.RepositoryError{Op: "MarkDead", Err: err}
	}

	if _, err := r.executor(ctx).ExecContext(ctx, query, args...); err != nil {
		return errs.RepositoryError{Op: "MarkDead", Err: err}
	}

	return nil
}

// FindByID looks up a message by its primary key.
func (r *OutboxPostgreSQLRepository) FindByID(ctx context.Context, id uuid.UUID) (*outbox.Message, error) {
	query, args, err := psql.Select(messageColumns...).
		From("outbox_message").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, errs.RepositoryError{Op: "FindByID", Err: err}
	}

	row := r.executor(ctx).QueryRowContext(ctx, query, args...)

	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NewEntityNotFoundError("Message")
	}

	if err != nil {
		return nil, errs.RepositoryError{Op: "FindByID", Err: err}
	}

	return msg, nil
}

// FindByAggregateID looks up a message by the aggregate it was raised for.
// Both arguments must be non-blank; blank (including whitespace-only)
// input is rejected before any query runs.
func (r *OutboxPostgreSQLRepository) FindByAggregateID(ctx context.Context, aggregateID, aggregateType string) (*outbox.Message, error) {
	if strings.TrimSpace(aggregateID) == "" {
		return nil, errs.ValidationError{
			EntityType: "Message",
			Code:       constant.ErrBadRequest.Error(),
			Message:    "aggregateID must not be blank",
			Err:        constant.ErrBadRequest,
		}
	}

	if strings.TrimSpace(aggregateType) == "" {
		return nil, errs.ValidationError{
			EntityType: "Message",
			Code:       constant.ErrBadRequest.Error(),
			Message:    "aggregateType must not be blank",
			Err:        constant.ErrBadRequest,
		}
	}

	query, args, err := psql.Select(messageColumns...).
		From("outbox_message").
		Where(sq.Eq{"aggregate_id": aggregateID, "aggregate_type": aggregateType}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, errs.RepositoryError{Op: "FindByAggregateID", Err: err}
	}

	row := r.executor(ctx).QueryRowContext(ctx, query, args...)

	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NewEntityNotFoundError("Message")
	}

	if err != nil {
		return nil, errs.RepositoryError{Op: "FindByAggregateID", Err: err}
	}

	return msg, nil
}

// CountByStatus returns, for each status, the number of rows currently in
// it: the raw material for observability.Health.
func (r *OutboxPostgreSQLRepository) CountByStatus(ctx context.Context) (map[outbox.OutboxStatus]int64, error) {
	query, args, err := psql.Select("status", "count(*)").
		From("outbox_message").
		GroupBy("status").
		ToSql()
	if err != nil {
		return nil, errs.RepositoryError{Op: "CountByStatus", Err: err}
	}

	rows, err := r.executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.RepositoryError{Op: "CountByStatus", Err: err}
	}
	defer rows.Close()

	counts := make(map[outbox.OutboxStatus]int64)

	for rows.Next() {
		var (
			status string
			count  int64
		)

		if err := rows.Scan(&status, &count); err != nil {
			return nil, errs.RepositoryError{Op: "CountByStatus", Err: err}
		}

		counts[outbox.OutboxStatus(status)] = count
	}

	return counts, rows.Err()
}

// DeletePublishedOlderThan permanently removes PUBLISHED rows whose
// PublishedAt predates cutoff.
func (r *OutboxPostgreSQLRepository) DeletePublishedOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := psql.Delete("outbox_message").
		Where(sq.Eq{"status": string(outbox.StatusPublished)}).
		Where(sq.Lt{"published_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, errs.RepositoryError{Op: "DeletePublishedOlderThan", Err: err}
	}

	result, err := r.executor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errs.RepositoryError{Op: "DeletePublishedOlderThan", Err: err}
	}

	return result.RowsAffected()
}

var messageColumns = []string{
	"id", "aggregate_type", "aggregate_id", "event_type", "topic", "partition_key",
	"content_type", "payload", "headers", "status", "attempts", "max_attempts",
	"created_at", "last_attempt_at", "published_at", "next_attempt_at", "last_error",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*outbox.Message, error) {
	var (
		msg         outbox.Message
		status      string
		headersJSON []byte
	)

	err := row.Scan(
		&msg.ID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Topic, &msg.PartitionKey,
		&msg.ContentType, &msg.Payload, &headersJSON, &status, &msg.Attempts, &msg.MaxAttempts,
		&msg.CreatedAt, &msg.LastAttemptAt, &msg.PublishedAt, &msg.NextAttemptAt, &msg.LastError,
	)
	if err != nil {
		return nil, err
	}

	msg.Status = outbox.OutboxStatus(status)

	if len(headersJSON) > 0 {
		if err := json.Unmarshal(headersJSON, &msg.Headers); err != nil {
			return nil, err
		}
	}

	return &msg, nil
}
