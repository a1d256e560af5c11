package mongodb

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/marcusPrado02/outboxd/internal/outbox"
)

// AuditRecord is the document shape stored for every terminal message. It
// carries the full payload and headers, unlike the relational schema whose
// payload column is an opaque BYTEA.
type AuditRecord struct {
	ID            uuid.UUID         `bson:"_id"`
	AggregateType string            `bson:"aggregate_type"`
	AggregateID   string            `bson:"aggregate_id"`
	EventType     string            `bson:"event_type"`
	Topic         string            `bson:"topic"`
	Status        string            `bson:"status"`
	Payload       []byte            `bson:"payload"`
	Headers       map[string]string `bson:"headers"`
	Attempts      int               `bson:"attempts"`
	LastError     string            `bson:"last_error,omitempty"`
	RecordedAt    time.Time         `bson:"recorded_at"`
}

func toAuditRecord(msg *outbox.Message, recordedAt time.Time) *AuditRecord {
	return &AuditRecord{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Topic:         msg.Topic,
		Status:        string(msg.Status),
		Payload:       msg.Payload,
		Headers:       msg.Headers,
		Attempts:      msg.Attempts,
		LastError:     msg.LastError,
		RecordedAt:    recordedAt,
	}
}

// Mirror is the collaborator the Processor calls after a terminal
// transition (PUBLISHED or DEAD); it never affects the outbox state
// machine itself, so a Mirror error is logged, not propagated.
type Mirror interface {
	Record(ctx context.Context, msg *outbox.Message, recordedAt time.Time) error
}

// AuditMirrorRepository is the MongoDB implementation of Mirror.
type AuditMirrorRepository struct {
	Conn       *Connection
	Collection string
}

// NewAuditMirrorRepository returns a Mirror writing into the named collection.
func NewAuditMirrorRepository(conn *Connection, collection string) *AuditMirrorRepository {
	if collection == "" {
		collection = "outbox_audit"
	}

	return &AuditMirrorRepository{Conn: conn, Collection: strings.ToLower(collection)}
}

// Record upserts msg's terminal state, so a redelivered NOTIFY or a
// re-processed batch doesn't create duplicate audit documents.
func (r *AuditMirrorRepository) Record(ctx context.Context, msg *outbox.Message, recordedAt time.Time) error {
	client, err := r.Conn.GetClient(ctx)
	if err != nil {
		return err
	}

	coll := client.Database(strings.ToLower(r.Conn.Database)).Collection(r.Collection)

	record := toAuditRecord(msg, recordedAt)

	_, err = coll.ReplaceOne(ctx, bson.M{"_id": record.ID}, record, options.Replace().SetUpsert(true))

	return err
}

// FindByAggregateID returns every audited record for an aggregate, newest
// first, useful for an operator reconstructing an aggregate's event history.
func (r *AuditMirrorRepository) FindByAggregateID(ctx context.Context, aggregateID string) ([]*AuditRecord, error) {
	client, err := r.Conn.GetClient(ctx)
	if err != nil {
		return nil, err
	}

	coll := client.Database(strings.ToLower(r.Conn.Database)).Collection(r.Collection)

	cursor, err := coll.Find(ctx, bson.M{"aggregate_id": aggregateID},
		options.Find().SetSort(bson.D{{Key: "recorded_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []*AuditRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}

	return records, nil
}
