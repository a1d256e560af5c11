package mongodb

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/marcusPrado02/outboxd/internal/outbox"
)

func TestToAuditRecord_CopiesFields(t *testing.T) {
	msg := &outbox.Message{
		ID:            uuid.New(),
		AggregateType: "order",
		AggregateID:   "order-1",
		EventType:     "order.created",
		Topic:         "orders",
		Status:        outbox.StatusPublished,
		Payload:       []byte(`{"amount":100}`),
		Headers:       map[string]string{"trace-id": "abc"},
		Attempts:      1,
		LastError:     "",
	}
	recordedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	record := toAuditRecord(msg, recordedAt)

	assert.Equal(t, msg.ID, record.ID)
	assert.Equal(t, msg.AggregateType, record.AggregateType)
	assert.Equal(t, msg.AggregateID, record.AggregateID)
	assert.Equal(t, string(outbox.StatusPublished), record.Status)
	assert.Equal(t, msg.Payload, record.Payload)
	assert.Equal(t, msg.Headers, record.Headers)
	assert.Equal(t, recordedAt, record.RecordedAt)
}

func TestNewAuditMirrorRepository_DefaultsCollectionName(t *testing.T) {
	repo := NewAuditMirrorRepository(&Connection{}, "")
	assert.Equal(t, "outbox_audit", repo.Collection)
}

func TestNewAuditMirrorRepository_LowercasesCollectionName(t *testing.T) {
	repo := NewAuditMirrorRepository(&Connection{}, "OutboxAudit")
	assert.Equal(t, "outboxaudit", repo.Collection)
}
