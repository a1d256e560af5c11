// Package enqueue adapts business-level domain events into outbox messages
// and appends them inside the caller's own database transaction.
package enqueue

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/iancoleman/strcase"
	"github.com/marcusPrado02/outboxd/internal/outbox"
	"github.com/vmihailenco/msgpack/v5"
)

// EventMetadata carries the addressing information an Enqueuer needs to
// turn a DomainEvent into an outbox.Message: which aggregate raised it,
// what topic it belongs on, and an optional partition key for brokers that
// support partitioned topics. Topic may be left blank to take the default
// derivation (see DefaultTopic).
type EventMetadata struct {
	AggregateType string
	AggregateID   string
	Topic         string
	PartitionKey  *string
	Headers       map[string]string
}

// DefaultTopic is the default topic-derivation policy applied when
// EventMetadata.Topic is blank: the event type name, delimited into a
// dotted topic segment, e.g. "OrderCreated" -> "order.created".
func DefaultTopic(eventType string) string {
	return strcase.ToDelimited(eventType, '.')
}

// DomainEvent is one fact a business transaction wants to announce.
type DomainEvent interface {
	EventType() string
	Metadata() EventMetadata
	Payload() any
}

// Aggregate is anything a business transaction touched that may have
// accumulated domain events to announce. It is drained exactly once per
// PublishFrom call; a typical implementation clears its internal event
// slice as part of PullDomainEvents.
type Aggregate interface {
	PullDomainEvents() []DomainEvent
}

// Serializer encodes a DomainEvent's payload for storage in Message.Payload.
type Serializer interface {
	ContentType() string
	Marshal(v any) ([]byte, error)
}

// JSONSerializer is the default Serializer.
type JSONSerializer struct{}

func (JSONSerializer) ContentType() string        { return "application/json" }
func (JSONSerializer) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// MsgpackSerializer is an alternate, more compact Serializer for brokers
// and consumers that understand MessagePack.
type MsgpackSerializer struct{}

func (MsgpackSerializer) ContentType() string          { return "application/msgpack" }
func (MsgpackSerializer) Marshal(v any) ([]byte, error) { return msgpack.Marshal(v) }

// ContextProvider extracts cross-cutting headers (correlation id, causation
// id, tenant, actor, or any other request-scoped identifier a consumer
// downstream might need) from ctx, to be merged onto every message's
// headers alongside the event's own.
type ContextProvider func(ctx context.Context) map[string]string

// ErrNilAggregate is returned by PublishFrom when agg is nil.
var ErrNilAggregate = errors.New("enqueue: aggregate must not be nil")

// Enqueuer builds outbox messages from domain events and appends them via
// an outbox.Appender scoped to the caller's transaction.
type Enqueuer struct {
	serializer      Serializer
	contextProvider ContextProvider
}

// New constructs an Enqueuer. serializer defaults to JSONSerializer when
// nil; contextProvider defaults to a no-op (empty headers) when nil.
func New(serializer Serializer, contextProvider ContextProvider) *Enqueuer {
	if serializer == nil {
		serializer = JSONSerializer{}
	}

	if contextProvider == nil {
		contextProvider = func(context.Context) map[string]string { return nil }
	}

	return &Enqueuer{serializer: serializer, contextProvider: contextProvider}
}

// PublishFrom drains agg's domain events exactly once, builds one
// outbox.Message per event, and appends each through appender — which the
// caller is expected to have scoped to an already-open transaction so the
// business write and the outbox rows commit or roll back together.
func (e *Enqueuer) PublishFrom(ctx context.Context, appender outbox.Appender, agg Aggregate) error {
	if agg == nil {
		return ErrNilAggregate
	}

	contextHeaders := e.contextProvider(ctx)

	for _, event := range agg.PullDomainEvents() {
		meta := event.Metadata()

		payload, err := e.serializer.Marshal(event.Payload())
		if err != nil {
			return err
		}

		headers := mergeHeaders(contextHeaders, meta.Headers)

		topic := meta.Topic
		if topic == "" {
			topic = DefaultTopic(event.EventType())
		}

		msg, err := outbox.NewMessage(meta.AggregateType, meta.AggregateID, event.EventType(), topic, payload, e.serializer.ContentType(), headers)
		if err != nil {
			return err
		}

		msg.PartitionKey = meta.PartitionKey

		if err := appender.Append(ctx, msg); err != nil {
			return err
		}
	}

	return nil
}

func mergeHeaders(base, override map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(override))

	for k, v := range base {
		merged[k] = v
	}

	for k, v := range override {
		merged[k] = v
	}

	return merged
}
