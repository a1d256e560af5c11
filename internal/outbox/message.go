// Package outbox holds the message model, state machine, and repository
// contract for the transactional outbox: the durable staging area business
// code writes domain events into inside its own database transaction, and
// the processor later drains and publishes to the message broker.
package outbox

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Size and length bounds on a Message. These exist to keep a single outbox
// row small enough that the database and the broker both stay happy; they
// are not domain rules.
const (
	MaxAggregateIDLength = 255
	MaxTopicLength       = 255
	MaxPayloadSize       = 256 * 1024
)

var (
	ErrAggregateIDEmpty    = errors.New("outbox: aggregate id must not be empty")
	ErrAggregateIDTooLong  = fmt.Errorf("outbox: aggregate id must not exceed %d characters", MaxAggregateIDLength)
	ErrAggregateTypeEmpty  = errors.New("outbox: aggregate type must not be empty")
	ErrEventTypeEmpty      = errors.New("outbox: event type must not be empty")
	ErrTopicEmpty          = errors.New("outbox: topic must not be empty")
	ErrTopicTooLong        = fmt.Errorf("outbox: topic must not exceed %d characters", MaxTopicLength)
	ErrPayloadNil          = errors.New("outbox: payload must not be nil")
	ErrPayloadTooLarge     = fmt.Errorf("outbox: payload must not exceed %d bytes", MaxPayloadSize)
)

// Message is one staged domain event. It is written by the Enqueuer inside
// the caller's transaction and later leased, published, and retired by the
// Processor.
type Message struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	PartitionKey  *string
	ContentType   string
	Payload       []byte
	Headers       map[string]string
	Status        OutboxStatus
	Attempts      int

	// MaxAttempts is recorded at enqueue time for operator visibility on the
	// row itself, but it is not what the Processor's dead-letter threshold
	// checks against: that threshold is the Processor's own configured
	// maxAttempts (see processor.WithMaxAttempts), so a running deployment
	// can retune the ceiling without touching already-enqueued rows.
	MaxAttempts int

	CreatedAt time.Time
	LastAttemptAt *time.Time
	PublishedAt   *time.Time
	NextAttemptAt *time.Time
	LastError     string
}

// DefaultMaxAttempts is the value NewMessage records in Message.MaxAttempts.
// The processor's dead-letter threshold is its own setting
// (processor.WithMaxAttempts) and does not read this field.
const DefaultMaxAttempts = 10

// NewMessage validates its arguments and builds a new PENDING Message ready
// to be appended to the repository. contentType defaults to
// "application/json" when empty.
func NewMessage(aggregateType, aggregateID, eventType, topic string, payload []byte, contentType string, headers map[string]string) (*Message, error) {
	if aggregateID == "" {
		return nil, ErrAggregateIDEmpty
	}

	if len(aggregateID) > MaxAggregateIDLength {
		return nil, ErrAggregateIDTooLong
	}

	if aggregateType == "" {
		return nil, ErrAggregateTypeEmpty
	}

	if eventType == "" {
		return nil, ErrEventTypeEmpty
	}

	if topic == "" {
		return nil, ErrTopicEmpty
	}

	if len(topic) > MaxTopicLength {
		return nil, ErrTopicTooLong
	}

	if payload == nil {
		return nil, ErrPayloadNil
	}

	if len(payload) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}

	if contentType == "" {
		contentType = "application/json"
	}

	if headers == nil {
		headers = map[string]string{}
	}

	return &Message{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Topic:         topic,
		ContentType:   contentType,
		Payload:       payload,
		Headers:       headers,
		Status:        StatusPending,
		Attempts:      0,
		MaxAttempts:   DefaultMaxAttempts,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// SecureRandomFloat64 returns a uniformly distributed value in [0.0, 1.0),
// backed by crypto/rand so concurrent processor instances don't compute
// identical backoff jitter and retry in lockstep.
func SecureRandomFloat64() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}

	// Keep the top 53 bits, the mantissa width of a float64, so the result
	// is uniform over [0, 1) without rounding bias.
	n := binary.BigEndian.Uint64(buf[:]) >> 11

	return float64(n) / float64(1<<53)
}
