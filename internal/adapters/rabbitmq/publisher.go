package rabbitmq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/marcusPrado02/outboxd/pkg/mlog"
)

// Publisher implements processor.Publisher against a RabbitMQ exchange.
// Topic is treated as the exchange name; the partition key, when present,
// becomes the routing key, otherwise the topic itself is used as the
// routing key for a default/direct exchange.
type Publisher struct {
	Conn   *Connection
	Logger mlog.Logger
}

// NewPublisher returns a Publisher bound to conn.
func NewPublisher(conn *Connection, logger mlog.Logger) *Publisher {
	return &Publisher{Conn: conn, Logger: logger}
}

// Publish sends payload to the exchange named by topic.
func (p *Publisher) Publish(ctx context.Context, topic string, payload []byte, headers map[string]string, partitionKey *string) error {
	ch, err := p.Conn.Channel(ctx)
	if err != nil {
		return err
	}

	routingKey := topic
	if partitionKey != nil && *partitionKey != "" {
		routingKey = *partitionKey
	}

	table := make(amqp.Table, len(headers))
	for k, v := range headers {
		table[k] = v
	}

	return ch.PublishWithContext(ctx, topic, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      table,
		Body:         payload,
	})
}
