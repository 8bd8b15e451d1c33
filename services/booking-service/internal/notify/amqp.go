package notify

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"

	otelx "github.com/md-rashed-zaman/bookingsync/libs/otel"
)

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPDispatcher publishes events to an exchange with the event type as routing key.
type AMQPDispatcher struct {
	ch       publisher
	exchange string
}

func NewAMQPDispatcher(ch publisher, exchange string) *AMQPDispatcher {
	return &AMQPDispatcher{ch: ch, exchange: exchange}
}

// DeclareExchange makes sure the topic exchange exists before publishing.
func DeclareExchange(ch *amqp.Channel, exchange string) error {
	return ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil)
}

func (d *AMQPDispatcher) Dispatch(ctx context.Context, ev Event) error {
	body, err := ev.Marshal()
	if err != nil {
		return err
	}
	headers := amqp.Table{"business_id": ev.BusinessID}
	for k, v := range otelx.TraceHeaders(ctx) {
		headers[k] = v
	}
	return d.ch.PublishWithContext(ctx, d.exchange, ev.Type, false, false, amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Type:         ev.Type,
		Timestamp:    ev.OccurredAt,
		Body:         body,
	})
}
