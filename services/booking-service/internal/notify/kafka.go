package notify

import (
	"context"

	"github.com/md-rashed-zaman/bookingsync/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaDispatcher publishes one message per event, topic = event type.
type KafkaDispatcher struct {
	writer messageWriter
}

func NewKafkaDispatcher(w messageWriter) *KafkaDispatcher {
	return &KafkaDispatcher{writer: w}
}

// NewKafkaWriter returns a writer keyed by appointment so one appointment's
// events stay ordered on a partition.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, ev Event) error {
	body, err := ev.Marshal()
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Topic:   ev.Type,
		Key:     []byte(ev.AppointmentID),
		Value:   body,
		Headers: kafkax.EventMeta{EventID: ev.ID, EventType: ev.Type, BusinessID: ev.BusinessID}.Headers(),
	}
	msg.Headers = kafkax.InjectTraceHeaders(ctx, msg.Headers)
	return d.writer.WriteMessages(ctx, msg)
}
