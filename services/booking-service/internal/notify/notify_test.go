package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/bookingsync/libs/kafkax"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/model"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

type fakePublisher struct {
	exchange, key string
	msg           amqp.Publishing
}

func (p *fakePublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	p.exchange, p.key, p.msg = exchange, key, msg
	return nil
}

func sampleEvent() Event {
	appt := model.Appointment{
		ID:         "a1",
		BusinessID: "b1",
		EmployeeID: "e1",
		StartAt:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		EndAt:      time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		Status:     model.StatusConfirmed,
	}
	return AppointmentEvent(EventAppointmentCreated, appt, time.Now())
}

func TestKafkaDispatcher(t *testing.T) {
	w := &fakeWriter{}
	ev := sampleEvent()
	if err := NewKafkaDispatcher(w).Dispatch(context.Background(), ev); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if msg.Topic != EventAppointmentCreated || string(msg.Key) != "a1" {
		t.Fatalf("unexpected topic/key %s/%s", msg.Topic, msg.Key)
	}
	if meta := kafkax.ExtractEventMeta(msg); meta.EventID != ev.ID || meta.BusinessID != ev.BusinessID {
		t.Fatalf("unexpected meta %+v", meta)
	}
	var decoded Event
	if err := json.Unmarshal(msg.Value, &decoded); err != nil || decoded.AppointmentID != "a1" {
		t.Fatalf("unexpected body %s (%v)", msg.Value, err)
	}
}

func TestAMQPDispatcher(t *testing.T) {
	p := &fakePublisher{}
	ev := sampleEvent()
	if err := NewAMQPDispatcher(p, "bookings").Dispatch(context.Background(), ev); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if p.exchange != "bookings" || p.key != EventAppointmentCreated || p.msg.MessageId != ev.ID {
		t.Fatalf("unexpected publish %s %s %s", p.exchange, p.key, p.msg.MessageId)
	}
	if p.msg.Headers["business_id"] != ev.BusinessID || p.msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("unexpected headers %v mode %d", p.msg.Headers, p.msg.DeliveryMode)
	}
}

type recordingDispatcher struct {
	mu   sync.Mutex
	got  []Event
	err  error
	done chan struct{}
}

func (r *recordingDispatcher) Dispatch(_ context.Context, ev Event) error {
	r.mu.Lock()
	r.got = append(r.got, ev)
	r.mu.Unlock()
	if r.done != nil {
		close(r.done)
	}
	return r.err
}

func TestAsyncSwallowsErrors(t *testing.T) {
	rec := &recordingDispatcher{err: errors.New("broker down"), done: make(chan struct{})}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())
	if err := NewAsync(rec, logger, time.Second).Dispatch(ctx, sampleEvent()); err != nil {
		t.Fatalf("async should not return errors, got %v", err)
	}
	cancel()
	select {
	case <-rec.done:
	case <-time.After(2 * time.Second):
		t.Fatal("async dispatch never ran")
	}
}

func TestMultiReturnsFirstError(t *testing.T) {
	a := &recordingDispatcher{err: errors.New("a")}
	b := &recordingDispatcher{}
	if err := (Multi{a, b}).Dispatch(context.Background(), sampleEvent()); err == nil || err.Error() != "a" {
		t.Fatalf("expected first error, got %v", err)
	}
	if len(b.got) != 1 {
		t.Fatal("second dispatcher should still receive the event")
	}
}
