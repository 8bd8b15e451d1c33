// Package notify emits appointment lifecycle events after a write commits.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/model"
)

const (
	EventAppointmentCreated   = "booking.appointment.created.v1"
	EventAppointmentUpdated   = "booking.appointment.updated.v1"
	EventAppointmentCancelled = "booking.appointment.cancelled.v1"
)

type Event struct {
	ID            string         `json:"event_id"`
	Type          string         `json:"event_type"`
	BusinessID    string         `json:"business_id"`
	AppointmentID string         `json:"appointment_id"`
	OccurredAt    time.Time      `json:"occurred_at"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// AppointmentEvent builds an event of the given type for appt.
func AppointmentEvent(eventType string, appt model.Appointment, now time.Time) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		BusinessID:    appt.BusinessID,
		AppointmentID: appt.ID,
		OccurredAt:    now.UTC(),
		Payload: map[string]any{
			"employee_id": appt.EmployeeID,
			"service_id":  appt.ServiceID,
			"customer_id": appt.CustomerID,
			"start_at":    appt.StartAt.UTC().Format(time.RFC3339),
			"end_at":      appt.EndAt.UTC().Format(time.RFC3339),
			"status":      appt.Status,
		},
	}
}

func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, ev Event) error
}

// LogDispatcher only logs. Used when no broker is configured.
type LogDispatcher struct {
	Logger *slog.Logger
}

func (d LogDispatcher) Dispatch(ctx context.Context, ev Event) error {
	d.Logger.InfoContext(ctx, "appointment event",
		"event_type", ev.Type,
		"event_id", ev.ID,
		"business_id", ev.BusinessID,
		"appointment_id", ev.AppointmentID,
	)
	return nil
}

// Multi fans an event out to every dispatcher and returns the first error.
type Multi []Dispatcher

func (m Multi) Dispatch(ctx context.Context, ev Event) error {
	var first error
	for _, d := range m {
		if err := d.Dispatch(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Async dispatches in the background. Failures are logged and never reach
// the caller, whose request has already succeeded.
type Async struct {
	next    Dispatcher
	logger  *slog.Logger
	timeout time.Duration
}

func NewAsync(next Dispatcher, logger *slog.Logger, timeout time.Duration) *Async {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Async{next: next, logger: logger, timeout: timeout}
}

func (a *Async) Dispatch(ctx context.Context, ev Event) error {
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		if err := a.next.Dispatch(ctx, ev); err != nil {
			a.logger.Warn("notification dispatch failed", "event_type", ev.Type, "appointment_id", ev.AppointmentID, "err", err)
		}
	}()
	return nil
}
