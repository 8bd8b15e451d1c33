// Package localstore is the reception client's offline cache of
// appointments plus the queue of mutations waiting to be pushed.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/bookingsync/libs/syncproto"
)

const (
	collAppointments = "appointments"
	collQueue        = "queue"

	idxStartDay = "start_day"
	idxStatus   = "status"
)

const (
	QueuePending    = "pending"
	QueueProcessing = "processing"
	QueueDone       = "done"
	QueueFailed     = "failed"
	QueueConflict   = "conflict"
)

var (
	ErrNotFound = errors.New("localstore: not found")
	// ErrItemBusy is returned when a queue item is being pushed right now.
	ErrItemBusy = errors.New("localstore: queue item is being processed")
	// ErrBadTransition guards the queue item state machine.
	ErrBadTransition = errors.New("localstore: invalid queue transition")
)

type Appointment struct {
	ID           string    `json:"id"`
	BusinessID   string    `json:"business_id,omitempty"`
	CustomerID   string    `json:"customer_id,omitempty"`
	CustomerName string    `json:"customer_name,omitempty"`
	EmployeeID   string    `json:"employee_id"`
	ServiceID    string    `json:"service_id"`
	StartAt      time.Time `json:"start_at"`
	EndAt        time.Time `json:"end_at"`
	Status       string    `json:"status"`
	Synced       bool      `json:"synced"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type QueueItem struct {
	ID                 string              `json:"id"`
	Action             syncproto.Action    `json:"action"`
	Status             string              `json:"status"`
	LastError          string              `json:"last_error,omitempty"`
	ConflictSuggestion *syncproto.Interval `json:"conflict_suggestion,omitempty"`
	AppointmentID      string              `json:"appointment_id,omitempty"`
	Attempts           int                 `json:"attempts"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// Store wraps a Backend. A Store without a backend is "unavailable": every
// operation is a no-op returning zero values and a nil error.
type Store struct {
	backend Backend
	loc     *time.Location
	now     func() time.Time
}

// New returns a Store over b. loc decides which calendar day an
// appointment is indexed under; nil means UTC.
func New(b Backend, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{backend: b, loc: loc, now: time.Now}
}

func (s *Store) SetClock(now func() time.Time) { s.now = now }

func (s *Store) Available() bool { return s != nil && s.backend != nil }

func (s *Store) Close() error {
	if !s.Available() {
		return nil
	}
	return s.backend.Close()
}

// CreateLocal records a new appointment and queues its CREATE. The
// appointment id is generated here so the server row keeps the same id.
func (s *Store) CreateLocal(ctx context.Context, p syncproto.CreatePayload) (Appointment, error) {
	if !s.Available() {
		return Appointment{}, nil
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = syncproto.StatusConfirmed
	}
	now := s.now().UTC()
	appt := Appointment{
		ID:           p.ID,
		CustomerID:   p.CustomerID,
		CustomerName: p.CustomerName,
		EmployeeID:   p.EmployeeID,
		ServiceID:    p.ServiceID,
		StartAt:      p.StartAt.UTC(),
		EndAt:        p.EndAt.UTC(),
		Status:       p.Status,
		UpdatedAt:    now,
	}
	err := s.backend.Atomic(ctx, func(o Ops) error {
		if err := s.putAppointment(ctx, o, appt); err != nil {
			return err
		}
		return s.enqueue(ctx, o, syncproto.ActionCreate, p, appt.ID)
	})
	return appt, err
}

// UpdateLocal applies the non-nil fields of p to the cached appointment and
// queues an UPDATE.
func (s *Store) UpdateLocal(ctx context.Context, p syncproto.UpdatePayload) (Appointment, error) {
	if !s.Available() {
		return Appointment{}, nil
	}
	var appt Appointment
	err := s.backend.Atomic(ctx, func(o Ops) error {
		var err error
		if appt, err = getAppointment(ctx, o, p.ID); err != nil {
			return err
		}
		if p.EmployeeID != nil {
			appt.EmployeeID = *p.EmployeeID
		}
		if p.ServiceID != nil {
			appt.ServiceID = *p.ServiceID
		}
		if p.StartAt != nil {
			appt.StartAt = p.StartAt.UTC()
		}
		if p.EndAt != nil {
			appt.EndAt = p.EndAt.UTC()
		}
		if p.Status != nil {
			appt.Status = *p.Status
		}
		appt.Synced = false
		appt.UpdatedAt = s.now().UTC()
		if err := s.putAppointment(ctx, o, appt); err != nil {
			return err
		}
		return s.enqueue(ctx, o, syncproto.ActionUpdate, p, appt.ID)
	})
	return appt, err
}

func (s *Store) CancelLocal(ctx context.Context, id, reason string) (Appointment, error) {
	if !s.Available() {
		return Appointment{}, nil
	}
	var appt Appointment
	err := s.backend.Atomic(ctx, func(o Ops) error {
		var err error
		if appt, err = getAppointment(ctx, o, id); err != nil {
			return err
		}
		appt.Status = syncproto.StatusCancelled
		appt.Synced = false
		appt.UpdatedAt = s.now().UTC()
		if err := s.putAppointment(ctx, o, appt); err != nil {
			return err
		}
		return s.enqueue(ctx, o, syncproto.ActionCancel, syncproto.CancelPayload{ID: id, Reason: reason}, id)
	})
	return appt, err
}

func (s *Store) Appointment(ctx context.Context, id string) (Appointment, bool, error) {
	if !s.Available() {
		return Appointment{}, false, nil
	}
	appt, err := getAppointment(ctx, s.backend, id)
	if errors.Is(err, ErrNotFound) {
		return Appointment{}, false, nil
	}
	return appt, err == nil, err
}

// AppointmentsOn lists cached appointments starting on day (YYYY-MM-DD).
func (s *Store) AppointmentsOn(ctx context.Context, day string) ([]Appointment, error) {
	if !s.Available() {
		return nil, nil
	}
	return decodeAll[Appointment](s.backend.QueryByIndex(ctx, collAppointments, idxStartDay, day))
}

func (s *Store) AppointmentsByStatus(ctx context.Context, status string) ([]Appointment, error) {
	if !s.Available() {
		return nil, nil
	}
	return decodeAll[Appointment](s.backend.QueryByIndex(ctx, collAppointments, idxStatus, status))
}

// MergeServer caches pulled appointments as synced. Records with changes
// still in the queue are left alone.
func (s *Store) MergeServer(ctx context.Context, appts []syncproto.Appointment) (int, error) {
	if !s.Available() {
		return 0, nil
	}
	merged := 0
	err := s.backend.Atomic(ctx, func(o Ops) error {
		for _, a := range appts {
			busy, err := referenced(ctx, o, a.ID)
			if err != nil {
				return err
			}
			if busy {
				continue
			}
			if err := s.putAppointment(ctx, o, Appointment{
				ID:           a.ID,
				BusinessID:   a.BusinessID,
				CustomerID:   a.CustomerID,
				CustomerName: a.CustomerName,
				EmployeeID:   a.EmployeeID,
				ServiceID:    a.ServiceID,
				StartAt:      a.StartAt.UTC(),
				EndAt:        a.EndAt.UTC(),
				Status:       a.Status,
				Synced:       true,
				UpdatedAt:    a.UpdatedAt,
			}); err != nil {
				return err
			}
			merged++
		}
		return nil
	})
	return merged, err
}

func (s *Store) putAppointment(ctx context.Context, o Ops, a Appointment) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return o.Put(ctx, collAppointments, a.ID, raw, map[string]string{
		idxStartDay: a.StartAt.In(s.loc).Format(time.DateOnly),
		idxStatus:   a.Status,
	})
}

func getAppointment(ctx context.Context, o Ops, id string) (Appointment, error) {
	raw, ok, err := o.Get(ctx, collAppointments, id)
	if err != nil {
		return Appointment{}, err
	}
	if !ok {
		return Appointment{}, fmt.Errorf("appointment %s: %w", id, ErrNotFound)
	}
	var a Appointment
	return a, json.Unmarshal(raw, &a)
}

func decodeAll[T any](raws [][]byte, err error) ([]T, error) {
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
