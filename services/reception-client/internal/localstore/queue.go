package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/bookingsync/libs/syncproto"
)

func (s *Store) enqueue(ctx context.Context, o Ops, kind string, payload any, apptID string) error {
	action, err := syncproto.NewAction(kind, payload, uuid.NewString())
	if err != nil {
		return err
	}
	now := s.now().UTC()
	return putItem(ctx, o, QueueItem{
		ID:            uuid.NewString(),
		Action:        action,
		Status:        QueuePending,
		AppointmentID: apptID,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

// Enqueue adds a raw action. Used when resolving conflicts.
func (s *Store) Enqueue(ctx context.Context, kind string, payload any, apptID string) error {
	if !s.Available() {
		return nil
	}
	return s.backend.Atomic(ctx, func(o Ops) error {
		return s.enqueue(ctx, o, kind, payload, apptID)
	})
}

// Queue returns every item in creation order.
func (s *Store) Queue(ctx context.Context) ([]QueueItem, error) {
	if !s.Available() {
		return nil, nil
	}
	return decodeAll[QueueItem](s.backend.QueryByIndex(ctx, collQueue, "", ""))
}

func (s *Store) QueueByStatus(ctx context.Context, status string) ([]QueueItem, error) {
	if !s.Available() {
		return nil, nil
	}
	return decodeAll[QueueItem](s.backend.QueryByIndex(ctx, collQueue, idxStatus, status))
}

// Pushable returns pending and failed items in creation order.
func (s *Store) Pushable(ctx context.Context) ([]QueueItem, error) {
	all, err := s.Queue(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, it := range all {
		if it.Status == QueuePending || it.Status == QueueFailed {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *Store) Item(ctx context.Context, id string) (QueueItem, bool, error) {
	if !s.Available() {
		return QueueItem{}, false, nil
	}
	it, err := getItem(ctx, s.backend, id)
	if errors.Is(err, ErrNotFound) {
		return QueueItem{}, false, nil
	}
	return it, err == nil, err
}

func (s *Store) MarkProcessing(ctx context.Context, id string) error {
	return s.transition(ctx, id, func(it *QueueItem) error {
		if it.Status != QueuePending && it.Status != QueueFailed {
			return fmt.Errorf("%w: %s -> %s", ErrBadTransition, it.Status, QueueProcessing)
		}
		it.Status = QueueProcessing
		it.Attempts++
		return nil
	})
}

func (s *Store) MarkFailed(ctx context.Context, id, reason string) error {
	return s.transition(ctx, id, func(it *QueueItem) error {
		if it.Status != QueueProcessing {
			return fmt.Errorf("%w: %s -> %s", ErrBadTransition, it.Status, QueueFailed)
		}
		it.Status = QueueFailed
		it.LastError = reason
		return nil
	})
}

func (s *Store) MarkConflict(ctx context.Context, id, reason string, suggestion *syncproto.Interval) error {
	return s.transition(ctx, id, func(it *QueueItem) error {
		if it.Status != QueueProcessing {
			return fmt.Errorf("%w: %s -> %s", ErrBadTransition, it.Status, QueueConflict)
		}
		it.Status = QueueConflict
		it.LastError = reason
		it.ConflictSuggestion = suggestion
		return nil
	})
}

// ResetToPending puts a failed or conflicting item back in line.
func (s *Store) ResetToPending(ctx context.Context, id string) error {
	return s.transition(ctx, id, func(it *QueueItem) error {
		if it.Status == QueueProcessing {
			return ErrItemBusy
		}
		if it.Status != QueueFailed && it.Status != QueueConflict {
			return fmt.Errorf("%w: %s -> %s", ErrBadTransition, it.Status, QueuePending)
		}
		it.Status = QueuePending
		it.LastError = ""
		it.ConflictSuggestion = nil
		return nil
	})
}

// MarkDone removes the item once the server has applied it. The cached
// appointment is flagged synced when nothing else for it is queued.
func (s *Store) MarkDone(ctx context.Context, id string) error {
	if !s.Available() {
		return nil
	}
	return s.backend.Atomic(ctx, func(o Ops) error {
		it, err := getItem(ctx, o, id)
		if err != nil {
			return err
		}
		if it.Status != QueueProcessing {
			return fmt.Errorf("%w: %s -> %s", ErrBadTransition, it.Status, QueueDone)
		}
		if err := o.Delete(ctx, collQueue, id); err != nil {
			return err
		}
		return s.settle(ctx, o, it.AppointmentID)
	})
}

// DeleteItem drops a queued item without sending it. The cached
// appointment is left as it is.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	if !s.Available() {
		return nil
	}
	return s.backend.Atomic(ctx, func(o Ops) error {
		it, err := getItem(ctx, o, id)
		if err != nil {
			return err
		}
		if it.Status == QueueProcessing {
			return ErrItemBusy
		}
		return o.Delete(ctx, collQueue, id)
	})
}

// Replace swaps a stuck item for a fresh action with a new idempotency
// key, and applies the action's effect to the cached appointment.
func (s *Store) Replace(ctx context.Context, id, kind string, payload any, fn func(*Appointment)) error {
	if !s.Available() {
		return nil
	}
	return s.backend.Atomic(ctx, func(o Ops) error {
		it, err := getItem(ctx, o, id)
		if err != nil {
			return err
		}
		if it.Status == QueueProcessing {
			return ErrItemBusy
		}
		if err := o.Delete(ctx, collQueue, id); err != nil {
			return err
		}
		if fn != nil && it.AppointmentID != "" {
			appt, err := getAppointment(ctx, o, it.AppointmentID)
			switch {
			case err == nil:
				fn(&appt)
				appt.Synced = false
				appt.UpdatedAt = s.now().UTC()
				if err := s.putAppointment(ctx, o, appt); err != nil {
					return err
				}
			case !errors.Is(err, ErrNotFound):
				return err
			}
		}
		return s.enqueue(ctx, o, kind, payload, it.AppointmentID)
	})
}

// RecoverInterrupted fails items left processing by a crash so the next
// drive picks them up again.
func (s *Store) RecoverInterrupted(ctx context.Context) (int, error) {
	if !s.Available() {
		return 0, nil
	}
	n := 0
	err := s.backend.Atomic(ctx, func(o Ops) error {
		items, err := decodeAll[QueueItem](o.QueryByIndex(ctx, collQueue, idxStatus, QueueProcessing))
		if err != nil {
			return err
		}
		for _, it := range items {
			it.Status = QueueFailed
			it.LastError = "interrupted"
			it.UpdatedAt = s.now().UTC()
			if err := putItem(ctx, o, it); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

func (s *Store) transition(ctx context.Context, id string, fn func(*QueueItem) error) error {
	if !s.Available() {
		return nil
	}
	return s.backend.Atomic(ctx, func(o Ops) error {
		it, err := getItem(ctx, o, id)
		if err != nil {
			return err
		}
		if err := fn(&it); err != nil {
			return err
		}
		it.UpdatedAt = s.now().UTC()
		return putItem(ctx, o, it)
	})
}

func (s *Store) settle(ctx context.Context, o Ops, apptID string) error {
	if apptID == "" {
		return nil
	}
	busy, err := referenced(ctx, o, apptID)
	if err != nil || busy {
		return err
	}
	appt, err := getAppointment(ctx, o, apptID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	appt.Synced = true
	return s.putAppointment(ctx, o, appt)
}

func referenced(ctx context.Context, o Ops, apptID string) (bool, error) {
	items, err := decodeAll[QueueItem](o.QueryByIndex(ctx, collQueue, "", ""))
	if err != nil {
		return false, err
	}
	for _, it := range items {
		if it.AppointmentID == apptID {
			return true, nil
		}
	}
	return false, nil
}

func putItem(ctx context.Context, o Ops, it QueueItem) error {
	raw, err := json.Marshal(it)
	if err != nil {
		return err
	}
	return o.Put(ctx, collQueue, it.ID, raw, map[string]string{idxStatus: it.Status})
}

func getItem(ctx context.Context, o Ops, id string) (QueueItem, error) {
	raw, ok, err := o.Get(ctx, collQueue, id)
	if err != nil {
		return QueueItem{}, err
	}
	if !ok {
		return QueueItem{}, fmt.Errorf("queue item %s: %w", id, ErrNotFound)
	}
	var it QueueItem
	return it, json.Unmarshal(raw, &it)
}
