package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/md-rashed-zaman/bookingsync/libs/syncproto"
)

var testNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func eachBackend(t *testing.T, fn func(t *testing.T, s *Store)) {
	t.Run("memory", func(t *testing.T) {
		s := New(NewMemoryBackend(), time.UTC)
		s.SetClock(func() time.Time { return testNow })
		fn(t, s)
	})
	t.Run("sqlite", func(t *testing.T) {
		b, err := OpenSQLite(filepath.Join(t.TempDir(), "reception.db"))
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		s := New(b, time.UTC)
		t.Cleanup(func() { _ = s.Close() })
		s.SetClock(func() time.Time { return testNow })
		fn(t, s)
	})
}

func createPayload(hour int) syncproto.CreatePayload {
	return syncproto.CreatePayload{
		EmployeeID:   "emp-1",
		ServiceID:    "svc-1",
		CustomerName: "Ana",
		StartAt:      time.Date(2026, 3, 2, hour, 0, 0, 0, time.UTC),
		EndAt:        time.Date(2026, 3, 2, hour, 30, 0, 0, time.UTC),
	}
}

func TestCreateLocalQueuesAction(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		appt, err := s.CreateLocal(ctx, createPayload(10))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if appt.ID == "" || appt.Synced {
			t.Fatalf("unexpected appointment %+v", appt)
		}
		day, err := s.AppointmentsOn(ctx, "2026-03-02")
		if err != nil || len(day) != 1 || day[0].ID != appt.ID {
			t.Fatalf("expected appointment on day, got %+v err=%v", day, err)
		}
		q, err := s.Queue(ctx)
		if err != nil || len(q) != 1 {
			t.Fatalf("expected one queue item, got %d err=%v", len(q), err)
		}
		it := q[0]
		if it.Status != QueuePending || it.Action.Type != syncproto.ActionCreate || it.Action.IdempotencyKey == "" {
			t.Fatalf("unexpected item %+v", it)
		}
		var p syncproto.CreatePayload
		if err := json.Unmarshal(it.Action.Payload, &p); err != nil {
			t.Fatalf("payload: %v", err)
		}
		if p.ID != appt.ID {
			t.Fatalf("payload id %q, want %q", p.ID, appt.ID)
		}
	})
}

func TestQueueOrderAndTransitions(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		a, _ := s.CreateLocal(ctx, createPayload(10))
		if _, err := s.CancelLocal(ctx, a.ID, "no show"); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		q, _ := s.Queue(ctx)
		if len(q) != 2 || q[0].Action.Type != syncproto.ActionCreate || q[1].Action.Type != syncproto.ActionCancel {
			t.Fatalf("unexpected queue order %+v", q)
		}
		first, second := q[0].ID, q[1].ID

		if err := s.MarkDone(ctx, first); !errors.Is(err, ErrBadTransition) {
			t.Fatalf("expected bad transition, got %v", err)
		}
		if err := s.MarkProcessing(ctx, first); err != nil {
			t.Fatalf("processing: %v", err)
		}
		if err := s.DeleteItem(ctx, first); !errors.Is(err, ErrItemBusy) {
			t.Fatalf("expected busy, got %v", err)
		}
		if err := s.MarkDone(ctx, first); err != nil {
			t.Fatalf("done: %v", err)
		}
		got, _, _ := s.Appointment(ctx, a.ID)
		if got.Synced {
			t.Fatal("appointment should stay unsynced while the cancel is queued")
		}
		if got.Status != syncproto.StatusCancelled {
			t.Fatalf("status %q", got.Status)
		}

		_ = s.MarkProcessing(ctx, second)
		if err := s.MarkFailed(ctx, second, "timeout"); err != nil {
			t.Fatalf("failed: %v", err)
		}
		pushable, _ := s.Pushable(ctx)
		if len(pushable) != 1 || pushable[0].LastError != "timeout" {
			t.Fatalf("failed items should be pushable, got %+v", pushable)
		}
		if err := s.MarkProcessing(ctx, second); err != nil {
			t.Fatalf("retry processing: %v", err)
		}
		_ = s.MarkDone(ctx, second)
		got, _, _ = s.Appointment(ctx, a.ID)
		if !got.Synced {
			t.Fatal("appointment should be synced once its queue drains")
		}
	})
}

func TestConflictResetAndReplace(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		a, _ := s.CreateLocal(ctx, createPayload(10))
		q, _ := s.Queue(ctx)
		id := q[0].ID
		_ = s.MarkProcessing(ctx, id)
		sug := &syncproto.Interval{StartAt: time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC), EndAt: time.Date(2026, 3, 2, 11, 30, 0, 0, time.UTC)}
		if err := s.MarkConflict(ctx, id, "overlaps", sug); err != nil {
			t.Fatalf("conflict: %v", err)
		}
		conflicts, _ := s.QueueByStatus(ctx, QueueConflict)
		if len(conflicts) != 1 || conflicts[0].ConflictSuggestion == nil || !conflicts[0].ConflictSuggestion.StartAt.Equal(sug.StartAt) {
			t.Fatalf("unexpected conflicts %+v", conflicts)
		}
		if p, _ := s.Pushable(ctx); len(p) != 0 {
			t.Fatal("conflicts must not be pushed automatically")
		}

		p := createPayload(11)
		p.ID = a.ID
		err := s.Replace(ctx, id, syncproto.ActionCreate, p, func(appt *Appointment) {
			appt.StartAt, appt.EndAt = p.StartAt, p.EndAt
		})
		if err != nil {
			t.Fatalf("replace: %v", err)
		}
		q, _ = s.Queue(ctx)
		if len(q) != 1 || q[0].ID == id || q[0].Status != QueuePending {
			t.Fatalf("unexpected queue after replace %+v", q)
		}
		if q[0].Action.IdempotencyKey == conflicts[0].Action.IdempotencyKey {
			t.Fatal("replacement must carry a fresh idempotency key")
		}
		got, _, _ := s.Appointment(ctx, a.ID)
		if got.StartAt.Hour() != 11 {
			t.Fatalf("cached start %v", got.StartAt)
		}

		_ = s.MarkProcessing(ctx, q[0].ID)
		_ = s.MarkConflict(ctx, q[0].ID, "still taken", nil)
		if err := s.ResetToPending(ctx, q[0].ID); err != nil {
			t.Fatalf("reset: %v", err)
		}
		it, ok, _ := s.Item(ctx, q[0].ID)
		if !ok || it.Status != QueuePending || it.LastError != "" {
			t.Fatalf("unexpected item after reset %+v", it)
		}
	})
}

func TestRecoverInterrupted(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		_, _ = s.CreateLocal(ctx, createPayload(9))
		q, _ := s.Queue(ctx)
		_ = s.MarkProcessing(ctx, q[0].ID)
		n, err := s.RecoverInterrupted(ctx)
		if err != nil || n != 1 {
			t.Fatalf("recovered %d err=%v", n, err)
		}
		it, _, _ := s.Item(ctx, q[0].ID)
		if it.Status != QueueFailed || it.LastError != "interrupted" {
			t.Fatalf("unexpected item %+v", it)
		}
	})
}

func TestMergeServerKeepsLocalEdits(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		local, _ := s.CreateLocal(ctx, createPayload(10))
		server := []syncproto.Appointment{
			{ID: local.ID, EmployeeID: "emp-1", ServiceID: "svc-1", StartAt: time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC), EndAt: time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC), Status: "confirmed"},
			{ID: "srv-1", EmployeeID: "emp-2", ServiceID: "svc-1", StartAt: time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC), EndAt: time.Date(2026, 3, 3, 9, 30, 0, 0, time.UTC), Status: "confirmed"},
		}
		n, err := s.MergeServer(ctx, server)
		if err != nil || n != 1 {
			t.Fatalf("merged %d err=%v", n, err)
		}
		got, _, _ := s.Appointment(ctx, local.ID)
		if got.StartAt.Hour() != 10 {
			t.Fatal("pending local edit was overwritten")
		}
		srv, ok, _ := s.Appointment(ctx, "srv-1")
		if !ok || !srv.Synced {
			t.Fatalf("server appointment not cached: %+v", srv)
		}
		if day, _ := s.AppointmentsOn(ctx, "2026-03-03"); len(day) != 1 {
			t.Fatalf("expected one appointment on 2026-03-03, got %d", len(day))
		}
	})
}

func TestUpdateMissingAppointment(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *Store) {
		start := testNow.Add(time.Hour)
		_, err := s.UpdateLocal(context.Background(), syncproto.UpdatePayload{ID: "nope", StartAt: &start})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		if q, _ := s.Queue(context.Background()); len(q) != 0 {
			t.Fatal("failed update must not enqueue")
		}
	})
}

func TestUnavailableStoreIsNoop(t *testing.T) {
	s := New(nil, nil)
	ctx := context.Background()
	if s.Available() {
		t.Fatal("store without backend should be unavailable")
	}
	if _, err := s.CreateLocal(ctx, createPayload(10)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if q, err := s.Queue(ctx); err != nil || len(q) != 0 {
		t.Fatalf("queue %v err=%v", q, err)
	}
	if err := s.MarkProcessing(ctx, "x"); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestDismissKeepsLocalStateUntilPull(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		_, _ = s.MergeServer(ctx, []syncproto.Appointment{{ID: "srv-1", StartAt: testNow, EndAt: testNow.Add(time.Hour), Status: "confirmed"}})
		if _, err := s.CancelLocal(ctx, "srv-1", "sick"); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		q, _ := s.Queue(ctx)
		_ = s.MarkProcessing(ctx, q[0].ID)
		_ = s.MarkConflict(ctx, q[0].ID, "not found", nil)
		if err := s.DeleteItem(ctx, q[0].ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if q, _ = s.Queue(ctx); len(q) != 0 {
			t.Fatalf("queue should be empty, got %d", len(q))
		}
		got, _, _ := s.Appointment(ctx, "srv-1")
		if got.Status != syncproto.StatusCancelled || got.Synced {
			t.Fatalf("dismiss should keep the local edit, got %+v", got)
		}

		n, _ := s.MergeServer(ctx, []syncproto.Appointment{{ID: "srv-1", StartAt: testNow, EndAt: testNow.Add(time.Hour), Status: "confirmed"}})
		got, _, _ = s.Appointment(ctx, "srv-1")
		if n != 1 || got.Status != "confirmed" || !got.Synced {
			t.Fatalf("pull should restore the server version, got %+v", got)
		}
	})
}
