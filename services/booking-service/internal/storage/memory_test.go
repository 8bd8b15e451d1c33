package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/model"
)

func at(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC)
}

func newAppt(biz, emp string, start, end time.Time) *model.Appointment {
	return &model.Appointment{
		BusinessID: biz,
		CustomerID: uuid.NewString(),
		EmployeeID: emp,
		ServiceID:  uuid.NewString(),
		StartAt:    start,
		EndAt:      end,
		Status:     model.StatusConfirmed,
	}
}

func TestMemoryRejectsOverlap(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	biz, emp := uuid.NewString(), uuid.NewString()

	err := m.InTx(ctx, func(q Queries) error {
		return q.CreateAppointment(ctx, newAppt(biz, emp, at(10, 0), at(11, 0)))
	})
	if err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	err = m.InTx(ctx, func(q Queries) error {
		return q.CreateAppointment(ctx, newAppt(biz, emp, at(10, 30), at(11, 30)))
	})
	if !IsOverlap(err) {
		t.Fatalf("expected overlap error, got %v", err)
	}

	// Touching and other-employee appointments are fine.
	err = m.InTx(ctx, func(q Queries) error {
		if err := q.CreateAppointment(ctx, newAppt(biz, emp, at(11, 0), at(11, 30))); err != nil {
			return err
		}
		return q.CreateAppointment(ctx, newAppt(biz, uuid.NewString(), at(10, 0), at(11, 0)))
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestMemoryCancelledDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	biz, emp := uuid.NewString(), uuid.NewString()
	a := newAppt(biz, emp, at(10, 0), at(11, 0))

	_ = m.InTx(ctx, func(q Queries) error { return q.CreateAppointment(ctx, a) })
	err := m.InTx(ctx, func(q Queries) error {
		a.Status = model.StatusCancelled
		if err := q.UpdateAppointment(ctx, a); err != nil {
			return err
		}
		return q.CreateAppointment(ctx, newAppt(biz, emp, at(10, 0), at(11, 0)))
	})
	if err != nil {
		t.Fatalf("expected rebooking after cancel to succeed, got %v", err)
	}
}

func TestMemoryRollbackUndoesDedupReservation(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	rec := model.SyncDedupRecord{BusinessID: "b", IdempotencyKey: "k1", ActionType: "CREATE"}
	boom := errors.New("boom")

	err := m.InTx(ctx, func(q Queries) error {
		ok, err := q.ReserveSyncKey(ctx, rec)
		if err != nil || !ok {
			t.Fatalf("expected new reservation, got %v %v", ok, err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	err = m.InTx(ctx, func(q Queries) error {
		ok, err := q.ReserveSyncKey(ctx, rec)
		if err != nil {
			return err
		}
		if !ok {
			t.Fatal("reservation should have been rolled back")
		}
		ok, _ = q.ReserveSyncKey(ctx, rec)
		if ok {
			t.Fatal("second reservation in the same tx must report existing key")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMemoryHoursSourcePrefersStructured(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	biz := uuid.NewString()
	monday := availability.Date{Year: 2026, Month: time.March, Day: 2}

	s := model.DefaultSettings(biz)
	s.LegacyHours = availability.WeeklyHours{"monday": {Open: "08:00", Close: "10:00"}}
	m.PutSettings(s)

	var src availability.HoursSource
	_ = m.Read(ctx, func(q Queries) error {
		var err error
		src, err = q.GetHoursSource(ctx, biz, monday, monday)
		return err
	})
	if _, ok := src.(availability.WeeklyHours); !ok {
		t.Fatalf("expected legacy hours, got %T", src)
	}

	m.PutBusinessHours(biz, availability.BusinessHours{DayOfWeek: time.Monday, Mode: availability.ModeOpen, Start: 540, End: 1020})
	m.PutDateOverride(biz, availability.DateOverride{Date: monday.AddDays(30), Mode: availability.ModeClosed})
	_ = m.Read(ctx, func(q Queries) error {
		var err error
		src, err = q.GetHoursSource(ctx, biz, monday, monday.AddDays(7))
		return err
	})
	structured, ok := src.(availability.StructuredHours)
	if !ok {
		t.Fatalf("expected structured hours, got %T", src)
	}
	if len(structured.Overrides) != 0 {
		t.Fatalf("override outside range should be filtered, got %v", structured.Overrides)
	}
}

func TestMemoryCountRecentBookings(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := at(12, 0)
	m.SetClock(func() time.Time { return now })
	biz, emp := uuid.NewString(), uuid.NewString()

	err := m.InTx(ctx, func(q Queries) error {
		c := &model.Customer{BusinessID: biz, Email: "ana@example.com", FullName: "Ana"}
		if err := q.CreateCustomer(ctx, c); err != nil {
			return err
		}
		a := newAppt(biz, emp, at(14, 0), at(14, 30))
		a.CustomerID = c.ID
		return q.CreateAppointment(ctx, a)
	})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	_ = m.Read(ctx, func(q Queries) error {
		n, _ := q.CountRecentBookings(ctx, biz, "ana@example.com", now.Add(-time.Hour))
		if n != 1 {
			t.Fatalf("expected 1 recent booking, got %d", n)
		}
		n, _ = q.CountRecentBookings(ctx, biz, "ana@example.com", now.Add(time.Minute))
		if n != 0 {
			t.Fatalf("expected 0 bookings after cutoff, got %d", n)
		}
		return nil
	})
}
