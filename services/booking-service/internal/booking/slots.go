package booking

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/storage"
)

type SlotsQuery struct {
	BusinessID string
	EmployeeID string
	ServiceID  string
	Date       string
}

// Slots lists bookable intervals for one employee, service and civil date
// in the business timezone. Dates in the past or beyond max_days_ahead
// yield an empty list.
func (s *Service) Slots(ctx context.Context, sq SlotsQuery) ([]conflict.Interval, error) {
	if sq.BusinessID == "" || sq.EmployeeID == "" || sq.ServiceID == "" {
		return nil, apperr.New(apperr.KindValidation, apperr.KeyInvalidRequest)
	}
	d, err := availability.ParseDate(sq.Date)
	if err != nil {
		return nil, apperr.Validation(apperr.KeyInvalidDate, err)
	}
	st, err := s.settings.Get(ctx, sq.BusinessID)
	if err != nil {
		return nil, apperr.Transient(err)
	}
	now := s.now()
	today := availability.Today(now, st.Location())
	if d.Before(today) || (st.MaxDaysAhead > 0 && today.AddDays(st.MaxDaysAhead).Before(d)) {
		return []conflict.Interval{}, nil
	}

	var req availability.Request
	err = s.store.Read(ctx, func(q storage.Queries) error {
		svc, err := q.GetService(ctx, sq.BusinessID, sq.ServiceID)
		if err != nil || !svc.Active {
			return lookupErr(err, apperr.KeyServiceNotFound)
		}
		emp, err := q.GetEmployee(ctx, sq.BusinessID, sq.EmployeeID)
		if err != nil || !emp.Active {
			return lookupErr(err, apperr.KeyEmployeeNotFound)
		}
		req, err = DayRequest(ctx, q, st, emp.ID, d, 1, svc.DurationMinutes, svc.BufferMinutes, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	need := time.Duration(req.Duration+req.Buffer) * time.Minute
	starts := availability.Slots(req)
	out := make([]conflict.Interval, 0, len(starts))
	for _, start := range starts {
		out = append(out, conflict.Interval{Start: start, End: start.Add(need)})
	}
	return out, nil
}

// DayRequest loads everything availability needs for employeeID starting at
// from. Existing appointments cover all of [from, from+days) so the request
// can also drive NextAvailable.
func DayRequest(ctx context.Context, q storage.Queries, st model.Settings, employeeID string, from availability.Date, days, duration, buffer int, now time.Time) (availability.Request, error) {
	if days <= 0 {
		days = 1
	}
	loc := st.Location()
	until := from.AddDays(days)

	hours, err := q.GetHoursSource(ctx, st.BusinessID, from, until)
	if err != nil {
		return availability.Request{}, apperr.Transient(err)
	}
	if hours == nil && st.LegacyHours != nil {
		hours = st.LegacyHours
	}
	schedules, err := q.ListEmployeeSchedules(ctx, employeeID)
	if err != nil {
		return availability.Request{}, apperr.Transient(err)
	}
	existing, err := q.ListEmployeeAppointments(ctx, employeeID, from.At(0, loc), until.At(0, loc))
	if err != nil {
		return availability.Request{}, apperr.Transient(err)
	}

	return availability.Request{
		Date:         from,
		Location:     loc,
		Hours:        hours,
		Schedules:    schedules,
		Duration:     duration,
		Buffer:       buffer,
		Existing:     Intervals(existing),
		LeadTime:     time.Duration(st.LeadTimeMinutes) * time.Minute,
		SlotInterval: st.SlotIntervalMinutes,
		Now:          now,
	}, nil
}
