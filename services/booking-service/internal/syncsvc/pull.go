package syncsvc

import (
	"context"

	"github.com/md-rashed-zaman/bookingsync/libs/auth"
	"github.com/md-rashed-zaman/bookingsync/libs/syncproto"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/storage"
)

// Pull returns the caller's non-cancelled appointments starting in
// [today, today+days) in the business timezone.
func (s *Service) Pull(ctx context.Context, scope auth.Scope, days int) (syncproto.PullResponse, error) {
	c, err := s.resolve(ctx, scope)
	if err != nil {
		return syncproto.PullResponse{}, err
	}
	days = syncproto.ClampDays(days)
	loc := c.settings.Location()
	today := availability.Today(s.now(), loc)
	from, to := today.At(0, loc), today.AddDays(days).At(0, loc)

	var appts []model.Appointment
	err = s.store.Read(ctx, func(q storage.Queries) error {
		var err error
		appts, err = q.ListAppointments(ctx, c.businessID, c.employeeID, from, to)
		return err
	})
	if err != nil {
		return syncproto.PullResponse{}, apperr.Transient(err)
	}

	out := make([]syncproto.Appointment, 0, len(appts))
	for _, a := range appts {
		out = append(out, Project(a))
	}
	return syncproto.PullResponse{OK: true, Appointments: out, Days: days}, nil
}

// Project maps a stored appointment to the offline projection.
func Project(a model.Appointment) syncproto.Appointment {
	return syncproto.Appointment{
		ID:           a.ID,
		BusinessID:   a.BusinessID,
		CustomerID:   a.CustomerID,
		CustomerName: a.CustomerName,
		EmployeeID:   a.EmployeeID,
		ServiceID:    a.ServiceID,
		StartAt:      a.StartAt,
		EndAt:        a.EndAt,
		Status:       a.Status,
		UpdatedAt:    a.UpdatedAt,
	}
}
