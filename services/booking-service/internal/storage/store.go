// Package storage is the authoritative appointment store. Store has a
// Postgres implementation and an in-memory one with the same semantics,
// including rejection of overlapping non-cancelled appointments.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/model"
)

var (
	ErrNotFound  = errors.New("storage: not found")
	ErrOverlap   = errors.New("storage: overlapping appointment")
	ErrDuplicate = errors.New("storage: duplicate key")
)

// Store runs Queries either in a transaction (committed when fn returns nil)
// or against the live store for reads.
type Store interface {
	InTx(ctx context.Context, fn func(q Queries) error) error
	Read(ctx context.Context, fn func(q Queries) error) error
}

type Queries interface {
	GetSettings(ctx context.Context, businessID string) (model.Settings, error)
	// GetHoursSource prefers structured hours (with overrides in [from, to]) and
	// falls back to the legacy weekly map. It returns nil when neither exists.
	GetHoursSource(ctx context.Context, businessID string, from, to availability.Date) (availability.HoursSource, error)
	ListEmployeeSchedules(ctx context.Context, employeeID string) ([]availability.EmployeeSchedule, error)

	GetService(ctx context.Context, businessID, id string) (model.Service, error)
	GetEmployee(ctx context.Context, businessID, id string) (model.Employee, error)
	GetEmployeeByProfile(ctx context.Context, businessID, profileID string) (model.Employee, error)
	CountOfferings(ctx context.Context, employeeID string) (int, error)
	GetMembershipRole(ctx context.Context, businessID, profileID string) (string, error)

	// ListEmployeeAppointments returns non-cancelled appointments overlapping
	// [from, to). Zero bounds are open.
	ListEmployeeAppointments(ctx context.Context, employeeID string, from, to time.Time) ([]model.Appointment, error)
	// ListAppointments returns non-cancelled appointments of a business that
	// start in [from, to), optionally restricted to one employee.
	ListAppointments(ctx context.Context, businessID, employeeID string, from, to time.Time) ([]model.Appointment, error)
	CountRecentBookings(ctx context.Context, businessID, email string, since time.Time) (int, error)

	FindCustomerByEmail(ctx context.Context, businessID, email string) (model.Customer, error)
	GetCustomer(ctx context.Context, businessID, id string) (model.Customer, error)
	CreateCustomer(ctx context.Context, c *model.Customer) error
	LinkCustomerUser(ctx context.Context, customerID, userID string) error

	CreateAppointment(ctx context.Context, a *model.Appointment) error
	GetAppointment(ctx context.Context, businessID, id string) (model.Appointment, error)
	UpdateAppointment(ctx context.Context, a *model.Appointment) error

	// ReserveSyncKey records the key and reports whether it was new. Inside a
	// transaction the reservation is undone by rollback.
	ReserveSyncKey(ctx context.Context, rec model.SyncDedupRecord) (bool, error)

	CreateClaimToken(ctx context.Context, t model.ClaimToken) error
	GetClaimToken(ctx context.Context, appointmentID string) (model.ClaimToken, error)
	ConsumeClaimToken(ctx context.Context, appointmentID string, at time.Time) error
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
func IsOverlap(err error) bool  { return errors.Is(err, ErrOverlap) }
