package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/model"
)

// Memory is a single-process Store. Transactions are serialized and work on
// a copy of the mutable tables that replaces the live state on commit.
type Memory struct {
	mu    sync.Mutex
	state *memState
	now   func() time.Time
}

type membershipKey struct{ business, profile string }
type dedupKey struct{ business, key string }

type memState struct {
	settings     map[string]model.Settings
	hours        map[string][]availability.BusinessHours
	overrides    map[string][]availability.DateOverride
	schedules    map[string][]availability.EmployeeSchedule
	services     map[string]model.Service
	employees    map[string]model.Employee
	offerings    map[string]map[string]struct{}
	memberships  map[membershipKey]string
	customers    map[string]model.Customer
	appointments map[string]model.Appointment
	dedup        map[dedupKey]model.SyncDedupRecord
	claims       map[string]model.ClaimToken
}

func NewMemory() *Memory {
	return &Memory{
		now: time.Now,
		state: &memState{
			settings:     map[string]model.Settings{},
			hours:        map[string][]availability.BusinessHours{},
			overrides:    map[string][]availability.DateOverride{},
			schedules:    map[string][]availability.EmployeeSchedule{},
			services:     map[string]model.Service{},
			employees:    map[string]model.Employee{},
			offerings:    map[string]map[string]struct{}{},
			memberships:  map[membershipKey]string{},
			customers:    map[string]model.Customer{},
			appointments: map[string]model.Appointment{},
			dedup:        map[dedupKey]model.SyncDedupRecord{},
			claims:       map[string]model.ClaimToken{},
		},
	}
}

// SetClock overrides the timestamp source for created_at/updated_at.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// fork copies the tables a transaction may write. Reference tables are
// shared because only the Put* seeding methods change them.
func (s *memState) fork() *memState {
	cp := *s
	cp.customers = cloneMap(s.customers)
	cp.appointments = cloneMap(s.appointments)
	cp.dedup = cloneMap(s.dedup)
	cp.claims = cloneMap(s.claims)
	return &cp
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *Memory) InTx(_ context.Context, fn func(q Queries) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.fork()
	if err := fn(&memQueries{st: work, now: m.now}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *Memory) Read(_ context.Context, fn func(q Queries) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&memQueries{st: m.state, now: m.now})
}

func (m *Memory) PutSettings(s model.Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.settings[s.BusinessID] = s
}

func (m *Memory) PutBusinessHours(businessID string, entries ...availability.BusinessHours) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.hours[businessID] = append(append([]availability.BusinessHours(nil), m.state.hours[businessID]...), entries...)
}

func (m *Memory) PutDateOverride(businessID string, o availability.DateOverride) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.overrides[businessID] = append(append([]availability.DateOverride(nil), m.state.overrides[businessID]...), o)
}

func (m *Memory) PutEmployeeSchedule(s availability.EmployeeSchedule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.schedules[s.EmployeeID] = append(append([]availability.EmployeeSchedule(nil), m.state.schedules[s.EmployeeID]...), s)
}

func (m *Memory) PutService(s model.Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.services[s.ID] = s
}

func (m *Memory) PutEmployee(e model.Employee) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.employees[e.ID] = e
}

func (m *Memory) PutOffering(employeeID, serviceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := cloneMap(m.state.offerings[employeeID])
	set[serviceID] = struct{}{}
	m.state.offerings[employeeID] = set
}

func (m *Memory) PutMembership(ms model.Membership) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.memberships[membershipKey{ms.BusinessID, ms.ProfileID}] = ms.Role
}

type memQueries struct {
	st  *memState
	now func() time.Time
}

func (q *memQueries) GetSettings(_ context.Context, businessID string) (model.Settings, error) {
	s, ok := q.st.settings[businessID]
	if !ok {
		return model.Settings{}, ErrNotFound
	}
	return s, nil
}

func (q *memQueries) GetHoursSource(_ context.Context, businessID string, from, to availability.Date) (availability.HoursSource, error) {
	if entries := q.st.hours[businessID]; len(entries) > 0 {
		src := availability.StructuredHours{Entries: entries}
		for _, o := range q.st.overrides[businessID] {
			if !o.Date.Before(from) && !to.Before(o.Date) {
				src.Overrides = append(src.Overrides, o)
			}
		}
		return src, nil
	}
	if s, ok := q.st.settings[businessID]; ok && len(s.LegacyHours) > 0 {
		return s.LegacyHours, nil
	}
	return nil, nil
}

func (q *memQueries) ListEmployeeSchedules(_ context.Context, employeeID string) ([]availability.EmployeeSchedule, error) {
	return q.st.schedules[employeeID], nil
}

func (q *memQueries) GetService(_ context.Context, businessID, id string) (model.Service, error) {
	s, ok := q.st.services[id]
	if !ok || s.BusinessID != businessID {
		return model.Service{}, ErrNotFound
	}
	return s, nil
}

func (q *memQueries) GetEmployee(_ context.Context, businessID, id string) (model.Employee, error) {
	e, ok := q.st.employees[id]
	if !ok || e.BusinessID != businessID {
		return model.Employee{}, ErrNotFound
	}
	return e, nil
}

func (q *memQueries) GetEmployeeByProfile(_ context.Context, businessID, profileID string) (model.Employee, error) {
	for _, e := range q.st.employees {
		if e.BusinessID == businessID && e.ProfileID != "" && e.ProfileID == profileID {
			return e, nil
		}
	}
	return model.Employee{}, ErrNotFound
}

func (q *memQueries) CountOfferings(_ context.Context, employeeID string) (int, error) {
	return len(q.st.offerings[employeeID]), nil
}

func (q *memQueries) GetMembershipRole(_ context.Context, businessID, profileID string) (string, error) {
	role, ok := q.st.memberships[membershipKey{businessID, profileID}]
	if !ok {
		return "", ErrNotFound
	}
	return role, nil
}

func (q *memQueries) ListEmployeeAppointments(_ context.Context, employeeID string, from, to time.Time) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range q.st.appointments {
		if a.EmployeeID != employeeID || a.Status == model.StatusCancelled {
			continue
		}
		if !from.IsZero() && !a.EndAt.After(from) {
			continue
		}
		if !to.IsZero() && !a.StartAt.Before(to) {
			continue
		}
		out = append(out, a)
	}
	sortByStart(out)
	return out, nil
}

func (q *memQueries) ListAppointments(_ context.Context, businessID, employeeID string, from, to time.Time) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range q.st.appointments {
		if a.BusinessID != businessID || a.Status == model.StatusCancelled {
			continue
		}
		if employeeID != "" && a.EmployeeID != employeeID {
			continue
		}
		if a.StartAt.Before(from) || !a.StartAt.Before(to) {
			continue
		}
		a.CustomerName = q.st.customers[a.CustomerID].FullName
		out = append(out, a)
	}
	sortByStart(out)
	return out, nil
}

func sortByStart(appts []model.Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		if appts[i].StartAt.Equal(appts[j].StartAt) {
			return appts[i].ID < appts[j].ID
		}
		return appts[i].StartAt.Before(appts[j].StartAt)
	})
}

func (q *memQueries) CountRecentBookings(_ context.Context, businessID, email string, since time.Time) (int, error) {
	n := 0
	for _, a := range q.st.appointments {
		if a.BusinessID != businessID || a.CreatedAt.Before(since) {
			continue
		}
		if c, ok := q.st.customers[a.CustomerID]; ok && c.Email == email {
			n++
		}
	}
	return n, nil
}

func (q *memQueries) FindCustomerByEmail(_ context.Context, businessID, email string) (model.Customer, error) {
	if email == "" {
		return model.Customer{}, ErrNotFound
	}
	for _, c := range q.st.customers {
		if c.BusinessID == businessID && c.Email == email {
			return c, nil
		}
	}
	return model.Customer{}, ErrNotFound
}

func (q *memQueries) GetCustomer(_ context.Context, businessID, id string) (model.Customer, error) {
	c, ok := q.st.customers[id]
	if !ok || c.BusinessID != businessID {
		return model.Customer{}, ErrNotFound
	}
	return c, nil
}

func (q *memQueries) CreateCustomer(ctx context.Context, c *model.Customer) error {
	if _, err := q.FindCustomerByEmail(ctx, c.BusinessID, c.Email); err == nil {
		return ErrDuplicate
	}
	c.ID = uuid.NewString()
	c.CreatedAt = q.now()
	q.st.customers[c.ID] = *c
	return nil
}

func (q *memQueries) LinkCustomerUser(_ context.Context, customerID, userID string) error {
	c, ok := q.st.customers[customerID]
	if !ok {
		return ErrNotFound
	}
	c.UserID = userID
	q.st.customers[customerID] = c
	return nil
}

// checkOverlap mirrors the appointments_no_overlap exclusion constraint.
func (q *memQueries) checkOverlap(a *model.Appointment) error {
	if a.Status == model.StatusCancelled {
		return nil
	}
	candidate := conflict.Interval{Start: a.StartAt, End: a.EndAt}
	for _, other := range q.st.appointments {
		if other.ID == a.ID || other.EmployeeID != a.EmployeeID || other.Status == model.StatusCancelled {
			continue
		}
		if candidate.Overlaps(conflict.Interval{Start: other.StartAt, End: other.EndAt}) {
			return ErrOverlap
		}
	}
	return nil
}

func (q *memQueries) CreateAppointment(_ context.Context, a *model.Appointment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if _, exists := q.st.appointments[a.ID]; exists {
		return ErrDuplicate
	}
	if err := q.checkOverlap(a); err != nil {
		return err
	}
	now := q.now()
	a.CreatedAt, a.UpdatedAt = now, now
	stored := *a
	stored.CustomerName = ""
	q.st.appointments[a.ID] = stored
	return nil
}

func (q *memQueries) GetAppointment(_ context.Context, businessID, id string) (model.Appointment, error) {
	a, ok := q.st.appointments[id]
	if !ok || a.BusinessID != businessID {
		return model.Appointment{}, ErrNotFound
	}
	return a, nil
}

func (q *memQueries) UpdateAppointment(_ context.Context, a *model.Appointment) error {
	cur, ok := q.st.appointments[a.ID]
	if !ok || cur.BusinessID != a.BusinessID {
		return ErrNotFound
	}
	if err := q.checkOverlap(a); err != nil {
		return err
	}
	a.CreatedAt = cur.CreatedAt
	a.UpdatedAt = q.now()
	stored := *a
	stored.CustomerName = ""
	q.st.appointments[a.ID] = stored
	return nil
}

func (q *memQueries) ReserveSyncKey(_ context.Context, rec model.SyncDedupRecord) (bool, error) {
	k := dedupKey{rec.BusinessID, rec.IdempotencyKey}
	if _, ok := q.st.dedup[k]; ok {
		return false, nil
	}
	rec.CreatedAt = q.now()
	q.st.dedup[k] = rec
	return true, nil
}

func (q *memQueries) CreateClaimToken(_ context.Context, t model.ClaimToken) error {
	if _, ok := q.st.claims[t.AppointmentID]; ok {
		return ErrDuplicate
	}
	q.st.claims[t.AppointmentID] = t
	return nil
}

func (q *memQueries) GetClaimToken(_ context.Context, appointmentID string) (model.ClaimToken, error) {
	t, ok := q.st.claims[appointmentID]
	if !ok {
		return model.ClaimToken{}, ErrNotFound
	}
	return t, nil
}

func (q *memQueries) ConsumeClaimToken(_ context.Context, appointmentID string, at time.Time) error {
	t, ok := q.st.claims[appointmentID]
	if !ok || t.ConsumedAt != nil {
		return ErrNotFound
	}
	t.ConsumedAt = &at
	q.st.claims[appointmentID] = t
	return nil
}
