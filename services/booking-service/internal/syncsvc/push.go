// Package syncsvc reconciles queued reception-client mutations against the
// authoritative store and serves the offline projection back to clients.
package syncsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/bookingsync/libs/auth"
	"github.com/md-rashed-zaman/bookingsync/libs/syncproto"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/settings"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/storage"
)

const walkInName = "Walk-in"

type Config struct {
	// RecheckUpdates runs the overlap check on UPDATE before writing.
	// Storage still rejects overlaps either way.
	RecheckUpdates bool
	// SuggestDays bounds the search for a server suggestion on conflict.
	SuggestDays int
}

type Service struct {
	store    storage.Store
	settings *settings.Cache
	notifier notify.Dispatcher
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

func NewService(store storage.Store, cache *settings.Cache, notifier notify.Dispatcher, logger *slog.Logger, cfg Config) *Service {
	if notifier == nil {
		notifier = notify.LogDispatcher{Logger: logger}
	}
	if cfg.SuggestDays <= 0 {
		cfg.SuggestDays = 7
	}
	return &Service{store: store, settings: cache, notifier: notifier, logger: logger, cfg: cfg, now: time.Now}
}

func (s *Service) SetClock(now func() time.Time) { s.now = now }

// caller is the resolved scope of one push or pull request.
type caller struct {
	businessID string
	employeeID string // set only for employee-role callers
	settings   model.Settings
}

func (c caller) owns(a model.Appointment) bool {
	return c.employeeID == "" || a.EmployeeID == c.employeeID
}

func (s *Service) resolve(ctx context.Context, scope auth.Scope) (caller, error) {
	if scope.BusinessID == "" {
		return caller{}, apperr.Forbidden(apperr.KeySyncForbidden)
	}
	c := caller{businessID: scope.BusinessID}
	if scope.EmployeeOnly() {
		c.employeeID = scope.EmployeeID
		if c.employeeID == "" {
			err := s.store.Read(ctx, func(q storage.Queries) error {
				emp, err := q.GetEmployeeByProfile(ctx, scope.BusinessID, scope.UserID)
				c.employeeID = emp.ID
				return err
			})
			if err != nil || c.employeeID == "" {
				return caller{}, apperr.Forbidden(apperr.KeySyncForbidden)
			}
		}
	}
	st, err := s.settings.Get(ctx, scope.BusinessID)
	if err != nil {
		return caller{}, apperr.Transient(err)
	}
	c.settings = st
	return c, nil
}

// rejection aborts an action's transaction and becomes a reported conflict.
type rejection struct {
	reason     string
	suggestion *syncproto.Interval
}

func (r *rejection) Error() string { return r.reason }

func reject(format string, args ...any) *rejection {
	return &rejection{reason: fmt.Sprintf(format, args...)}
}

// Push applies each action in its own transaction. One action failing, or
// panicking, never stops the rest of the batch.
func (s *Service) Push(ctx context.Context, scope auth.Scope, actions []syncproto.Action) (syncproto.PushResponse, error) {
	c, err := s.resolve(ctx, scope)
	if err != nil {
		return syncproto.PushResponse{}, err
	}
	resp := syncproto.PushResponse{OK: true}
	for _, a := range actions {
		conf, ev := s.applyOne(ctx, c, a)
		if conf != nil {
			resp.Conflicts = append(resp.Conflicts, *conf)
			continue
		}
		resp.Applied++
		if ev != nil {
			_ = s.notifier.Dispatch(ctx, *ev)
		}
	}
	return resp, nil
}

func (s *Service) applyOne(ctx context.Context, c caller, a syncproto.Action) (conf *syncproto.Conflict, ev *notify.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sync action panicked", "idempotency_key", a.IdempotencyKey, "type", a.Type, "panic", r)
			conf = &syncproto.Conflict{IdempotencyKey: a.IdempotencyKey, Reason: fmt.Sprintf("internal error: %v", r)}
			ev = nil
		}
	}()

	if a.IdempotencyKey == "" {
		return &syncproto.Conflict{Reason: "missing idempotency key"}, nil
	}

	err := s.store.InTx(ctx, func(q storage.Queries) error {
		fresh, err := q.ReserveSyncKey(ctx, model.SyncDedupRecord{
			BusinessID:     c.businessID,
			IdempotencyKey: a.IdempotencyKey,
			ActionType:     a.Type,
			CreatedAt:      s.now(),
		})
		if err != nil {
			return err
		}
		if !fresh {
			return nil
		}
		switch a.Type {
		case syncproto.ActionCreate:
			ev, err = s.create(ctx, q, c, a.Payload)
		case syncproto.ActionUpdate:
			ev, err = s.update(ctx, q, c, a.Payload)
		case syncproto.ActionCancel:
			ev, err = s.cancel(ctx, q, c, a.Payload)
		default:
			err = reject("unknown action type %q", a.Type)
		}
		return err
	})
	if err == nil {
		return nil, ev
	}

	var rej *rejection
	if errors.As(err, &rej) {
		return &syncproto.Conflict{IdempotencyKey: a.IdempotencyKey, Reason: rej.reason, ServerSuggestion: rej.suggestion}, nil
	}
	s.logger.Error("sync action failed", "idempotency_key", a.IdempotencyKey, "type", a.Type, "err", err)
	return &syncproto.Conflict{IdempotencyKey: a.IdempotencyKey, Reason: err.Error()}, nil
}

func (s *Service) create(ctx context.Context, q storage.Queries, c caller, raw json.RawMessage) (*notify.Event, error) {
	var p syncproto.CreatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, reject("invalid payload: %v", err)
	}
	if !p.EndAt.After(p.StartAt) {
		return nil, reject("end_at must be after start_at")
	}
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	} else if _, err := uuid.Parse(id); err != nil {
		return nil, reject("invalid appointment id %q", p.ID)
	}
	if c.employeeID != "" && p.EmployeeID != c.employeeID {
		return nil, reject("not permitted to book for another employee")
	}

	emp, err := q.GetEmployee(ctx, c.businessID, p.EmployeeID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, reject("employee not found")
		}
		return nil, err
	}
	if _, err := q.GetService(ctx, c.businessID, p.ServiceID); err != nil {
		if storage.IsNotFound(err) {
			return nil, reject("service not found")
		}
		return nil, err
	}

	existing, err := q.ListEmployeeAppointments(ctx, emp.ID, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	candidate := conflict.Interval{Start: p.StartAt, End: p.EndAt}
	if clash, busy := conflict.FirstOverlap(candidate, booking.Intervals(existing)); busy {
		return nil, s.overlapRejection(ctx, q, c, emp.ID, candidate, clash)
	}

	customer, err := s.resolveCustomer(ctx, q, c.businessID, p)
	if err != nil {
		return nil, err
	}

	status := model.StatusConfirmed
	if p.Status != "" && p.Status != model.StatusCancelled && model.ValidStatus(p.Status) {
		status = p.Status
	}
	appt := model.Appointment{
		ID:         id,
		BusinessID: c.businessID,
		CustomerID: customer.ID,
		EmployeeID: emp.ID,
		ServiceID:  p.ServiceID,
		StartAt:    p.StartAt.UTC(),
		EndAt:      p.EndAt.UTC(),
		Status:     status,
	}
	if err := q.CreateAppointment(ctx, &appt); err != nil {
		switch {
		case storage.IsOverlap(err):
			return nil, s.overlapRejection(ctx, q, c, emp.ID, candidate, conflict.Interval{})
		case errors.Is(err, storage.ErrDuplicate):
			return nil, reject("appointment %s already exists", id)
		}
		return nil, err
	}
	ev := notify.AppointmentEvent(notify.EventAppointmentCreated, appt, s.now())
	return &ev, nil
}

// resolveCustomer uses the given customer id, then the email, and finally
// creates a placeholder customer for walk-ins.
func (s *Service) resolveCustomer(ctx context.Context, q storage.Queries, businessID string, p syncproto.CreatePayload) (model.Customer, error) {
	if p.CustomerID != "" {
		cust, err := q.GetCustomer(ctx, businessID, p.CustomerID)
		if err == nil {
			return cust, nil
		}
		if !storage.IsNotFound(err) {
			return model.Customer{}, err
		}
	}
	email := ""
	if p.CustomerEmail != "" {
		email = booking.NormalizeEmail(p.CustomerEmail)
		cust, err := q.FindCustomerByEmail(ctx, businessID, email)
		if err == nil {
			return cust, nil
		}
		if !storage.IsNotFound(err) {
			return model.Customer{}, err
		}
	}
	name := p.CustomerName
	if name == "" {
		name = walkInName
	}
	cust := model.Customer{
		BusinessID: businessID,
		Email:      email,
		FullName:   name,
		Phone:      p.CustomerPhone,
	}
	if err := q.CreateCustomer(ctx, &cust); err != nil {
		return model.Customer{}, err
	}
	return cust, nil
}

func (s *Service) overlapRejection(ctx context.Context, q storage.Queries, c caller, employeeID string, candidate, clash conflict.Interval) *rejection {
	loc := c.settings.Location()
	rej := reject("overlaps an existing appointment")
	if !clash.Start.IsZero() {
		rej = reject("overlaps an existing appointment from %s to %s",
			clash.Start.In(loc).Format("2006-01-02 15:04"), clash.End.In(loc).Format("15:04"))
	}

	minutes := int(candidate.End.Sub(candidate.Start) / time.Minute)
	req, err := booking.DayRequest(ctx, q, c.settings, employeeID, availability.DateOf(candidate.Start.In(loc)), s.cfg.SuggestDays, minutes, 0, s.now())
	if err != nil {
		s.logger.Warn("suggestion lookup failed", "employee_id", employeeID, "err", err)
		return rej
	}
	if next, ok := availability.NextAvailable(req, candidate.Start, s.cfg.SuggestDays); ok {
		rej.suggestion = &syncproto.Interval{StartAt: next.Start, EndAt: next.End}
	}
	return rej
}

func (s *Service) update(ctx context.Context, q storage.Queries, c caller, raw json.RawMessage) (*notify.Event, error) {
	var p syncproto.UpdatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, reject("invalid payload: %v", err)
	}
	appt, err := s.load(ctx, q, c, p.ID)
	if err != nil {
		return nil, err
	}

	moved := false
	if p.EmployeeID != nil && *p.EmployeeID != appt.EmployeeID {
		if c.employeeID != "" {
			return nil, reject("not permitted to reassign appointment")
		}
		if _, err := q.GetEmployee(ctx, c.businessID, *p.EmployeeID); err != nil {
			if storage.IsNotFound(err) {
				return nil, reject("employee not found")
			}
			return nil, err
		}
		appt.EmployeeID = *p.EmployeeID
		moved = true
	}
	if p.ServiceID != nil {
		appt.ServiceID = *p.ServiceID
	}
	if p.StartAt != nil {
		appt.StartAt = p.StartAt.UTC()
		moved = true
	}
	if p.EndAt != nil {
		appt.EndAt = p.EndAt.UTC()
		moved = true
	}
	if p.Status != nil {
		if !model.ValidStatus(*p.Status) {
			return nil, reject("invalid status %q", *p.Status)
		}
		appt.Status = *p.Status
	}
	if !appt.EndAt.After(appt.StartAt) {
		return nil, reject("end_at must be after start_at")
	}

	candidate := conflict.Interval{Start: appt.StartAt, End: appt.EndAt}
	if s.cfg.RecheckUpdates && moved && appt.Status != model.StatusCancelled {
		existing, err := q.ListEmployeeAppointments(ctx, appt.EmployeeID, time.Time{}, time.Time{})
		if err != nil {
			return nil, err
		}
		others := existing[:0]
		for _, e := range existing {
			if e.ID != appt.ID {
				others = append(others, e)
			}
		}
		if clash, busy := conflict.FirstOverlap(candidate, booking.Intervals(others)); busy {
			return nil, s.overlapRejection(ctx, q, c, appt.EmployeeID, candidate, clash)
		}
	}

	if err := q.UpdateAppointment(ctx, &appt); err != nil {
		if storage.IsOverlap(err) {
			return nil, s.overlapRejection(ctx, q, c, appt.EmployeeID, candidate, conflict.Interval{})
		}
		return nil, err
	}
	kind := notify.EventAppointmentUpdated
	if appt.Status == model.StatusCancelled {
		kind = notify.EventAppointmentCancelled
	}
	ev := notify.AppointmentEvent(kind, appt, s.now())
	return &ev, nil
}

func (s *Service) cancel(ctx context.Context, q storage.Queries, c caller, raw json.RawMessage) (*notify.Event, error) {
	var p syncproto.CancelPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, reject("invalid payload: %v", err)
	}
	appt, err := s.load(ctx, q, c, p.ID)
	if err != nil {
		return nil, err
	}
	if appt.Status == model.StatusCancelled {
		return nil, nil
	}
	appt.Status = model.StatusCancelled
	if err := q.UpdateAppointment(ctx, &appt); err != nil {
		return nil, err
	}
	ev := notify.AppointmentEvent(notify.EventAppointmentCancelled, appt, s.now())
	if p.Reason != "" {
		ev.Payload["reason"] = p.Reason
	}
	return &ev, nil
}

// load returns the appointment if it exists, belongs to the business and is
// visible to the caller. Anything else is reported as "not found".
func (s *Service) load(ctx context.Context, q storage.Queries, c caller, id string) (model.Appointment, error) {
	if id == "" {
		return model.Appointment{}, reject("not found")
	}
	appt, err := q.GetAppointment(ctx, c.businessID, id)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, reject("not found")
		}
		return model.Appointment{}, err
	}
	if !c.owns(appt) {
		return model.Appointment{}, reject("not found")
	}
	return appt, nil
}
