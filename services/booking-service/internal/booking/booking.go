// Package booking implements the public booking pipeline, slot listing and
// claim-token redemption on top of the authoritative store.
package booking

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"golang.org/x/crypto/bcrypt"

	"github.com/md-rashed-zaman/bookingsync/libs/auth"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/botcheck"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/settings"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/storage"
)

type Config struct {
	// RecentLimit bookings per normalized email within RecentWindow.
	RecentLimit  int
	RecentWindow time.Duration
	ClaimTTL     time.Duration
	BcryptCost   int
	// PhoneRegion is used for numbers without a country prefix.
	PhoneRegion string
}

func DefaultConfig() Config {
	return Config{
		RecentLimit:  5,
		RecentWindow: time.Hour,
		ClaimTTL:     30 * time.Minute,
		BcryptCost:   bcrypt.DefaultCost,
		PhoneRegion:  "US",
	}
}

type Request struct {
	BusinessID    string `json:"business_id" validate:"required,uuid"`
	ServiceID     string `json:"service_id" validate:"required,uuid"`
	EmployeeID    string `json:"employee_id" validate:"required,uuid"`
	StartAt       string `json:"start_at" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	CustomerName  string `json:"customer_name" validate:"required,max=200"`
	CustomerEmail string `json:"customer_email" validate:"required,email,max=320"`
	CustomerPhone string `json:"customer_phone" validate:"omitempty,max=32"`
	BotToken      string `json:"bot_token" validate:"omitempty,max=4096"`
	RemoteIP      string `json:"-"`
}

type Result struct {
	AppointmentID string
	ClaimToken    string
	CustomerEmail string
	CustomerName  string
}

type Service struct {
	store    storage.Store
	settings *settings.Cache
	bot      botcheck.Verifier
	notifier notify.Dispatcher
	validate *validator.Validate
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

func NewService(store storage.Store, cache *settings.Cache, bot botcheck.Verifier, notifier notify.Dispatcher, validate *validator.Validate, logger *slog.Logger, cfg Config) *Service {
	if bot == nil {
		bot = botcheck.Disabled{}
	}
	if notifier == nil {
		notifier = notify.LogDispatcher{Logger: logger}
	}
	def := DefaultConfig()
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = def.RecentLimit
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = def.RecentWindow
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = def.ClaimTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = def.BcryptCost
	}
	if cfg.PhoneRegion == "" {
		cfg.PhoneRegion = def.PhoneRegion
	}
	return &Service{
		store:    store,
		settings: cache,
		bot:      bot,
		notifier: notifier,
		validate: validate,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (s *Service) SetClock(now func() time.Time) { s.now = now }

// NormalizeEmail lowercases the address and drops a "+tag" suffix from the
// local part, so aliases of one mailbox count as one customer.
func NormalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return email
	}
	local, domain := email[:at], email[at+1:]
	if plus := strings.IndexByte(local, '+'); plus >= 0 {
		local = local[:plus]
	}
	return local + "@" + domain
}

// NormalizePhone returns the E.164 form of raw, parsed against region when
// it has no country prefix.
func NormalizePhone(raw, region string) (string, error) {
	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("phone %q is not a valid number", raw)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// Book runs the booking pipeline. Each step fails fast; the conflict check,
// customer resolution, insert and claim token share one transaction so the
// overlap check is the last gate before the write.
func (s *Service) Book(ctx context.Context, req Request) (Result, error) {
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.EmployeeID = strings.TrimSpace(req.EmployeeID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)

	if err := s.validate.Struct(req); err != nil {
		return Result{}, apperr.Validation(apperr.KeyInvalidRequest, err)
	}
	startAt, err := time.Parse(time.RFC3339, req.StartAt)
	if err != nil {
		return Result{}, apperr.Validation(apperr.KeyInvalidRequest, err)
	}
	phone := ""
	if req.CustomerPhone != "" {
		if phone, err = NormalizePhone(req.CustomerPhone, s.cfg.PhoneRegion); err != nil {
			return Result{}, apperr.Validation(apperr.KeyInvalidPhone, err)
		}
	}

	if err := s.bot.Verify(ctx, req.BotToken, req.RemoteIP); err != nil {
		return Result{}, apperr.Validation(apperr.KeyBotCheckFailed, err)
	}

	email := NormalizeEmail(req.CustomerEmail)
	now := s.now()

	st, err := s.settings.Get(ctx, req.BusinessID)
	if err != nil {
		return Result{}, apperr.Transient(err)
	}

	var (
		svc model.Service
		emp model.Employee
	)
	err = s.store.Read(ctx, func(q storage.Queries) error {
		recent, err := q.CountRecentBookings(ctx, req.BusinessID, email, now.Add(-s.cfg.RecentWindow))
		if err != nil {
			return apperr.Transient(err)
		}
		if recent >= s.cfg.RecentLimit {
			return apperr.RateLimit(apperr.KeyTooManyBookings)
		}

		if svc, err = q.GetService(ctx, req.BusinessID, req.ServiceID); err != nil || !svc.Active {
			return lookupErr(err, apperr.KeyServiceNotFound)
		}
		if emp, err = q.GetEmployee(ctx, req.BusinessID, req.EmployeeID); err != nil || !emp.Active {
			return lookupErr(err, apperr.KeyEmployeeNotFound)
		}
		return checkBookable(ctx, q, st, emp)
	})
	if err != nil {
		return Result{}, err
	}

	endAt := startAt.Add(time.Duration(svc.DurationMinutes+svc.BufferMinutes) * time.Minute)

	token, tokenHash, err := s.newClaimToken()
	if err != nil {
		return Result{}, apperr.Internal(err)
	}

	var (
		appt     model.Appointment
		customer model.Customer
	)
	err = s.store.InTx(ctx, func(q storage.Queries) error {
		existing, err := q.ListEmployeeAppointments(ctx, emp.ID, time.Time{}, time.Time{})
		if err != nil {
			return apperr.Transient(err)
		}
		candidate := conflict.Interval{Start: startAt, End: endAt}
		if _, clash := conflict.FirstOverlap(candidate, Intervals(existing)); clash {
			return apperr.Conflict(apperr.KeySlotTaken)
		}

		customer, err = resolveCustomer(ctx, q, req.BusinessID, email, req.CustomerName, phone)
		if err != nil {
			return err
		}

		appt = model.Appointment{
			ID:         uuid.NewString(),
			BusinessID: req.BusinessID,
			CustomerID: customer.ID,
			EmployeeID: emp.ID,
			ServiceID:  svc.ID,
			StartAt:    startAt.UTC(),
			EndAt:      endAt.UTC(),
			Status:     model.StatusConfirmed,
		}
		if err := q.CreateAppointment(ctx, &appt); err != nil {
			if storage.IsOverlap(err) {
				return apperr.Conflict(apperr.KeySlotTaken)
			}
			return apperr.Transient(err)
		}

		return q.CreateClaimToken(ctx, model.ClaimToken{
			AppointmentID: appt.ID,
			BusinessID:    appt.BusinessID,
			TokenHash:     tokenHash,
			ExpiresAt:     now.Add(s.cfg.ClaimTTL),
		})
	})
	if err != nil {
		var ae *apperr.Error
		if !errors.As(err, &ae) {
			err = apperr.Transient(err)
		}
		return Result{}, err
	}

	_ = s.notifier.Dispatch(ctx, notify.AppointmentEvent(notify.EventAppointmentCreated, appt, now))

	return Result{
		AppointmentID: appt.ID,
		ClaimToken:    token,
		CustomerEmail: customer.Email,
		CustomerName:  customer.FullName,
	}, nil
}

func checkBookable(ctx context.Context, q storage.Queries, st model.Settings, emp model.Employee) error {
	offerings, err := q.CountOfferings(ctx, emp.ID)
	if err != nil {
		return apperr.Transient(err)
	}
	if offerings > 0 {
		return nil
	}
	if st.AllowAdminAsProvider && emp.ProfileID != "" {
		role, err := q.GetMembershipRole(ctx, emp.BusinessID, emp.ProfileID)
		if err != nil && !storage.IsNotFound(err) {
			return apperr.Transient(err)
		}
		if role == auth.RoleOwner || role == auth.RoleAdmin {
			return nil
		}
	}
	return apperr.Forbidden(apperr.KeyEmployeeNotBookable)
}

func resolveCustomer(ctx context.Context, q storage.Queries, businessID, email, name, phone string) (model.Customer, error) {
	c, err := q.FindCustomerByEmail(ctx, businessID, email)
	if err == nil {
		return c, nil
	}
	if !storage.IsNotFound(err) {
		return model.Customer{}, apperr.Transient(err)
	}
	c = model.Customer{
		BusinessID: businessID,
		Email:      email,
		FullName:   name,
		Phone:      phone,
	}
	if err := q.CreateCustomer(ctx, &c); err != nil {
		return model.Customer{}, apperr.Transient(err)
	}
	return c, nil
}

func (s *Service) newClaimToken() (string, []byte, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, err
	}
	token := hex.EncodeToString(raw)
	hash, err := bcrypt.GenerateFromPassword([]byte(token), s.cfg.BcryptCost)
	if err != nil {
		return "", nil, err
	}
	return token, hash, nil
}

// Claim links the appointment's customer to the caller once the one-time
// token matches, has not expired and was not used before.
func (s *Service) Claim(ctx context.Context, scope auth.Scope, appointmentID, token string) (model.Appointment, error) {
	if strings.TrimSpace(appointmentID) == "" || strings.TrimSpace(token) == "" || scope.UserID == "" {
		return model.Appointment{}, apperr.Validation(apperr.KeyClaimInvalid, errors.New("appointment_id and claim_token are required"))
	}
	now := s.now()
	var appt model.Appointment
	err := s.store.InTx(ctx, func(q storage.Queries) error {
		ct, err := q.GetClaimToken(ctx, appointmentID)
		if err != nil {
			return lookupErr(err, apperr.KeyClaimNotFound)
		}
		if ct.ConsumedAt != nil || !now.Before(ct.ExpiresAt) {
			return apperr.Validation(apperr.KeyClaimInvalid, errors.New("claim token expired or used"))
		}
		if err := bcrypt.CompareHashAndPassword(ct.TokenHash, []byte(token)); err != nil {
			return apperr.Validation(apperr.KeyClaimInvalid, err)
		}
		if appt, err = q.GetAppointment(ctx, ct.BusinessID, appointmentID); err != nil {
			return lookupErr(err, apperr.KeyClaimNotFound)
		}
		if err := q.LinkCustomerUser(ctx, appt.CustomerID, scope.UserID); err != nil {
			return apperr.Transient(err)
		}
		if err := q.ConsumeClaimToken(ctx, appointmentID, now); err != nil {
			return apperr.Transient(err)
		}
		return nil
	})
	return appt, err
}

// lookupErr maps a missing (or inactive, err == nil) row to NotFound.
func lookupErr(err error, key string) error {
	if err == nil || storage.IsNotFound(err) {
		return apperr.NotFound(key)
	}
	return apperr.Transient(err)
}

func Intervals(appts []model.Appointment) []conflict.Interval {
	out := make([]conflict.Interval, 0, len(appts))
	for _, a := range appts {
		out = append(out, conflict.Interval{Start: a.StartAt, End: a.EndAt})
	}
	return out
}
