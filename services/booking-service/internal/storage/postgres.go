package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/bookingsync/libs/db"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/model"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Postgres struct {
	pool *db.Pool
}

func NewPostgres(pool *db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) InTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgQueries{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapErr(err)
	}
	return nil
}

func (p *Postgres) Read(ctx context.Context, fn func(q Queries) error) error {
	return fn(&pgQueries{db: p.pool})
}

type pgQueries struct {
	db dbtx
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23P01":
			return fmt.Errorf("%w: %s", ErrOverlap, pgErr.ConstraintName)
		case "23505":
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
		}
	}
	return err
}

func (q *pgQueries) GetSettings(ctx context.Context, businessID string) (model.Settings, error) {
	s := model.Settings{BusinessID: businessID}
	var legacy []byte
	err := q.db.QueryRow(ctx, `
		SELECT timezone, lead_time_minutes, max_days_ahead, slot_interval_minutes, allow_admin_as_provider, legacy_hours
		FROM business_settings
		WHERE business_id = $1
	`, businessID).Scan(&s.Timezone, &s.LeadTimeMinutes, &s.MaxDaysAhead, &s.SlotIntervalMinutes, &s.AllowAdminAsProvider, &legacy)
	if err != nil {
		return model.Settings{}, mapErr(err)
	}
	if len(legacy) > 0 {
		if err := json.Unmarshal(legacy, &s.LegacyHours); err != nil {
			return model.Settings{}, fmt.Errorf("decode legacy hours: %w", err)
		}
	}
	return s, nil
}

func (q *pgQueries) GetHoursSource(ctx context.Context, businessID string, from, to availability.Date) (availability.HoursSource, error) {
	rows, err := q.db.Query(ctx, `
		SELECT day_of_week, mode, start_minute, end_minute
		FROM business_hours
		WHERE business_id = $1
	`, businessID)
	if err != nil {
		return nil, err
	}
	var entries []availability.BusinessHours
	for rows.Next() {
		var e availability.BusinessHours
		var dow int16
		var mode string
		if err := rows.Scan(&dow, &mode, &e.Start, &e.End); err != nil {
			rows.Close()
			return nil, err
		}
		e.DayOfWeek = time.Weekday(dow)
		e.Mode = availability.Mode(mode)
		entries = append(entries, e)
	}
	rows.Close()
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	if len(entries) == 0 {
		s, err := q.GetSettings(ctx, businessID)
		if IsNotFound(err) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if len(s.LegacyHours) == 0 {
			return nil, nil
		}
		return s.LegacyHours, nil
	}

	orows, err := q.db.Query(ctx, `
		SELECT override_date, mode, start_minute, end_minute
		FROM date_overrides
		WHERE business_id = $1 AND override_date BETWEEN $2 AND $3
	`, businessID, from.String(), to.String())
	if err != nil {
		return nil, err
	}
	defer orows.Close()

	src := availability.StructuredHours{Entries: entries}
	for orows.Next() {
		var o availability.DateOverride
		var day time.Time
		var mode string
		if err := orows.Scan(&day, &mode, &o.Start, &o.End); err != nil {
			return nil, err
		}
		o.Date = availability.DateOf(day)
		o.Mode = availability.Mode(mode)
		src.Overrides = append(src.Overrides, o)
	}
	if orows.Err() != nil {
		return nil, orows.Err()
	}
	return src, nil
}

func (q *pgQueries) ListEmployeeSchedules(ctx context.Context, employeeID string) ([]availability.EmployeeSchedule, error) {
	rows, err := q.db.Query(ctx, `
		SELECT weekday, start_minute, end_minute, breaks
		FROM employee_schedules
		WHERE employee_id = $1
		ORDER BY weekday, start_minute
	`, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []availability.EmployeeSchedule
	for rows.Next() {
		sch := availability.EmployeeSchedule{EmployeeID: employeeID}
		var wd int16
		var breaksRaw []byte
		if err := rows.Scan(&wd, &sch.Start, &sch.End, &breaksRaw); err != nil {
			return nil, err
		}
		sch.Weekday = time.Weekday(wd)
		var breaks []struct {
			Start string `json:"start"`
			End   string `json:"end"`
		}
		if err := json.Unmarshal(breaksRaw, &breaks); err != nil {
			return nil, fmt.Errorf("decode breaks: %w", err)
		}
		for _, b := range breaks {
			s, err1 := availability.ParseClock(b.Start)
			e, err2 := availability.ParseClock(b.End)
			if err1 != nil || err2 != nil {
				continue
			}
			sch.Breaks = append(sch.Breaks, availability.MinuteRange{Start: s, End: e})
		}
		out = append(out, sch)
	}
	return out, rows.Err()
}

func (q *pgQueries) GetService(ctx context.Context, businessID, id string) (model.Service, error) {
	var s model.Service
	err := q.db.QueryRow(ctx, `
		SELECT id::text, business_id::text, name, duration_minutes, buffer_minutes, active
		FROM services
		WHERE id = $1 AND business_id = $2
	`, id, businessID).Scan(&s.ID, &s.BusinessID, &s.Name, &s.DurationMinutes, &s.BufferMinutes, &s.Active)
	return s, mapErr(err)
}

func (q *pgQueries) GetEmployee(ctx context.Context, businessID, id string) (model.Employee, error) {
	return q.scanEmployee(q.db.QueryRow(ctx, `
		SELECT id::text, business_id::text, name, active, COALESCE(profile_id::text, '')
		FROM employees
		WHERE id = $1 AND business_id = $2
	`, id, businessID))
}

func (q *pgQueries) GetEmployeeByProfile(ctx context.Context, businessID, profileID string) (model.Employee, error) {
	return q.scanEmployee(q.db.QueryRow(ctx, `
		SELECT id::text, business_id::text, name, active, COALESCE(profile_id::text, '')
		FROM employees
		WHERE business_id = $1 AND profile_id = $2
		LIMIT 1
	`, businessID, profileID))
}

func (q *pgQueries) scanEmployee(row pgx.Row) (model.Employee, error) {
	var e model.Employee
	err := row.Scan(&e.ID, &e.BusinessID, &e.Name, &e.Active, &e.ProfileID)
	return e, mapErr(err)
}

func (q *pgQueries) CountOfferings(ctx context.Context, employeeID string) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, `SELECT count(*) FROM service_offerings WHERE employee_id = $1`, employeeID).Scan(&n)
	return n, err
}

func (q *pgQueries) GetMembershipRole(ctx context.Context, businessID, profileID string) (string, error) {
	var role string
	err := q.db.QueryRow(ctx, `
		SELECT role FROM memberships WHERE business_id = $1 AND profile_id = $2
	`, businessID, profileID).Scan(&role)
	return role, mapErr(err)
}

const appointmentColumns = `a.id::text, a.business_id::text, a.customer_id::text, a.employee_id::text, a.service_id::text,
	a.start_at, a.end_at, a.status, a.created_at, a.updated_at`

func scanAppointment(row pgx.Row, extra ...any) (model.Appointment, error) {
	var a model.Appointment
	dest := append([]any{
		&a.ID, &a.BusinessID, &a.CustomerID, &a.EmployeeID, &a.ServiceID,
		&a.StartAt, &a.EndAt, &a.Status, &a.CreatedAt, &a.UpdatedAt,
	}, extra...)
	err := row.Scan(dest...)
	return a, err
}

func (q *pgQueries) ListEmployeeAppointments(ctx context.Context, employeeID string, from, to time.Time) ([]model.Appointment, error) {
	var fromArg, toArg *time.Time
	if !from.IsZero() {
		fromArg = &from
	}
	if !to.IsZero() {
		toArg = &to
	}
	rows, err := q.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.employee_id = $1
			AND a.status <> 'cancelled'
			AND ($2::timestamptz IS NULL OR a.end_at > $2)
			AND ($3::timestamptz IS NULL OR a.start_at < $3)
		ORDER BY a.start_at
	`, employeeID, fromArg, toArg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (q *pgQueries) ListAppointments(ctx context.Context, businessID, employeeID string, from, to time.Time) ([]model.Appointment, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+appointmentColumns+`, c.full_name
		FROM appointments a
		JOIN customers c ON c.id = a.customer_id
		WHERE a.business_id = $1
			AND ($2 = '' OR a.employee_id::text = $2)
			AND a.status <> 'cancelled'
			AND a.start_at >= $3
			AND a.start_at < $4
		ORDER BY a.start_at
	`, businessID, employeeID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		var name string
		a, err := scanAppointment(rows, &name)
		if err != nil {
			return nil, err
		}
		a.CustomerName = name
		out = append(out, a)
	}
	return out, rows.Err()
}

func (q *pgQueries) CountRecentBookings(ctx context.Context, businessID, email string, since time.Time) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN customers c ON c.id = a.customer_id
		WHERE a.business_id = $1 AND c.email = $2 AND a.created_at >= $3
	`, businessID, email, since).Scan(&n)
	return n, err
}

func (q *pgQueries) FindCustomerByEmail(ctx context.Context, businessID, email string) (model.Customer, error) {
	if email == "" {
		return model.Customer{}, ErrNotFound
	}
	return scanCustomer(q.db.QueryRow(ctx, `
		SELECT id::text, business_id::text, email, full_name, phone, COALESCE(user_id::text, ''), created_at
		FROM customers
		WHERE business_id = $1 AND email = $2
	`, businessID, email))
}

func (q *pgQueries) GetCustomer(ctx context.Context, businessID, id string) (model.Customer, error) {
	return scanCustomer(q.db.QueryRow(ctx, `
		SELECT id::text, business_id::text, email, full_name, phone, COALESCE(user_id::text, ''), created_at
		FROM customers
		WHERE business_id = $1 AND id = $2
	`, businessID, id))
}

func scanCustomer(row pgx.Row) (model.Customer, error) {
	var c model.Customer
	err := row.Scan(&c.ID, &c.BusinessID, &c.Email, &c.FullName, &c.Phone, &c.UserID, &c.CreatedAt)
	return c, mapErr(err)
}

func (q *pgQueries) CreateCustomer(ctx context.Context, c *model.Customer) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO customers (business_id, email, full_name, phone)
		VALUES ($1, $2, $3, $4)
		RETURNING id::text, created_at
	`, c.BusinessID, c.Email, c.FullName, c.Phone).Scan(&c.ID, &c.CreatedAt)
	return mapErr(err)
}

func (q *pgQueries) LinkCustomerUser(ctx context.Context, customerID, userID string) error {
	tag, err := q.db.Exec(ctx, `UPDATE customers SET user_id = $2 WHERE id = $1`, customerID, userID)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *pgQueries) CreateAppointment(ctx context.Context, a *model.Appointment) error {
	var id *string
	if a.ID != "" {
		id = &a.ID
	}
	err := q.db.QueryRow(ctx, `
		INSERT INTO appointments (id, business_id, customer_id, employee_id, service_id, start_at, end_at, status)
		VALUES (COALESCE($1::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8)
		RETURNING id::text, created_at, updated_at
	`, id, a.BusinessID, a.CustomerID, a.EmployeeID, a.ServiceID, a.StartAt, a.EndAt, a.Status).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	return mapErr(err)
}

func (q *pgQueries) GetAppointment(ctx context.Context, businessID, id string) (model.Appointment, error) {
	a, err := scanAppointment(q.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.id = $1 AND a.business_id = $2
		FOR UPDATE
	`, id, businessID))
	return a, mapErr(err)
}

func (q *pgQueries) UpdateAppointment(ctx context.Context, a *model.Appointment) error {
	err := q.db.QueryRow(ctx, `
		UPDATE appointments
		SET employee_id = $3,
			service_id = $4,
			start_at = $5,
			end_at = $6,
			status = $7,
			updated_at = now()
		WHERE id = $1 AND business_id = $2
		RETURNING updated_at
	`, a.ID, a.BusinessID, a.EmployeeID, a.ServiceID, a.StartAt, a.EndAt, a.Status).Scan(&a.UpdatedAt)
	return mapErr(err)
}

func (q *pgQueries) ReserveSyncKey(ctx context.Context, rec model.SyncDedupRecord) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		INSERT INTO sync_dedup (business_id, idempotency_key, action_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (business_id, idempotency_key) DO NOTHING
	`, rec.BusinessID, rec.IdempotencyKey, rec.ActionType)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (q *pgQueries) CreateClaimToken(ctx context.Context, t model.ClaimToken) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO claim_tokens (appointment_id, business_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
	`, t.AppointmentID, t.BusinessID, t.TokenHash, t.ExpiresAt)
	return mapErr(err)
}

func (q *pgQueries) GetClaimToken(ctx context.Context, appointmentID string) (model.ClaimToken, error) {
	var t model.ClaimToken
	err := q.db.QueryRow(ctx, `
		SELECT appointment_id::text, business_id::text, token_hash, expires_at, consumed_at
		FROM claim_tokens
		WHERE appointment_id = $1
		FOR UPDATE
	`, appointmentID).Scan(&t.AppointmentID, &t.BusinessID, &t.TokenHash, &t.ExpiresAt, &t.ConsumedAt)
	return t, mapErr(err)
}

func (q *pgQueries) ConsumeClaimToken(ctx context.Context, appointmentID string, at time.Time) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE claim_tokens SET consumed_at = $2
		WHERE appointment_id = $1 AND consumed_at IS NULL
	`, appointmentID, at)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
