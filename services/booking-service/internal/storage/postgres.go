package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// PostgresStore is the production store. Admission is serialized per provider with a
// transaction-scoped advisory lock, so count-then-insert is atomic for competing requests.
type PostgresStore struct {
	pool *db.Pool
}

func NewPostgresStore(pool *db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx}, nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	scripts, err := migrationScripts("postgres")
	if err != nil {
		return err
	}
	for i, script := range scripts {
		if _, err := s.pool.Exec(ctx, script); err != nil {
			return fmt.Errorf("apply postgres migration %d: %w", i+1, err)
		}
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return db.ReadyCheck(s.pool)(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) GetProvider(ctx context.Context, id string) (model.Provider, error) {
	var p model.Provider
	err := s.pool.QueryRow(ctx, `
		SELECT id, timezone, max_concurrent_clients, calendar_path
		FROM providers
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Timezone, &p.MaxConcurrentClients, &p.CalendarPath)
	if err != nil {
		return model.Provider{}, pgNotFound(err)
	}
	return p, nil
}

func (s *PostgresStore) UpsertProvider(ctx context.Context, p model.Provider) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO providers (id, timezone, max_concurrent_clients, calendar_path)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET timezone = EXCLUDED.timezone,
			max_concurrent_clients = EXCLUDED.max_concurrent_clients,
			calendar_path = EXCLUDED.calendar_path
	`, p.ID, p.Timezone, p.MaxConcurrentClients, p.CalendarPath)
	return err
}

func (s *PostgresStore) GetOffering(ctx context.Context, id string) (model.Offering, error) {
	var o model.Offering
	err := s.pool.QueryRow(ctx, `
		SELECT id, provider_id, name, duration_minutes, buffer_minutes, min_notice_minutes, capacity,
			recurrence_enabled, max_recurrence, concurrency_enabled, max_concurrency,
			requires_payment, price_minor, currency
		FROM offerings
		WHERE id = $1
	`, id).Scan(
		&o.ID,
		&o.ProviderID,
		&o.Name,
		&o.DurationMinutes,
		&o.BufferMinutes,
		&o.MinNoticeMinutes,
		&o.Capacity,
		&o.RecurrenceEnabled,
		&o.MaxRecurrence,
		&o.ConcurrencyEnabled,
		&o.MaxConcurrency,
		&o.RequiresPayment,
		&o.PriceMinor,
		&o.Currency,
	)
	if err != nil {
		return model.Offering{}, pgNotFound(err)
	}
	return o, nil
}

func (s *PostgresStore) UpsertOffering(ctx context.Context, o model.Offering) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO offerings
			(id, provider_id, name, duration_minutes, buffer_minutes, min_notice_minutes, capacity,
			 recurrence_enabled, max_recurrence, concurrency_enabled, max_concurrency,
			 requires_payment, price_minor, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE
		SET provider_id = EXCLUDED.provider_id,
			name = EXCLUDED.name,
			duration_minutes = EXCLUDED.duration_minutes,
			buffer_minutes = EXCLUDED.buffer_minutes,
			min_notice_minutes = EXCLUDED.min_notice_minutes,
			capacity = EXCLUDED.capacity,
			recurrence_enabled = EXCLUDED.recurrence_enabled,
			max_recurrence = EXCLUDED.max_recurrence,
			concurrency_enabled = EXCLUDED.concurrency_enabled,
			max_concurrency = EXCLUDED.max_concurrency,
			requires_payment = EXCLUDED.requires_payment,
			price_minor = EXCLUDED.price_minor,
			currency = EXCLUDED.currency
	`, o.ID, o.ProviderID, o.Name, o.DurationMinutes, o.BufferMinutes, o.MinNoticeMinutes, o.Capacity,
		o.RecurrenceEnabled, o.MaxRecurrence, o.ConcurrencyEnabled, o.MaxConcurrency,
		o.RequiresPayment, o.PriceMinor, o.Currency)
	return err
}

func (s *PostgresStore) ListWeeklyRules(ctx context.Context, providerID string) ([]model.WeeklyRule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT day_of_week, start_time, end_time
		FROM weekly_rules
		WHERE provider_id = $1
		ORDER BY day_of_week, start_time
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []model.WeeklyRule
	for rows.Next() {
		var r model.WeeklyRule
		if err := rows.Scan(&r.DayOfWeek, &r.StartTime, &r.EndTime); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *PostgresStore) ReplaceWeeklyRules(ctx context.Context, providerID string, rules []model.WeeklyRule) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM weekly_rules WHERE provider_id = $1`, providerID); err != nil {
		return err
	}
	for _, r := range rules {
		if _, err := tx.Exec(ctx, `
			INSERT INTO weekly_rules (provider_id, day_of_week, start_time, end_time)
			VALUES ($1, $2, $3, $4)
		`, providerID, r.DayOfWeek, r.StartTime, r.EndTime); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetOverride(ctx context.Context, providerID, date string) (*model.DateOverride, error) {
	o := model.DateOverride{ProviderID: providerID}
	err := s.pool.QueryRow(ctx, `
		SELECT date::text, is_available, start_time, end_time
		FROM date_overrides
		WHERE provider_id = $1 AND date = $2::date
	`, providerID, date).Scan(&o.Date, &o.IsAvailable, &o.StartTime, &o.EndTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *PostgresStore) UpsertOverride(ctx context.Context, o model.DateOverride) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO date_overrides (provider_id, date, is_available, start_time, end_time)
		VALUES ($1, $2::date, $3, $4, $5)
		ON CONFLICT (provider_id, date) DO UPDATE
		SET is_available = EXCLUDED.is_available,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time
	`, o.ProviderID, o.Date, o.IsAvailable, o.StartTime, o.EndTime)
	return err
}

func (s *PostgresStore) DeleteOverride(ctx context.Context, providerID, date string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM date_overrides WHERE provider_id = $1 AND date = $2::date`, providerID, date)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListConfirmed(ctx context.Context, scope Scope, start, end time.Time) ([]model.Reservation, error) {
	return pgListConfirmed(ctx, s.pool, scope, start, end)
}

func (s *PostgresStore) GetReservation(ctx context.Context, id string) (model.Reservation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Reservation{}, ErrNotFound
	}
	rows, err := s.pool.Query(ctx, `SELECT `+pgReservationColumns+` FROM reservations WHERE id = $1`, id)
	if err != nil {
		return model.Reservation{}, err
	}
	return pgOneReservation(rows)
}

func (s *PostgresStore) ListByProvider(ctx context.Context, providerID string, limit int) ([]model.Reservation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+pgReservationColumns+`
		FROM reservations
		WHERE provider_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, providerID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return pgScanReservations(rows)
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Commit(ctx context.Context) error { return t.tx.Commit(ctx) }
func (t *pgTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

func (t *pgTx) LockProvider(ctx context.Context, providerID string) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "provider:"+providerID)
	return err
}

func (t *pgTx) ListConfirmed(ctx context.Context, scope Scope, start, end time.Time) ([]model.Reservation, error) {
	return pgListConfirmed(ctx, t.tx, scope, start, end)
}

func (t *pgTx) CountConfirmedAt(ctx context.Context, offeringID string, start time.Time, excludeID string) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `
		SELECT count(*)
		FROM reservations
		WHERE offering_id = $1
			AND start_time = $2
			AND status = 'CONFIRMED'
			AND ($3 = '' OR id::text <> $3)
	`, offeringID, start, excludeID).Scan(&n)
	return n, err
}

func (t *pgTx) InsertReservations(ctx context.Context, rs []model.Reservation) error {
	for _, r := range rs {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO reservations
				(id, offering_id, provider_id, start_time, end_time, status, payment_status, payment_handle,
				 recurrence_group_id, client_name, client_email, client_phone, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, '')::uuid, $10, $11, $12, $13, $14)
		`, r.ID, r.OfferingID, r.ProviderID, r.StartTime, r.EndTime, string(r.Status), string(r.PaymentStatus), r.PaymentHandle,
			r.RecurrenceGroupID, r.Client.Name, r.Client.Email, r.Client.Phone, r.CreatedAt, r.UpdatedAt)
		if err != nil {
			if isPgUniqueViolation(err) {
				return fmt.Errorf("insert reservation: %w", ErrDuplicate)
			}
			return err
		}
	}
	return nil
}

func (t *pgTx) GetReservationForUpdate(ctx context.Context, id string) (model.Reservation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Reservation{}, ErrNotFound
	}
	rows, err := t.tx.Query(ctx, `SELECT `+pgReservationColumns+` FROM reservations WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return model.Reservation{}, err
	}
	return pgOneReservation(rows)
}

func (t *pgTx) UpdateReservationTimes(ctx context.Context, id string, start, end, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE reservations
		SET start_time = $2, end_time = $3, updated_at = $4
		WHERE id = $1
	`, id, start, end, at)
	if err != nil {
		if isPgUniqueViolation(err) {
			return fmt.Errorf("update reservation: %w", ErrDuplicate)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) CancelReservation(ctx context.Context, id string, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE reservations
		SET status = 'CANCELLED', cancelled_at = $2, updated_at = $2
		WHERE id = $1
	`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) ListByPaymentHandle(ctx context.Context, handle string) ([]model.Reservation, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+pgReservationColumns+`
		FROM reservations
		WHERE payment_handle = $1
		ORDER BY start_time
	`, handle)
	if err != nil {
		return nil, err
	}
	return pgScanReservations(rows)
}

const pgReservationColumns = `id::text, offering_id, provider_id, start_time, end_time, status, payment_status,
	payment_handle, COALESCE(recurrence_group_id::text, ''), client_name, client_email, client_phone,
	created_at, updated_at, cancelled_at`

func pgListConfirmed(ctx context.Context, q pgQuerier, scope Scope, start, end time.Time) ([]model.Reservation, error) {
	var clause, key string
	switch {
	case scope.SharedOnly && scope.ProviderID != "":
		clause = `provider_id = $4 AND EXISTS (
			SELECT 1 FROM offerings o WHERE o.id = reservations.offering_id AND NOT o.concurrency_enabled)`
		key = scope.ProviderID
	case scope.OfferingID != "":
		clause = `offering_id = $4`
		key = scope.OfferingID
	default:
		return nil, errors.New("storage: empty scope")
	}

	rows, err := q.Query(ctx, `
		SELECT `+pgReservationColumns+`
		FROM reservations
		WHERE status = 'CONFIRMED'
			AND start_time < $1
			AND end_time > $2
			AND ($3 = '' OR id::text <> $3)
			AND `+clause+`
		ORDER BY start_time
	`, end, start, scope.ExcludeID, key)
	if err != nil {
		return nil, err
	}
	return pgScanReservations(rows)
}

func pgScanReservations(rows pgx.Rows) ([]model.Reservation, error) {
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		var (
			r           model.Reservation
			status, pay string
			cancelledAt *time.Time
		)
		if err := rows.Scan(
			&r.ID,
			&r.OfferingID,
			&r.ProviderID,
			&r.StartTime,
			&r.EndTime,
			&status,
			&pay,
			&r.PaymentHandle,
			&r.RecurrenceGroupID,
			&r.Client.Name,
			&r.Client.Email,
			&r.Client.Phone,
			&r.CreatedAt,
			&r.UpdatedAt,
			&cancelledAt,
		); err != nil {
			return nil, err
		}
		r.Status = model.Status(status)
		r.PaymentStatus = model.PaymentStatus(pay)
		r.StartTime = r.StartTime.UTC()
		r.EndTime = r.EndTime.UTC()
		if cancelledAt != nil {
			c := cancelledAt.UTC()
			r.CancelledAt = &c
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func pgOneReservation(rows pgx.Rows) (model.Reservation, error) {
	rs, err := pgScanReservations(rows)
	if err != nil {
		return model.Reservation{}, err
	}
	if len(rs) == 0 {
		return model.Reservation{}, ErrNotFound
	}
	return rs[0], nil
}

func pgNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
