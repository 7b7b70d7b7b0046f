package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteStore backs local mode and tests. The connection pool holds one connection,
// so an open Tx excludes every other statement and admission is serialized.
type SQLiteStore struct {
	conn *sql.DB
}

func NewSQLiteStore(conn *sql.DB) *SQLiteStore {
	return &SQLiteStore{conn: conn}
}

type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	scripts, err := migrationScripts("sqlite")
	if err != nil {
		return err
	}
	for i, script := range scripts {
		if _, err := s.conn.ExecContext(ctx, script); err != nil {
			return fmt.Errorf("apply sqlite migration %d: %w", i+1, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return db.SQLiteReadyCheck(s.conn)(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

func (s *SQLiteStore) GetProvider(ctx context.Context, id string) (model.Provider, error) {
	var p model.Provider
	err := s.conn.QueryRowContext(ctx, `
		SELECT id, timezone, max_concurrent_clients, calendar_path
		FROM providers
		WHERE id = ?
	`, id).Scan(&p.ID, &p.Timezone, &p.MaxConcurrentClients, &p.CalendarPath)
	if err != nil {
		return model.Provider{}, sqlNotFound(err)
	}
	return p, nil
}

func (s *SQLiteStore) UpsertProvider(ctx context.Context, p model.Provider) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO providers (id, timezone, max_concurrent_clients, calendar_path)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET timezone = excluded.timezone,
			max_concurrent_clients = excluded.max_concurrent_clients,
			calendar_path = excluded.calendar_path
	`, p.ID, p.Timezone, p.MaxConcurrentClients, p.CalendarPath)
	return err
}

func (s *SQLiteStore) GetOffering(ctx context.Context, id string) (model.Offering, error) {
	var (
		o                                 model.Offering
		recurrence, concurrency, needsPay int
	)
	err := s.conn.QueryRowContext(ctx, `
		SELECT id, provider_id, name, duration_minutes, buffer_minutes, min_notice_minutes, capacity,
			recurrence_enabled, max_recurrence, concurrency_enabled, max_concurrency,
			requires_payment, price_minor, currency
		FROM offerings
		WHERE id = ?
	`, id).Scan(
		&o.ID,
		&o.ProviderID,
		&o.Name,
		&o.DurationMinutes,
		&o.BufferMinutes,
		&o.MinNoticeMinutes,
		&o.Capacity,
		&recurrence,
		&o.MaxRecurrence,
		&concurrency,
		&o.MaxConcurrency,
		&needsPay,
		&o.PriceMinor,
		&o.Currency,
	)
	if err != nil {
		return model.Offering{}, sqlNotFound(err)
	}
	o.RecurrenceEnabled = recurrence != 0
	o.ConcurrencyEnabled = concurrency != 0
	o.RequiresPayment = needsPay != 0
	return o, nil
}

func (s *SQLiteStore) UpsertOffering(ctx context.Context, o model.Offering) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO offerings
			(id, provider_id, name, duration_minutes, buffer_minutes, min_notice_minutes, capacity,
			 recurrence_enabled, max_recurrence, concurrency_enabled, max_concurrency,
			 requires_payment, price_minor, currency)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET provider_id = excluded.provider_id,
			name = excluded.name,
			duration_minutes = excluded.duration_minutes,
			buffer_minutes = excluded.buffer_minutes,
			min_notice_minutes = excluded.min_notice_minutes,
			capacity = excluded.capacity,
			recurrence_enabled = excluded.recurrence_enabled,
			max_recurrence = excluded.max_recurrence,
			concurrency_enabled = excluded.concurrency_enabled,
			max_concurrency = excluded.max_concurrency,
			requires_payment = excluded.requires_payment,
			price_minor = excluded.price_minor,
			currency = excluded.currency
	`, o.ID, o.ProviderID, o.Name, o.DurationMinutes, o.BufferMinutes, o.MinNoticeMinutes, o.Capacity,
		boolInt(o.RecurrenceEnabled), o.MaxRecurrence, boolInt(o.ConcurrencyEnabled), o.MaxConcurrency,
		boolInt(o.RequiresPayment), o.PriceMinor, o.Currency)
	return err
}

func (s *SQLiteStore) ListWeeklyRules(ctx context.Context, providerID string) ([]model.WeeklyRule, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT day_of_week, start_time, end_time
		FROM weekly_rules
		WHERE provider_id = ?
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

func (s *SQLiteStore) ReplaceWeeklyRules(ctx context.Context, providerID string, rules []model.WeeklyRule) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM weekly_rules WHERE provider_id = ?`, providerID); err != nil {
		return err
	}
	for _, r := range rules {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO weekly_rules (provider_id, day_of_week, start_time, end_time)
			VALUES (?, ?, ?, ?)
		`, providerID, r.DayOfWeek, r.StartTime, r.EndTime); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetOverride(ctx context.Context, providerID, date string) (*model.DateOverride, error) {
	o := model.DateOverride{ProviderID: providerID}
	var available int
	err := s.conn.QueryRowContext(ctx, `
		SELECT date, is_available, start_time, end_time
		FROM date_overrides
		WHERE provider_id = ? AND date = ?
	`, providerID, date).Scan(&o.Date, &available, &o.StartTime, &o.EndTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	o.IsAvailable = available != 0
	return &o, nil
}

func (s *SQLiteStore) UpsertOverride(ctx context.Context, o model.DateOverride) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO date_overrides (provider_id, date, is_available, start_time, end_time)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (provider_id, date) DO UPDATE
		SET is_available = excluded.is_available,
			start_time = excluded.start_time,
			end_time = excluded.end_time
	`, o.ProviderID, o.Date, boolInt(o.IsAvailable), o.StartTime, o.EndTime)
	return err
}

func (s *SQLiteStore) DeleteOverride(ctx context.Context, providerID, date string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM date_overrides WHERE provider_id = ? AND date = ?`, providerID, date)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *SQLiteStore) ListConfirmed(ctx context.Context, scope Scope, start, end time.Time) ([]model.Reservation, error) {
	return sqliteListConfirmed(ctx, s.conn, scope, start, end)
}

func (s *SQLiteStore) GetReservation(ctx context.Context, id string) (model.Reservation, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT `+sqliteReservationColumns+` FROM reservations WHERE id = ?`, id)
	if err != nil {
		return model.Reservation{}, err
	}
	return sqliteOneReservation(rows)
}

func (s *SQLiteStore) ListByProvider(ctx context.Context, providerID string, limit int) ([]model.Reservation, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+sqliteReservationColumns+`
		FROM reservations
		WHERE provider_id = ?
		ORDER BY start_time DESC
		LIMIT ?
	`, providerID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return sqliteScanReservations(rows)
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Commit(context.Context) error { return t.tx.Commit() }

func (t *sqliteTx) Rollback(context.Context) error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// LockProvider is a no-op: the single pooled connection already serializes transactions.
func (t *sqliteTx) LockProvider(context.Context, string) error { return nil }

func (t *sqliteTx) ListConfirmed(ctx context.Context, scope Scope, start, end time.Time) ([]model.Reservation, error) {
	return sqliteListConfirmed(ctx, t.tx, scope, start, end)
}

func (t *sqliteTx) CountConfirmedAt(ctx context.Context, offeringID string, start time.Time, excludeID string) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `
		SELECT count(*)
		FROM reservations
		WHERE offering_id = ?
			AND start_time = ?
			AND status = 'CONFIRMED'
			AND (? = '' OR id <> ?)
	`, offeringID, start.Unix(), excludeID, excludeID).Scan(&n)
	return n, err
}

func (t *sqliteTx) InsertReservations(ctx context.Context, rs []model.Reservation) error {
	for _, r := range rs {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO reservations
				(id, offering_id, provider_id, start_time, end_time, status, payment_status, payment_handle,
				 recurrence_group_id, client_name, client_email, client_phone, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, r.ID, r.OfferingID, r.ProviderID, r.StartTime.Unix(), r.EndTime.Unix(), string(r.Status), string(r.PaymentStatus),
			r.PaymentHandle, r.RecurrenceGroupID, r.Client.Name, r.Client.Email, r.Client.Phone,
			r.CreatedAt.Unix(), r.UpdatedAt.Unix())
		if err != nil {
			if isSQLiteUniqueViolation(err) {
				return fmt.Errorf("insert reservation: %w", ErrDuplicate)
			}
			return err
		}
	}
	return nil
}

func (t *sqliteTx) GetReservationForUpdate(ctx context.Context, id string) (model.Reservation, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+sqliteReservationColumns+` FROM reservations WHERE id = ?`, id)
	if err != nil {
		return model.Reservation{}, err
	}
	return sqliteOneReservation(rows)
}

func (t *sqliteTx) UpdateReservationTimes(ctx context.Context, id string, start, end, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE reservations
		SET start_time = ?, end_time = ?, updated_at = ?
		WHERE id = ?
	`, start.Unix(), end.Unix(), at.Unix(), id)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return fmt.Errorf("update reservation: %w", ErrDuplicate)
		}
		return err
	}
	return requireAffected(res)
}

func (t *sqliteTx) CancelReservation(ctx context.Context, id string, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE reservations
		SET status = 'CANCELLED', cancelled_at = ?, updated_at = ?
		WHERE id = ?
	`, at.Unix(), at.Unix(), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (t *sqliteTx) ListByPaymentHandle(ctx context.Context, handle string) ([]model.Reservation, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+sqliteReservationColumns+`
		FROM reservations
		WHERE payment_handle = ?
		ORDER BY start_time
	`, handle)
	if err != nil {
		return nil, err
	}
	return sqliteScanReservations(rows)
}

const sqliteReservationColumns = `id, offering_id, provider_id, start_time, end_time, status, payment_status,
	payment_handle, recurrence_group_id, client_name, client_email, client_phone,
	created_at, updated_at, cancelled_at`

func sqliteListConfirmed(ctx context.Context, q sqlQuerier, scope Scope, start, end time.Time) ([]model.Reservation, error) {
	var clause, key string
	switch {
	case scope.SharedOnly && scope.ProviderID != "":
		clause = `provider_id = ? AND EXISTS (
			SELECT 1 FROM offerings o WHERE o.id = reservations.offering_id AND o.concurrency_enabled = 0)`
		key = scope.ProviderID
	case scope.OfferingID != "":
		clause = `offering_id = ?`
		key = scope.OfferingID
	default:
		return nil, errors.New("storage: empty scope")
	}

	rows, err := q.QueryContext(ctx, `
		SELECT `+sqliteReservationColumns+`
		FROM reservations
		WHERE status = 'CONFIRMED'
			AND start_time < ?
			AND end_time > ?
			AND (? = '' OR id <> ?)
			AND `+clause+`
		ORDER BY start_time
	`, end.Unix(), start.Unix(), scope.ExcludeID, scope.ExcludeID, key)
	if err != nil {
		return nil, err
	}
	return sqliteScanReservations(rows)
}

func sqliteScanReservations(rows *sql.Rows) ([]model.Reservation, error) {
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		var (
			r                            model.Reservation
			status, pay                  string
			start, end, created, updated int64
			cancelledAt                  sql.NullInt64
		)
		if err := rows.Scan(
			&r.ID,
			&r.OfferingID,
			&r.ProviderID,
			&start,
			&end,
			&status,
			&pay,
			&r.PaymentHandle,
			&r.RecurrenceGroupID,
			&r.Client.Name,
			&r.Client.Email,
			&r.Client.Phone,
			&created,
			&updated,
			&cancelledAt,
		); err != nil {
			return nil, err
		}
		r.Status = model.Status(status)
		r.PaymentStatus = model.PaymentStatus(pay)
		r.StartTime = time.Unix(start, 0).UTC()
		r.EndTime = time.Unix(end, 0).UTC()
		r.CreatedAt = time.Unix(created, 0).UTC()
		r.UpdatedAt = time.Unix(updated, 0).UTC()
		if cancelledAt.Valid {
			c := time.Unix(cancelledAt.Int64, 0).UTC()
			r.CancelledAt = &c
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func sqliteOneReservation(rows *sql.Rows) (model.Reservation, error) {
	rs, err := sqliteScanReservations(rows)
	if err != nil {
		return model.Reservation{}, err
	}
	if len(rs) == 0 {
		return model.Reservation{}, ErrNotFound
	}
	return rs[0], nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func sqlNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func isSQLiteUniqueViolation(err error) bool {
	var sqErr *sqlite.Error
	if !errors.As(err, &sqErr) {
		return false
	}
	switch sqErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(sqErr.Error(), "UNIQUE")
	}
	return false
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
