package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "slotbook.db"))
	require.NoError(t, err)

	s := NewSQLiteStore(conn)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	// Migrations are idempotent.
	require.NoError(t, s.Migrate(ctx))

	require.NoError(t, s.UpsertProvider(ctx, model.Provider{ID: "prov", Timezone: "America/New_York", MaxConcurrentClients: 1}))
	require.NoError(t, s.UpsertOffering(ctx, model.Offering{ID: "consult", ProviderID: "prov", Name: "Consult", DurationMinutes: 30, Capacity: 1, Currency: "usd"}))
	require.NoError(t, s.UpsertOffering(ctx, model.Offering{ID: "group", ProviderID: "prov", Name: "Group", DurationMinutes: 30, Capacity: 5,
		ConcurrencyEnabled: true, MaxConcurrency: 2, RecurrenceEnabled: true, MaxRecurrence: 4, RequiresPayment: true, PriceMinor: 2500, Currency: "usd"}))
	return s
}

func reservation(offeringID string, start time.Time) model.Reservation {
	now := time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC)
	return model.Reservation{
		ID:            uuid.NewString(),
		OfferingID:    offeringID,
		ProviderID:    "prov",
		StartTime:     start,
		EndTime:       start.Add(30 * time.Minute),
		Status:        model.StatusConfirmed,
		PaymentStatus: model.PaymentPending,
		Client:        model.Client{Name: "Ada", Email: "ada@example.com"},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func insert(t *testing.T, s *SQLiteStore, rs ...model.Reservation) {
	t.Helper()
	ctx := context.Background()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()
	require.NoError(t, tx.InsertReservations(ctx, rs))
	require.NoError(t, tx.Commit(ctx))
}

func TestSQLiteStore_ProvidersAndOfferings(t *testing.T) {
	s := setupSQLiteStore(t)
	ctx := context.Background()

	p, err := s.GetProvider(ctx, "prov")
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", p.Timezone)
	assert.Equal(t, 1, p.MaxConcurrentClients)

	o, err := s.GetOffering(ctx, "group")
	require.NoError(t, err)
	assert.True(t, o.ConcurrencyEnabled)
	assert.True(t, o.RecurrenceEnabled)
	assert.True(t, o.RequiresPayment)
	assert.Equal(t, 2, o.MaxConcurrency)
	assert.Equal(t, int64(2500), o.PriceMinor)

	_, err = s.GetOffering(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetProvider(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_WeeklyRulesAndOverrides(t *testing.T) {
	s := setupSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceWeeklyRules(ctx, "prov", []model.WeeklyRule{
		{DayOfWeek: 1, StartTime: "09:00", EndTime: "17:00"},
		{DayOfWeek: 2, StartTime: "10:00", EndTime: "12:00"},
	}))
	require.NoError(t, s.ReplaceWeeklyRules(ctx, "prov", []model.WeeklyRule{
		{DayOfWeek: 3, StartTime: "08:00", EndTime: "12:00"},
	}))
	rules, err := s.ListWeeklyRules(ctx, "prov")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, 3, rules[0].DayOfWeek)

	o, err := s.GetOverride(ctx, "prov", "2026-02-02")
	require.NoError(t, err)
	assert.Nil(t, o)

	require.NoError(t, s.UpsertOverride(ctx, model.DateOverride{ProviderID: "prov", Date: "2026-02-02", IsAvailable: false}))
	require.NoError(t, s.UpsertOverride(ctx, model.DateOverride{ProviderID: "prov", Date: "2026-02-02", IsAvailable: true, StartTime: "13:00", EndTime: "15:00"}))
	o, err = s.GetOverride(ctx, "prov", "2026-02-02")
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.True(t, o.IsAvailable)
	assert.Equal(t, "13:00", o.StartTime)

	require.NoError(t, s.DeleteOverride(ctx, "prov", "2026-02-02"))
	assert.ErrorIs(t, s.DeleteOverride(ctx, "prov", "2026-02-02"), ErrNotFound)
}

func TestSQLiteStore_ListConfirmedScopes(t *testing.T) {
	s := setupSQLiteStore(t)
	ctx := context.Background()
	ten := time.Date(2026, 2, 2, 15, 0, 0, 0, time.UTC)

	shared := reservation("consult", ten)
	isolated := reservation("group", ten)
	later := reservation("consult", ten.Add(2*time.Hour))
	insert(t, s, shared, isolated, later)

	window := [2]time.Time{ten, ten.Add(30 * time.Minute)}

	got, err := s.ListConfirmed(ctx, Scope{ProviderID: "prov", SharedOnly: true}, window[0], window[1])
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, shared.ID, got[0].ID)
	assert.True(t, got[0].StartTime.Equal(ten))

	got, err = s.ListConfirmed(ctx, Scope{OfferingID: "group"}, window[0], window[1])
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, isolated.ID, got[0].ID)

	got, err = s.ListConfirmed(ctx, Scope{OfferingID: "consult", ExcludeID: shared.ID}, window[0], window[1])
	require.NoError(t, err)
	assert.Empty(t, got)

	// Touching intervals do not overlap.
	got, err = s.ListConfirmed(ctx, Scope{OfferingID: "consult"}, ten.Add(30*time.Minute), ten.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = s.ListConfirmed(ctx, Scope{}, window[0], window[1])
	assert.Error(t, err)
}

func TestSQLiteStore_TxLifecycle(t *testing.T) {
	s := setupSQLiteStore(t)
	ctx := context.Background()
	ten := time.Date(2026, 2, 2, 15, 0, 0, 0, time.UTC)
	r := reservation("consult", ten)
	insert(t, s, r)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.LockProvider(ctx, "prov"))

	n, err := tx.CountConfirmedAt(ctx, "consult", ten, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = tx.CountConfirmedAt(ctx, "consult", ten, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	moved := ten.Add(time.Hour)
	at := ten.Add(-24 * time.Hour)
	require.NoError(t, tx.UpdateReservationTimes(ctx, r.ID, moved, moved.Add(30*time.Minute), at))
	require.NoError(t, tx.Commit(ctx))

	got, err := s.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, got.StartTime.Equal(moved))
	assert.Equal(t, model.StatusConfirmed, got.Status)

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CancelReservation(ctx, r.ID, at))
	require.NoError(t, tx.Commit(ctx))

	got, err = s.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
	require.NotNil(t, got.CancelledAt)

	confirmed, err := s.ListConfirmed(ctx, Scope{OfferingID: "consult"}, moved, moved.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, confirmed)

	_, err = s.GetReservation(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_RollbackDiscardsAllRows(t *testing.T) {
	s := setupSQLiteStore(t)
	ctx := context.Background()
	ten := time.Date(2026, 2, 2, 15, 0, 0, 0, time.UTC)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertReservations(ctx, []model.Reservation{
		reservation("consult", ten),
		reservation("consult", ten.Add(7*24*time.Hour)),
	}))
	require.NoError(t, tx.Rollback(ctx))

	all, err := s.ListByProvider(ctx, "prov", 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSQLiteStore_PaymentHandleIsUnique(t *testing.T) {
	s := setupSQLiteStore(t)
	ctx := context.Background()
	ten := time.Date(2026, 2, 2, 15, 0, 0, 0, time.UTC)

	first := reservation("group", ten)
	first.PaymentHandle = "pi_123"
	first.PaymentStatus = model.PaymentPaid
	insert(t, s, first)

	dup := reservation("group", ten)
	dup.PaymentHandle = "pi_123"
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	err = tx.InsertReservations(ctx, []model.Reservation{dup})
	assert.ErrorIs(t, err, ErrDuplicate)
	require.NoError(t, tx.Rollback(ctx))

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()
	got, err := tx.ListByPaymentHandle(ctx, "pi_123")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.PaymentPaid, got[0].PaymentStatus)
}

func TestSQLiteStore_ListByProviderNewestFirst(t *testing.T) {
	s := setupSQLiteStore(t)
	ctx := context.Background()
	ten := time.Date(2026, 2, 2, 15, 0, 0, 0, time.UTC)
	insert(t, s, reservation("consult", ten), reservation("consult", ten.Add(24*time.Hour)))

	got, err := s.ListByProvider(ctx, "prov", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].StartTime.After(got[1].StartTime))

	got, err = s.ListByProvider(ctx, "prov", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
