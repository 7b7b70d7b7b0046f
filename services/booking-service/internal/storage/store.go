package storage

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert hits a unique index, e.g. a payment handle
	// that already produced its reservation set.
	ErrDuplicate = errors.New("duplicate")
)

// Scope selects the reservations that compete with an offering.
//   - OfferingID set, SharedOnly false: that offering only (isolated pool).
//   - ProviderID set, SharedOnly true: every offering of the provider with concurrency disabled (shared pool).
type Scope struct {
	OfferingID string
	ProviderID string
	SharedOnly bool
	// ExcludeID drops one reservation from the result; used when moving a booking.
	ExcludeID string
}

// Store is the non-transactional surface. Implementations must not be used while the
// caller holds an open Tx on the same goroutine (the SQLite store has a single connection).
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error

	GetProvider(ctx context.Context, id string) (model.Provider, error)
	UpsertProvider(ctx context.Context, p model.Provider) error
	GetOffering(ctx context.Context, id string) (model.Offering, error)
	UpsertOffering(ctx context.Context, o model.Offering) error

	ListWeeklyRules(ctx context.Context, providerID string) ([]model.WeeklyRule, error)
	// ReplaceWeeklyRules deletes every rule of the provider and inserts rules, atomically.
	ReplaceWeeklyRules(ctx context.Context, providerID string, rules []model.WeeklyRule) error
	// GetOverride returns nil, nil when no override exists for date ("YYYY-MM-DD").
	GetOverride(ctx context.Context, providerID, date string) (*model.DateOverride, error)
	UpsertOverride(ctx context.Context, o model.DateOverride) error
	DeleteOverride(ctx context.Context, providerID, date string) error

	// ListConfirmed returns CONFIRMED reservations in scope overlapping [start, end).
	ListConfirmed(ctx context.Context, scope Scope, start, end time.Time) ([]model.Reservation, error)
	GetReservation(ctx context.Context, id string) (model.Reservation, error)
	ListByProvider(ctx context.Context, providerID string, limit int) ([]model.Reservation, error)
}

// Tx is the admission boundary: lock, re-count, write, commit.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// LockProvider serializes admission for one provider until the transaction ends.
	LockProvider(ctx context.Context, providerID string) error
	ListConfirmed(ctx context.Context, scope Scope, start, end time.Time) ([]model.Reservation, error)
	// CountConfirmedAt counts CONFIRMED reservations of an offering starting exactly at start.
	CountConfirmedAt(ctx context.Context, offeringID string, start time.Time, excludeID string) (int, error)
	InsertReservations(ctx context.Context, rs []model.Reservation) error
	GetReservationForUpdate(ctx context.Context, id string) (model.Reservation, error)
	UpdateReservationTimes(ctx context.Context, id string, start, end, at time.Time) error
	CancelReservation(ctx context.Context, id string, at time.Time) error
	ListByPaymentHandle(ctx context.Context, handle string) ([]model.Reservation, error)
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
