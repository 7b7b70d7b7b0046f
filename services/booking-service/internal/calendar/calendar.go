// Package calendar talks to the provider's external calendar: it reads busy intervals and
// mirrors confirmed reservations as events.
package calendar

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// Source returns opaque busy intervals overlapping [start, end).
type Source interface {
	BusyIntervals(ctx context.Context, provider model.Provider, start, end time.Time) ([]availability.Interval, error)
}

// Syncer mirrors reservations into the provider's calendar.
type Syncer interface {
	SyncReservation(ctx context.Context, provider model.Provider, offering model.Offering, r model.Reservation) error
	RemoveReservation(ctx context.Context, provider model.Provider, r model.Reservation) error
}

type Client interface {
	Source
	Syncer
}
