// Package capacity decides which pool a booking competes in and how much of it is left.
package capacity

import (
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

type Kind string

const (
	// Isolated pools belong to one offering (dedicated staff or equipment).
	Isolated Kind = "isolated"
	// Shared pools are the provider's own time, summed over every non-isolated offering.
	Shared Kind = "shared"
)

type Pool struct {
	Kind       Kind
	Capacity   int
	OfferingID string
	ProviderID string
}

// Resolve is pure: the same offering and provider always give the same pool,
// whether called for enumeration or at commit time.
func Resolve(o model.Offering, p model.Provider) Pool {
	if o.ConcurrencyEnabled {
		return Pool{Kind: Isolated, Capacity: nonNegative(o.MaxConcurrency), OfferingID: o.ID, ProviderID: o.ProviderID}
	}
	return Pool{Kind: Shared, Capacity: nonNegative(p.MaxConcurrentClients), OfferingID: o.ID, ProviderID: o.ProviderID}
}

// CountsExternalBusy reports whether the provider's external calendar consumes this pool.
func (p Pool) CountsExternalBusy() bool {
	return p.Kind == Shared
}

// Occupancy counts busy intervals overlapping window. Callers pass only CONFIRMED
// reservations already filtered to this pool.
func (p Pool) Occupancy(window availability.Interval, busy []availability.Interval) int {
	return availability.CountOverlapping(window, busy)
}

func (p Pool) Remaining(occupied int) int {
	if r := p.Capacity - occupied; r > 0 {
		return r
	}
	return 0
}

func (p Pool) Admits(occupied int) bool {
	return occupied < p.Capacity
}

// GroupAdmits applies the per-start-time group limit (e.g. seats in a class).
func GroupAdmits(o model.Offering, confirmedAtStart int) bool {
	return confirmedAtStart < o.Capacity
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
