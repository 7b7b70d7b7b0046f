package availability

import (
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/zone"
)

// SlotRequest is everything GenerateSlots needs. Now is explicit so results are deterministic.
type SlotRequest struct {
	Day           zone.Date
	RequestedZone *time.Location
	ProviderZone  *time.Location

	Duration  time.Duration
	Buffer    time.Duration
	MinNotice time.Duration

	Weekly []model.WeeklyRule
	// Overrides may cover any provider-local date; each replaces the weekly rule for its date.
	Overrides []model.DateOverride

	// Busy holds CONFIRMED reservations plus any de-duplicated external intervals.
	Busy     []Interval
	Capacity int
	Now      time.Time
}

type Slot struct {
	// Start is expressed in the requested zone.
	Start     time.Time
	Remaining int
}

// GenerateSlots walks the open window of every provider-local date overlapping the requested
// day in steps of Duration. A start is kept when it falls on the requested day in the requested
// zone, [start, start+Duration+Buffer) fits its window, minimum notice holds, and capacity remains.
func GenerateSlots(req SlotRequest) []Slot {
	if req.Duration <= 0 || req.Capacity <= 0 || req.Buffer < 0 {
		return nil
	}
	if req.RequestedZone == nil || req.ProviderZone == nil {
		return nil
	}

	earliest := req.Now.Add(req.MinNotice)
	day := RequestedDay(req.Day, req.RequestedZone)

	var slots []Slot
	for _, date := range ProviderDates(req.Day, req.RequestedZone, req.ProviderZone) {
		window, ok := ResolveWindow(date, req.Weekly, overrideFor(date, req.Overrides), req.ProviderZone)
		if !ok {
			continue
		}
		for t := window.Start; ; t = t.Add(req.Duration) {
			effectiveEnd := t.Add(req.Duration + req.Buffer)
			if effectiveEnd.After(window.End) || !t.Before(day.End) {
				break
			}
			if t.Before(day.Start) || t.Before(earliest) {
				continue
			}
			taken := CountOverlapping(Interval{Start: t, End: effectiveEnd}, req.Busy)
			if taken < req.Capacity {
				slots = append(slots, Slot{Start: t.In(req.RequestedZone), Remaining: req.Capacity - taken})
			}
		}
	}
	return slots
}
