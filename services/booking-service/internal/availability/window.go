package availability

import (
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/zone"
)

// ResolveWindow returns the open window for a provider-local date. An override for the date
// fully supersedes the weekly rule: closed overrides and open overrides without explicit times
// both yield no window.
func ResolveWindow(date zone.Date, weekly []model.WeeklyRule, override *model.DateOverride, providerLoc *time.Location) (Interval, bool) {
	var startRaw, endRaw string
	switch {
	case override != nil:
		if !override.IsAvailable || override.StartTime == "" || override.EndTime == "" {
			return Interval{}, false
		}
		startRaw, endRaw = override.StartTime, override.EndTime
	default:
		rule, ok := ruleFor(date.Weekday(), weekly)
		if !ok {
			return Interval{}, false
		}
		startRaw, endRaw = rule.StartTime, rule.EndTime
	}

	start, err := zone.ParseClock(startRaw)
	if err != nil {
		return Interval{}, false
	}
	end, err := zone.ParseClock(endRaw)
	if err != nil {
		return Interval{}, false
	}
	w := Interval{
		Start: zone.InstantAt(date, start, providerLoc),
		End:   zone.InstantAt(date, end, providerLoc),
	}
	if !w.End.After(w.Start) {
		return Interval{}, false
	}
	return w, true
}

func ruleFor(day time.Weekday, weekly []model.WeeklyRule) (model.WeeklyRule, bool) {
	for _, r := range weekly {
		if r.DayOfWeek == int(day) {
			return r, true
		}
	}
	return model.WeeklyRule{}, false
}

// RequestedDay is [00:00 day, 00:00 next day) in the requested zone.
func RequestedDay(day zone.Date, requestedLoc *time.Location) Interval {
	return Interval{Start: zone.DayStart(day, requestedLoc), End: zone.DayStart(day.AddDate(0, 0, 1), requestedLoc)}
}

// ProviderDates lists, in order, every provider-local date that overlaps the requested day.
// Zones more than a few hours apart yield two dates.
func ProviderDates(day zone.Date, requestedLoc, providerLoc *time.Location) []zone.Date {
	span := RequestedDay(day, requestedLoc)
	first := zone.LocalDate(span.Start, providerLoc)
	last := zone.LocalDate(span.End.Add(-time.Nanosecond), providerLoc)
	dates := []zone.Date{first}
	for d := first.AddDate(0, 0, 1); !last.Before(d); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

func overrideFor(date zone.Date, overrides []model.DateOverride) *model.DateOverride {
	key := date.String()
	for i := range overrides {
		if overrides[i].Date == key {
			return &overrides[i]
		}
	}
	return nil
}
