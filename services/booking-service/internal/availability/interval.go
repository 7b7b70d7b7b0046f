package availability

import "time"

// Interval is half-open: [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether [a.Start,a.End) and [b.Start,b.End) intersect.
func (a Interval) Overlaps(b Interval) bool {
	return a.Start.Before(b.End) && a.End.After(b.Start)
}

// CountOverlapping returns how many busy intervals overlap w.
func CountOverlapping(w Interval, busy []Interval) int {
	n := 0
	for _, b := range busy {
		if w.Overlaps(b) {
			n++
		}
	}
	return n
}

// DuplicateTolerance is how close an external event's start and end must both be to a
// known reservation to count as the same event.
const DuplicateTolerance = 60 * time.Second

// MergeExternal appends external busy intervals to the known reservations, dropping
// external intervals that mirror a reservation (typically our own calendar sync echo).
func MergeExternal(reservations, external []Interval) []Interval {
	out := make([]Interval, 0, len(reservations)+len(external))
	out = append(out, reservations...)
	for _, e := range external {
		if !e.End.After(e.Start) {
			continue
		}
		dup := false
		for _, r := range reservations {
			if within(e.Start, r.Start, DuplicateTolerance) && within(e.End, r.End, DuplicateTolerance) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, e)
		}
	}
	return out
}

func within(a, b time.Time, tol time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= tol
}

// WithoutEcho drops external intervals mirroring of, e.g. the calendar copy of a booking being moved.
func WithoutEcho(external []Interval, of Interval) []Interval {
	out := external[:0:0]
	for _, e := range external {
		if within(e.Start, of.Start, DuplicateTolerance) && within(e.End, of.End, DuplicateTolerance) {
			continue
		}
		out = append(out, e)
	}
	return out
}
