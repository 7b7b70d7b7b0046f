// Package zone is the only place that converts between wall-clock values and absolute instants.
// Every other package consumes Date, Clock and time.Time values produced here.
package zone

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

var (
	ErrInvalidZone  = errors.New("invalid timezone")
	ErrInvalidDate  = errors.New("invalid date")
	ErrInvalidClock = errors.New("invalid time of day")
)

// Load resolves an IANA zone name. "Local" and the empty string are rejected
// so results never depend on the host configuration.
func Load(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "Local" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidZone, name)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidZone, name)
	}
	return loc, nil
}

// Date is a calendar date with no zone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) IsZero() bool { return d == Date{} }

func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC).Weekday()
}

// AddDate normalizes like time.AddDate: 2026-01-31 plus one month is 2026-03-03.
func (d Date) AddDate(years, months, days int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC).AddDate(years, months, days))
}

func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// Clock is a wall-clock time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock accepts "HH:MM" in 24h form. "24:00" is accepted as end of day.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	if len(s) != 5 || s[2] != ':' {
		return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	h, okH := twoDigits(s[0:2])
	m, okM := twoDigits(s[3:5])
	if !okH || !okM || m > 59 || h > 24 || (h == 24 && m != 0) {
		return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return Clock{Hour: h, Minute: m}, nil
}

func twoDigits(s string) (int, bool) {
	if s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Minutes since midnight.
func (c Clock) Minutes() int { return c.Hour*60 + c.Minute }

// InstantAt converts a wall-clock date and time in loc to an absolute instant.
// Wall times skipped by a DST gap resolve the way time.Date does (shifted forward by the gap).
func InstantAt(d Date, c Clock, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, c.Hour, c.Minute, 0, 0, loc)
}

// DayStart is 00:00 of d in loc.
func DayStart(d Date, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// LocalDate is the calendar date t falls on as observed in loc.
func LocalDate(t time.Time, loc *time.Location) Date {
	return DateOf(t.In(loc))
}

// LocalClock is the wall-clock time of day t shows in loc, truncated to the minute.
func LocalClock(t time.Time, loc *time.Location) Clock {
	lt := t.In(loc)
	return Clock{Hour: lt.Hour(), Minute: lt.Minute()}
}

// Weekday of t as observed in loc.
func Weekday(t time.Time, loc *time.Location) time.Weekday {
	return t.In(loc).Weekday()
}
