package zone

import (
	"errors"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	if _, err := Load("America/New_York"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, name := range []string{"", "Local", "Mars/Olympus"} {
		if _, err := Load(name); !errors.Is(err, ErrInvalidZone) {
			t.Fatalf("expected ErrInvalidZone for %q, got %v", name, err)
		}
	}
}

func TestParseDateAndClock(t *testing.T) {
	d, err := ParseDate("2026-02-02")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.String() != "2026-02-02" || d.Weekday() != time.Monday {
		t.Fatalf("unexpected date %s %s", d, d.Weekday())
	}
	if _, err := ParseDate("2026-02-30"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}

	c, err := ParseClock("09:30")
	if err != nil || c.Minutes() != 570 || c.String() != "09:30" {
		t.Fatalf("unexpected clock %v %v", c, err)
	}
	if _, err := ParseClock("24:00"); err != nil {
		t.Fatalf("expected 24:00 to parse, got %v", err)
	}
	for _, bad := range []string{"9:30", "25:00", "12:60", "24:30", "ab:cd"} {
		if _, err := ParseClock(bad); !errors.Is(err, ErrInvalidClock) {
			t.Fatalf("expected ErrInvalidClock for %q, got %v", bad, err)
		}
	}
}

func TestDateAddDate(t *testing.T) {
	d := Date{Year: 2026, Month: time.January, Day: 31}
	if got := d.AddDate(0, 0, 7).String(); got != "2026-02-07" {
		t.Fatalf("unexpected +7d %s", got)
	}
	if got := d.AddDate(0, 1, 0).String(); got != "2026-03-03" {
		t.Fatalf("unexpected +1m %s", got)
	}
	if !d.Before(d.AddDate(0, 0, 1)) || d.AddDate(0, 0, 1).Before(d) {
		t.Fatalf("Before ordering broken")
	}
}

func TestInstantAt_AcrossDST(t *testing.T) {
	ny, _ := Load("America/New_York")
	// 2026-03-08 is the spring-forward day in New York.
	d := Date{Year: 2026, Month: time.March, Day: 8}

	before := InstantAt(d, Clock{Hour: 1, Minute: 0}, ny)
	after := InstantAt(d, Clock{Hour: 9, Minute: 0}, ny)
	if got := after.Sub(before); got != 7*time.Hour {
		t.Fatalf("expected 7h of elapsed time across the gap, got %s", got)
	}
	if after.UTC().Hour() != 13 {
		t.Fatalf("expected 09:00 EDT = 13:00 UTC, got %s", after.UTC())
	}
	if DayStart(d, ny).Add(24*time.Hour).Equal(DayStart(d.AddDate(0, 0, 1), ny)) {
		t.Fatalf("expected a 23h day on spring-forward")
	}
}

func TestLocalDate_DiffersAcrossZones(t *testing.T) {
	tokyo, _ := Load("Asia/Tokyo")
	la, _ := Load("America/Los_Angeles")

	// Monday 2026-02-02 20:00 in Los Angeles is already Tuesday in Tokyo.
	instant := InstantAt(Date{Year: 2026, Month: time.February, Day: 2}, Clock{Hour: 20}, la)
	if got := LocalDate(instant, la); got.String() != "2026-02-02" {
		t.Fatalf("unexpected LA date %s", got)
	}
	if got := LocalDate(instant, tokyo); got.String() != "2026-02-03" {
		t.Fatalf("unexpected Tokyo date %s", got)
	}
	if Weekday(instant, la) != time.Monday || Weekday(instant, tokyo) != time.Tuesday {
		t.Fatalf("unexpected weekdays")
	}
	if got := LocalClock(instant, tokyo); got.String() != "13:00" {
		t.Fatalf("unexpected Tokyo clock %s", got)
	}
}
