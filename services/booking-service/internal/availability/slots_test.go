package availability

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/zone"
)

func weekdays(start, end string) []model.WeeklyRule {
	var rules []model.WeeklyRule
	for d := 1; d <= 5; d++ {
		rules = append(rules, model.WeeklyRule{DayOfWeek: d, StartTime: start, EndTime: end})
	}
	return rules
}

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := zone.Load(name)
	if err != nil {
		t.Fatalf("load %s: %v", name, err)
	}
	return loc
}

func baseRequest(t *testing.T) SlotRequest {
	ny := mustLoad(t, "America/New_York")
	return SlotRequest{
		Day:           zone.Date{Year: 2026, Month: time.February, Day: 2},
		RequestedZone: ny,
		ProviderZone:  ny,
		Duration:      30 * time.Minute,
		Weekly:        weekdays("09:00", "17:00"),
		Capacity:      1,
		Now:           time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC),
	}
}

func TestGenerateSlots_FullMonday(t *testing.T) {
	req := baseRequest(t)
	slots := GenerateSlots(req)
	if len(slots) != 16 {
		t.Fatalf("expected 16 slots, got %d", len(slots))
	}
	if got := slots[0].Start.Format("15:04"); got != "09:00" {
		t.Fatalf("expected first slot 09:00, got %s", got)
	}
	if got := slots[15].Start.Format("15:04"); got != "16:30" {
		t.Fatalf("expected last slot 16:30, got %s", got)
	}
	for i, s := range slots {
		if s.Remaining != 1 {
			t.Fatalf("slot %d: expected remaining 1, got %d", i, s.Remaining)
		}
		if i > 0 && !slots[i-1].Start.Before(s.Start) {
			t.Fatalf("slots not in chronological order at %d", i)
		}
	}
}

func TestGenerateSlots_BookedSlotAbsent(t *testing.T) {
	req := baseRequest(t)
	ten := zone.InstantAt(req.Day, zone.Clock{Hour: 10}, req.ProviderZone)
	req.Busy = []Interval{{Start: ten, End: ten.Add(30 * time.Minute)}}

	slots := GenerateSlots(req)
	if len(slots) != 15 {
		t.Fatalf("expected 15 slots, got %d", len(slots))
	}
	for _, s := range slots {
		if s.Start.Equal(ten) {
			t.Fatalf("10:00 should not be offered")
		}
	}
}

func TestGenerateSlots_RemainingCapacity(t *testing.T) {
	req := baseRequest(t)
	req.Capacity = 3
	ten := zone.InstantAt(req.Day, zone.Clock{Hour: 10}, req.ProviderZone)
	req.Busy = []Interval{
		{Start: ten, End: ten.Add(30 * time.Minute)},
		{Start: ten.Add(-15 * time.Minute), End: ten.Add(15 * time.Minute)},
	}

	remaining := map[string]int{}
	for _, s := range GenerateSlots(req) {
		remaining[s.Start.Format("15:04")] = s.Remaining
	}
	if remaining["09:30"] != 2 {
		t.Fatalf("expected 09:30 remaining 2, got %d", remaining["09:30"])
	}
	if remaining["10:00"] != 1 {
		t.Fatalf("expected 10:00 remaining 1, got %d", remaining["10:00"])
	}
	if remaining["10:30"] != 3 {
		t.Fatalf("expected 10:30 remaining 3, got %d", remaining["10:30"])
	}
}

func TestGenerateSlots_BufferMustFitWindow(t *testing.T) {
	req := baseRequest(t)
	req.Weekly = weekdays("09:00", "10:00")
	req.Buffer = 15 * time.Minute

	slots := GenerateSlots(req)
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	for _, s := range slots {
		if s.Start.Add(req.Duration + req.Buffer).After(zone.InstantAt(req.Day, zone.Clock{Hour: 10}, req.ProviderZone)) {
			t.Fatalf("slot %s overruns window", s.Start)
		}
	}

	// The buffer extends the candidate, so a booking starting at 09:30 blocks 09:00.
	nineThirty := zone.InstantAt(req.Day, zone.Clock{Hour: 9, Minute: 30}, req.ProviderZone)
	req.Busy = []Interval{{Start: nineThirty, End: nineThirty.Add(30 * time.Minute)}}
	if got := GenerateSlots(req); len(got) != 0 {
		t.Fatalf("expected no slots, got %d", len(got))
	}
}

func TestGenerateSlots_MinimumNotice(t *testing.T) {
	req := baseRequest(t)
	req.Now = zone.InstantAt(req.Day, zone.Clock{Hour: 9, Minute: 10}, req.ProviderZone)
	req.MinNotice = 30 * time.Minute

	slots := GenerateSlots(req)
	if len(slots) == 0 {
		t.Fatalf("expected slots")
	}
	if got := slots[0].Start.Format("15:04"); got != "10:00" {
		t.Fatalf("expected first slot 10:00, got %s", got)
	}
	for _, s := range slots {
		if s.Start.Before(req.Now.Add(req.MinNotice)) {
			t.Fatalf("slot %s violates notice", s.Start)
		}
	}
}

func TestGenerateSlots_Overrides(t *testing.T) {
	req := baseRequest(t)

	req.Overrides = []model.DateOverride{{Date: "2026-02-02", IsAvailable: false}}
	if got := GenerateSlots(req); len(got) != 0 {
		t.Fatalf("closed override: expected 0 slots, got %d", len(got))
	}

	req.Overrides = []model.DateOverride{{Date: "2026-02-02", IsAvailable: true}}
	if got := GenerateSlots(req); len(got) != 0 {
		t.Fatalf("open override without times: expected 0 slots, got %d", len(got))
	}

	req.Overrides = []model.DateOverride{{Date: "2026-02-02", IsAvailable: true, StartTime: "13:00", EndTime: "14:00"}}
	got := GenerateSlots(req)
	if len(got) != 2 || got[0].Start.Format("15:04") != "13:00" {
		t.Fatalf("custom override: unexpected slots %+v", got)
	}

	// An override for another date leaves the weekly rule in force.
	req.Overrides = []model.DateOverride{{Date: "2026-02-03", IsAvailable: false}}
	if got := GenerateSlots(req); len(got) != 16 {
		t.Fatalf("unrelated override: expected 16 slots, got %d", len(got))
	}

	// Saturday has no weekly rule but an override can open it.
	req.Day = zone.Date{Year: 2026, Month: time.February, Day: 7}
	req.Overrides = []model.DateOverride{{Date: "2026-02-07", IsAvailable: true, StartTime: "13:00", EndTime: "14:00"}}
	if got := GenerateSlots(req); len(got) != 2 {
		t.Fatalf("weekend override: expected 2 slots, got %d", len(got))
	}
	req.Overrides = nil
	if got := GenerateSlots(req); len(got) != 0 {
		t.Fatalf("weekend: expected 0 slots, got %d", len(got))
	}
}

func TestGenerateSlots_DegenerateConfig(t *testing.T) {
	req := baseRequest(t)
	req.Capacity = 0
	if got := GenerateSlots(req); len(got) != 0 {
		t.Fatalf("zero capacity: expected 0 slots, got %d", len(got))
	}
	req = baseRequest(t)
	req.Duration = 0
	if got := GenerateSlots(req); len(got) != 0 {
		t.Fatalf("zero duration: expected 0 slots, got %d", len(got))
	}
	req = baseRequest(t)
	req.Weekly = weekdays("17:00", "09:00")
	if got := GenerateSlots(req); len(got) != 0 {
		t.Fatalf("inverted window: expected 0 slots, got %d", len(got))
	}
}

// A Tokyo requester sees a New York provider's Monday hours split across two Tokyo dates.
// Every slot must fall on the requested Tokyo date.
func TestGenerateSlots_RequestedDayInOtherZone(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	tokyo := mustLoad(t, "Asia/Tokyo")
	req := SlotRequest{
		RequestedZone: tokyo,
		ProviderZone:  ny,
		Duration:      30 * time.Minute,
		Weekly:        weekdays("09:00", "17:00"),
		Capacity:      1,
		Now:           time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC),
	}

	// Tokyo Monday 2026-02-02 ends at 10:00 Monday in New York: only 09:00 and 09:30 NY fit.
	req.Day = zone.Date{Year: 2026, Month: time.February, Day: 2}
	got := GenerateSlots(req)
	if len(got) != 2 {
		t.Fatalf("expected 2 slots on Tokyo Monday, got %d", len(got))
	}
	if want := time.Date(2026, 2, 2, 14, 0, 0, 0, time.UTC); !got[0].Start.Equal(want) {
		t.Fatalf("expected first slot at %s, got %s", want, got[0].Start.UTC())
	}
	if got[0].Start.Format("2006-01-02 15:04") != "2026-02-02 23:00" {
		t.Fatalf("expected 23:00 Tokyo on the requested date, got %s", got[0].Start.Format("2006-01-02 15:04"))
	}

	// Tokyo Tuesday covers the rest of NY Monday (10:00-17:00) and NY Tuesday 09:00-10:00.
	req.Day = zone.Date{Year: 2026, Month: time.February, Day: 3}
	got = GenerateSlots(req)
	if len(got) != 16 {
		t.Fatalf("expected 16 slots on Tokyo Tuesday, got %d", len(got))
	}
	for i, s := range got {
		if s.Start.Location() != tokyo {
			t.Fatalf("slot %d not expressed in requested zone: %s", i, s.Start.Location())
		}
		if d := zone.LocalDate(s.Start, tokyo); d != req.Day {
			t.Fatalf("slot %d falls on %s, want %s", i, d, req.Day)
		}
		if i > 0 && !got[i-1].Start.Before(s.Start) {
			t.Fatalf("slots not in chronological order at %d", i)
		}
	}
	if first := got[0].Start.Format("15:04"); first != "00:00" {
		t.Fatalf("expected first slot 00:00 Tokyo, got %s", first)
	}
	if last := got[15].Start.In(ny).Format("Mon 15:04"); last != "Tue 09:30" {
		t.Fatalf("expected last slot Tue 09:30 New York, got %s", last)
	}
}

// Weekly rules are selected by the provider-local weekday, not the requester's.
func TestGenerateSlots_WeekdayObservedInProviderZone(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	tokyo := mustLoad(t, "Asia/Tokyo")
	req := SlotRequest{
		Day:           zone.Date{Year: 2026, Month: time.February, Day: 3}, // Tuesday in Tokyo
		RequestedZone: tokyo,
		ProviderZone:  ny,
		Duration:      time.Hour,
		Capacity:      1,
		Now:           time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC),
	}

	// NY Monday 19:00-21:00 is Tokyo Tuesday 09:00-11:00.
	req.Weekly = []model.WeeklyRule{{DayOfWeek: int(time.Monday), StartTime: "19:00", EndTime: "21:00"}}
	got := GenerateSlots(req)
	if len(got) != 2 || got[0].Start.Format("15:04") != "09:00" {
		t.Fatalf("expected 09:00 and 10:00 Tokyo from the NY Monday rule, got %+v", got)
	}

	// NY Tuesday 19:00 is already Tokyo Wednesday.
	req.Weekly = []model.WeeklyRule{{DayOfWeek: int(time.Tuesday), StartTime: "19:00", EndTime: "21:00"}}
	if got := GenerateSlots(req); len(got) != 0 {
		t.Fatalf("requester weekday must not select the rule, got %d slots", len(got))
	}
}

func TestProviderDates(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	tokyo := mustLoad(t, "Asia/Tokyo")
	day := zone.Date{Year: 2026, Month: time.February, Day: 3}

	if got := ProviderDates(day, ny, ny); len(got) != 1 || got[0] != day {
		t.Fatalf("same zone: expected [%s], got %v", day, got)
	}
	got := ProviderDates(day, tokyo, ny)
	if len(got) != 2 || got[0].String() != "2026-02-02" || got[1].String() != "2026-02-03" {
		t.Fatalf("tokyo over new york: unexpected dates %v", got)
	}
}

func TestGenerateSlots_SpringForwardDay(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	req := SlotRequest{
		Day:           zone.Date{Year: 2026, Month: time.March, Day: 8},
		RequestedZone: ny,
		ProviderZone:  ny,
		Duration:      time.Hour,
		Weekly:        []model.WeeklyRule{{DayOfWeek: int(time.Sunday), StartTime: "00:00", EndTime: "04:00"}},
		Capacity:      1,
		Now:           time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC),
	}
	got := GenerateSlots(req)
	if len(got) != 3 {
		t.Fatalf("expected 3 slots in a 3h window, got %d", len(got))
	}
	wall := []string{got[0].Start.Format("15:04"), got[1].Start.Format("15:04"), got[2].Start.Format("15:04")}
	if wall[0] != "00:00" || wall[1] != "01:00" || wall[2] != "03:00" {
		t.Fatalf("unexpected wall clocks %v", wall)
	}
}
