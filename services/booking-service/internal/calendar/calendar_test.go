package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToICalendar_MarksSyncedEvent(t *testing.T) {
	start := time.Date(2026, 2, 2, 15, 0, 0, 0, time.UTC)
	r := model.Reservation{
		ID:        "res-1",
		StartTime: start,
		EndTime:   start.Add(30 * time.Minute),
		Client:    model.Client{Name: "Ada", Email: "ada@example.com"},
	}
	cal := toICalendar(model.Offering{Name: "Consult"}, r, start.Add(-time.Hour))

	require.Len(t, cal.Children, 1)
	ev := cal.Children[0]
	assert.Equal(t, ical.CompEvent, ev.Name)
	assert.Equal(t, "slotbook-res-1", ev.Props.Get(ical.PropUID).Value)
	assert.Equal(t, "Consult with Ada", ev.Props.Get(ical.PropSummary).Value)
	require.NotNil(t, ev.Props.Get(PropXSlotbook))
	assert.Equal(t, "1", ev.Props.Get(PropXSlotbook).Value)

	got, err := (&ical.Event{Component: ev}).DateTimeStart(time.UTC)
	require.NoError(t, err)
	assert.True(t, got.Equal(r.StartTime))
}

func TestBusyFromCalendar_SkipsOwnSyncedEvents(t *testing.T) {
	start := time.Date(2026, 2, 2, 15, 0, 0, 0, time.UTC)
	r := model.Reservation{ID: "res-1", StartTime: start, EndTime: start.Add(30 * time.Minute)}
	cal := toICalendar(model.Offering{Name: "Consult"}, r, start.Add(-time.Hour))

	// A provider's own event at the same time still blocks.
	other := ical.NewEvent()
	other.Props.SetText(ical.PropUID, "dentist")
	other.Props.SetDateTime(ical.PropDateTimeStart, start)
	other.Props.SetDateTime(ical.PropDateTimeEnd, start.Add(time.Hour))
	cal.Children = append(cal.Children, other.Component)

	busy := busyFromCalendar(cal)
	require.Len(t, busy, 1)
	assert.True(t, busy[0].Start.Equal(start))
	assert.True(t, busy[0].End.Equal(start.Add(time.Hour)))
}

func TestBusyFromCalendar_SkipsTransparentAndCancelled(t *testing.T) {
	start := time.Date(2026, 2, 2, 15, 0, 0, 0, time.UTC)
	cal := ical.NewCalendar()
	add := func(prop, value string) {
		ev := ical.NewEvent()
		ev.Props.SetDateTime(ical.PropDateTimeStart, start)
		ev.Props.SetDateTime(ical.PropDateTimeEnd, start.Add(time.Hour))
		if prop != "" {
			ev.Props.SetText(prop, value)
		}
		cal.Children = append(cal.Children, ev.Component)
	}
	add("", "")
	add(ical.PropTransparency, "TRANSPARENT")
	add(ical.PropStatus, "CANCELLED")
	add(ical.PropStatus, "CONFIRMED")

	busy := busyFromCalendar(cal)
	assert.Len(t, busy, 2)
	assert.Nil(t, busyFromCalendar(nil))
}

func TestEventPath(t *testing.T) {
	r := model.Reservation{ID: "abc"}
	assert.Equal(t, "/cal/work/slotbook-abc.ics", eventPath(model.Provider{CalendarPath: "/cal/work"}, r))
	assert.Equal(t, "/cal/work/slotbook-abc.ics", eventPath(model.Provider{CalendarPath: "/cal/work/"}, r))
}

func TestCalDAV_NoCalendarPathIsNoop(t *testing.T) {
	c := NewCalDAV("http://127.0.0.1:1", "u", "p", nil)
	busy, err := c.BusyIntervals(context.Background(), model.Provider{ID: "p"}, time.Now(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, busy)
	assert.NoError(t, c.SyncReservation(context.Background(), model.Provider{}, model.Offering{}, model.Reservation{ID: "x"}))
	assert.NoError(t, c.RemoveReservation(context.Background(), model.Provider{}, model.Reservation{ID: "x"}))
}

type fakeClient struct {
	calls int
	busy  []availability.Interval
	err   error
}

func (f *fakeClient) BusyIntervals(context.Context, model.Provider, time.Time, time.Time) ([]availability.Interval, error) {
	f.calls++
	return f.busy, f.err
}

func (f *fakeClient) SyncReservation(context.Context, model.Provider, model.Offering, model.Reservation) error {
	f.calls++
	return f.err
}

func (f *fakeClient) RemoveReservation(context.Context, model.Provider, model.Reservation) error {
	f.calls++
	return f.err
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &fakeClient{err: errors.New("caldav down")}
	b := NewBreaker(inner, "caldav-test", BreakerConfig{FailureThreshold: 2, OpenTimeout: time.Minute}, nil)
	ctx := context.Background()

	_, err := b.BusyIntervals(ctx, model.Provider{}, time.Time{}, time.Time{})
	require.Error(t, err)
	require.Error(t, b.SyncReservation(ctx, model.Provider{}, model.Offering{}, model.Reservation{}))

	_, err = b.BusyIntervals(ctx, model.Provider{}, time.Time{}, time.Time{})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, inner.calls)
}

func TestBreaker_PassesResults(t *testing.T) {
	start := time.Date(2026, 2, 2, 15, 0, 0, 0, time.UTC)
	inner := &fakeClient{busy: []availability.Interval{{Start: start, End: start.Add(time.Hour)}}}
	b := NewBreaker(inner, "caldav-ok", BreakerConfig{}, nil)

	busy, err := b.BusyIntervals(context.Background(), model.Provider{}, start, start.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, inner.busy, busy)
}

type fakeKV struct {
	data    map[string]string
	getErr  error
	setErr  error
	lastTTL time.Duration
}

func (f *fakeKV) Get(_ context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeKV) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	f.data[key] = string(value.([]byte))
	f.lastTTL = ttl
	return redis.NewStatusResult("OK", nil)
}

func TestCachedSource_ReadThrough(t *testing.T) {
	start := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	inner := &fakeClient{busy: []availability.Interval{{Start: start.Add(15 * time.Hour), End: start.Add(16 * time.Hour)}}}
	store := &fakeKV{data: map[string]string{}}
	c := newCachedSource(inner, store, 2*time.Minute, nil)
	prov := model.Provider{ID: "prov"}

	first, err := c.BusyIntervals(context.Background(), prov, start, end)
	require.NoError(t, err)
	second, err := c.BusyIntervals(context.Background(), prov, start, end)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 2*time.Minute, store.lastTTL)
	require.Len(t, second, 1)
	assert.True(t, first[0].Start.Equal(second[0].Start))
	assert.True(t, first[0].End.Equal(second[0].End))
}

func TestCachedSource_RedisFailureFallsThrough(t *testing.T) {
	inner := &fakeClient{}
	store := &fakeKV{data: map[string]string{}, getErr: errors.New("conn refused"), setErr: errors.New("conn refused")}
	c := newCachedSource(inner, store, 0, nil)

	_, err := c.BusyIntervals(context.Background(), model.Provider{ID: "prov"}, time.Time{}, time.Time{})
	require.NoError(t, err)
	_, err = c.BusyIntervals(context.Background(), model.Provider{ID: "prov"}, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedSource_InnerErrorNotCached(t *testing.T) {
	inner := &fakeClient{err: errors.New("boom")}
	store := &fakeKV{data: map[string]string{}}
	c := newCachedSource(inner, store, time.Minute, nil)

	_, err := c.BusyIntervals(context.Background(), model.Provider{ID: "prov"}, time.Time{}, time.Time{})
	require.Error(t, err)
	assert.Empty(t, store.data)
}
