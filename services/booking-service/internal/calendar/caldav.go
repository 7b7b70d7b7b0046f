package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// PropXSlotbook marks events written by the reservation sync.
const PropXSlotbook = "X-SLOTBOOK"

// CalDAV reads and writes the calendar collection named by Provider.CalendarPath.
// Providers without a calendar path have no busy intervals and are never synced.
type CalDAV struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

func NewCalDAV(baseURL, username, password string, logger *slog.Logger) *CalDAV {
	if logger == nil {
		logger = slog.Default()
	}
	return &CalDAV{
		baseURL:    baseURL,
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		now:        time.Now,
	}
}

func (c *CalDAV) client() (*caldav.Client, error) {
	cl, err := caldav.NewClient(webdav.HTTPClientWithBasicAuth(c.httpClient, c.username, c.password), c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("create caldav client: %w", err)
	}
	return cl, nil
}

func (c *CalDAV) BusyIntervals(ctx context.Context, provider model.Provider, start, end time.Time) ([]availability.Interval, error) {
	if provider.CalendarPath == "" {
		return nil, nil
	}
	cl, err := c.client()
	if err != nil {
		return nil, err
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:  "VCALENDAR",
			Props: []string{"VERSION"},
			Comps: []caldav.CalendarCompRequest{{
				Name:  "VEVENT",
				Props: []string{"UID", "DTSTART", "DTEND", "DURATION", "STATUS", "TRANSP", PropXSlotbook},
			}},
		},
		CompFilter: caldav.CompFilter{
			Name:  "VCALENDAR",
			Comps: []caldav.CompFilter{{Name: "VEVENT", Start: start, End: end}},
		},
	}
	objects, err := cl.QueryCalendar(ctx, provider.CalendarPath, query)
	if err != nil {
		return nil, fmt.Errorf("query calendar: %w", err)
	}

	var out []availability.Interval
	for i := range objects {
		out = append(out, busyFromCalendar(objects[i].Data)...)
	}
	return out, nil
}

func (c *CalDAV) SyncReservation(ctx context.Context, provider model.Provider, offering model.Offering, r model.Reservation) error {
	if provider.CalendarPath == "" {
		return nil
	}
	cl, err := c.client()
	if err != nil {
		return err
	}
	if _, err := cl.PutCalendarObject(ctx, eventPath(provider, r), toICalendar(offering, r, c.now())); err != nil {
		return fmt.Errorf("put calendar object: %w", err)
	}
	return nil
}

func (c *CalDAV) RemoveReservation(ctx context.Context, provider model.Provider, r model.Reservation) error {
	if provider.CalendarPath == "" {
		return nil
	}
	cl, err := c.client()
	if err != nil {
		return err
	}
	return cl.RemoveAll(ctx, eventPath(provider, r))
}

func eventPath(provider model.Provider, r model.Reservation) string {
	base := provider.CalendarPath
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + "slotbook-" + r.ID + ".ics"
}

// busyFromCalendar extracts opaque busy intervals. Transparent and cancelled events do not block,
// and neither do events carrying PropXSlotbook: reservations are counted from the store.
func busyFromCalendar(cal *ical.Calendar) []availability.Interval {
	if cal == nil {
		return nil
	}
	var out []availability.Interval
	for _, child := range cal.Children {
		if child.Name != ical.CompEvent {
			continue
		}
		if p := child.Props.Get(ical.PropTransparency); p != nil && strings.EqualFold(p.Value, "TRANSPARENT") {
			continue
		}
		if p := child.Props.Get(ical.PropStatus); p != nil && strings.EqualFold(p.Value, "CANCELLED") {
			continue
		}
		if child.Props.Get(PropXSlotbook) != nil {
			continue
		}
		ev := &ical.Event{Component: child}
		start, err := ev.DateTimeStart(time.UTC)
		if err != nil {
			continue
		}
		end, err := ev.DateTimeEnd(time.UTC)
		if err != nil || !end.After(start) {
			continue
		}
		out = append(out, availability.Interval{Start: start.UTC(), End: end.UTC()})
	}
	return out
}

func toICalendar(offering model.Offering, r model.Reservation, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//Slotbook//Booking Sync//EN")

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, "slotbook-"+r.ID)
	event.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, r.StartTime.UTC())
	event.Props.SetDateTime(ical.PropDateTimeEnd, r.EndTime.UTC())

	summary := offering.Name
	if summary == "" {
		summary = "Booking"
	}
	if r.Client.Name != "" {
		summary += " with " + r.Client.Name
	}
	event.Props.SetText(ical.PropSummary, summary)

	desc := "Booking " + r.ID
	if r.Client.Email != "" {
		desc += "\nClient: " + r.Client.Email
	}
	if r.RecurrenceGroupID != "" {
		desc += "\nSeries: " + r.RecurrenceGroupID
	}
	event.Props.SetText(ical.PropDescription, desc)

	marker := ical.NewProp(PropXSlotbook)
	marker.Value = "1"
	event.Props[PropXSlotbook] = []ical.Prop{*marker}

	cal.Children = append(cal.Children, event.Component)
	return cal
}
