// Package booking is the admission engine: it lists bookable slots and turns booking,
// payment confirmation, reschedule and cancel requests into reservations.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/capacity"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/payment"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/zone"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// BusySource reports opaque busy time from the provider's external calendar.
type BusySource interface {
	BusyIntervals(ctx context.Context, provider model.Provider, start, end time.Time) ([]availability.Interval, error)
}

// CalendarSync mirrors reservations into the provider's external calendar.
type CalendarSync interface {
	SyncReservation(ctx context.Context, provider model.Provider, offering model.Offering, r model.Reservation) error
	RemoveReservation(ctx context.Context, provider model.Provider, r model.Reservation) error
}

// Deps are the engine's collaborators. Nil Busy, Notifier and Calendar disable that collaborator;
// a nil Payments makes paid offerings fail with ErrPaymentInitFailed and confirmation with ErrPaymentUnavailable.
type Deps struct {
	Busy     BusySource
	Payments payment.Gateway
	Notifier notify.Notifier
	Calendar CalendarSync
	Logger   *slog.Logger
	Now      func() time.Time

	SideEffectTimeout time.Duration
	// SyncSideEffects runs post-commit side effects before returning instead of in the background.
	SyncSideEffects bool
}

type Engine struct {
	store    storage.Store
	busy     BusySource
	payments payment.Gateway
	notifier notify.Notifier
	calendar CalendarSync
	logger   *slog.Logger
	now      func() time.Time
	tracer   trace.Tracer

	sideEffectTimeout time.Duration
	syncSideEffects   bool
	inflight          sync.WaitGroup
}

func New(store storage.Store, deps Deps) *Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.SideEffectTimeout <= 0 {
		deps.SideEffectTimeout = 10 * time.Second
	}
	return &Engine{
		store:             store,
		busy:              deps.Busy,
		payments:          deps.Payments,
		notifier:          deps.Notifier,
		calendar:          deps.Calendar,
		logger:            deps.Logger,
		now:               deps.Now,
		tracer:            otel.Tracer("slotbook/booking"),
		sideEffectTimeout: deps.SideEffectTimeout,
		syncSideEffects:   deps.SyncSideEffects,
	}
}

type Outcome string

const (
	OutcomeConfirmed        Outcome = "confirmed"
	OutcomePaymentRequired  Outcome = "payment_required"
	OutcomeAlreadyConfirmed Outcome = "already_confirmed"
	OutcomeCancelled        Outcome = "cancelled"
)

type Result struct {
	Outcome      Outcome
	Reservations []model.Reservation

	// Set when Outcome is OutcomePaymentRequired.
	PaymentHandle string
	ClientSecret  string
	AmountMinor   int64
	Currency      string
}

// occurrence is one requested start, before it becomes a reservation.
type occurrence struct {
	Date     zone.Date
	Start    time.Time
	End      time.Time
	external []availability.Interval
}

// ListSlots enumerates bookable starts for offeringID on date as seen in tz.
// The result is advisory; admission re-checks capacity at commit time.
func (e *Engine) ListSlots(ctx context.Context, offeringID, date, tz string) (slots []availability.Slot, err error) {
	ctx, span := e.tracer.Start(ctx, "booking.list_slots", trace.WithAttributes(
		attribute.String("offering_id", offeringID),
		attribute.String("date", date),
		attribute.String("timezone", tz),
	))
	defer func() { finishSpan(span, err) }()

	reqLoc, err := zone.Load(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, tz)
	}
	day, err := zone.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	o, p, provLoc, err := e.loadTarget(ctx, offeringID)
	if err != nil {
		return nil, err
	}

	dates := availability.ProviderDates(day, reqLoc, provLoc)
	weekly, err := e.store.ListWeeklyRules(ctx, p.ID)
	if err != nil {
		return nil, persistence(err)
	}
	var overrides []model.DateOverride
	open := false
	for _, d := range dates {
		override, err := e.store.GetOverride(ctx, p.ID, d.String())
		if err != nil {
			return nil, persistence(err)
		}
		if override != nil {
			overrides = append(overrides, *override)
		}
		if _, ok := availability.ResolveWindow(d, weekly, override, provLoc); ok {
			open = true
		}
	}
	if !open {
		return []availability.Slot{}, nil
	}

	// Candidates start inside the requested day and may run past its end by duration plus buffer.
	requested := availability.RequestedDay(day, reqLoc)
	reach := availability.Interval{Start: requested.Start, End: requested.End.Add(o.Duration() + o.Buffer())}
	pool := capacity.Resolve(o, p)
	confirmed, err := e.store.ListConfirmed(ctx, scopeFor(pool, ""), reach.Start, reach.End)
	if err != nil {
		return nil, persistence(err)
	}
	busy := toIntervals(confirmed)
	if pool.CountsExternalBusy() {
		busy = availability.MergeExternal(busy, e.externalBusy(ctx, p, reach))
	}

	slots = availability.GenerateSlots(availability.SlotRequest{
		Day:           day,
		RequestedZone: reqLoc,
		ProviderZone:  provLoc,
		Duration:      o.Duration(),
		Buffer:        o.Buffer(),
		MinNotice:     o.MinNotice(),
		Weekly:        weekly,
		Overrides:     overrides,
		Busy:          busy,
		Capacity:      pool.Capacity,
		Now:           e.now(),
	})
	if slots == nil {
		slots = []availability.Slot{}
	}
	span.SetAttributes(attribute.Int("slots", len(slots)))
	return slots, nil
}

// Close waits for in-flight side effects or until ctx is done.
func (e *Engine) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) loadTarget(ctx context.Context, offeringID string) (model.Offering, model.Provider, *time.Location, error) {
	offeringID = strings.TrimSpace(offeringID)
	if offeringID == "" {
		return model.Offering{}, model.Provider{}, nil, fmt.Errorf("%w: offering id required", ErrInvalidRequest)
	}
	o, err := e.store.GetOffering(ctx, offeringID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.Offering{}, model.Provider{}, nil, fmt.Errorf("%w: offering %s", ErrNotFound, offeringID)
		}
		return model.Offering{}, model.Provider{}, nil, persistence(err)
	}
	p, err := e.store.GetProvider(ctx, o.ProviderID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.Offering{}, model.Provider{}, nil, fmt.Errorf("%w: provider %s", ErrNotFound, o.ProviderID)
		}
		return model.Offering{}, model.Provider{}, nil, persistence(err)
	}
	loc, err := zone.Load(p.Timezone)
	if err != nil {
		return model.Offering{}, model.Provider{}, nil, fmt.Errorf("%w: provider zone %q", ErrInvalidTimezone, p.Timezone)
	}
	return o, p, loc, nil
}

func (e *Engine) loadRules(ctx context.Context, providerID string, date zone.Date) ([]model.WeeklyRule, *model.DateOverride, error) {
	weekly, err := e.store.ListWeeklyRules(ctx, providerID)
	if err != nil {
		return nil, nil, persistence(err)
	}
	override, err := e.store.GetOverride(ctx, providerID, date.String())
	if err != nil {
		return nil, nil, persistence(err)
	}
	return weekly, override, nil
}

// checkWithinAvailability rejects occurrences that do not fit the open window of their
// provider-local day.
func (e *Engine) checkWithinAvailability(ctx context.Context, o model.Offering, p model.Provider, provLoc *time.Location, occ occurrence) error {
	providerDate := zone.LocalDate(occ.Start, provLoc)
	weekly, override, err := e.loadRules(ctx, p.ID, providerDate)
	if err != nil {
		return err
	}
	window, ok := availability.ResolveWindow(providerDate, weekly, override, provLoc)
	if !ok {
		return atDate(ErrOutsideAvailability, occ.Date)
	}
	if occ.Start.Before(window.Start) || occ.Start.Add(o.Duration()+o.Buffer()).After(window.End) {
		return atDate(ErrOutsideAvailability, occ.Date)
	}
	return nil
}

// externalBusy is best effort: any failure is logged and treated as no busy time.
func (e *Engine) externalBusy(ctx context.Context, p model.Provider, window availability.Interval) []availability.Interval {
	if e.busy == nil {
		return nil
	}
	busy, err := e.busy.BusyIntervals(ctx, p, window.Start, window.End)
	if err != nil {
		e.logger.Warn("busy interval source failed; continuing without external busy time",
			"provider_id", p.ID, "err", err)
		return nil
	}
	return busy
}

// admit re-checks group and pool capacity for every occurrence inside tx. The first failing
// occurrence aborts the whole set.
func (e *Engine) admit(ctx context.Context, tx storage.Tx, o model.Offering, pool capacity.Pool, occs []occurrence, excludeID string) error {
	for _, occ := range occs {
		atStart, err := tx.CountConfirmedAt(ctx, o.ID, occ.Start, excludeID)
		if err != nil {
			return persistence(err)
		}
		if !capacity.GroupAdmits(o, atStart) {
			return atDate(ErrGroupCapacityExceeded, occ.Date)
		}

		span := availability.Interval{Start: occ.Start, End: occ.Start.Add(o.Duration() + o.Buffer())}
		confirmed, err := tx.ListConfirmed(ctx, scopeFor(pool, excludeID), span.Start, span.End)
		if err != nil {
			return persistence(err)
		}
		busy := toIntervals(confirmed)
		if pool.CountsExternalBusy() {
			busy = availability.MergeExternal(busy, occ.external)
		}
		if !pool.Admits(pool.Occupancy(span, busy)) {
			return atDate(ErrPoolCapacityExceeded, occ.Date)
		}
	}
	return nil
}

func scopeFor(pool capacity.Pool, excludeID string) storage.Scope {
	if pool.Kind == capacity.Isolated {
		return storage.Scope{OfferingID: pool.OfferingID, ExcludeID: excludeID}
	}
	return storage.Scope{ProviderID: pool.ProviderID, SharedOnly: true, ExcludeID: excludeID}
}

func toIntervals(rs []model.Reservation) []availability.Interval {
	out := make([]availability.Interval, 0, len(rs))
	for _, r := range rs {
		out = append(out, availability.Interval{Start: r.StartTime, End: r.EndTime})
	}
	return out
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Reason(err))
	}
	span.End()
}
