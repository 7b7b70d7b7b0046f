package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/capacity"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/zone"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type RescheduleRequest struct {
	BookingID string
	Date      string
	Time      string
	Timezone  string
	// ActorProviderID is the authenticated provider; only the owner may move a booking.
	ActorProviderID string
}

// Reschedule moves one CONFIRMED reservation in place. The reservation does not compete
// with itself, and recurrence siblings are left untouched.
func (e *Engine) Reschedule(ctx context.Context, req RescheduleRequest) (res Result, err error) {
	ctx, span := e.tracer.Start(ctx, "booking.reschedule", trace.WithAttributes(
		attribute.String("booking_id", req.BookingID),
		attribute.String("date", req.Date),
	))
	defer func() { finishSpan(span, err) }()

	reqLoc, err := zone.Load(req.Timezone)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidTimezone, req.Timezone)
	}
	day, err := zone.ParseDate(req.Date)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	clock, err := zone.ParseClock(req.Time)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	current, err := e.getReservation(ctx, req.BookingID)
	if err != nil {
		return Result{}, err
	}
	if current.ProviderID != req.ActorProviderID {
		return Result{}, ErrForbidden
	}
	if current.Status != model.StatusConfirmed {
		return Result{}, fmt.Errorf("%w: booking is %s", ErrInvalidState, current.Status)
	}

	o, p, provLoc, err := e.loadTarget(ctx, current.OfferingID)
	if err != nil {
		return Result{}, err
	}
	start := zone.InstantAt(day, clock, reqLoc).UTC()
	occ := occurrence{Date: day, Start: start, End: start.Add(o.Duration())}

	now := e.now()
	if occ.Start.Before(now.Add(o.MinNotice())) {
		return Result{}, atDate(ErrInsufficientNotice, day)
	}
	if err := e.checkWithinAvailability(ctx, o, p, provLoc, occ); err != nil {
		return Result{}, err
	}
	pool := capacity.Resolve(o, p)
	if pool.CountsExternalBusy() {
		ext := e.externalBusy(ctx, p, availability.Interval{Start: occ.Start, End: occ.Start.Add(o.Duration() + o.Buffer())})
		occ.external = availability.WithoutEcho(ext, availability.Interval{Start: current.StartTime, End: current.EndTime})
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return Result{}, persistence(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.LockProvider(ctx, p.ID); err != nil {
		return Result{}, persistence(err)
	}
	locked, err := tx.GetReservationForUpdate(ctx, current.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Result{}, ErrNotFound
		}
		return Result{}, persistence(err)
	}
	if locked.Status != model.StatusConfirmed {
		return Result{}, fmt.Errorf("%w: booking is %s", ErrInvalidState, locked.Status)
	}
	if err := e.admit(ctx, tx, o, pool, []occurrence{occ}, locked.ID); err != nil {
		return Result{}, err
	}
	if err := tx.UpdateReservationTimes(ctx, locked.ID, occ.Start, occ.End, now); err != nil {
		return Result{}, persistence(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, persistence(err)
	}

	moved := locked
	moved.StartTime, moved.EndTime, moved.UpdatedAt = occ.Start, occ.End, now
	e.logger.Info("booking rescheduled", "booking_id", moved.ID, "from", locked.StartTime, "to", moved.StartTime)
	e.afterReschedule(ctx, o, p, locked, moved)
	return Result{Outcome: OutcomeConfirmed, Reservations: []model.Reservation{moved}}, nil
}

// Cancel marks a reservation CANCELLED; it is never deleted. Cancelling twice returns the
// cancelled reservation without notifying again.
func (e *Engine) Cancel(ctx context.Context, bookingID, actorProviderID string) (res Result, err error) {
	ctx, span := e.tracer.Start(ctx, "booking.cancel", trace.WithAttributes(attribute.String("booking_id", bookingID)))
	defer func() { finishSpan(span, err) }()

	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return Result{}, fmt.Errorf("%w: booking id required", ErrInvalidRequest)
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return Result{}, persistence(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	r, err := tx.GetReservationForUpdate(ctx, bookingID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Result{}, fmt.Errorf("%w: booking %s", ErrNotFound, bookingID)
		}
		return Result{}, persistence(err)
	}
	if r.ProviderID != actorProviderID {
		return Result{}, ErrForbidden
	}
	if r.Status == model.StatusCancelled {
		return Result{Outcome: OutcomeCancelled, Reservations: []model.Reservation{r}}, nil
	}

	now := e.now()
	if err := tx.CancelReservation(ctx, r.ID, now); err != nil {
		return Result{}, persistence(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, persistence(err)
	}
	r.Status = model.StatusCancelled
	r.CancelledAt = &now
	r.UpdatedAt = now

	e.logger.Info("booking cancelled", "booking_id", r.ID, "provider_id", r.ProviderID)
	o, p, _, err := e.loadTarget(ctx, r.OfferingID)
	if err != nil {
		e.logger.Warn("skip cancel side effects", "booking_id", r.ID, "err", err)
	} else {
		e.afterCancel(ctx, o, p, r)
	}
	return Result{Outcome: OutcomeCancelled, Reservations: []model.Reservation{r}}, nil
}

// ListProviderBookings returns the provider's reservations, latest start first.
func (e *Engine) ListProviderBookings(ctx context.Context, providerID string, limit int) ([]model.Reservation, error) {
	rs, err := e.store.ListByProvider(ctx, providerID, limit)
	if err != nil {
		return nil, persistence(err)
	}
	return rs, nil
}

func (e *Engine) getReservation(ctx context.Context, id string) (model.Reservation, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.Reservation{}, fmt.Errorf("%w: booking id required", ErrInvalidRequest)
	}
	r, err := e.store.GetReservation(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.Reservation{}, fmt.Errorf("%w: booking %s", ErrNotFound, id)
		}
		return model.Reservation{}, persistence(err)
	}
	return r, nil
}
