package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/capacity"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/payment"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/zone"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type BookingRequest struct {
	OfferingID string
	// Date and Time are wall-clock values in Timezone.
	Date       string
	Time       string
	Timezone   string
	Client     model.Client
	Recurrence *Recurrence
	// IdempotencyKey is forwarded to the payment gateway for paid offerings.
	IdempotencyKey string
}

// RequestBooking admits every occurrence of req or none of them. Paid offerings return
// OutcomePaymentRequired and persist nothing until ConfirmPaidBooking.
func (e *Engine) RequestBooking(ctx context.Context, req BookingRequest) (res Result, err error) {
	ctx, span := e.tracer.Start(ctx, "booking.request", trace.WithAttributes(
		attribute.String("offering_id", req.OfferingID),
		attribute.String("date", req.Date),
	))
	defer func() { finishSpan(span, err) }()

	reqLoc, err := zone.Load(req.Timezone)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidTimezone, req.Timezone)
	}
	first, err := zone.ParseDate(req.Date)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	clock, err := zone.ParseClock(req.Time)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	client := model.Client{
		Name:  strings.TrimSpace(req.Client.Name),
		Email: strings.TrimSpace(req.Client.Email),
		Phone: strings.TrimSpace(req.Client.Phone),
	}
	if client.Name == "" {
		return Result{}, fmt.Errorf("%w: client name required", ErrInvalidRequest)
	}

	o, p, provLoc, err := e.loadTarget(ctx, req.OfferingID)
	if err != nil {
		return Result{}, err
	}
	if o.Duration() <= 0 {
		return Result{}, fmt.Errorf("%w: offering %s has no duration", ErrInvalidRequest, o.ID)
	}

	dates, err := expandDates(first, req.Recurrence, o)
	if err != nil {
		return Result{}, err
	}
	occs := make([]occurrence, 0, len(dates))
	for _, d := range dates {
		start := zone.InstantAt(d, clock, reqLoc).UTC()
		occs = append(occs, occurrence{Date: d, Start: start, End: start.Add(o.Duration())})
	}
	span.SetAttributes(attribute.Int("occurrences", len(occs)))

	now := e.now()
	if occs[0].Start.Before(now.Add(o.MinNotice())) {
		return Result{}, atDate(ErrInsufficientNotice, occs[0].Date)
	}

	pool := capacity.Resolve(o, p)
	for i := range occs {
		if err := e.checkWithinAvailability(ctx, o, p, provLoc, occs[i]); err != nil {
			return Result{}, err
		}
		if pool.CountsExternalBusy() {
			occs[i].external = e.externalBusy(ctx, p, availability.Interval{
				Start: occs[i].Start,
				End:   occs[i].Start.Add(o.Duration() + o.Buffer()),
			})
		}
	}

	groupID := ""
	if len(occs) > 1 {
		groupID = uuid.NewString()
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return Result{}, persistence(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.LockProvider(ctx, p.ID); err != nil {
		return Result{}, persistence(err)
	}
	if err := e.admit(ctx, tx, o, pool, occs, ""); err != nil {
		return Result{}, err
	}

	if o.RequiresPayment {
		// Nothing is written before payment; release the lock before calling out.
		_ = tx.Rollback(ctx)
		return e.startPayment(ctx, req, o, p, occs, groupID, client)
	}

	rs := make([]model.Reservation, 0, len(occs))
	for _, occ := range occs {
		rs = append(rs, model.Reservation{
			ID:                uuid.NewString(),
			OfferingID:        o.ID,
			ProviderID:        p.ID,
			StartTime:         occ.Start,
			EndTime:           occ.End,
			Status:            model.StatusConfirmed,
			PaymentStatus:     model.PaymentPending,
			RecurrenceGroupID: groupID,
			Client:            client,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
	}
	if err := tx.InsertReservations(ctx, rs); err != nil {
		return Result{}, persistence(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, persistence(err)
	}

	e.logger.Info("booking confirmed", "offering_id", o.ID, "provider_id", p.ID,
		"occurrences", len(rs), "recurrence_group_id", groupID)
	e.afterConfirm(ctx, o, p, rs)
	return Result{Outcome: OutcomeConfirmed, Reservations: rs}, nil
}

func (e *Engine) startPayment(ctx context.Context, req BookingRequest, o model.Offering, p model.Provider, occs []occurrence, groupID string, client model.Client) (Result, error) {
	if e.payments == nil {
		return Result{}, fmt.Errorf("%w: no payment gateway configured", ErrPaymentInitFailed)
	}
	currency := strings.ToLower(strings.TrimSpace(o.Currency))
	if currency == "" {
		currency = "usd"
	}
	amount := o.PriceMinor * int64(len(occs))

	pending := pendingBooking{
		Version:           1,
		OfferingID:        o.ID,
		ProviderID:        p.ID,
		Timezone:          req.Timezone,
		RecurrenceGroupID: groupID,
		Client:            pendingClient{Name: client.Name, Email: client.Email, Phone: client.Phone},
		AmountMinor:       amount,
		Currency:          currency,
	}
	for _, occ := range occs {
		pending.Occurrences = append(pending.Occurrences, pendingSlot{Start: occ.Start.Unix(), End: occ.End.Unix()})
	}
	meta, err := encodeMetadata(pending, otelx.Traceparent(ctx))
	if err != nil {
		return Result{}, err
	}

	handle, err := e.payments.CreatePaymentHandle(ctx, payment.CreateRequest{
		AmountMinor:    amount,
		Currency:       currency,
		Description:    fmt.Sprintf("%s x%d", o.Name, len(occs)),
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
		Metadata:       meta,
	})
	if err != nil {
		e.logger.Error("create payment handle failed", "offering_id", o.ID, "err", err)
		return Result{}, fmt.Errorf("%w: %w", ErrPaymentInitFailed, err)
	}

	e.logger.Info("booking awaiting payment", "offering_id", o.ID, "payment_handle", handle.ID, "occurrences", len(occs))
	return Result{
		Outcome:       OutcomePaymentRequired,
		PaymentHandle: handle.ID,
		ClientSecret:  handle.ClientSecret,
		AmountMinor:   amount,
		Currency:      currency,
	}, nil
}

// ConfirmPaidBooking creates the reservation set carried by a succeeded payment handle.
// Confirming the same handle again returns OutcomeAlreadyConfirmed.
func (e *Engine) ConfirmPaidBooking(ctx context.Context, handleID string) (res Result, err error) {
	handleID = strings.TrimSpace(handleID)
	ctx, span := e.tracer.Start(ctx, "booking.confirm_paid", trace.WithAttributes(attribute.String("payment_handle", handleID)))
	defer func() { finishSpan(span, err) }()

	if handleID == "" {
		return Result{}, fmt.Errorf("%w: payment handle required", ErrInvalidRequest)
	}
	if e.payments == nil {
		return Result{}, fmt.Errorf("%w: no payment gateway configured", ErrPaymentUnavailable)
	}
	handle, err := e.payments.GetPaymentHandle(ctx, handleID)
	if err != nil {
		if errors.Is(err, payment.ErrHandleNotFound) {
			return Result{}, fmt.Errorf("%w: payment handle %s", ErrNotFound, handleID)
		}
		return Result{}, fmt.Errorf("%w: %w", ErrPaymentUnavailable, err)
	}
	if handle.Status != payment.StatusSucceeded {
		return Result{}, fmt.Errorf("%w: status %s", ErrPaymentNotCompleted, handle.Status)
	}
	pending, err := decodeMetadata(handle.Metadata)
	if err != nil {
		return Result{}, err
	}
	if tp := handle.Metadata[metaTraceparent]; tp != "" {
		link := trace.LinkFromContext(otelx.ContextWithTraceparent(context.Background(), tp))
		if link.SpanContext.IsValid() {
			span.AddLink(link)
		}
	}

	o, p, provLoc, err := e.loadTarget(ctx, pending.OfferingID)
	if err != nil {
		return Result{}, err
	}
	reqLoc := provLoc
	if loc, err := zone.Load(pending.Timezone); err == nil {
		reqLoc = loc
	}

	pool := capacity.Resolve(o, p)
	occs := make([]occurrence, 0, len(pending.Occurrences))
	for _, ps := range pending.Occurrences {
		start := time.Unix(ps.Start, 0).UTC()
		occ := occurrence{Date: zone.LocalDate(start, reqLoc), Start: start, End: time.Unix(ps.End, 0).UTC()}
		if pool.CountsExternalBusy() {
			occ.external = e.externalBusy(ctx, p, availability.Interval{Start: start, End: start.Add(o.Duration() + o.Buffer())})
		}
		occs = append(occs, occ)
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return Result{}, persistence(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.LockProvider(ctx, p.ID); err != nil {
		return Result{}, persistence(err)
	}
	existing, err := tx.ListByPaymentHandle(ctx, handleID)
	if err != nil {
		return Result{}, persistence(err)
	}
	if len(existing) > 0 {
		return Result{Outcome: OutcomeAlreadyConfirmed, Reservations: existing}, nil
	}

	if err := e.admit(ctx, tx, o, pool, occs, ""); err != nil {
		e.logger.Error("paid booking no longer fits; payment needs a refund",
			"payment_handle", handleID, "offering_id", o.ID, "err", err)
		return Result{}, err
	}

	rs := pending.reservations(handleID, e.now())
	for i := range rs {
		rs[i].ID = uuid.NewString()
	}
	if err := tx.InsertReservations(ctx, rs); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return Result{Outcome: OutcomeAlreadyConfirmed}, nil
		}
		return Result{}, persistence(err)
	}
	if err := tx.Commit(ctx); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return Result{Outcome: OutcomeAlreadyConfirmed}, nil
		}
		return Result{}, persistence(err)
	}

	e.logger.Info("paid booking confirmed", "payment_handle", handleID, "offering_id", o.ID, "occurrences", len(rs))
	e.afterConfirm(ctx, o, p, rs)
	return Result{Outcome: OutcomeConfirmed, Reservations: rs}, nil
}
