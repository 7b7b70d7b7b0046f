package booking

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/notify"
)

// ReservationView is the notification payload shape of one reservation.
type ReservationView struct {
	BookingID         string    `json:"booking_id"`
	OfferingID        string    `json:"offering_id"`
	ProviderID        string    `json:"provider_id"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	Status            string    `json:"status"`
	RecurrenceGroupID string    `json:"recurrence_group_id,omitempty"`
	ClientName        string    `json:"client_name"`
	ClientEmail       string    `json:"client_email,omitempty"`
}

type BookingNotice struct {
	OfferingName string            `json:"offering_name"`
	Bookings     []ReservationView `json:"bookings"`
	// Previous times are set on reschedule.
	PreviousStart *time.Time `json:"previous_start,omitempty"`
	PreviousEnd   *time.Time `json:"previous_end,omitempty"`
}

func viewOf(r model.Reservation) ReservationView {
	return ReservationView{
		BookingID:         r.ID,
		OfferingID:        r.OfferingID,
		ProviderID:        r.ProviderID,
		StartTime:         r.StartTime.UTC(),
		EndTime:           r.EndTime.UTC(),
		Status:            string(r.Status),
		RecurrenceGroupID: r.RecurrenceGroupID,
		ClientName:        r.Client.Name,
		ClientEmail:       r.Client.Email,
	}
}

func noticeOf(o model.Offering, rs ...model.Reservation) BookingNotice {
	n := BookingNotice{OfferingName: o.Name}
	for _, r := range rs {
		n.Bookings = append(n.Bookings, viewOf(r))
	}
	return n
}

func (e *Engine) afterConfirm(ctx context.Context, o model.Offering, p model.Provider, rs []model.Reservation) {
	if len(rs) == 0 {
		return
	}
	e.dispatch(ctx, func(ctx context.Context) {
		for _, r := range rs {
			e.syncCalendar(ctx, o, p, r)
		}
		notice := noticeOf(o, rs...)
		e.send(ctx, notify.KindBookingConfirmed, rs[0].Client.Email, notice)
		e.send(ctx, notify.KindBookingCreated, p.ID, notice)
	})
}

func (e *Engine) afterReschedule(ctx context.Context, o model.Offering, p model.Provider, before, after model.Reservation) {
	e.dispatch(ctx, func(ctx context.Context) {
		e.syncCalendar(ctx, o, p, after)
		notice := noticeOf(o, after)
		prevStart, prevEnd := before.StartTime.UTC(), before.EndTime.UTC()
		notice.PreviousStart, notice.PreviousEnd = &prevStart, &prevEnd
		e.send(ctx, notify.KindBookingRescheduled, after.Client.Email, notice)
	})
}

func (e *Engine) afterCancel(ctx context.Context, o model.Offering, p model.Provider, r model.Reservation) {
	e.dispatch(ctx, func(ctx context.Context) {
		if e.calendar != nil {
			if err := e.calendar.RemoveReservation(ctx, p, r); err != nil {
				e.logger.Warn("calendar remove failed", "booking_id", r.ID, "provider_id", p.ID, "err", err)
			}
		}
		e.send(ctx, notify.KindBookingCancelled, r.Client.Email, noticeOf(o, r))
	})
}

func (e *Engine) syncCalendar(ctx context.Context, o model.Offering, p model.Provider, r model.Reservation) {
	if e.calendar == nil {
		return
	}
	if err := e.calendar.SyncReservation(ctx, p, o, r); err != nil {
		e.logger.Warn("calendar sync failed", "booking_id", r.ID, "provider_id", p.ID, "err", err)
	}
}

func (e *Engine) send(ctx context.Context, kind notify.Kind, recipient string, payload any) {
	if e.notifier == nil || recipient == "" {
		return
	}
	if err := e.notifier.Notify(ctx, kind, recipient, payload); err != nil {
		e.logger.Warn("notification failed", "kind", string(kind), "err", err)
	}
}

// dispatch runs fn after commit on a context detached from the request, bounded by the
// side-effect timeout. Failures inside fn are logged and never reach the caller.
func (e *Engine) dispatch(ctx context.Context, fn func(ctx context.Context)) {
	base := context.WithoutCancel(ctx)
	run := func() {
		ctx, cancel := context.WithTimeout(base, e.sideEffectTimeout)
		defer cancel()
		fn(ctx)
	}
	if e.syncSideEffects {
		run()
		return
	}
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		run()
	}()
}
