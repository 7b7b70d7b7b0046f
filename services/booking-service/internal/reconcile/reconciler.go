// Package reconcile heals paid bookings whose payment webhook never arrived.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/payment"
)

type HandleLister interface {
	ListSucceeded(ctx context.Context, since time.Time, limit int) ([]payment.Handle, error)
}

type Confirmer interface {
	ConfirmPaidBooking(ctx context.Context, handleID string) (booking.Result, error)
}

type Config struct {
	Interval  time.Duration
	Lookback  time.Duration
	BatchSize int
}

// Reconciler periodically confirms succeeded payment handles that carry a pending booking.
// Confirmation is idempotent, so handles already confirmed by the webhook are no-ops.
type Reconciler struct {
	lister    HandleLister
	confirmer Confirmer
	logger    *slog.Logger
	now       func() time.Time

	interval  time.Duration
	lookback  time.Duration
	batchSize int
}

func New(lister HandleLister, confirmer Confirmer, logger *slog.Logger, cfg Config) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 24 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Reconciler{
		lister:    lister,
		confirmer: confirmer,
		logger:    logger,
		now:       time.Now,
		interval:  cfg.Interval,
		lookback:  cfg.Lookback,
		batchSize: cfg.BatchSize,
	}
}

func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Run immediately on startup to self-heal faster after downtime.
	r.ReconcileOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ReconcileOnce(ctx)
		}
	}
}

// ReconcileOnce returns the number of bookings it newly confirmed.
func (r *Reconciler) ReconcileOnce(ctx context.Context) int {
	handles, err := r.lister.ListSucceeded(ctx, r.now().Add(-r.lookback), r.batchSize)
	if err != nil {
		r.logger.Error("payment reconcile: list failed", "err", err)
		return 0
	}

	confirmed := 0
	for _, h := range handles {
		if ctx.Err() != nil {
			return confirmed
		}
		if h.Metadata["offering_id"] == "" {
			continue
		}
		res, err := r.confirmer.ConfirmPaidBooking(ctx, h.ID)
		switch {
		case err == nil && res.Outcome == booking.OutcomeConfirmed:
			confirmed++
			r.logger.Warn("payment reconcile: confirmed booking missed by webhook", "payment_handle", h.ID)
		case err == nil:
		case errors.Is(err, booking.ErrGroupCapacityExceeded), errors.Is(err, booking.ErrPoolCapacityExceeded):
			r.logger.Error("payment reconcile: paid booking no longer fits; refund needed",
				"payment_handle", h.ID, "reason", booking.Reason(err))
		default:
			r.logger.Warn("payment reconcile: confirm failed", "payment_handle", h.ID, "reason", booking.Reason(err), "err", err)
		}
	}
	return confirmed
}
