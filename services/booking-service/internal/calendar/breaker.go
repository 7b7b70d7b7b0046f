package calendar

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/sony/gobreaker/v2"
)

type BreakerConfig struct {
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// Breaker stops calling a failing calendar server so slot listing stays fast while it is down.
type Breaker struct {
	inner Client
	cb    *gobreaker.CircuitBreaker[any]
}

func NewBreaker(inner Client, name string, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("calendar circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	return &Breaker{inner: inner, cb: gobreaker.NewCircuitBreaker[any](settings)}
}

func (b *Breaker) BusyIntervals(ctx context.Context, provider model.Provider, start, end time.Time) ([]availability.Interval, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.inner.BusyIntervals(ctx, provider, start, end)
	})
	if err != nil {
		return nil, err
	}
	busy, _ := res.([]availability.Interval)
	return busy, nil
}

func (b *Breaker) SyncReservation(ctx context.Context, provider model.Provider, offering model.Offering, r model.Reservation) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.inner.SyncReservation(ctx, provider, offering, r)
	})
	return err
}

func (b *Breaker) RemoveReservation(ctx context.Context, provider model.Provider, r model.Reservation) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.inner.RemoveReservation(ctx, provider, r)
	})
	return err
}
