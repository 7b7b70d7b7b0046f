package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/md-rashed-zaman/slotbook/libs/auth"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/libs/runtime"
)

type RouterConfig struct {
	Engine       Engine
	Availability AvailabilityStore
	Logger       *slog.Logger

	JWTSecret string
	// Now is the clock used for token expiry; nil means time.Now.
	Now func() time.Time

	StripeWebhookSecret    string
	StripeWebhookTolerance time.Duration

	// RateLimit guards the public endpoints; nil disables it.
	RateLimit httpx.Middleware
	Ready     []runtime.ReadyCheck
}

// NewRouter mounts health checks, the public booking API, the Stripe webhook and the
// provider API behind bearer auth.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bookingHandler := NewBookingHandler(cfg.Engine, logger)
	availabilityHandler := NewAvailabilityHandler(cfg.Availability, logger)
	webhookHandler := NewStripeWebhookHandler(cfg.Engine, cfg.StripeWebhookSecret, cfg.StripeWebhookTolerance, logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", runtime.HealthHandler())
	r.Get("/readyz", runtime.ReadyHandler(cfg.Ready...))

	r.Route("/api/v1/public", func(r chi.Router) {
		if cfg.RateLimit != nil {
			r.Use(cfg.RateLimit)
		}
		r.Get("/slots", bookingHandler.Slots)
		r.Post("/book", bookingHandler.Create)
		r.Post("/book/confirm", bookingHandler.Confirm)
	})

	r.Method(http.MethodPost, "/api/v1/webhooks/stripe", webhookHandler)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireProvider(cfg.JWTSecret, cfg.Now))

		r.Get("/api/v1/bookings", bookingHandler.List)
		r.Post("/api/v1/bookings/{id}/reschedule", bookingHandler.Reschedule)
		r.Post("/api/v1/bookings/{id}/cancel", bookingHandler.Cancel)

		r.Get("/api/v1/availability/weekly", availabilityHandler.GetWeekly)
		r.Put("/api/v1/availability/weekly", availabilityHandler.PutWeekly)
		r.Get("/api/v1/availability/overrides/{date}", availabilityHandler.GetOverride)
		r.Put("/api/v1/availability/overrides/{date}", availabilityHandler.PutOverride)
		r.Delete("/api/v1/availability/overrides/{date}", availabilityHandler.DeleteOverride)
	})
	return r
}
