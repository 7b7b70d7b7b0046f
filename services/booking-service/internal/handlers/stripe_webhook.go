package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

type PaymentConfirmer interface {
	ConfirmPaidBooking(ctx context.Context, handleID string) (booking.Result, error)
}

// StripeWebhookHandler turns payment_intent events into booking confirmations. The signature
// is the authentication; the route must not sit behind JWT auth.
type StripeWebhookHandler struct {
	confirmer PaymentConfirmer
	secret    string
	tolerance time.Duration
	logger    *slog.Logger
}

func NewStripeWebhookHandler(confirmer PaymentConfirmer, secret string, tolerance time.Duration, logger *slog.Logger) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &StripeWebhookHandler{confirmer: confirmer, secret: secret, tolerance: tolerance, logger: logger}
}

func (h *StripeWebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(h.secret) == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}
	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1 MiB hard cap
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	evt, err := webhook.ConstructEventWithOptions(body, sigHeader, h.secret, webhook.ConstructEventOptions{
		Tolerance:                h.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	evtType := string(evt.Type)
	h.logger.Info("payment provider event received",
		"provider", "stripe",
		"provider_event_id", evt.ID,
		"event_type", evtType,
		"occurred_at", time.Unix(evt.Created, 0).UTC().Format(time.RFC3339),
	)

	var pi stripe.PaymentIntent
	switch evtType {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil || pi.ID == "" {
			h.logger.Error("stripe: invalid payment intent payload", "err", err)
			writeJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
			return
		}
	default:
		writeJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
		return
	}

	if evtType != "payment_intent.succeeded" {
		// No reservation exists before payment, so an abandoned intent needs no cleanup.
		h.logger.Info("payment abandoned", "payment_handle", pi.ID, "event_type", evtType)
		writeJSON(w, http.StatusOK, map[string]any{"status": "abandoned"})
		return
	}

	res, err := h.confirmer.ConfirmPaidBooking(r.Context(), pi.ID)
	if err != nil {
		// Retry only what may succeed later; policy rejections are final.
		if errors.Is(err, booking.ErrPersistence) || errors.Is(err, booking.ErrPaymentUnavailable) {
			h.logger.Error("paid booking confirmation failed; stripe will retry", "payment_handle", pi.ID, "err", err)
			http.Error(w, "confirmation failed", http.StatusInternalServerError)
			return
		}
		h.logger.Error("paid booking rejected", "payment_handle", pi.ID, "reason", booking.Reason(err), "err", err)
		writeJSON(w, http.StatusOK, map[string]any{"status": "rejected", "reason": booking.Reason(err)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": string(res.Outcome)})
}
