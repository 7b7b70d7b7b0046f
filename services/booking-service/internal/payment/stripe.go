package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// StripeGateway maps payment handles to Stripe PaymentIntents.
type StripeGateway struct {
	api *client.API
}

// NewStripeGateway uses the default Stripe backends. Pass backends to point at a
// stripe-mock or test server.
func NewStripeGateway(secretKey string, backends *stripe.Backends) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, backends)
	return &StripeGateway{api: api}
}

func (g *StripeGateway) CreatePaymentHandle(ctx context.Context, req CreateRequest) (Handle, error) {
	if req.AmountMinor <= 0 {
		return Handle{}, errors.New("payment amount must be positive")
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountMinor),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return Handle{}, fmt.Errorf("stripe create payment intent: %w", err)
	}
	return handleFromIntent(pi), nil
}

func (g *StripeGateway) GetPaymentHandle(ctx context.Context, id string) (Handle, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(id, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && (se.Code == stripe.ErrorCodeResourceMissing || se.HTTPStatusCode == 404) {
			return Handle{}, ErrHandleNotFound
		}
		return Handle{}, fmt.Errorf("stripe get payment intent: %w", err)
	}
	return handleFromIntent(pi), nil
}

// ListSucceeded returns succeeded PaymentIntents created at or after since, newest first,
// stopping after limit handles.
func (g *StripeGateway) ListSucceeded(ctx context.Context, since time.Time, limit int) ([]Handle, error) {
	if limit <= 0 {
		limit = 100
	}
	params := &stripe.PaymentIntentListParams{
		CreatedRange: &stripe.RangeQueryParams{GreaterThanOrEqual: since.Unix()},
	}
	params.Context = ctx
	params.Limit = stripe.Int64(int64(min(limit, 100)))

	var out []Handle
	iter := g.api.PaymentIntents.List(params)
	for iter.Next() && len(out) < limit {
		pi := iter.PaymentIntent()
		if pi.Status == stripe.PaymentIntentStatusSucceeded {
			out = append(out, handleFromIntent(pi))
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("stripe list payment intents: %w", err)
	}
	return out, nil
}

func handleFromIntent(pi *stripe.PaymentIntent) Handle {
	return Handle{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       statusFromIntent(pi.Status),
		AmountMinor:  pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
}

func statusFromIntent(s stripe.PaymentIntentStatus) Status {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return StatusCanceled
	default:
		return StatusPending
	}
}
