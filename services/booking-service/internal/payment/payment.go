// Package payment is the payment gateway collaborator. A handle is created before any
// reservation exists and carries the pending booking in its metadata.
package payment

import (
	"context"
	"errors"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

var ErrHandleNotFound = errors.New("payment handle not found")

type Handle struct {
	ID           string
	ClientSecret string
	Status       Status
	AmountMinor  int64
	Currency     string
	Metadata     map[string]string
}

type CreateRequest struct {
	AmountMinor    int64
	Currency       string
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

type Gateway interface {
	CreatePaymentHandle(ctx context.Context, req CreateRequest) (Handle, error)
	GetPaymentHandle(ctx context.Context, id string) (Handle, error)
}
