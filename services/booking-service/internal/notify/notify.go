// Package notify delivers fire-and-forget booking notifications. Callers log failures;
// nothing here is retried synchronously.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	// KindBookingConfirmed goes to the client after a reservation set is committed.
	KindBookingConfirmed Kind = "booking.confirmed"
	// KindBookingCreated goes to the provider for the same commit.
	KindBookingCreated     Kind = "booking.created"
	KindBookingRescheduled Kind = "booking.rescheduled"
	KindBookingCancelled   Kind = "booking.cancelled"
)

type Notifier interface {
	Notify(ctx context.Context, kind Kind, recipient string, payload any) error
}

// Envelope is the wire shape shared by the Kafka and AMQP sinks.
type Envelope struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Recipient  string    `json:"recipient"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

func encode(kind Kind, recipient string, payload any, now time.Time) (Envelope, []byte, error) {
	env := Envelope{
		ID:         uuid.NewString(),
		Kind:       kind,
		Recipient:  recipient,
		OccurredAt: now.UTC(),
		Payload:    payload,
	}
	b, err := json.Marshal(env)
	if err != nil {
		return Envelope{}, nil, err
	}
	return env, b, nil
}
