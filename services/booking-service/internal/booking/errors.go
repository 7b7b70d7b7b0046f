package booking

import (
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/zone"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidTimezone       = errors.New("invalid timezone")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrInsufficientNotice    = errors.New("insufficient notice")
	ErrOutsideAvailability   = errors.New("outside availability")
	ErrGroupCapacityExceeded = errors.New("group capacity exceeded")
	ErrPoolCapacityExceeded  = errors.New("pool capacity exceeded")
	ErrRecurrenceNotAllowed  = errors.New("recurrence not allowed")
	ErrPaymentInitFailed     = errors.New("payment initialization failed")
	ErrPaymentNotCompleted   = errors.New("payment not completed")
	// ErrPaymentUnavailable means the gateway could not be asked about an existing handle.
	ErrPaymentUnavailable    = errors.New("payment gateway unavailable")
	ErrForbidden             = errors.New("forbidden")
	ErrInvalidState          = errors.New("invalid booking state")
	ErrPersistence           = errors.New("persistence failure")
)

// DateError attaches the occurrence date that failed a policy or capacity check.
type DateError struct {
	Err error
	At  zone.Date
}

func (e *DateError) Error() string {
	return fmt.Sprintf("%s on %s", e.Err, e.At)
}

func (e *DateError) Unwrap() error { return e.Err }

func atDate(err error, d zone.Date) error {
	return &DateError{Err: err, At: d}
}

func persistence(err error) error {
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

// Reason returns a stable machine-readable code for err, or "" when err is not a booking error.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTimezone):
		return "invalid_timezone"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrInsufficientNotice):
		return "insufficient_notice"
	case errors.Is(err, ErrOutsideAvailability):
		return "outside_availability"
	case errors.Is(err, ErrGroupCapacityExceeded):
		return "group_capacity_exceeded"
	case errors.Is(err, ErrPoolCapacityExceeded):
		return "pool_capacity_exceeded"
	case errors.Is(err, ErrRecurrenceNotAllowed):
		return "recurrence_not_allowed"
	case errors.Is(err, ErrPaymentInitFailed):
		return "payment_init_failed"
	case errors.Is(err, ErrPaymentNotCompleted):
		return "payment_not_completed"
	case errors.Is(err, ErrPaymentUnavailable):
		return "payment_unavailable"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrPersistence):
		return "persistence_failure"
	}
	return ""
}

// FailedDate returns the occurrence date carried by err, if any.
func FailedDate(err error) (zone.Date, bool) {
	var de *DateError
	if errors.As(err, &de) {
		return de.At, true
	}
	return zone.Date{}, false
}
