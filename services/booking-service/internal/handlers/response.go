package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
)

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
	Date   string `json:"date,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Reason: "invalid_request"})
}

// writeEngineError maps engine errors onto HTTP. Persistence details never leak to clients.
func writeEngineError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error(), Reason: booking.Reason(err)}
	if d, ok := booking.FailedDate(err); ok {
		resp.Date = d.String()
	}
	if status == http.StatusInternalServerError {
		resp.Error = "internal error"
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, booking.ErrInvalidTimezone),
		errors.Is(err, booking.ErrInvalidRequest),
		errors.Is(err, booking.ErrRecurrenceNotAllowed):
		return http.StatusBadRequest
	case errors.Is(err, booking.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, booking.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrGroupCapacityExceeded),
		errors.Is(err, booking.ErrPoolCapacityExceeded),
		errors.Is(err, booking.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, booking.ErrOutsideAvailability),
		errors.Is(err, booking.ErrInsufficientNotice):
		return http.StatusUnprocessableEntity
	case errors.Is(err, booking.ErrPaymentNotCompleted):
		return http.StatusPaymentRequired
	case errors.Is(err, booking.ErrPaymentInitFailed),
		errors.Is(err, booking.ErrPaymentUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
