package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/slotbook/libs/auth"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// Engine is the booking surface the HTTP layer needs.
type Engine interface {
	ListSlots(ctx context.Context, offeringID, date, tz string) ([]availability.Slot, error)
	RequestBooking(ctx context.Context, req booking.BookingRequest) (booking.Result, error)
	ConfirmPaidBooking(ctx context.Context, handleID string) (booking.Result, error)
	Reschedule(ctx context.Context, req booking.RescheduleRequest) (booking.Result, error)
	Cancel(ctx context.Context, bookingID, actorProviderID string) (booking.Result, error)
	ListProviderBookings(ctx context.Context, providerID string, limit int) ([]model.Reservation, error)
}

type BookingHandler struct {
	engine Engine
	logger *slog.Logger
}

func NewBookingHandler(engine Engine, logger *slog.Logger) *BookingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BookingHandler{engine: engine, logger: logger}
}

type clientPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type recurrencePayload struct {
	Frequency string `json:"frequency"`
	Count     int    `json:"count"`
}

type createBookingRequest struct {
	OfferingID string             `json:"offering_id"`
	Date       string             `json:"date"`
	Time       string             `json:"time"`
	Timezone   string             `json:"timezone"`
	Client     clientPayload      `json:"client"`
	Recurrence *recurrencePayload `json:"recurrence,omitempty"`
}

type confirmRequest struct {
	PaymentHandle string `json:"payment_handle"`
}

type rescheduleRequest struct {
	Date     string `json:"date"`
	Time     string `json:"time"`
	Timezone string `json:"timezone"`
}

type slotItem struct {
	StartTime         string `json:"start_time"`
	Time              string `json:"time"`
	RemainingCapacity int    `json:"remaining_capacity"`
}

type slotsResponse struct {
	OfferingID string     `json:"offering_id"`
	Date       string     `json:"date"`
	Timezone   string     `json:"timezone"`
	Slots      []slotItem `json:"slots"`
}

type bookingItem struct {
	BookingID         string `json:"booking_id"`
	OfferingID        string `json:"offering_id"`
	StartTime         string `json:"start_time"`
	EndTime           string `json:"end_time"`
	Status            string `json:"status"`
	PaymentStatus     string `json:"payment_status"`
	RecurrenceGroupID string `json:"recurrence_group_id,omitempty"`
	ClientName        string `json:"client_name"`
	ClientEmail       string `json:"client_email,omitempty"`
	CancelledAt       string `json:"cancelled_at,omitempty"`
	CreatedAt         string `json:"created_at"`
}

type resultResponse struct {
	Status        string        `json:"status"`
	Bookings      []bookingItem `json:"bookings,omitempty"`
	PaymentHandle string        `json:"payment_handle,omitempty"`
	ClientSecret  string        `json:"client_secret,omitempty"`
	AmountMinor   int64         `json:"amount_minor,omitempty"`
	Currency      string        `json:"currency,omitempty"`
}

func toBookingItem(r model.Reservation) bookingItem {
	item := bookingItem{
		BookingID:         r.ID,
		OfferingID:        r.OfferingID,
		StartTime:         r.StartTime.UTC().Format(time.RFC3339),
		EndTime:           r.EndTime.UTC().Format(time.RFC3339),
		Status:            string(r.Status),
		PaymentStatus:     string(r.PaymentStatus),
		RecurrenceGroupID: r.RecurrenceGroupID,
		ClientName:        r.Client.Name,
		ClientEmail:       r.Client.Email,
		CreatedAt:         r.CreatedAt.UTC().Format(time.RFC3339),
	}
	if r.CancelledAt != nil {
		item.CancelledAt = r.CancelledAt.UTC().Format(time.RFC3339)
	}
	return item
}

func toResultResponse(res booking.Result) resultResponse {
	out := resultResponse{
		Status:        string(res.Outcome),
		PaymentHandle: res.PaymentHandle,
		ClientSecret:  res.ClientSecret,
		AmountMinor:   res.AmountMinor,
		Currency:      res.Currency,
	}
	for _, r := range res.Reservations {
		out.Bookings = append(out.Bookings, toBookingItem(r))
	}
	return out
}

// Slots lists bookable start times: GET /api/v1/public/slots?offering_id=&date=YYYY-MM-DD&tz=Area/City
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offeringID := strings.TrimSpace(q.Get("offering_id"))
	date := strings.TrimSpace(q.Get("date"))
	tz := strings.TrimSpace(q.Get("tz"))
	if offeringID == "" || date == "" || tz == "" {
		writeBadRequest(w, "offering_id, date and tz are required")
		return
	}

	slots, err := h.engine.ListSlots(r.Context(), offeringID, date, tz)
	if err != nil {
		h.logFailure(r, "list slots failed", err)
		writeEngineError(w, err)
		return
	}

	resp := slotsResponse{OfferingID: offeringID, Date: date, Timezone: tz, Slots: make([]slotItem, 0, len(slots))}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, slotItem{
			StartTime:         s.Start.Format(time.RFC3339),
			Time:              s.Start.Format("15:04"),
			RemainingCapacity: s.Remaining,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create books one slot or a recurring series: POST /api/v1/public/book
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	req.OfferingID = strings.TrimSpace(req.OfferingID)
	if req.OfferingID == "" || strings.TrimSpace(req.Client.Name) == "" {
		writeBadRequest(w, "missing required fields")
		return
	}

	in := booking.BookingRequest{
		OfferingID:     req.OfferingID,
		Date:           req.Date,
		Time:           req.Time,
		Timezone:       req.Timezone,
		Client:         model.Client{Name: req.Client.Name, Email: req.Client.Email, Phone: req.Client.Phone},
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	}
	if req.Recurrence != nil {
		in.Recurrence = &booking.Recurrence{Frequency: booking.Frequency(req.Recurrence.Frequency), Count: req.Recurrence.Count}
	}

	res, err := h.engine.RequestBooking(r.Context(), in)
	if err != nil {
		h.logFailure(r, "booking rejected", err)
		writeEngineError(w, err)
		return
	}

	status := http.StatusCreated
	if res.Outcome == booking.OutcomePaymentRequired {
		status = http.StatusAccepted
	}
	writeJSON(w, status, toResultResponse(res))
}

// Confirm finalizes a paid booking after the client completed payment: POST /api/v1/public/book/confirm
func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	if strings.TrimSpace(req.PaymentHandle) == "" {
		writeBadRequest(w, "payment_handle is required")
		return
	}

	res, err := h.engine.ConfirmPaidBooking(r.Context(), req.PaymentHandle)
	if err != nil {
		h.logFailure(r, "paid booking confirmation failed", err)
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResultResponse(res))
}

// List returns the authenticated provider's bookings: GET /api/v1/bookings?limit=
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, "invalid limit")
			return
		}
		limit = n
	}

	rs, err := h.engine.ListProviderBookings(r.Context(), auth.ProviderIDFromContext(r.Context()), limit)
	if err != nil {
		h.logFailure(r, "list bookings failed", err)
		writeEngineError(w, err)
		return
	}
	items := make([]bookingItem, 0, len(rs))
	for _, res := range rs {
		items = append(items, toBookingItem(res))
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": items})
}

// Reschedule moves a booking: POST /api/v1/bookings/{id}/reschedule
func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}

	res, err := h.engine.Reschedule(r.Context(), booking.RescheduleRequest{
		BookingID:       chi.URLParam(r, "id"),
		Date:            req.Date,
		Time:            req.Time,
		Timezone:        req.Timezone,
		ActorProviderID: auth.ProviderIDFromContext(r.Context()),
	})
	if err != nil {
		h.logFailure(r, "reschedule rejected", err)
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResultResponse(res))
}

// Cancel cancels a booking: POST /api/v1/bookings/{id}/cancel
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Cancel(r.Context(), chi.URLParam(r, "id"), auth.ProviderIDFromContext(r.Context()))
	if err != nil {
		h.logFailure(r, "cancel rejected", err)
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResultResponse(res))
}

func (h *BookingHandler) logFailure(r *http.Request, msg string, err error) {
	level := slog.LevelInfo
	if statusFor(err) >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, msg,
		"request_id", httpx.RequestIDFromContext(r.Context()),
		"reason", booking.Reason(err),
		"err", err,
	)
}
