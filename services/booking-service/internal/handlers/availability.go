package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/slotbook/libs/auth"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

type AvailabilityStore interface {
	ListWeeklyRules(ctx context.Context, providerID string) ([]model.WeeklyRule, error)
	ReplaceWeeklyRules(ctx context.Context, providerID string, rules []model.WeeklyRule) error
	GetOverride(ctx context.Context, providerID, date string) (*model.DateOverride, error)
	UpsertOverride(ctx context.Context, o model.DateOverride) error
	DeleteOverride(ctx context.Context, providerID, date string) error
}

// AvailabilityHandler edits the authenticated provider's weekly rules and date overrides.
type AvailabilityHandler struct {
	store  AvailabilityStore
	logger *slog.Logger
}

func NewAvailabilityHandler(store AvailabilityStore, logger *slog.Logger) *AvailabilityHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AvailabilityHandler{store: store, logger: logger}
}

type weeklyRuleItem struct {
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type weeklyRulesPayload struct {
	Rules []weeklyRuleItem `json:"rules"`
}

type overridePayload struct {
	Date        string `json:"date"`
	IsAvailable bool   `json:"is_available"`
	StartTime   string `json:"start_time,omitempty"`
	EndTime     string `json:"end_time,omitempty"`
}

func (h *AvailabilityHandler) GetWeekly(w http.ResponseWriter, r *http.Request) {
	rules, err := h.store.ListWeeklyRules(r.Context(), auth.ProviderIDFromContext(r.Context()))
	if err != nil {
		h.logger.Error("list weekly rules failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	out := weeklyRulesPayload{Rules: make([]weeklyRuleItem, 0, len(rules))}
	for _, rule := range rules {
		out.Rules = append(out.Rules, weeklyRuleItem{DayOfWeek: rule.DayOfWeek, StartTime: rule.StartTime, EndTime: rule.EndTime})
	}
	writeJSON(w, http.StatusOK, out)
}

// PutWeekly replaces every weekly rule of the provider in one transaction.
func (h *AvailabilityHandler) PutWeekly(w http.ResponseWriter, r *http.Request) {
	var req weeklyRulesPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	rules := make([]model.WeeklyRule, 0, len(req.Rules))
	for _, item := range req.Rules {
		rules = append(rules, model.WeeklyRule{
			DayOfWeek: item.DayOfWeek,
			StartTime: strings.TrimSpace(item.StartTime),
			EndTime:   strings.TrimSpace(item.EndTime),
		})
	}
	if err := availability.ValidateWeeklyRules(rules); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	providerID := auth.ProviderIDFromContext(r.Context())
	if err := h.store.ReplaceWeeklyRules(r.Context(), providerID, rules); err != nil {
		h.logger.Error("replace weekly rules failed", "provider_id", providerID, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	h.logger.Info("weekly rules replaced", "provider_id", providerID, "rules", len(rules))
	writeJSON(w, http.StatusOK, req)
}

func (h *AvailabilityHandler) GetOverride(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	o, err := h.store.GetOverride(r.Context(), auth.ProviderIDFromContext(r.Context()), date)
	if err != nil {
		h.logger.Error("get override failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	if o == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no override for date", Reason: "not_found"})
		return
	}
	writeJSON(w, http.StatusOK, overridePayload{Date: o.Date, IsAvailable: o.IsAvailable, StartTime: o.StartTime, EndTime: o.EndTime})
}

func (h *AvailabilityHandler) PutOverride(w http.ResponseWriter, r *http.Request) {
	var req overridePayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	providerID := auth.ProviderIDFromContext(r.Context())
	o := model.DateOverride{
		ProviderID:  providerID,
		Date:        chi.URLParam(r, "date"),
		IsAvailable: req.IsAvailable,
		StartTime:   strings.TrimSpace(req.StartTime),
		EndTime:     strings.TrimSpace(req.EndTime),
	}
	if err := availability.ValidateOverride(o); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if err := h.store.UpsertOverride(r.Context(), o); err != nil {
		h.logger.Error("upsert override failed", "provider_id", providerID, "date", o.Date, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, overridePayload{Date: o.Date, IsAvailable: o.IsAvailable, StartTime: o.StartTime, EndTime: o.EndTime})
}

func (h *AvailabilityHandler) DeleteOverride(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	err := h.store.DeleteOverride(r.Context(), auth.ProviderIDFromContext(r.Context()), date)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no override for date", Reason: "not_found"})
	case err != nil:
		h.logger.Error("delete override failed", "date", date, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
