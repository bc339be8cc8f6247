package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/detailbook/detailbook/services/booking-service/internal/availability"
	"github.com/detailbook/detailbook/services/booking-service/internal/catalog"
	"github.com/detailbook/detailbook/services/booking-service/internal/model"
	"github.com/detailbook/detailbook/services/booking-service/internal/tenants"
)

type SchedulingHandler struct {
	tenants *tenants.Service
	engine  *availability.Engine
	logger  *slog.Logger
}

func NewSchedulingHandler(tenantSvc *tenants.Service, engine *availability.Engine, logger *slog.Logger) *SchedulingHandler {
	return &SchedulingHandler{tenants: tenantSvc, engine: engine, logger: logger}
}

type availabilityResponse struct {
	Date    string              `json:"date"`
	Service string              `json:"service"`
	Slots   []availability.Slot `json:"slots"`
}

type conflictRequest struct {
	Date             string `json:"date"`
	Time             string `json:"time"`
	Service          string `json:"service"`
	DurationMinutes  int    `json:"duration_minutes"`
	ExcludeBookingID string `json:"exclude_booking_id"`
}

func (h *SchedulingHandler) Services(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, catalog.All())
}

// Availability lists the day's slots, or checks one time when ?time= is given.
func (h *SchedulingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	tid, ok := requireTenant(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	date := strings.TrimSpace(q.Get("date"))
	service := strings.TrimSpace(q.Get("service"))
	if date == "" {
		http.Error(w, "date is required", http.StatusBadRequest)
		return
	}

	if clock := strings.TrimSpace(q.Get("time")); clock != "" {
		res, err := h.engine.Check(r.Context(), tid, date, clock, service, "")
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	slots, err := h.engine.Slots(r.Context(), tid, date, service)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if slots == nil {
		slots = []availability.Slot{}
	}
	writeJSON(w, http.StatusOK, availabilityResponse{Date: date, Service: service, Slots: slots})
}

func (h *SchedulingHandler) CheckConflict(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	tid, ok := requireTenant(w, r)
	if !ok {
		return
	}
	var req conflictRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DurationMinutes < 0 {
		http.Error(w, "duration_minutes must be positive", http.StatusBadRequest)
		return
	}

	tenant, err := h.tenants.Get(r.Context(), tid)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	start, err := model.StartDateTime(req.Date, req.Time, tenant.Location())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	duration := catalog.Duration(strings.TrimSpace(req.Service))
	if req.DurationMinutes > 0 {
		duration = time.Duration(req.DurationMinutes) * time.Minute
	}

	res, err := h.engine.CheckConflict(r.Context(), tid, start, start.Add(duration), strings.TrimSpace(req.ExcludeBookingID))
	if err != nil {
		writeError(w, r, h.logger, fmt.Errorf("check conflict: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}
