package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/detailbook/detailbook/services/booking-service/internal/availability"
	"github.com/detailbook/detailbook/services/booking-service/internal/bookings"
	"github.com/detailbook/detailbook/services/booking-service/internal/catalog"
	"github.com/detailbook/detailbook/services/booking-service/internal/clients"
	"github.com/detailbook/detailbook/services/booking-service/internal/model"
	"github.com/detailbook/detailbook/services/booking-service/internal/tenants"
)

type BookingHandler struct {
	tenants  *tenants.Service
	engine   *availability.Engine
	clients  *clients.Service
	bookings *bookings.Manager
	logger   *slog.Logger
	now      func() time.Time
}

func NewBookingHandler(tenantSvc *tenants.Service, engine *availability.Engine, clientSvc *clients.Service, mgr *bookings.Manager, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		tenants:  tenantSvc,
		engine:   engine,
		clients:  clientSvc,
		bookings: mgr,
		logger:   logger,
		now:      time.Now,
	}
}

type createBookingRequest struct {
	ClientID    string `json:"client_id"`
	ClientName  string `json:"client_name"`
	ClientEmail string `json:"client_email"`
	ClientPhone string `json:"client_phone"`
	Service     string `json:"service"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Notes       string `json:"notes"`
}

type updateBookingRequest struct {
	ID      string               `json:"id"`
	Date    string               `json:"date"`
	Time    string               `json:"time"`
	Service *string              `json:"service"`
	Status  *model.BookingStatus `json:"status"`
	Notes   *string              `json:"notes"`
}

type cancelBookingRequest struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

type conflictResponse struct {
	Error        string   `json:"error"`
	Message      string   `json:"message"`
	BookingID    string   `json:"conflicting_booking_id,omitempty"`
	Alternatives []string `json:"alternatives"`
}

// Bookings serves GET list and POST direct create on the same path.
func (h *BookingHandler) Bookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// list returns one local day with ?date=, otherwise the most recent bookings.
func (h *BookingHandler) list(w http.ResponseWriter, r *http.Request) {
	tid, ok := requireTenant(w, r)
	if !ok {
		return
	}
	var (
		items []model.Booking
		err   error
	)
	if date := strings.TrimSpace(r.URL.Query().Get("date")); date != "" {
		items, err = h.bookings.ListByDate(r.Context(), tid, date)
	} else {
		items, err = h.bookings.ListRecent(r.Context(), tid, queryLimit(r, 50, 200))
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if items == nil {
		items = []model.Booking{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) create(w http.ResponseWriter, r *http.Request) {
	tid, ok := requireTenant(w, r)
	if !ok {
		return
	}
	var req createBookingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Service = strings.TrimSpace(req.Service)
	if req.Service == "" || strings.TrimSpace(req.Date) == "" || strings.TrimSpace(req.Time) == "" {
		http.Error(w, "service, date and time are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tenant, err := h.tenants.Get(ctx, tid)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	start, err := model.StartDateTime(req.Date, req.Time, tenant.Location())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if start.Before(h.now()) {
		http.Error(w, "cannot book a time in the past", http.StatusBadRequest)
		return
	}
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		existing, found, err := h.bookings.Lookup(ctx, tid, key)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		if found {
			writeJSON(w, http.StatusCreated, existing)
			return
		}
	}
	if req.ClientID != "" {
		if _, err := h.clients.Get(ctx, tid, req.ClientID); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	}

	if h.rejectConflict(ctx, w, tenant, req.Date, req.Service, start, "") {
		return
	}

	b, err := h.bookings.Create(ctx, bookings.CreateInput{
		TenantID: tid,
		ClientID: strings.TrimSpace(req.ClientID),
		Contact: model.Contact{
			Name:  req.ClientName,
			Email: req.ClientEmail,
			Phone: req.ClientPhone,
		},
		Service:        req.Service,
		DateTime:       start,
		Notes:          req.Notes,
		IdempotencyKey: key,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *BookingHandler) Update(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	tid, ok := requireTenant(w, r)
	if !ok {
		return
	}
	var req updateBookingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tenant, err := h.tenants.Get(ctx, tid)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	current, err := h.bookings.Get(ctx, tid, req.ID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	patch := bookings.Patch{Service: req.Service, Status: req.Status, Notes: req.Notes}
	loc := tenant.Location()
	local := current.DateTime.In(loc)
	date, clock := local.Format(model.DateLayout), local.Format("15:04")
	if req.Date != "" || req.Time != "" {
		if req.Date != "" {
			date = req.Date
		}
		if req.Time != "" {
			clock = req.Time
		}
		start, err := model.StartDateTime(date, clock, loc)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		patch.DateTime = &start
	}

	moving := patch.DateTime != nil || patch.Service != nil
	if moving && current.Status == model.BookingScheduled && (patch.Status == nil || *patch.Status == model.BookingScheduled) {
		start := current.DateTime
		if patch.DateTime != nil {
			start = *patch.DateTime
		}
		service := current.Service
		if patch.Service != nil {
			service = strings.TrimSpace(*patch.Service)
		}
		if h.rejectConflict(ctx, w, tenant, date, service, start, current.ID) {
			return
		}
	}

	b, err := h.bookings.Update(ctx, tid, req.ID, patch)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	tid, ok := requireTenant(w, r)
	if !ok {
		return
	}
	var req cancelBookingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	b, err := h.bookings.Cancel(r.Context(), tid, strings.TrimSpace(req.ID), req.Reason)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// rejectConflict writes a 409 with alternatives and returns true when
// [start, start+duration) overlaps another scheduled booking.
func (h *BookingHandler) rejectConflict(ctx context.Context, w http.ResponseWriter, tenant model.Tenant, date, service string, start time.Time, excludeID string) bool {
	res, err := h.engine.CheckConflict(ctx, tenant.ID, start, start.Add(catalog.Duration(service)), excludeID)
	if err != nil {
		h.logger.Error("conflict check failed", "tenant_id", tenant.ID, "err", err)
		http.Error(w, "conflict check failed", statusFor(err))
		return true
	}
	if !res.HasConflict {
		return false
	}

	alternatives := []string{}
	slots, err := h.engine.SlotsExcluding(ctx, tenant.ID, date, service, excludeID)
	if err != nil {
		h.logger.Warn("alternatives unavailable", "tenant_id", tenant.ID, "err", err)
	} else if alts := availability.Alternatives(slots, start, availability.MaxAlternatives); len(alts) > 0 {
		alternatives = alts
	}
	writeJSON(w, http.StatusConflict, conflictResponse{
		Error:        "time slot unavailable",
		Message:      res.Message,
		BookingID:    res.BookingID,
		Alternatives: alternatives,
	})
	return true
}
