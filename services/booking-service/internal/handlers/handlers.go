package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/detailbook/detailbook/libs/httpx"
	"github.com/detailbook/detailbook/services/booking-service/internal/availability"
	"github.com/detailbook/detailbook/services/booking-service/internal/bookings"
	"github.com/detailbook/detailbook/services/booking-service/internal/clients"
	"github.com/detailbook/detailbook/services/booking-service/internal/model"
	"github.com/detailbook/detailbook/services/booking-service/internal/notify"
	"github.com/detailbook/detailbook/services/booking-service/internal/tenants"
	"github.com/detailbook/detailbook/services/booking-service/internal/threads"
	"github.com/detailbook/detailbook/services/booking-service/internal/workflow"
)

// Deps are the services behind the HTTP surface.
type Deps struct {
	Tenants      *tenants.Service
	Availability *availability.Engine
	Clients      *clients.Service
	Bookings     *bookings.Manager
	Notifier     *notify.Service
	Threads      *threads.Service
	Workflows    *workflow.Service
	Logger       *slog.Logger
}

// Register mounts every /api/v1 route on mux.
func Register(mux *http.ServeMux, d Deps) {
	scheduling := NewSchedulingHandler(d.Tenants, d.Availability, d.Logger)
	clientHandler := NewClientHandler(d.Clients, d.Logger)
	bookingHandler := NewBookingHandler(d.Tenants, d.Availability, d.Clients, d.Bookings, d.Logger)
	assistant := NewAssistantHandler(d.Workflows, d.Threads, d.Logger)
	notifications := NewNotificationHandler(d.Notifier, d.Logger)
	tenantHandler := NewTenantHandler(d.Tenants, d.Logger)

	mux.HandleFunc("/api/v1/services", scheduling.Services)
	mux.HandleFunc("/api/v1/availability", scheduling.Availability)
	mux.HandleFunc("/api/v1/conflicts/check", scheduling.CheckConflict)
	mux.HandleFunc("/api/v1/clients", clientHandler.Clients)
	mux.HandleFunc("/api/v1/clients/delete", clientHandler.Delete)
	mux.HandleFunc("/api/v1/bookings", bookingHandler.Bookings)
	mux.HandleFunc("/api/v1/bookings/update", bookingHandler.Update)
	mux.HandleFunc("/api/v1/bookings/cancel", bookingHandler.Cancel)
	mux.HandleFunc("/api/v1/assistant/book", assistant.Book)
	mux.HandleFunc("/api/v1/assistant/reschedule", assistant.Reschedule)
	mux.HandleFunc("/api/v1/assistant/cancel", assistant.Cancel)
	mux.HandleFunc("/api/v1/assistant/threads", assistant.Thread)
	mux.HandleFunc("/api/v1/workflows", assistant.Workflow)
	mux.HandleFunc("/api/v1/workflows/cancel", assistant.CancelWorkflow)
	mux.HandleFunc("/api/v1/notifications", notifications.List)
	mux.HandleFunc("/api/v1/notifications/read", notifications.MarkRead)
	mux.HandleFunc("/api/v1/tenants", tenantHandler.Tenants)
}

// PublicPaths need no bearer token.
var PublicPaths = []string{"/healthz", "/readyz", "/api/v1/services"}

type idRequest struct {
	ID string `json:"id"`
}

func tenantID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(httpx.TenantHeader))
}

// requireTenant writes a 400 and returns false when the tenant header is missing.
func requireTenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := tenantID(r)
	if id == "" {
		http.Error(w, "missing "+httpx.TenantHeader, http.StatusBadRequest)
		return "", false
	}
	return id, true
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrConflict), errors.Is(err, model.ErrInvalidState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps domain errors to status codes. Internal details are logged, not returned.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logger.Error("request failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"err", err,
		)
		http.Error(w, "internal error", code)
		return
	}
	http.Error(w, err.Error(), code)
}

func queryLimit(r *http.Request, fallback, max int) int {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	if n > max {
		return max
	}
	return n
}
