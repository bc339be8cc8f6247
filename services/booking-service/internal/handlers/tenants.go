package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/detailbook/detailbook/services/booking-service/internal/tenants"
)

type TenantHandler struct {
	tenants *tenants.Service
	logger  *slog.Logger
}

func NewTenantHandler(svc *tenants.Service, logger *slog.Logger) *TenantHandler {
	return &TenantHandler{tenants: svc, logger: logger}
}

// Tenants serves POST signup and GET for the caller's tenant.
func (h *TenantHandler) Tenants(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tid, ok := requireTenant(w, r)
		if !ok {
			return
		}
		t, err := h.tenants.Get(r.Context(), tid)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	case http.MethodPost:
		var in tenants.SignupInput
		if !decodeJSON(w, r, &in) {
			return
		}
		// A verified token pins the id of the tenant being created.
		if tid := tenantID(r); tid != "" {
			if id := strings.TrimSpace(in.ID); id != "" && id != tid {
				http.Error(w, "tenant id does not match token", http.StatusForbidden)
				return
			}
			in.ID = tid
		}
		t, err := h.tenants.Signup(r.Context(), in)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		h.logger.Info("tenant created", "tenant_id", t.ID)
		writeJSON(w, http.StatusCreated, t)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
