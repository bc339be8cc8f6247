package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/detailbook/detailbook/services/booking-service/internal/model"
	"github.com/detailbook/detailbook/services/booking-service/internal/notify"
)

type NotificationHandler struct {
	notifier *notify.Service
	logger   *slog.Logger
}

func NewNotificationHandler(notifier *notify.Service, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{notifier: notifier, logger: logger}
}

// List returns newest first; ?unread=true hides read ones.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	tid, ok := requireTenant(w, r)
	if !ok {
		return
	}
	unread := strings.EqualFold(r.URL.Query().Get("unread"), "true")
	items, err := h.notifier.List(r.Context(), tid, unread, queryLimit(r, 50, 200))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if items == nil {
		items = []model.Notification{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	tid, ok := requireTenant(w, r)
	if !ok {
		return
	}
	var req idRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	if err := h.notifier.MarkRead(r.Context(), tid, strings.TrimSpace(req.ID)); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
