package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/detailbook/detailbook/services/booking-service/internal/clients"
	"github.com/detailbook/detailbook/services/booking-service/internal/model"
)

type ClientHandler struct {
	clients *clients.Service
	logger  *slog.Logger
}

func NewClientHandler(svc *clients.Service, logger *slog.Logger) *ClientHandler {
	return &ClientHandler{clients: svc, logger: logger}
}

type createClientRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Notes string `json:"notes"`
}

// Clients serves GET ?search= and POST create on the same path.
func (h *ClientHandler) Clients(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.search(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ClientHandler) search(w http.ResponseWriter, r *http.Request) {
	tid, ok := requireTenant(w, r)
	if !ok {
		return
	}
	found, err := h.clients.Search(r.Context(), tid, r.URL.Query().Get("search"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if found == nil {
		found = []model.Client{}
	}
	writeJSON(w, http.StatusOK, found)
}

func (h *ClientHandler) create(w http.ResponseWriter, r *http.Request) {
	tid, ok := requireTenant(w, r)
	if !ok {
		return
	}
	var req createClientRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.clients.Create(r.Context(), tid, model.Contact{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
	}, strings.TrimSpace(req.Notes))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *ClientHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
	if err := h.clients.Delete(r.Context(), tid, strings.TrimSpace(req.ID)); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
