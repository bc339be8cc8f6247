package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/detailbook/detailbook/services/booking-service/internal/model"
	"github.com/detailbook/detailbook/services/booking-service/internal/threads"
	"github.com/detailbook/detailbook/services/booking-service/internal/workflow"
)

// AssistantHandler starts workflow runs and exposes their threads and status.
type AssistantHandler struct {
	workflows *workflow.Service
	threads   *threads.Service
	logger    *slog.Logger
}

func NewAssistantHandler(workflows *workflow.Service, threadSvc *threads.Service, logger *slog.Logger) *AssistantHandler {
	return &AssistantHandler{workflows: workflows, threads: threadSvc, logger: logger}
}

type assistantBookRequest struct {
	ThreadID string        `json:"thread_id"`
	Message  string        `json:"message"`
	Contact  model.Contact `json:"contact"`
	Date     string        `json:"date"`
	Time     string        `json:"time"`
}

type assistantRescheduleRequest struct {
	ThreadID  string `json:"thread_id"`
	BookingID string `json:"booking_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
}

type assistantCancelRequest struct {
	ThreadID  string `json:"thread_id"`
	BookingID string `json:"booking_id"`
	Reason    string `json:"reason"`
}

type runAccepted struct {
	RunID    string         `json:"run_id"`
	ThreadID string         `json:"thread_id"`
	State    model.RunState `json:"state"`
}

type threadResponse struct {
	Thread   model.Thread    `json:"thread"`
	Messages []model.Message `json:"messages"`
}

func (h *AssistantHandler) Book(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	tid, ok := requireTenant(w, r)
	if !ok {
		return
	}
	var req assistantBookRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	run, err := h.workflows.StartBooking(r.Context(), workflow.BookingRequest{
		TenantID: tid,
		ThreadID: strings.TrimSpace(req.ThreadID),
		Text:     req.Message,
		Contact:  req.Contact,
		Date:     req.Date,
		Time:     req.Time,
	})
	h.accepted(w, r, run, err)
}

func (h *AssistantHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	tid, ok := requireTenant(w, r)
	if !ok {
		return
	}
	var req assistantRescheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	run, err := h.workflows.StartReschedule(r.Context(), workflow.RescheduleRequest{
		TenantID:  tid,
		ThreadID:  strings.TrimSpace(req.ThreadID),
		BookingID: req.BookingID,
		Date:      strings.TrimSpace(req.Date),
		Time:      strings.TrimSpace(req.Time),
	})
	h.accepted(w, r, run, err)
}

func (h *AssistantHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	tid, ok := requireTenant(w, r)
	if !ok {
		return
	}
	var req assistantCancelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	run, err := h.workflows.StartCancellation(r.Context(), workflow.CancellationRequest{
		TenantID:  tid,
		ThreadID:  strings.TrimSpace(req.ThreadID),
		BookingID: req.BookingID,
		Reason:    req.Reason,
	})
	h.accepted(w, r, run, err)
}

func (h *AssistantHandler) accepted(w http.ResponseWriter, r *http.Request, run model.Run, err error) {
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, runAccepted{RunID: run.ID, ThreadID: run.ThreadID, State: run.State})
}

func (h *AssistantHandler) Thread(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	tid, ok := requireTenant(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	th, msgs, err := h.threads.Get(r.Context(), tid, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	writeJSON(w, http.StatusOK, threadResponse{Thread: th, Messages: msgs})
}

func (h *AssistantHandler) Workflow(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	tid, ok := requireTenant(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	run, err := h.workflows.Get(r.Context(), tid, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// CancelWorkflow requests an external abort; the run stops before its next step.
func (h *AssistantHandler) CancelWorkflow(w http.ResponseWriter, r *http.Request) {
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
	run, err := h.workflows.Cancel(r.Context(), tid, strings.TrimSpace(req.ID))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}
