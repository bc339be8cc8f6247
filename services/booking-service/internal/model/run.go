package model

import (
	"encoding/json"
	"time"
)

type RunKind string

const (
	RunBooking      RunKind = "booking"
	RunReschedule   RunKind = "reschedule"
	RunCancellation RunKind = "cancellation"
)

type RunState string

const (
	StatePending                RunState = "pending"
	StateParsing                RunState = "parsing"
	StateResolvingClient        RunState = "resolving_client"
	StateLoadingBooking         RunState = "loading_booking"
	StateCheckingAvailability   RunState = "checking_availability"
	StateCreatingBooking        RunState = "creating_booking"
	StateSuggestingAlternatives RunState = "suggesting_alternatives"
	StateUpdatingBooking        RunState = "updating_booking"
	StateCancellingBooking      RunState = "cancelling_booking"
	StateNotifying              RunState = "notifying"
	StateGeneratingConfirmation RunState = "generating_confirmation"
	StateCompleted              RunState = "completed"
	StateFailed                 RunState = "failed"
	StateCanceled               RunState = "canceled"
)

func (s RunState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCanceled
}

// RunInput is the request that started a run. Which fields are set depends on Kind.
type RunInput struct {
	Text      string  `json:"text,omitempty"`
	Contact   Contact `json:"contact,omitempty"`
	BookingID string  `json:"booking_id,omitempty"`
	Date      string  `json:"date,omitempty"`
	Time      string  `json:"time,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}

type RunResult struct {
	Success      bool     `json:"success"`
	BookingID    string   `json:"booking_id,omitempty"`
	Message      string   `json:"message,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`
}

type Run struct {
	ID              string            `json:"id"`
	TenantID        string            `json:"tenant_id"`
	ThreadID        string            `json:"thread_id"`
	Kind            RunKind           `json:"kind"`
	State           RunState          `json:"state"`
	Input           RunInput          `json:"input"`
	Result          *RunResult        `json:"result,omitempty"`
	CancelRequested bool              `json:"cancel_requested,omitempty"`
	LastError       string            `json:"last_error,omitempty"`
	Trace           map[string]string `json:"-"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// StepRecord persists one completed step. Result is set when the step ended the run.
type StepRecord struct {
	RunID       string          `json:"run_id"`
	Name        string          `json:"name"`
	Output      json.RawMessage `json:"output,omitempty"`
	Result      *RunResult      `json:"result,omitempty"`
	Attempts    int             `json:"attempts"`
	CompletedAt time.Time       `json:"completed_at"`
}
