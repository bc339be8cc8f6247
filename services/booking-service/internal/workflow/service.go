package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	otelx "github.com/detailbook/detailbook/libs/otel"
	"github.com/detailbook/detailbook/services/booking-service/internal/model"
	"github.com/detailbook/detailbook/services/booking-service/internal/threads"
)

// Service starts, inspects and aborts workflow runs.
type Service struct {
	store      Store
	threads    *threads.Service
	dispatcher Dispatcher
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(store Store, threadSvc *threads.Service, dispatcher Dispatcher, logger *slog.Logger) *Service {
	return &Service{store: store, threads: threadSvc, dispatcher: dispatcher, logger: logger, now: time.Now}
}

type BookingRequest struct {
	TenantID string
	ThreadID string
	Text     string
	// Contact fills client details the text leaves out.
	Contact model.Contact
	// Date and Time override what the text says, when set.
	Date string
	Time string
}

type RescheduleRequest struct {
	TenantID  string
	ThreadID  string
	BookingID string
	Date      string
	Time      string
}

type CancellationRequest struct {
	TenantID  string
	ThreadID  string
	BookingID string
	Reason    string
}

func (s *Service) StartBooking(ctx context.Context, req BookingRequest) (model.Run, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return model.Run{}, fmt.Errorf("%w: text required", model.ErrValidation)
	}
	if clock := strings.TrimSpace(req.Time); clock != "" {
		if _, err := model.ParseStartClock(clock); err != nil {
			return model.Run{}, fmt.Errorf("%w: time must be HH:MM", model.ErrValidation)
		}
	}
	return s.start(ctx, req.TenantID, req.ThreadID, model.RunBooking, text, model.RunInput{
		Text:    text,
		Contact: req.Contact,
		Date:    strings.TrimSpace(req.Date),
		Time:    strings.TrimSpace(req.Time),
	})
}

func (s *Service) StartReschedule(ctx context.Context, req RescheduleRequest) (model.Run, error) {
	if strings.TrimSpace(req.BookingID) == "" {
		return model.Run{}, fmt.Errorf("%w: booking_id required", model.ErrValidation)
	}
	if _, err := time.Parse(model.DateLayout, req.Date); err != nil {
		return model.Run{}, fmt.Errorf("%w: date must be YYYY-MM-DD", model.ErrValidation)
	}
	if _, err := model.ParseStartClock(req.Time); err != nil {
		return model.Run{}, fmt.Errorf("%w: time must be HH:MM", model.ErrValidation)
	}
	opening := fmt.Sprintf("Move booking %s to %s at %s", req.BookingID, req.Date, req.Time)
	return s.start(ctx, req.TenantID, req.ThreadID, model.RunReschedule, opening, model.RunInput{
		BookingID: strings.TrimSpace(req.BookingID),
		Date:      req.Date,
		Time:      req.Time,
	})
}

func (s *Service) StartCancellation(ctx context.Context, req CancellationRequest) (model.Run, error) {
	if strings.TrimSpace(req.BookingID) == "" {
		return model.Run{}, fmt.Errorf("%w: booking_id required", model.ErrValidation)
	}
	opening := "Cancel booking " + req.BookingID
	if r := strings.TrimSpace(req.Reason); r != "" {
		opening += ": " + r
	}
	return s.start(ctx, req.TenantID, req.ThreadID, model.RunCancellation, opening, model.RunInput{
		BookingID: strings.TrimSpace(req.BookingID),
		Reason:    strings.TrimSpace(req.Reason),
	})
}

func (s *Service) start(ctx context.Context, tenantID, threadID string, kind model.RunKind, opening string, in model.RunInput) (model.Run, error) {
	if _, err := s.store.GetTenant(ctx, tenantID); err != nil {
		return model.Run{}, fmt.Errorf("load tenant: %w", err)
	}

	var th model.Thread
	var err error
	if threadID != "" {
		th, err = s.threads.Resume(ctx, tenantID, threadID, opening)
	} else {
		th, err = s.threads.Start(ctx, tenantID, opening)
	}
	if err != nil {
		return model.Run{}, err
	}

	now := s.now().UTC()
	run := model.Run{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		ThreadID:  th.ID,
		Kind:      kind,
		State:     model.StatePending,
		Input:     in,
		Trace:     otelx.InjectCarrier(ctx),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return model.Run{}, fmt.Errorf("create run: %w", err)
	}
	if err := s.dispatcher.Dispatch(ctx, run.ID); err != nil {
		s.logger.Warn("workflow dispatch failed, run left for sweeper", "run_id", run.ID, "err", err)
	}
	s.logger.Info("workflow started", "run_id", run.ID, "kind", kind, "tenant_id", tenantID, "thread_id", th.ID)
	return run, nil
}

// Cancel asks a run to stop before its next step.
func (s *Service) Cancel(ctx context.Context, tenantID, runID string) (model.Run, error) {
	run, err := s.store.RequestRunCancel(ctx, tenantID, runID)
	if err != nil {
		return model.Run{}, err
	}
	s.logger.Info("workflow cancel requested", "run_id", runID, "tenant_id", tenantID)
	return run, nil
}

func (s *Service) Get(ctx context.Context, tenantID, runID string) (model.Run, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return model.Run{}, err
	}
	if run.TenantID != tenantID {
		return model.Run{}, fmt.Errorf("run %s: %w", runID, model.ErrNotFound)
	}
	return run, nil
}
