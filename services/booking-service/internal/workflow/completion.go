package workflow

import (
	"context"
	"fmt"

	"github.com/detailbook/detailbook/services/booking-service/internal/model"
	"github.com/detailbook/detailbook/services/booking-service/internal/notify"
	"github.com/detailbook/detailbook/services/booking-service/internal/threads"
)

// complete closes the thread and records res. A run that offered
// alternatives also completes, with Success false.
func (e *Engine) complete(ctx context.Context, rc *runContext, res model.RunResult) error {
	if err := e.threads.Reply(ctx, rc.tenant.ID, rc.run.ThreadID, res.Message); err != nil {
		return err
	}
	if err := e.threads.Finish(ctx, rc.tenant.ID, rc.run.ThreadID, threads.Update{
		Title:   threadTitle(rc),
		Summary: res.Message,
		Status:  model.ThreadCompleted,
	}); err != nil {
		return fmt.Errorf("finish thread: %w", err)
	}

	rc.run.Result = &res
	rc.run.LastError = ""
	if err := e.transition(ctx, rc, model.StateCompleted); err != nil {
		return err
	}
	e.cleanup(ctx, rc)
	e.logger.Info("workflow completed", "run_id", rc.run.ID, "kind", rc.run.Kind, "success", res.Success, "booking_id", res.BookingID)
	return nil
}

// fail marks the run failed, alerts the tenant and apologizes to the client.
// Everything but the state change is best effort.
func (e *Engine) fail(ctx context.Context, rc *runContext, cause error) error {
	e.logger.Error("workflow failed", "run_id", rc.run.ID, "kind", rc.run.Kind, "state", rc.run.State, "err", cause)
	tenantID := rc.run.TenantID
	res := model.RunResult{Success: false, BookingID: rc.booking.ID, Message: apologyMessage(rc.run.Kind)}

	if _, err := e.notifier.Notify(ctx, model.Notification{
		TenantID:   tenantID,
		Type:       model.NotificationWorkflowError,
		ResourceID: rc.run.ID,
		Message:    workflowErrorMessage(rc, cause),
		DedupeKey:  dedupeKey(rc.run.ID, string(model.NotificationWorkflowError)),
	}); err != nil {
		e.logger.Warn("workflow error notification failed", "run_id", rc.run.ID, "err", err)
	}

	if err := e.threads.Reply(ctx, tenantID, rc.run.ThreadID, res.Message); err != nil {
		e.logger.Warn("workflow apology not recorded", "run_id", rc.run.ID, "err", err)
	}
	email, phone := rc.intent.ClientEmail, rc.intent.ClientPhone
	if rc.booking.ID != "" {
		email, phone = rc.booking.ClientEmail, rc.booking.ClientPhone
	}
	if email != "" || phone != "" {
		if err := e.notifier.Deliver(ctx, notify.ClientMessage{
			TenantID:  tenantID,
			DedupeKey: dedupeKey(rc.run.ID, "apology"),
			Email:     email,
			Phone:     phone,
			Subject:   "We couldn't complete your request",
			Body:      res.Message,
		}); err != nil {
			e.logger.Warn("workflow apology not delivered", "run_id", rc.run.ID, "err", err)
		}
	}
	if err := e.threads.Finish(ctx, tenantID, rc.run.ThreadID, threads.Update{
		Title:   threadTitle(rc),
		Summary: "Failed: " + cause.Error(),
		Status:  model.ThreadFailed,
	}); err != nil {
		e.logger.Warn("workflow thread not closed", "run_id", rc.run.ID, "err", err)
	}

	rc.run.Result = &res
	rc.run.LastError = cause.Error()
	if err := e.transition(ctx, rc, model.StateFailed); err != nil {
		return err
	}
	e.cleanup(ctx, rc)
	return nil
}

// cancel stops a run on external request. Work already done is kept.
func (e *Engine) cancel(ctx context.Context, rc *runContext) error {
	res := model.RunResult{Success: false, BookingID: rc.booking.ID, Message: canceledMessage}
	if err := e.threads.Reply(ctx, rc.run.TenantID, rc.run.ThreadID, res.Message); err != nil {
		e.logger.Warn("workflow cancel message not recorded", "run_id", rc.run.ID, "err", err)
	}
	if err := e.threads.Finish(ctx, rc.run.TenantID, rc.run.ThreadID, threads.Update{
		Title:   threadTitle(rc),
		Summary: res.Message,
		Status:  model.ThreadCanceled,
	}); err != nil {
		e.logger.Warn("workflow thread not closed", "run_id", rc.run.ID, "err", err)
	}

	rc.run.Result = &res
	if err := e.transition(ctx, rc, model.StateCanceled); err != nil {
		return err
	}
	e.cleanup(ctx, rc)
	e.logger.Info("workflow canceled", "run_id", rc.run.ID)
	return nil
}

func (e *Engine) cleanup(ctx context.Context, rc *runContext) {
	if err := e.store.DeleteSteps(ctx, rc.run.ID); err != nil {
		e.logger.Warn("workflow step cleanup failed", "run_id", rc.run.ID, "err", err)
	}
}
