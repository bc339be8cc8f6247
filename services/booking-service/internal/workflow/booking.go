package workflow

import (
	"context"
	"fmt"

	"github.com/detailbook/detailbook/services/booking-service/internal/availability"
	"github.com/detailbook/detailbook/services/booking-service/internal/bookings"
	"github.com/detailbook/detailbook/services/booking-service/internal/model"
	"github.com/detailbook/detailbook/services/booking-service/internal/notify"
	"github.com/detailbook/detailbook/services/booking-service/internal/parser"
)

const (
	stepParse               = "parse"
	stepResolveClient       = "resolve_client"
	stepLoadBooking         = "load_booking"
	stepCheckAvailability   = "check_availability"
	stepSuggestAlternatives = "suggest_alternatives"
	stepCreateBooking       = "create_booking"
	stepUpdateBooking       = "update_booking"
	stepCancelBooking       = "cancel_booking"
	stepNotify              = "notify"
	stepConfirm             = "confirm"
)

func idempotencyKey(runID string) string { return "run:" + runID }

func dedupeKey(runID string, suffix string) string { return "run:" + runID + ":" + suffix }

func (e *Engine) bookingPlan() []step {
	return []step{
		newStep(stepParse, model.StateParsing, e.parse, func(rc *runContext, v parser.Intent) { rc.intent = v }),
		newStep(stepResolveClient, model.StateResolvingClient, e.resolveClient, func(rc *runContext, v model.Client) { rc.client = v }),
		newStep(stepCheckAvailability, model.StateCheckingAvailability, e.checkRequested, setAvailability),
		newStep(stepSuggestAlternatives, model.StateSuggestingAlternatives, e.suggestAlternatives, nil).skipWhen(available),
		newStep(stepCreateBooking, model.StateCreatingBooking, e.createBooking, setBooking),
		newStep(stepNotify, model.StateNotifying, e.notify, func(rc *runContext, v notifyOutput) { rc.notified = v }),
		newStep(stepConfirm, model.StateGeneratingConfirmation, e.confirm, func(rc *runContext, v string) { rc.confirmation = v }),
	}
}

func setAvailability(rc *runContext, v availability.Result) { rc.availability = v }

func setBooking(rc *runContext, v model.Booking) { rc.booking = v }

func available(rc *runContext) bool { return rc.availability.Available }

func (e *Engine) parse(ctx context.Context, rc *runContext) (parser.Intent, Outcome, error) {
	in := rc.run.Input
	ctx = parser.ContextWithNow(ctx, e.now().In(rc.tenant.Location()))
	intent, err := e.parser.Parse(ctx, in.Text)
	if err != nil {
		return parser.Intent{}, Outcome{}, fmt.Errorf("parse request: %w", err)
	}
	if in.Date != "" {
		intent.Date = in.Date
	}
	if in.Time != "" {
		intent.Time = in.Time
	}
	intent = intent.WithContact(in.Contact).Normalize()
	if err := intent.Validate(); err != nil {
		return parser.Intent{}, Outcome{}, err
	}
	return intent, Continue(), nil
}

func (e *Engine) resolveClient(ctx context.Context, rc *runContext) (model.Client, Outcome, error) {
	c, created, err := e.clients.Resolve(ctx, rc.tenant.ID, rc.intent.Contact(), rc.intent.Service)
	if err != nil {
		return model.Client{}, Outcome{}, fmt.Errorf("resolve client: %w", err)
	}
	e.logger.Info("workflow client resolved", "run_id", rc.run.ID, "client_id", c.ID, "created", created)
	return c, Continue(), nil
}

func (e *Engine) checkRequested(ctx context.Context, rc *runContext) (availability.Result, Outcome, error) {
	res, err := e.availability.Check(ctx, rc.tenant.ID, rc.intent.Date, rc.intent.Time, rc.intent.Service, "")
	if err != nil {
		return availability.Result{}, Outcome{}, fmt.Errorf("check availability: %w", err)
	}
	return res, Continue(), nil
}

func (e *Engine) suggestAlternatives(_ context.Context, rc *runContext) ([]string, Outcome, error) {
	res := alternativesResult(rc, rc.availability)
	return res.Alternatives, Finish(res), nil
}

// createBooking re-checks the slot under the tenant's date lock. A booking
// already stored under the run's idempotency key is reused.
func (e *Engine) createBooking(ctx context.Context, rc *runContext) (model.Booking, Outcome, error) {
	key := idempotencyKey(rc.run.ID)
	if b, ok, err := e.bookings.Lookup(ctx, rc.tenant.ID, key); err != nil {
		return model.Booking{}, Outcome{}, fmt.Errorf("lookup booking: %w", err)
	} else if ok {
		return b, Continue(), nil
	}

	unlock, err := e.locker.Lock(ctx, slotLockKey(rc.tenant.ID, rc.availability.Date), e.lockTTL)
	if err != nil {
		return model.Booking{}, Outcome{}, fmt.Errorf("lock slot: %w", err)
	}
	defer unlock()

	res, err := e.availability.Check(ctx, rc.tenant.ID, rc.availability.Date, rc.availability.Time, rc.intent.Service, "")
	if err != nil {
		return model.Booking{}, Outcome{}, fmt.Errorf("recheck availability: %w", err)
	}
	if !res.Available {
		e.logger.Info("workflow slot taken before create", "run_id", rc.run.ID, "date", res.Date, "time", res.Time)
		return model.Booking{}, Finish(alternativesResult(rc, res)), nil
	}

	b, err := e.bookings.Create(ctx, bookings.CreateInput{
		TenantID:       rc.tenant.ID,
		ClientID:       rc.client.ID,
		Contact:        rc.intent.Contact(),
		Service:        rc.intent.Service,
		DateTime:       res.Start,
		Notes:          rc.intent.Notes,
		IdempotencyKey: key,
	})
	if err != nil {
		return model.Booking{}, Outcome{}, err
	}
	return b, Continue(), nil
}

type notifyOutput struct {
	Created   bool `json:"created"`
	Delivered bool `json:"delivered"`
}

// notify records the tenant notification for the run's change and sends the
// client a confirmation. Client delivery failures do not fail the run.
func (e *Engine) notify(ctx context.Context, rc *runContext) (notifyOutput, Outcome, error) {
	typ := notificationType(rc.run.Kind)
	created, err := e.notifier.Notify(ctx, model.Notification{
		TenantID:   rc.tenant.ID,
		Type:       typ,
		ResourceID: rc.booking.ID,
		Message:    tenantMessage(rc),
		DedupeKey:  dedupeKey(rc.run.ID, string(typ)),
	})
	if err != nil {
		return notifyOutput{}, Outcome{}, fmt.Errorf("notify tenant: %w", err)
	}
	out := notifyOutput{Created: created}

	msg := notify.ClientMessage{
		TenantID:  rc.tenant.ID,
		DedupeKey: dedupeKey(rc.run.ID, "confirmation"),
		Email:     rc.booking.ClientEmail,
		Phone:     rc.booking.ClientPhone,
		Subject:   clientSubject(rc),
		Body:      confirmationMessage(rc),
	}
	if msg.Email == "" && msg.Phone == "" {
		return out, Continue(), nil
	}
	if err := e.notifier.Deliver(ctx, msg); err != nil {
		e.logger.Warn("workflow client delivery failed", "run_id", rc.run.ID, "booking_id", rc.booking.ID, "err", err)
		return out, Continue(), nil
	}
	out.Delivered = true
	return out, Continue(), nil
}

func (e *Engine) confirm(_ context.Context, rc *runContext) (string, Outcome, error) {
	msg := confirmationMessage(rc)
	return msg, Finish(model.RunResult{Success: true, BookingID: rc.booking.ID, Message: msg}), nil
}

func notificationType(kind model.RunKind) model.NotificationType {
	switch kind {
	case model.RunReschedule:
		return model.NotificationBookingUpdated
	case model.RunCancellation:
		return model.NotificationBookingCancelled
	default:
		return model.NotificationBookingCreated
	}
}
