package workflow

import (
	"context"
	"fmt"

	"github.com/detailbook/detailbook/services/booking-service/internal/availability"
	"github.com/detailbook/detailbook/services/booking-service/internal/bookings"
	"github.com/detailbook/detailbook/services/booking-service/internal/model"
)

func (e *Engine) reschedulePlan() []step {
	return []step{
		newStep(stepLoadBooking, model.StateLoadingBooking, e.loadBooking, setBooking),
		newStep(stepCheckAvailability, model.StateCheckingAvailability, e.checkMove, setAvailability),
		newStep(stepSuggestAlternatives, model.StateSuggestingAlternatives, e.suggestAlternatives, nil).skipWhen(available),
		newStep(stepUpdateBooking, model.StateUpdatingBooking, e.updateBooking, setBooking),
		newStep(stepNotify, model.StateNotifying, e.notify, func(rc *runContext, v notifyOutput) { rc.notified = v }),
		newStep(stepConfirm, model.StateGeneratingConfirmation, e.confirm, func(rc *runContext, v string) { rc.confirmation = v }),
	}
}

func (e *Engine) loadBooking(ctx context.Context, rc *runContext) (model.Booking, Outcome, error) {
	b, err := e.bookings.Get(ctx, rc.tenant.ID, rc.run.Input.BookingID)
	if err != nil {
		return model.Booking{}, Outcome{}, err
	}
	if rc.run.Kind == model.RunReschedule && b.Status != model.BookingScheduled {
		return model.Booking{}, Outcome{}, fmt.Errorf("%w: booking %s is %s", model.ErrInvalidState, b.ID, b.Status)
	}
	return b, Continue(), nil
}

// checkMove tests the new time for the booking's own service, ignoring the
// booking itself.
func (e *Engine) checkMove(ctx context.Context, rc *runContext) (availability.Result, Outcome, error) {
	res, err := e.availability.Check(ctx, rc.tenant.ID, rc.run.Input.Date, rc.run.Input.Time, rc.booking.Service, rc.booking.ID)
	if err != nil {
		return availability.Result{}, Outcome{}, fmt.Errorf("check availability: %w", err)
	}
	return res, Continue(), nil
}

func (e *Engine) updateBooking(ctx context.Context, rc *runContext) (model.Booking, Outcome, error) {
	unlock, err := e.locker.Lock(ctx, slotLockKey(rc.tenant.ID, rc.availability.Date), e.lockTTL)
	if err != nil {
		return model.Booking{}, Outcome{}, fmt.Errorf("lock slot: %w", err)
	}
	defer unlock()

	res, err := e.availability.Check(ctx, rc.tenant.ID, rc.availability.Date, rc.availability.Time, rc.booking.Service, rc.booking.ID)
	if err != nil {
		return model.Booking{}, Outcome{}, fmt.Errorf("recheck availability: %w", err)
	}
	if !res.Available {
		e.logger.Info("workflow slot taken before update", "run_id", rc.run.ID, "date", res.Date, "time", res.Time)
		return rc.booking, Finish(alternativesResult(rc, res)), nil
	}

	start := res.Start
	b, err := e.bookings.Update(ctx, rc.tenant.ID, rc.booking.ID, bookings.Patch{DateTime: &start},
		bookings.WithDedupeKey(dedupeKey(rc.run.ID, string(model.NotificationBookingUpdated))))
	if err != nil {
		return model.Booking{}, Outcome{}, err
	}
	return b, Continue(), nil
}
