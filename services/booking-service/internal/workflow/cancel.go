package workflow

import (
	"context"

	"github.com/detailbook/detailbook/services/booking-service/internal/bookings"
	"github.com/detailbook/detailbook/services/booking-service/internal/model"
)

func (e *Engine) cancellationPlan() []step {
	return []step{
		newStep(stepLoadBooking, model.StateLoadingBooking, e.loadBooking, setBooking),
		newStep(stepCancelBooking, model.StateCancellingBooking, e.cancelBooking, setBooking),
		newStep(stepNotify, model.StateNotifying, e.notify, func(rc *runContext, v notifyOutput) { rc.notified = v }),
		newStep(stepConfirm, model.StateGeneratingConfirmation, e.confirm, func(rc *runContext, v string) { rc.confirmation = v }),
	}
}

// cancelBooking reloads the booking so a retried step never appends the
// reason twice.
func (e *Engine) cancelBooking(ctx context.Context, rc *runContext) (model.Booking, Outcome, error) {
	current, err := e.bookings.Get(ctx, rc.tenant.ID, rc.booking.ID)
	if err != nil {
		return model.Booking{}, Outcome{}, err
	}
	if current.Status == model.BookingCancelled {
		return current, Continue(), nil
	}
	b, err := e.bookings.Cancel(ctx, rc.tenant.ID, rc.booking.ID, rc.run.Input.Reason,
		bookings.WithDedupeKey(dedupeKey(rc.run.ID, string(model.NotificationBookingCancelled))))
	if err != nil {
		return model.Booking{}, Outcome{}, err
	}
	return b, Continue(), nil
}
