package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/detailbook/detailbook/services/booking-service/internal/catalog"
	"github.com/detailbook/detailbook/services/booking-service/internal/model"
)

// ConflictMargin widens the candidate window after the requested end.
const ConflictMargin = time.Hour

type ConflictResult struct {
	HasConflict bool   `json:"hasConflict"`
	Message     string `json:"message,omitempty"`
	BookingID   string `json:"bookingId,omitempty"`
}

// CheckConflict tests [start, end) against the tenant's scheduled bookings.
// Candidates are pre-filtered by start time, then tested with Overlaps.
func (e *Engine) CheckConflict(ctx context.Context, tenantID string, start, end time.Time, excludeBookingID string) (ConflictResult, error) {
	if !end.After(start) {
		return ConflictResult{}, fmt.Errorf("%w: end must be after start", model.ErrValidation)
	}
	tenant, err := e.store.GetTenant(ctx, tenantID)
	if err != nil {
		return ConflictResult{}, fmt.Errorf("load tenant: %w", err)
	}

	lookback := catalog.MaxDuration()
	if lookback < ConflictMargin {
		lookback = ConflictMargin
	}
	bookings, err := e.store.ListScheduledBookings(ctx, tenant.ID, start.Add(-lookback), end.Add(ConflictMargin))
	if err != nil {
		return ConflictResult{}, fmt.Errorf("list bookings: %w", err)
	}

	requested := Interval{Start: start, End: end}
	for _, b := range bookings {
		if b.Status != model.BookingScheduled || (excludeBookingID != "" && b.ID == excludeBookingID) {
			continue
		}
		if Overlaps(requested, bookingInterval(b)) {
			return ConflictResult{
				HasConflict: true,
				BookingID:   b.ID,
				Message: fmt.Sprintf("Conflicts with %s at %s",
					b.Service, b.DateTime.In(tenant.Location()).Format("2006-01-02 15:04")),
			}, nil
		}
	}
	return ConflictResult{}, nil
}
