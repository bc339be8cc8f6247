// Package availability computes bookable slots and detects booking overlaps.
package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/detailbook/detailbook/services/booking-service/internal/catalog"
	"github.com/detailbook/detailbook/services/booking-service/internal/model"
)

// MaxAlternatives bounds the suggestions returned for an unavailable time.
const MaxAlternatives = 3

type Store interface {
	GetTenant(ctx context.Context, tenantID string) (model.Tenant, error)
	// ListScheduledBookings returns scheduled bookings starting in [from, to).
	ListScheduledBookings(ctx context.Context, tenantID string, from, to time.Time) ([]model.Booking, error)
}

type Engine struct {
	store Store
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// Result describes whether one requested start time can be booked.
type Result struct {
	Date         string    `json:"date"`
	Time         string    `json:"time"`
	Service      string    `json:"service"`
	Start        time.Time `json:"start"`
	Available    bool      `json:"available"`
	Alternatives []string  `json:"alternatives,omitempty"`
}

func (e *Engine) Slots(ctx context.Context, tenantID, date, service string) ([]Slot, error) {
	return e.SlotsExcluding(ctx, tenantID, date, service, "")
}

// SlotsExcluding ignores excludeBookingID so a booking never blocks its own move.
// A closed day yields an empty list.
func (e *Engine) SlotsExcluding(ctx context.Context, tenantID, date, service, excludeBookingID string) ([]Slot, error) {
	tenant, err := e.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant: %w", err)
	}
	return e.slotsFor(ctx, tenant, date, service, excludeBookingID)
}

func (e *Engine) slotsFor(ctx context.Context, tenant model.Tenant, date, service, excludeBookingID string) ([]Slot, error) {
	loc := tenant.Location()
	day, err := model.LocalDate(date, loc)
	if err != nil {
		return nil, err
	}
	hours, open := tenant.Hours.For(day.Weekday())
	if !open {
		return []Slot{}, nil
	}
	opening, err := model.LocalDateTime(date, hours.Open, loc)
	if err != nil {
		return nil, err
	}
	closing, err := model.LocalDateTime(date, hours.Close, loc)
	if err != nil {
		return nil, err
	}

	// Bookings from the previous evening can still run into this day.
	from := day.Add(-catalog.MaxDuration())
	to := day.AddDate(0, 0, 1)
	bookings, err := e.store.ListScheduledBookings(ctx, tenant.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}

	slots := GenerateSlots(opening, closing, catalog.Duration(service), SlotStep, busyIntervals(bookings, excludeBookingID))
	if slots == nil {
		slots = []Slot{}
	}
	return slots, nil
}

// Check tests one requested start time and suggests alternatives when it is taken.
func (e *Engine) Check(ctx context.Context, tenantID, date, clock, service, excludeBookingID string) (Result, error) {
	tenant, err := e.store.GetTenant(ctx, tenantID)
	if err != nil {
		return Result{}, fmt.Errorf("load tenant: %w", err)
	}
	start, err := model.StartDateTime(date, clock, tenant.Location())
	if err != nil {
		return Result{}, err
	}
	slots, err := e.slotsFor(ctx, tenant, date, service, excludeBookingID)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Date:    start.Format(model.DateLayout),
		Time:    start.Format(clockLayout),
		Service: service,
		Start:   start,
	}
	res.Available = IsAvailable(slots, res.Time)
	if !res.Available {
		res.Alternatives = Alternatives(slots, start, MaxAlternatives)
	}
	return res, nil
}

func busyIntervals(bookings []model.Booking, excludeBookingID string) []Interval {
	busy := make([]Interval, 0, len(bookings))
	for _, b := range bookings {
		if b.Status != model.BookingScheduled || (excludeBookingID != "" && b.ID == excludeBookingID) {
			continue
		}
		busy = append(busy, bookingInterval(b))
	}
	return busy
}

func bookingInterval(b model.Booking) Interval {
	return Interval{Start: b.DateTime, End: b.DateTime.Add(catalog.Duration(b.Service))}
}
