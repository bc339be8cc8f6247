package availability

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/detailbook/detailbook/services/booking-service/internal/model"
)

type fakeStore struct {
	tenantFn   func(ctx context.Context, tenantID string) (model.Tenant, error)
	bookingsFn func(ctx context.Context, tenantID string, from, to time.Time) ([]model.Booking, error)
}

func (f fakeStore) GetTenant(ctx context.Context, tenantID string) (model.Tenant, error) {
	if f.tenantFn == nil {
		return model.Tenant{ID: tenantID, Timezone: "UTC", Hours: model.DefaultBusinessHours()}, nil
	}
	return f.tenantFn(ctx, tenantID)
}

func (f fakeStore) ListScheduledBookings(ctx context.Context, tenantID string, from, to time.Time) ([]model.Booking, error) {
	if f.bookingsFn == nil {
		return nil, nil
	}
	return f.bookingsFn(ctx, tenantID, from, to)
}

func withBookings(bookings ...model.Booking) fakeStore {
	return fakeStore{bookingsFn: func(_ context.Context, _ string, from, to time.Time) ([]model.Booking, error) {
		var out []model.Booking
		for _, b := range bookings {
			if !b.DateTime.Before(from) && b.DateTime.Before(to) {
				out = append(out, b)
			}
		}
		return out, nil
	}}
}

func scheduled(id, service string, start time.Time) model.Booking {
	return model.Booking{ID: id, TenantID: "t1", Service: service, DateTime: start, Status: model.BookingScheduled}
}

func TestEngineSlots_DurationAwareBlocking(t *testing.T) {
	e := NewEngine(withBookings(scheduled("b1", "Full Detailing", at(10, 0))))

	slots, err := e.Slots(context.Background(), "t1", "2025-06-10", "Full Detailing")
	if err != nil {
		t.Fatalf("Slots: %v", err)
	}
	want := []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30"}
	if got := times(slots, false); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected blocked slots\n got: %v\nwant: %v", got, want)
	}

	slots, err = e.Slots(context.Background(), "t1", "2025-06-10", "Basic Wash")
	if err != nil {
		t.Fatalf("Slots: %v", err)
	}
	if got := times(slots, false); !reflect.DeepEqual(got, []string{"10:00", "10:30", "11:00", "11:30"}) {
		t.Fatalf("unexpected blocked slots for 30 minute service: %v", got)
	}
}

func TestEngineSlots_IgnoresCancelledAndExcluded(t *testing.T) {
	cancelled := scheduled("b2", "Interior Detailing", at(13, 0))
	cancelled.Status = model.BookingCancelled
	e := NewEngine(withBookings(scheduled("b1", "Interior Detailing", at(10, 0)), cancelled))

	slots, err := e.SlotsExcluding(context.Background(), "t1", "2025-06-10", "Interior Detailing", "b1")
	if err != nil {
		t.Fatalf("SlotsExcluding: %v", err)
	}
	if blocked := times(slots, false); len(blocked) != 0 {
		t.Fatalf("expected nothing blocked, got %v", blocked)
	}
}

func TestEngineSlots_PreviousEveningBookingSpillsOver(t *testing.T) {
	hours := model.BusinessHours{Default: model.DayHours{Open: "00:00", Close: "24:00"}}
	store := withBookings(scheduled("late", "Paint Correction", time.Date(2025, 6, 9, 23, 0, 0, 0, time.UTC)))
	store.tenantFn = func(_ context.Context, id string) (model.Tenant, error) {
		return model.Tenant{ID: id, Hours: hours}, nil
	}
	slots, err := NewEngine(store).Slots(context.Background(), "t1", "2025-06-10", "Basic Wash")
	if err != nil {
		t.Fatalf("Slots: %v", err)
	}
	if got := times(slots, false); !reflect.DeepEqual(got, []string{"00:00", "00:30", "01:00", "01:30"}) {
		t.Fatalf("unexpected blocked slots %v", got)
	}
}

func TestEngineSlots_ClosedDayIsEmpty(t *testing.T) {
	store := fakeStore{tenantFn: func(_ context.Context, id string) (model.Tenant, error) {
		h := model.DefaultBusinessHours()
		h.Weekdays = map[string]model.DayHours{"tuesday": {Closed: true}}
		return model.Tenant{ID: id, Hours: h}, nil
	}}
	slots, err := NewEngine(store).Slots(context.Background(), "t1", "2025-06-10", "Basic Wash")
	if err != nil {
		t.Fatalf("Slots: %v", err)
	}
	if slots == nil || len(slots) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", slots)
	}
}

func TestEngineSlots_TenantTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	store := withBookings(scheduled("b1", "Interior Detailing", time.Date(2025, 6, 10, 10, 0, 0, 0, loc).UTC()))
	store.tenantFn = func(_ context.Context, id string) (model.Tenant, error) {
		return model.Tenant{ID: id, Timezone: "America/Chicago", Hours: model.DefaultBusinessHours()}, nil
	}

	res, err := NewEngine(store).Check(context.Background(), "t1", "2025-06-10", "10:00", "Interior Detailing", "")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Available {
		t.Fatal("expected 10:00 local to be taken")
	}
	if !reflect.DeepEqual(res.Alternatives, []string{"09:00", "11:00", "11:30"}) {
		t.Fatalf("unexpected alternatives %v", res.Alternatives)
	}
}

func TestEngineErrors(t *testing.T) {
	missing := fakeStore{tenantFn: func(context.Context, string) (model.Tenant, error) {
		return model.Tenant{}, model.ErrNotFound
	}}
	if _, err := NewEngine(missing).Slots(context.Background(), "nope", "2025-06-10", "Basic Wash"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := NewEngine(fakeStore{}).Slots(context.Background(), "t1", "06/10/2025", "Basic Wash"); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := NewEngine(fakeStore{}).Check(context.Background(), "t1", "2025-06-10", "noon", "Basic Wash", ""); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCheckConflict(t *testing.T) {
	e := NewEngine(withBookings(
		scheduled("b1", "Full Detailing", at(10, 0)),
		scheduled("b2", "Paint Correction", at(13, 0)),
	))
	ctx := context.Background()

	cases := []struct {
		name      string
		start     time.Time
		end       time.Time
		exclude   string
		conflict  bool
		bookingID string
	}{
		{"adjacent before", at(9, 0), at(10, 0), "", false, ""},
		{"inside", at(11, 0), at(11, 30), "", true, "b1"},
		{"adjacent after", at(12, 0), at(13, 0), "", false, ""},
		{"long booking started earlier", at(15, 0), at(15, 30), "", true, "b2"},
		{"excluded self", at(11, 0), at(11, 30), "b1", false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := e.CheckConflict(ctx, "t1", tc.start, tc.end, tc.exclude)
			if err != nil {
				t.Fatalf("CheckConflict: %v", err)
			}
			if res.HasConflict != tc.conflict || res.BookingID != tc.bookingID {
				t.Fatalf("unexpected result %+v", res)
			}
			if res.HasConflict && res.Message == "" {
				t.Fatal("expected a conflict message")
			}
		})
	}

	if _, err := e.CheckConflict(ctx, "t1", at(11, 0), at(10, 0), ""); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
