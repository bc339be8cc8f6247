package model

import "time"

type BookingStatus string

const (
	BookingScheduled BookingStatus = "scheduled"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

var bookingTransitions = map[BookingStatus]map[BookingStatus]struct{}{
	BookingScheduled: {BookingCompleted: {}, BookingCancelled: {}},
}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingScheduled, BookingCompleted, BookingCancelled:
		return true
	}
	return false
}

// CanTransition allows same-status patches and the scheduled exits.
func (s BookingStatus) CanTransition(to BookingStatus) bool {
	if s == to {
		return true
	}
	_, ok := bookingTransitions[s][to]
	return ok
}

// Booking references a client by id; public and assistant bookings also carry
// the contact fields inline.
type Booking struct {
	ID             string        `json:"id"`
	TenantID       string        `json:"tenant_id"`
	ClientID       string        `json:"client_id,omitempty"`
	ClientName     string        `json:"client_name,omitempty"`
	ClientEmail    string        `json:"client_email,omitempty"`
	ClientPhone    string        `json:"client_phone,omitempty"`
	Service        string        `json:"service"`
	DateTime       time.Time     `json:"date_time"`
	Status         BookingStatus `json:"status"`
	Notes          string        `json:"notes,omitempty"`
	IdempotencyKey string        `json:"-"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}
