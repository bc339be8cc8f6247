// Package memory is an in-process store used for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/detailbook/detailbook/services/booking-service/internal/model"
)

type Store struct {
	mu            sync.Mutex
	tenants       map[string]model.Tenant
	clients       []model.Client
	bookings      []model.Booking
	notifications []model.Notification
	deliveries    map[string]struct{}
	threads       map[string]model.Thread
	messages      map[string][]model.Message
	runs          map[string]model.Run
	steps         map[string]map[string]model.StepRecord
}

func New() *Store {
	return &Store{
		tenants:    map[string]model.Tenant{},
		deliveries: map[string]struct{}{},
		threads:    map[string]model.Thread{},
		messages:   map[string][]model.Message{},
		runs:       map[string]model.Run{},
		steps:      map[string]map[string]model.StepRecord{},
	}
}

func (s *Store) Ping(context.Context) error { return nil }

// Tenants

func (s *Store) CreateTenant(_ context.Context, t model.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[t.ID]; ok {
		return fmt.Errorf("tenant %s: %w", t.ID, model.ErrConflict)
	}
	s.tenants[t.ID] = t
	return nil
}

func (s *Store) GetTenant(_ context.Context, tenantID string) (model.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return model.Tenant{}, fmt.Errorf("tenant %s: %w", tenantID, model.ErrNotFound)
	}
	return t, nil
}

// Clients

func (s *Store) SearchClients(_ context.Context, tenantID, term string, limit int) ([]model.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	term = strings.ToLower(strings.TrimSpace(term))
	var out []model.Client
	for _, c := range s.clients {
		if c.TenantID != tenantID || c.Deleted {
			continue
		}
		if strings.Contains(strings.ToLower(c.Name), term) ||
			strings.Contains(strings.ToLower(c.Email), term) ||
			strings.Contains(strings.ToLower(c.Phone), term) {
			out = append(out, c)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) CreateClient(_ context.Context, c model.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients = append(s.clients, c)
	return nil
}

func (s *Store) GetClient(_ context.Context, tenantID, clientID string) (model.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		if c.ID == clientID && c.TenantID == tenantID {
			return c, nil
		}
	}
	return model.Client{}, fmt.Errorf("client %s: %w", clientID, model.ErrNotFound)
}

func (s *Store) SoftDeleteClient(_ context.Context, tenantID, clientID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.clients {
		if s.clients[i].ID == clientID && s.clients[i].TenantID == tenantID {
			s.clients[i].Deleted = true
			s.clients[i].UpdatedAt = at
			return nil
		}
	}
	return fmt.Errorf("client %s: %w", clientID, model.ErrNotFound)
}

// Bookings

func (s *Store) CreateBooking(_ context.Context, b model.Booking) (model.Booking, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.IdempotencyKey != "" {
		for _, existing := range s.bookings {
			if existing.TenantID == b.TenantID && existing.IdempotencyKey == b.IdempotencyKey {
				return existing, false, nil
			}
		}
	}
	s.bookings = append(s.bookings, b)
	return b, true, nil
}

func (s *Store) GetBooking(_ context.Context, tenantID, bookingID string) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if b.ID == bookingID && b.TenantID == tenantID {
			return b, nil
		}
	}
	return model.Booking{}, fmt.Errorf("booking %s: %w", bookingID, model.ErrNotFound)
}

func (s *Store) FindBookingByKey(_ context.Context, tenantID, key string) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if key != "" && b.TenantID == tenantID && b.IdempotencyKey == key {
			return b, nil
		}
	}
	return model.Booking{}, fmt.Errorf("booking key %s: %w", key, model.ErrNotFound)
}

func (s *Store) UpdateBooking(_ context.Context, b model.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.bookings {
		if s.bookings[i].ID == b.ID && s.bookings[i].TenantID == b.TenantID {
			b.IdempotencyKey = s.bookings[i].IdempotencyKey
			b.CreatedAt = s.bookings[i].CreatedAt
			s.bookings[i] = b
			return nil
		}
	}
	return fmt.Errorf("booking %s: %w", b.ID, model.ErrNotFound)
}

func (s *Store) ListBookings(_ context.Context, tenantID string, from, to time.Time) ([]model.Booking, error) {
	return s.listBookings(tenantID, from, to, false), nil
}

func (s *Store) ListScheduledBookings(_ context.Context, tenantID string, from, to time.Time) ([]model.Booking, error) {
	return s.listBookings(tenantID, from, to, true), nil
}

func (s *Store) listBookings(tenantID string, from, to time.Time, scheduledOnly bool) []model.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.TenantID != tenantID || b.DateTime.Before(from) || !b.DateTime.Before(to) {
			continue
		}
		if scheduledOnly && b.Status != model.BookingScheduled {
			continue
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DateTime.Before(out[j].DateTime) })
	return out
}

func (s *Store) ListRecentBookings(_ context.Context, tenantID string, limit int) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.TenantID == tenantID {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DateTime.After(out[j].DateTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Notifications

func (s *Store) InsertNotification(_ context.Context, n model.Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.DedupeKey != "" {
		for _, existing := range s.notifications {
			if existing.TenantID == n.TenantID && existing.DedupeKey == n.DedupeKey {
				return false, nil
			}
		}
	}
	s.notifications = append(s.notifications, n)
	return true, nil
}

func (s *Store) ListNotifications(_ context.Context, tenantID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Notification
	for i := len(s.notifications) - 1; i >= 0; i-- {
		n := s.notifications[i]
		if n.TenantID != tenantID || (unreadOnly && n.Read) {
			continue
		}
		out = append(out, n)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, tenantID, notificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		if s.notifications[i].ID == notificationID && s.notifications[i].TenantID == tenantID {
			s.notifications[i].Read = true
			return nil
		}
	}
	return fmt.Errorf("notification %s: %w", notificationID, model.ErrNotFound)
}

func (s *Store) ClaimDelivery(_ context.Context, tenantID, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := tenantID + "|" + key
	if _, ok := s.deliveries[k]; ok {
		return false, nil
	}
	s.deliveries[k] = struct{}{}
	return true, nil
}

func (s *Store) ReleaseDelivery(_ context.Context, tenantID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deliveries, tenantID+"|"+key)
	return nil
}

// Notifications returns every stored notification for tenantID, oldest first.
func (s *Store) Notifications(tenantID string) []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Notification
	for _, n := range s.notifications {
		if n.TenantID == tenantID {
			out = append(out, n)
		}
	}
	return out
}

// Clients returns every stored client for tenantID, including deleted ones.
func (s *Store) Clients(tenantID string) []model.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Client
	for _, c := range s.clients {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out
}
