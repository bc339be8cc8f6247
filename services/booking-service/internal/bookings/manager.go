// Package bookings owns the booking record lifecycle. Every write emits a
// tenant notification.
package bookings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/detailbook/detailbook/services/booking-service/internal/model"
	"github.com/google/uuid"
)

type Store interface {
	GetTenant(ctx context.Context, tenantID string) (model.Tenant, error)
	GetClient(ctx context.Context, tenantID, clientID string) (model.Client, error)
	// CreateBooking returns the stored booking and false when b.IdempotencyKey
	// was already used by the tenant.
	CreateBooking(ctx context.Context, b model.Booking) (model.Booking, bool, error)
	GetBooking(ctx context.Context, tenantID, bookingID string) (model.Booking, error)
	FindBookingByKey(ctx context.Context, tenantID, key string) (model.Booking, error)
	UpdateBooking(ctx context.Context, b model.Booking) error
	// ListBookings returns bookings of any status starting in [from, to).
	ListBookings(ctx context.Context, tenantID string, from, to time.Time) ([]model.Booking, error)
	ListRecentBookings(ctx context.Context, tenantID string, limit int) ([]model.Booking, error)
}

type Notifier interface {
	Notify(ctx context.Context, n model.Notification) (bool, error)
}

type Manager struct {
	store    Store
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewManager(store Store, notifier Notifier, logger *slog.Logger) *Manager {
	return &Manager{store: store, notifier: notifier, logger: logger, now: time.Now}
}

type CreateInput struct {
	TenantID       string
	ClientID       string
	Contact        model.Contact
	Service        string
	DateTime       time.Time
	Notes          string
	IdempotencyKey string
}

// Patch is a partial update; nil fields are left untouched.
type Patch struct {
	DateTime *time.Time           `json:"date_time,omitempty"`
	Service  *string              `json:"service,omitempty"`
	Status   *model.BookingStatus `json:"status,omitempty"`
	Notes    *string              `json:"notes,omitempty"`
}

func (p Patch) empty() bool {
	return p.DateTime == nil && p.Service == nil && p.Status == nil && p.Notes == nil
}

type options struct {
	dedupeKey string
}

type Option func(*options)

// WithDedupeKey makes the emitted notification idempotent under key.
func WithDedupeKey(key string) Option {
	return func(o *options) { o.dedupeKey = key }
}

// Create inserts a scheduled booking. It trusts the caller's availability check.
// A repeated idempotency key returns the original booking without notifying again.
func (m *Manager) Create(ctx context.Context, in CreateInput) (model.Booking, error) {
	in.Service = strings.TrimSpace(in.Service)
	if in.Service == "" {
		return model.Booking{}, fmt.Errorf("%w: service required", model.ErrValidation)
	}
	if in.DateTime.IsZero() {
		return model.Booking{}, fmt.Errorf("%w: date_time required", model.ErrValidation)
	}
	tenant, err := m.store.GetTenant(ctx, in.TenantID)
	if err != nil {
		return model.Booking{}, fmt.Errorf("load tenant: %w", err)
	}

	contact := model.Contact{
		Name:  strings.TrimSpace(in.Contact.Name),
		Email: strings.TrimSpace(in.Contact.Email),
		Phone: strings.TrimSpace(in.Contact.Phone),
	}
	if in.ClientID != "" {
		c, err := m.store.GetClient(ctx, tenant.ID, in.ClientID)
		if err != nil {
			return model.Booking{}, fmt.Errorf("load client: %w", err)
		}
		if c.Deleted {
			return model.Booking{}, fmt.Errorf("%w: client %s is deleted", model.ErrValidation, c.ID)
		}
		contact = fillContact(contact, c)
	}
	if in.ClientID == "" && contact.Name == "" {
		return model.Booking{}, fmt.Errorf("%w: client_id or client name required", model.ErrValidation)
	}

	now := m.now().UTC()
	b := model.Booking{
		ID:             uuid.NewString(),
		TenantID:       tenant.ID,
		ClientID:       in.ClientID,
		ClientName:     contact.Name,
		ClientEmail:    contact.Email,
		ClientPhone:    contact.Phone,
		Service:        in.Service,
		DateTime:       in.DateTime.UTC(),
		Status:         model.BookingScheduled,
		Notes:          strings.TrimSpace(in.Notes),
		IdempotencyKey: strings.TrimSpace(in.IdempotencyKey),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	stored, created, err := m.store.CreateBooking(ctx, b)
	if err != nil {
		return model.Booking{}, fmt.Errorf("create booking: %w", err)
	}
	if !created {
		m.logger.Info("booking create replayed", "tenant_id", tenant.ID, "booking_id", stored.ID)
		return stored, nil
	}

	dedupe := ""
	if b.IdempotencyKey != "" {
		dedupe = b.IdempotencyKey + ":" + string(model.NotificationBookingCreated)
	}
	m.notify(ctx, model.Notification{
		TenantID:   tenant.ID,
		Type:       model.NotificationBookingCreated,
		ResourceID: stored.ID,
		Message:    fmt.Sprintf("New booking: %s for %s on %s", stored.Service, displayName(stored), localTime(tenant, stored.DateTime)),
		DedupeKey:  dedupe,
	})
	return stored, nil
}

// Update applies p. A cancelled booking accepts only a notes patch.
func (m *Manager) Update(ctx context.Context, tenantID, bookingID string, p Patch, opts ...Option) (model.Booking, error) {
	if p.empty() {
		return model.Booking{}, fmt.Errorf("%w: nothing to update", model.ErrValidation)
	}
	tenant, b, err := m.load(ctx, tenantID, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if b.Status == model.BookingCancelled && (p.DateTime != nil || p.Service != nil || (p.Status != nil && *p.Status != b.Status)) {
		return model.Booking{}, fmt.Errorf("%w: booking %s is cancelled", model.ErrInvalidState, b.ID)
	}

	if p.Status != nil {
		if !p.Status.Valid() {
			return model.Booking{}, fmt.Errorf("%w: unknown status %q", model.ErrValidation, *p.Status)
		}
		if !b.Status.CanTransition(*p.Status) {
			return model.Booking{}, fmt.Errorf("%w: cannot move booking from %s to %s", model.ErrInvalidState, b.Status, *p.Status)
		}
		b.Status = *p.Status
	}
	if p.Service != nil {
		svc := strings.TrimSpace(*p.Service)
		if svc == "" {
			return model.Booking{}, fmt.Errorf("%w: service cannot be empty", model.ErrValidation)
		}
		b.Service = svc
	}
	if p.DateTime != nil {
		if p.DateTime.IsZero() {
			return model.Booking{}, fmt.Errorf("%w: date_time cannot be empty", model.ErrValidation)
		}
		b.DateTime = p.DateTime.UTC()
	}
	if p.Notes != nil {
		b.Notes = strings.TrimSpace(*p.Notes)
	}
	b.UpdatedAt = m.now().UTC()

	if err := m.store.UpdateBooking(ctx, b); err != nil {
		return model.Booking{}, fmt.Errorf("update booking: %w", err)
	}

	o := applyOptions(opts)
	m.notify(ctx, model.Notification{
		TenantID:   tenant.ID,
		Type:       model.NotificationBookingUpdated,
		ResourceID: b.ID,
		Message:    fmt.Sprintf("Booking updated: %s for %s on %s (%s)", b.Service, displayName(b), localTime(tenant, b.DateTime), b.Status),
		DedupeKey:  o.dedupeKey,
	})
	return b, nil
}

// Cancel marks the booking cancelled and appends the reason to its notes.
// Cancelling twice appends and notifies again.
func (m *Manager) Cancel(ctx context.Context, tenantID, bookingID, reason string, opts ...Option) (model.Booking, error) {
	tenant, b, err := m.load(ctx, tenantID, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if !b.Status.CanTransition(model.BookingCancelled) {
		return model.Booking{}, fmt.Errorf("%w: cannot cancel a %s booking", model.ErrInvalidState, b.Status)
	}

	b.Status = model.BookingCancelled
	b.Notes = AppendCancellation(b.Notes, reason)
	b.UpdatedAt = m.now().UTC()
	if err := m.store.UpdateBooking(ctx, b); err != nil {
		return model.Booking{}, fmt.Errorf("cancel booking: %w", err)
	}

	o := applyOptions(opts)
	m.notify(ctx, model.Notification{
		TenantID:   tenant.ID,
		Type:       model.NotificationBookingCancelled,
		ResourceID: b.ID,
		Message:    fmt.Sprintf("Booking cancelled: %s for %s on %s", b.Service, displayName(b), localTime(tenant, b.DateTime)),
		DedupeKey:  o.dedupeKey,
	})
	return b, nil
}

// AppendCancellation keeps existing notes and adds the reason on its own line.
func AppendCancellation(notes, reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "no reason given"
	}
	line := "Cancellation reason: " + reason
	notes = strings.TrimRight(notes, "\n ")
	if notes == "" {
		return line
	}
	return notes + "\n" + line
}

func (m *Manager) Get(ctx context.Context, tenantID, bookingID string) (model.Booking, error) {
	_, b, err := m.load(ctx, tenantID, bookingID)
	return b, err
}

// Lookup finds the booking created under an idempotency key.
func (m *Manager) Lookup(ctx context.Context, tenantID, key string) (model.Booking, bool, error) {
	b, err := m.store.FindBookingByKey(ctx, tenantID, key)
	if errors.Is(err, model.ErrNotFound) {
		return model.Booking{}, false, nil
	}
	if err != nil {
		return model.Booking{}, false, err
	}
	return b, true, nil
}

// ListByDate lists the tenant's bookings on a local calendar date.
func (m *Manager) ListByDate(ctx context.Context, tenantID, date string) ([]model.Booking, error) {
	tenant, err := m.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant: %w", err)
	}
	day, err := model.LocalDate(date, tenant.Location())
	if err != nil {
		return nil, err
	}
	return m.store.ListBookings(ctx, tenant.ID, day, day.AddDate(0, 0, 1))
}

func (m *Manager) ListRecent(ctx context.Context, tenantID string, limit int) ([]model.Booking, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return m.store.ListRecentBookings(ctx, tenantID, limit)
}

func (m *Manager) load(ctx context.Context, tenantID, bookingID string) (model.Tenant, model.Booking, error) {
	tenant, err := m.store.GetTenant(ctx, tenantID)
	if err != nil {
		return model.Tenant{}, model.Booking{}, fmt.Errorf("load tenant: %w", err)
	}
	b, err := m.store.GetBooking(ctx, tenant.ID, bookingID)
	if err != nil {
		return model.Tenant{}, model.Booking{}, fmt.Errorf("load booking: %w", err)
	}
	if b.TenantID != tenant.ID {
		return model.Tenant{}, model.Booking{}, fmt.Errorf("load booking: %w", model.ErrNotFound)
	}
	return tenant, b, nil
}

func (m *Manager) notify(ctx context.Context, n model.Notification) {
	if m.notifier == nil {
		return
	}
	if _, err := m.notifier.Notify(ctx, n); err != nil {
		m.logger.Warn("booking notification failed", "err", err, "type", n.Type, "booking_id", n.ResourceID)
	}
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func fillContact(c model.Contact, client model.Client) model.Contact {
	if c.Name == "" {
		c.Name = client.Name
	}
	if c.Email == "" {
		c.Email = client.Email
	}
	if c.Phone == "" {
		c.Phone = client.Phone
	}
	return c
}

func displayName(b model.Booking) string {
	if b.ClientName != "" {
		return b.ClientName
	}
	return "walk-in client"
}

func localTime(t model.Tenant, at time.Time) string {
	return at.In(t.Location()).Format("Mon Jan 2, 2006 at 15:04")
}
