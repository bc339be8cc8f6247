// Package clients finds, creates and soft-deletes a tenant's customers.
package clients

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/detailbook/detailbook/services/booking-service/internal/model"
	"github.com/google/uuid"
)

// SearchLimit caps the number of clients a search returns.
const SearchLimit = 10

type Store interface {
	// SearchClients matches term case-insensitively against name, email and phone
	// of non-deleted clients.
	SearchClients(ctx context.Context, tenantID, term string, limit int) ([]model.Client, error)
	CreateClient(ctx context.Context, c model.Client) error
	GetClient(ctx context.Context, tenantID, clientID string) (model.Client, error)
	SoftDeleteClient(ctx context.Context, tenantID, clientID string, at time.Time) error
}

type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger, now: time.Now}
}

func (s *Service) Search(ctx context.Context, tenantID, term string) ([]model.Client, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("%w: search term required", model.ErrValidation)
	}
	found, err := s.store.SearchClients(ctx, tenantID, term, SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search clients: %w", err)
	}
	if len(found) > SearchLimit {
		found = found[:SearchLimit]
	}
	return found, nil
}

// Resolve returns the first client matching the contact's email, phone or name,
// tried in that order. With no match it creates exactly one client.
func (s *Service) Resolve(ctx context.Context, tenantID string, contact model.Contact, service string) (model.Client, bool, error) {
	contact = normalize(contact)
	for _, term := range []string{contact.Email, contact.Phone, contact.Name} {
		if term == "" {
			continue
		}
		found, err := s.store.SearchClients(ctx, tenantID, term, SearchLimit)
		if err != nil {
			return model.Client{}, false, fmt.Errorf("search clients: %w", err)
		}
		if len(found) > 0 {
			return found[0], false, nil
		}
	}

	notes := "Created by booking assistant"
	if service != "" {
		notes = fmt.Sprintf("Created by booking assistant for %s request", service)
	}
	c, err := s.Create(ctx, tenantID, contact, notes)
	if err != nil {
		return model.Client{}, false, err
	}
	s.logger.Info("client created by resolver", "tenant_id", tenantID, "client_id", c.ID)
	return c, true, nil
}

func (s *Service) Create(ctx context.Context, tenantID string, contact model.Contact, notes string) (model.Client, error) {
	contact = normalize(contact)
	if contact.Name == "" {
		return model.Client{}, fmt.Errorf("%w: client name required", model.ErrValidation)
	}
	now := s.now().UTC()
	c := model.Client{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      contact.Name,
		Email:     contact.Email,
		Phone:     contact.Phone,
		Notes:     strings.TrimSpace(notes),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateClient(ctx, c); err != nil {
		return model.Client{}, fmt.Errorf("create client: %w", err)
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, tenantID, clientID string) (model.Client, error) {
	return s.store.GetClient(ctx, tenantID, clientID)
}

// Delete soft-deletes; bookings keep referencing the client.
func (s *Service) Delete(ctx context.Context, tenantID, clientID string) error {
	if _, err := s.store.GetClient(ctx, tenantID, clientID); err != nil {
		return err
	}
	return s.store.SoftDeleteClient(ctx, tenantID, clientID, s.now().UTC())
}

func normalize(c model.Contact) model.Contact {
	return model.Contact{
		Name:  strings.TrimSpace(c.Name),
		Email: strings.ToLower(strings.TrimSpace(c.Email)),
		Phone: strings.TrimSpace(c.Phone),
	}
}
