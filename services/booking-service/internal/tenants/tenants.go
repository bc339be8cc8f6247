// Package tenants registers business accounts.
package tenants

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/detailbook/detailbook/services/booking-service/internal/model"
	"github.com/google/uuid"
)

type Store interface {
	CreateTenant(ctx context.Context, t model.Tenant) error
	GetTenant(ctx context.Context, tenantID string) (model.Tenant, error)
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

type SignupInput struct {
	ID       string               `json:"id"`
	Name     string               `json:"name"`
	Timezone string               `json:"timezone"`
	Hours    *model.BusinessHours `json:"business_hours"`
}

// Signup creates a tenant. Missing hours default to 09:00-17:00 every day.
func (s *Service) Signup(ctx context.Context, in SignupInput) (model.Tenant, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return model.Tenant{}, fmt.Errorf("%w: name required", model.ErrValidation)
	}
	tz := strings.TrimSpace(in.Timezone)
	if tz == "" {
		tz = "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return model.Tenant{}, fmt.Errorf("%w: unknown timezone %q", model.ErrValidation, tz)
	}
	hours := model.DefaultBusinessHours()
	if in.Hours != nil {
		hours = *in.Hours
	}
	if err := hours.Validate(); err != nil {
		return model.Tenant{}, err
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}
	t := model.Tenant{
		ID:        id,
		Name:      name,
		Timezone:  tz,
		Hours:     hours,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateTenant(ctx, t); err != nil {
		return model.Tenant{}, fmt.Errorf("create tenant: %w", err)
	}
	return t, nil
}

func (s *Service) Get(ctx context.Context, tenantID string) (model.Tenant, error) {
	return s.store.GetTenant(ctx, tenantID)
}
