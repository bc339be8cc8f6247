package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/detailbook/detailbook/services/booking-service/internal/model"
)

func (s *Store) CreateTenant(ctx context.Context, t model.Tenant) error {
	hours, err := json.Marshal(t.Hours)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO tenants (id, name, timezone, business_hours, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, t.ID, t.Name, t.Timezone, hours, t.CreatedAt)
	if IsUniqueViolation(err) {
		return fmt.Errorf("tenant %s: %w", t.ID, model.ErrConflict)
	}
	return err
}

func (s *Store) GetTenant(ctx context.Context, tenantID string) (model.Tenant, error) {
	var t model.Tenant
	var hours []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, timezone, business_hours, created_at
		FROM tenants
		WHERE id = $1
	`, tenantID).Scan(&t.ID, &t.Name, &t.Timezone, &hours, &t.CreatedAt)
	if err != nil {
		return model.Tenant{}, notFound(err, "tenant", tenantID)
	}
	if err := json.Unmarshal(hours, &t.Hours); err != nil {
		return model.Tenant{}, fmt.Errorf("decode business hours: %w", err)
	}
	return t, nil
}
