package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/detailbook/detailbook/services/booking-service/internal/model"
)

const clientColumns = `id, tenant_id, name, email, phone, notes, deleted, created_at, updated_at`

func scanClient(row scanner) (model.Client, error) {
	var c model.Client
	err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.Email, &c.Phone, &c.Notes, &c.Deleted, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a LIKE pattern matching term as a plain substring.
func containsPattern(term string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(term))) + "%"
}

// SearchClients matches term case-insensitively against name, email and phone.
func (s *Store) SearchClients(ctx context.Context, tenantID, term string, limit int) ([]model.Client, error) {
	pattern := containsPattern(term)
	rows, err := s.pool.Query(ctx, `
		SELECT `+clientColumns+`
		FROM clients
		WHERE tenant_id = $1
			AND NOT deleted
			AND (lower(name) LIKE $2 ESCAPE '\' OR lower(email) LIKE $2 ESCAPE '\' OR lower(phone) LIKE $2 ESCAPE '\')
		ORDER BY created_at
		LIMIT $3
	`, tenantID, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CreateClient(ctx context.Context, c model.Client) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.ID, c.TenantID, c.Name, c.Email, c.Phone, c.Notes, c.Deleted, c.CreatedAt, c.UpdatedAt)
	return err
}

func (s *Store) GetClient(ctx context.Context, tenantID, clientID string) (model.Client, error) {
	c, err := scanClient(s.pool.QueryRow(ctx, `
		SELECT `+clientColumns+`
		FROM clients
		WHERE id = $1 AND tenant_id = $2
	`, clientID, tenantID))
	if err != nil {
		return model.Client{}, notFound(err, "client", clientID)
	}
	return c, nil
}

func (s *Store) SoftDeleteClient(ctx context.Context, tenantID, clientID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE clients SET deleted = true, updated_at = $3
		WHERE id = $1 AND tenant_id = $2
	`, clientID, tenantID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("client %s: %w", clientID, model.ErrNotFound)
	}
	return nil
}
