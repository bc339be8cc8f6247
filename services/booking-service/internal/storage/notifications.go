package storage

import (
	"context"
	"fmt"

	"github.com/detailbook/detailbook/services/booking-service/internal/model"
)

func (s *Store) InsertNotification(ctx context.Context, n model.Notification) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (id, tenant_id, type, resource_id, message, read, dedupe_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, dedupe_key) WHERE dedupe_key IS NOT NULL DO NOTHING
	`, n.ID, n.TenantID, n.Type, n.ResourceID, n.Message, n.Read, nullable(n.DedupeKey), n.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ListNotifications(ctx context.Context, tenantID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, type, resource_id, message, read, created_at
		FROM notifications
		WHERE tenant_id = $1 AND (NOT $2 OR NOT read)
		ORDER BY created_at DESC
		LIMIT $3
	`, tenantID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.TenantID, &n.Type, &n.ResourceID, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) MarkNotificationRead(ctx context.Context, tenantID, notificationID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET read = true
		WHERE id = $1 AND tenant_id = $2
	`, notificationID, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification %s: %w", notificationID, model.ErrNotFound)
	}
	return nil
}

func (s *Store) ClaimDelivery(ctx context.Context, tenantID, key string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO deliveries (tenant_id, key) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, tenantID, key)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ReleaseDelivery(ctx context.Context, tenantID, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM deliveries WHERE tenant_id = $1 AND key = $2`, tenantID, key)
	return err
}
