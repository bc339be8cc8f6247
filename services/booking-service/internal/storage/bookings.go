package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/detailbook/detailbook/services/booking-service/internal/model"
)

const bookingColumns = `id, tenant_id, client_id, client_name, client_email, client_phone,
	service, date_time, status, notes, COALESCE(idempotency_key, ''), created_at, updated_at`

func scanBooking(row scanner) (model.Booking, error) {
	var b model.Booking
	err := row.Scan(
		&b.ID,
		&b.TenantID,
		&b.ClientID,
		&b.ClientName,
		&b.ClientEmail,
		&b.ClientPhone,
		&b.Service,
		&b.DateTime,
		&b.Status,
		&b.Notes,
		&b.IdempotencyKey,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	return b, err
}

func collectBookings(rows pgx.Rows) ([]model.Booking, error) {
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// CreateBooking inserts b, or returns the booking already stored under the
// same tenant and idempotency key.
func (s *Store) CreateBooking(ctx context.Context, b model.Booking) (model.Booking, bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO bookings
			(id, tenant_id, client_id, client_name, client_email, client_phone,
			 service, date_time, status, notes, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (tenant_id, idempotency_key) WHERE idempotency_key IS NOT NULL DO NOTHING
	`, b.ID, b.TenantID, b.ClientID, b.ClientName, b.ClientEmail, b.ClientPhone,
		b.Service, b.DateTime, b.Status, b.Notes, nullable(b.IdempotencyKey), b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return model.Booking{}, false, err
	}
	if tag.RowsAffected() == 1 {
		return b, true, nil
	}
	existing, err := s.FindBookingByKey(ctx, b.TenantID, b.IdempotencyKey)
	if err != nil {
		return model.Booking{}, false, err
	}
	return existing, false, nil
}

func (s *Store) GetBooking(ctx context.Context, tenantID, bookingID string) (model.Booking, error) {
	b, err := scanBooking(s.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1 AND tenant_id = $2
	`, bookingID, tenantID))
	if err != nil {
		return model.Booking{}, notFound(err, "booking", bookingID)
	}
	return b, nil
}

func (s *Store) FindBookingByKey(ctx context.Context, tenantID, key string) (model.Booking, error) {
	if key == "" {
		return model.Booking{}, fmt.Errorf("booking key: %w", model.ErrNotFound)
	}
	b, err := scanBooking(s.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE tenant_id = $1 AND idempotency_key = $2
	`, tenantID, key))
	if err != nil {
		return model.Booking{}, notFound(err, "booking key", key)
	}
	return b, nil
}

// UpdateBooking rewrites the mutable fields; the idempotency key never changes.
func (s *Store) UpdateBooking(ctx context.Context, b model.Booking) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE bookings
		SET client_id = $3,
			client_name = $4,
			client_email = $5,
			client_phone = $6,
			service = $7,
			date_time = $8,
			status = $9,
			notes = $10,
			updated_at = $11
		WHERE id = $1 AND tenant_id = $2
	`, b.ID, b.TenantID, b.ClientID, b.ClientName, b.ClientEmail, b.ClientPhone,
		b.Service, b.DateTime, b.Status, b.Notes, b.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("booking %s: %w", b.ID, model.ErrNotFound)
	}
	return nil
}

func (s *Store) ListBookings(ctx context.Context, tenantID string, from, to time.Time) ([]model.Booking, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE tenant_id = $1 AND date_time >= $2 AND date_time < $3
		ORDER BY date_time ASC
	`, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (s *Store) ListScheduledBookings(ctx context.Context, tenantID string, from, to time.Time) ([]model.Booking, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE tenant_id = $1
			AND status = $4
			AND date_time >= $2
			AND date_time < $3
		ORDER BY date_time ASC
	`, tenantID, from, to, model.BookingScheduled)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (s *Store) ListRecentBookings(ctx context.Context, tenantID string, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE tenant_id = $1
		ORDER BY date_time DESC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}
