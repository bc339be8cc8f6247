// Package notify records tenant notifications, publishes them as events and
// delivers client-facing email and SMS.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/detailbook/detailbook/services/booking-service/internal/model"
	"github.com/detailbook/detailbook/services/booking-service/internal/notify/email"
	"github.com/detailbook/detailbook/services/booking-service/internal/notify/sms"
	"github.com/google/uuid"
)

type Store interface {
	// InsertNotification returns false when a notification with the same
	// tenant and dedupe key already exists.
	InsertNotification(ctx context.Context, n model.Notification) (bool, error)
	ListNotifications(ctx context.Context, tenantID string, unreadOnly bool, limit int) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, tenantID, notificationID string) error
	// ClaimDelivery returns false when key was already claimed.
	ClaimDelivery(ctx context.Context, tenantID, key string) (bool, error)
	ReleaseDelivery(ctx context.Context, tenantID, key string) error
}

type Publisher interface {
	Publish(ctx context.Context, n model.Notification) error
}

type Service struct {
	store     Store
	publisher Publisher
	email     email.Sender
	sms       sms.Sender
	logger    *slog.Logger
	now       func() time.Time
}

type Config struct {
	Publisher Publisher
	Email     email.Sender
	SMS       sms.Sender
}

func NewService(store Store, logger *slog.Logger, cfg Config) *Service {
	if cfg.Publisher == nil {
		cfg.Publisher = NoopPublisher{}
	}
	if cfg.Email == nil {
		cfg.Email = email.NoopSender{}
	}
	if cfg.SMS == nil {
		cfg.SMS = sms.NewNoopSender()
	}
	return &Service{
		store:     store,
		publisher: cfg.Publisher,
		email:     cfg.Email,
		sms:       cfg.SMS,
		logger:    logger,
		now:       time.Now,
	}
}

// Notify persists n and publishes it. It reports false when n's dedupe key was
// already recorded, in which case nothing is published.
func (s *Service) Notify(ctx context.Context, n model.Notification) (bool, error) {
	if strings.TrimSpace(n.TenantID) == "" || n.Type == "" {
		return false, fmt.Errorf("%w: tenant and type required", model.ErrValidation)
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	created, err := s.store.InsertNotification(ctx, n)
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	if !created {
		s.logger.Debug("notification deduplicated", "tenant_id", n.TenantID, "dedupe_key", n.DedupeKey)
		return false, nil
	}
	if err := s.publisher.Publish(ctx, n); err != nil {
		s.logger.Warn("notification publish failed", "err", err, "notification_id", n.ID, "type", n.Type)
	}
	return true, nil
}

// ClientMessage is addressed to the booking's customer on every channel that
// has a recipient.
type ClientMessage struct {
	TenantID  string
	DedupeKey string
	Email     string
	Phone     string
	Subject   string
	Body      string
}

// Deliver sends m on each channel at most once per dedupe key. A failed channel
// releases its claim so a retry can send it again.
func (s *Service) Deliver(ctx context.Context, m ClientMessage) error {
	var errs []error
	if addr := strings.TrimSpace(m.Email); addr != "" {
		errs = append(errs, s.deliverOnce(ctx, m, "email", func(ctx context.Context) error {
			return s.email.Send(ctx, addr, m.Subject, m.Body)
		}))
	}
	if phone := strings.TrimSpace(m.Phone); phone != "" {
		errs = append(errs, s.deliverOnce(ctx, m, "sms", func(ctx context.Context) error {
			return s.sms.Send(ctx, phone, m.Body)
		}))
	}
	return errors.Join(errs...)
}

func (s *Service) deliverOnce(ctx context.Context, m ClientMessage, channel string, send func(context.Context) error) error {
	key := ""
	if m.DedupeKey != "" {
		key = m.DedupeKey + ":" + channel
		claimed, err := s.store.ClaimDelivery(ctx, m.TenantID, key)
		if err != nil {
			return fmt.Errorf("claim %s delivery: %w", channel, err)
		}
		if !claimed {
			return nil
		}
	}
	if err := send(ctx); err != nil {
		if key != "" {
			if rerr := s.store.ReleaseDelivery(ctx, m.TenantID, key); rerr != nil {
				s.logger.Error("release delivery failed", "err", rerr, "key", key)
			}
		}
		return fmt.Errorf("send %s: %w", channel, err)
	}
	s.logger.Info("client message delivered", "tenant_id", m.TenantID, "channel", channel)
	return nil
}

func (s *Service) List(ctx context.Context, tenantID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListNotifications(ctx, tenantID, unreadOnly, limit)
}

func (s *Service) MarkRead(ctx context.Context, tenantID, notificationID string) error {
	return s.store.MarkNotificationRead(ctx, tenantID, notificationID)
}
