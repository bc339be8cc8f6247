package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/detailbook/detailbook/libs/config"
	"github.com/detailbook/detailbook/libs/db"
	"github.com/detailbook/detailbook/libs/redisx"
	"github.com/detailbook/detailbook/services/booking-service/internal/availability"
	"github.com/detailbook/detailbook/services/booking-service/internal/bookings"
	"github.com/detailbook/detailbook/services/booking-service/internal/clients"
	"github.com/detailbook/detailbook/services/booking-service/internal/notify"
	"github.com/detailbook/detailbook/services/booking-service/internal/notify/email"
	"github.com/detailbook/detailbook/services/booking-service/internal/notify/sms"
	"github.com/detailbook/detailbook/services/booking-service/internal/parser"
	"github.com/detailbook/detailbook/services/booking-service/internal/storage"
	"github.com/detailbook/detailbook/services/booking-service/internal/storage/memory"
	"github.com/detailbook/detailbook/services/booking-service/internal/tenants"
	"github.com/detailbook/detailbook/services/booking-service/internal/threads"
	"github.com/detailbook/detailbook/services/booking-service/internal/workflow"
)

// appStore is everything the services need from persistence.
type appStore interface {
	tenants.Store
	clients.Store
	bookings.Store
	availability.Store
	notify.Store
	threads.Store
	workflow.Store
	Ping(ctx context.Context) error
}

// openStore returns the configured store and, for postgres, the pool to close.
func openStore(ctx context.Context, logger *slog.Logger) (appStore, *db.Pool, error) {
	switch kind := strings.ToLower(config.String("STORE", "memory")); kind {
	case "memory":
		logger.Warn("using in-memory store; data is lost on restart")
		return memory.New(), nil, nil
	case "postgres":
		dbURL, err := config.RequiredString("DATABASE_URL")
		if err != nil {
			return nil, nil, err
		}
		pool, err := db.Open(ctx, dbURL, db.PoolOptions{
			MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("db connection: %w", err)
		}
		st := storage.New(pool)
		if config.Bool("DB_MIGRATE", true) {
			if err := st.Migrate(ctx); err != nil {
				pool.Close()
				return nil, nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return st, pool, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE %q", kind)
	}
}

// openRedis returns nil when REDIS_ADDR is unset.
func openRedis(ctx context.Context) (*redis.Client, error) {
	addr := config.String("REDIS_ADDR", "")
	if addr == "" {
		return nil, nil
	}
	return redisx.Open(ctx, redisx.Options{
		Addr:     addr,
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       config.Int("REDIS_DB", 0),
	})
}

func buildParser(ctx context.Context, logger *slog.Logger) (parser.Parser, func() error, error) {
	switch kind := strings.ToLower(config.String("PARSER", "keyword")); kind {
	case "keyword":
		return parser.NewKeywordParser(), func() error { return nil }, nil
	case "gemini":
		key, err := config.RequiredString("GEMINI_API_KEY")
		if err != nil {
			return nil, nil, err
		}
		p, err := parser.NewGeminiParser(ctx, key, config.String("GEMINI_MODEL", parser.DefaultGeminiModel))
		if err != nil {
			return nil, nil, fmt.Errorf("gemini parser: %w", err)
		}
		logger.Info("gemini parser enabled")
		return p, p.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown PARSER %q", kind)
	}
}

func buildEmailSender() email.Sender {
	host := config.String("SMTP_HOST", "")
	if host == "" {
		return email.NoopSender{}
	}
	return email.NewSMTPSender(
		host,
		config.String("SMTP_PORT", "587"),
		config.String("SMTP_FROM", "bookings@detailbook.local"),
		config.String("SMTP_USERNAME", ""),
		config.String("SMTP_PASSWORD", ""),
	)
}

func buildSMSSender(logger *slog.Logger) sms.Sender {
	switch provider := strings.ToLower(config.String("SMS_PROVIDER", "noop")); provider {
	case "twilio":
		return sms.NewTwilioSender(
			config.String("TWILIO_ACCOUNT_SID", ""),
			config.String("TWILIO_AUTH_TOKEN", ""),
			config.String("TWILIO_FROM", ""),
		)
	case "webhook":
		return sms.NewWebhookSender(config.String("SMS_WEBHOOK_URL", ""), config.String("SMS_WEBHOOK_TOKEN", ""))
	case "noop", "":
		return sms.NewNoopSender()
	default:
		logger.Warn("unknown SMS_PROVIDER; sms disabled", "provider", provider)
		return sms.NewNoopSender()
	}
}

func workflowPolicy() workflow.Policy {
	def := workflow.DefaultPolicy()
	return workflow.Policy{
		InitialInterval: config.Duration("WORKFLOW_INITIAL_BACKOFF", def.InitialInterval),
		MaxInterval:     config.Duration("WORKFLOW_MAX_BACKOFF", def.MaxInterval),
		Multiplier:      config.Float("WORKFLOW_BACKOFF_MULTIPLIER", def.Multiplier),
		MaxAttempts:     config.Int("WORKFLOW_MAX_ATTEMPTS", def.MaxAttempts),
	}
}
