package workflow

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/detailbook/detailbook/services/booking-service/internal/model"
)

// Policy bounds how a failing step is retried.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     int
}

func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Multiplier:      2,
		MaxAttempts:     3,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.InitialInterval <= 0 {
		p.InitialInterval = d.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = d.MaxInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	return p
}

// retry runs op until it succeeds, fails permanently or the attempts run out.
// Errors classified by model.IsPermanent are never retried.
func retry[T any](ctx context.Context, p Policy, op func() (T, error), notify func(error, time.Duration)) (T, error) {
	p = p.withDefaults()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
	}
	if notify != nil {
		opts = append(opts, backoff.WithNotify(notify))
	}
	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && model.IsPermanent(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, opts...)
}
