package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/port"
)

// RetryPolicy controls how often a transaction that failed with domain.ErrBusy
// is re-run before the error reaches the caller.
type RetryPolicy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
	}
}

// CheckoutRecorder receives one observation per finished checkout.
type CheckoutRecorder interface {
	ObserveCheckout(outcome string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveCheckout(string, time.Duration) {}

type options struct {
	now      func() time.Time
	retry    RetryPolicy
	logger   *slog.Logger
	recorder CheckoutRecorder
}

type Option func(*options)

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *options) { o.retry = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithRecorder(r CheckoutRecorder) Option {
	return func(o *options) { o.recorder = r }
}

func buildOptions(opts []Option) options {
	o := options{
		now:      time.Now,
		retry:    DefaultRetryPolicy(),
		logger:   slog.Default(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.retry.MaxAttempts == 0 {
		o.retry.MaxAttempts = 1
	}
	return o
}

// inTx runs fn in a transaction, re-running it while the store reports
// domain.ErrBusy. fn must not leak state between attempts.
func inTx(ctx context.Context, tx port.Transactor, policy RetryPolicy, fn func(ctx context.Context, repos port.Repositories) error) error {
	b := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		b.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		b.MaxInterval = policy.MaxInterval
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := tx.WithinTx(ctx, fn)
		if err != nil && !domain.Retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(policy.MaxAttempts))
	return err
}
