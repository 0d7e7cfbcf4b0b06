package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/port"
)

// BreakerCartCache stops calling a failing cache for a cool-down period. While
// open, reads degrade to cache misses and writes are skipped.
type BreakerCartCache struct {
	next port.CartCache
	cb   *gobreaker.CircuitBreaker[*domain.Cart]
}

func NewBreakerCartCache(next port.CartCache, failures uint32, coolDown time.Duration) *BreakerCartCache {
	if failures == 0 {
		failures = 5
	}
	return &BreakerCartCache{
		next: next,
		cb: gobreaker.NewCircuitBreaker[*domain.Cart](gobreaker.Settings{
			Name:        "cart-cache",
			MaxRequests: 1,
			Timeout:     coolDown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, port.ErrCacheMiss)
			},
		}),
	}
}

func (b *BreakerCartCache) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, err := b.cb.Execute(func() (*domain.Cart, error) {
		return b.next.Get(ctx, userID)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, port.ErrCacheMiss
	}
	return cart, err
}

// Version fails while the breaker is open; callers then skip the cache write.
func (b *BreakerCartCache) Version(ctx context.Context, userID string) (string, error) {
	var version string
	_, err := b.cb.Execute(func() (*domain.Cart, error) {
		v, err := b.next.Version(ctx, userID)
		version = v
		return nil, err
	})
	return version, err
}

func (b *BreakerCartCache) Set(ctx context.Context, userID string, cart *domain.Cart, version string) error {
	_, err := b.cb.Execute(func() (*domain.Cart, error) {
		return nil, b.next.Set(ctx, userID, cart, version)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil
	}
	return err
}

// Delete bypasses the breaker: skipping an invalidation would leave a stale cart visible.
func (b *BreakerCartCache) Delete(ctx context.Context, userID string) error {
	return b.next.Delete(ctx, userID)
}

func (b *BreakerCartCache) State() gobreaker.State {
	return b.cb.State()
}

// NopCartCache is used when no Redis is configured.
type NopCartCache struct{}

func (NopCartCache) Get(context.Context, string) (*domain.Cart, error)       { return nil, port.ErrCacheMiss }
func (NopCartCache) Version(context.Context, string) (string, error)         { return "", nil }
func (NopCartCache) Set(context.Context, string, *domain.Cart, string) error { return nil }
func (NopCartCache) Delete(context.Context, string) error                    { return nil }
