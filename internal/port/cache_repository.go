package port

import (
	"context"
	"errors"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

var ErrCacheMiss = errors.New("cache miss")

type CartCache interface {
	// Get returns ErrCacheMiss when nothing is cached for the user
	Get(ctx context.Context, userID string) (*domain.Cart, error)

	// Version returns a token that changes on every Delete for the user. Read it
	// before loading the cart from the store and hand it back to Set.
	Version(ctx context.Context, userID string) (string, error)

	// Set stores cart only while the user's version still equals version, so a
	// snapshot read before an invalidation is never cached after it.
	Set(ctx context.Context, userID string, cart *domain.Cart, version string) error

	// Delete drops the cached cart and moves the user to a new version
	Delete(ctx context.Context, userID string) error
}

type IdempotencyStore interface {
	// Reserve claims key. If the key was already claimed it returns false and the
	// stored result (empty while the first request is still in flight).
	Reserve(ctx context.Context, key string) (bool, string, error)

	// Complete records the result for a reserved key
	Complete(ctx context.Context, key, result string) error

	// Release drops an in-flight reservation so the request can be retried
	Release(ctx context.Context, key string) error
}
