package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/port"
)

const (
	cartKeyPrefix        = "cart:"
	cartVersionPrefix    = "cart-version:"
	idempotencyKeyPrefix = "idempotency:"
	idempotencyPending   = "\x00pending"
	defaultCartTTL       = 15 * time.Minute
	defaultIdemTTL       = 24 * time.Hour
)

type RedisCartCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewRedisCartCache(client *redis.Client, ttl time.Duration) *RedisCartCache {
	if ttl <= 0 {
		ttl = defaultCartTTL
	}
	return &RedisCartCache{client: client, baseTTL: ttl}
}

func (r *RedisCartCache) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, cartKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, port.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return &cart, nil
}

// setCartScript writes the cart only if the version key still holds the
// version the caller read before loading from the store.
var setCartScript = redis.NewScript(`
local current = redis.call('GET', KEYS[2]) or ''
if current ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

func (r *RedisCartCache) Version(ctx context.Context, userID string) (string, error) {
	v, err := r.client.Get(ctx, cartVersionKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get version failed: %w", err)
	}
	return v, nil
}

func (r *RedisCartCache) Set(ctx context.Context, userID string, cart *domain.Cart, version string) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	// jitter spreads expiry so a burst of writes does not expire together
	ttl := r.baseTTL + time.Duration(rand.Int63n(int64(r.baseTTL/3)+1))
	keys := []string{cartKey(userID), cartVersionKey(userID)}
	if err := setCartScript.Run(ctx, r.client, keys, version, data, ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete removes the entry and rotates the version in one MULTI block. The
// version outlives any cart entry written under the previous one.
func (r *RedisCartCache) Delete(ctx context.Context, userID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, cartKey(userID))
		pipe.Set(ctx, cartVersionKey(userID), uuid.NewString(), 2*r.baseTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cartKey(userID string) string {
	return cartKeyPrefix + userID
}

func cartVersionKey(userID string) string {
	return cartVersionPrefix + userID
}

// completeScript and releaseScript only touch keys still holding the pending
// marker, so a late failure can never clobber a recorded result.
var completeScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

var releaseScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current == ARGV[1] then
	redis.call('DEL', KEYS[1])
	return 1
end
return 0
`)

type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = defaultIdemTTL
	}
	return &RedisIdempotencyStore{client: client, ttl: ttl}
}

func (r *RedisIdempotencyStore) Reserve(ctx context.Context, key string) (bool, string, error) {
	k := idempotencyKeyPrefix + key

	ok, err := r.client.SetNX(ctx, k, idempotencyPending, r.ttl).Result()
	if err != nil {
		return false, "", fmt.Errorf("idempotency reserve: %w", err)
	}
	if ok {
		return true, "", nil
	}

	existing, err := r.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; treat as still in flight
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("idempotency lookup: %w", err)
	}
	if existing == idempotencyPending {
		return false, "", nil
	}
	return false, existing, nil
}

func (r *RedisIdempotencyStore) Complete(ctx context.Context, key, result string) error {
	k := idempotencyKeyPrefix + key
	_, err := completeScript.Run(ctx, r.client, []string{k}, idempotencyPending, result, r.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("idempotency complete: %w", err)
	}
	return nil
}

func (r *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	k := idempotencyKeyPrefix + key
	if _, err := releaseScript.Run(ctx, r.client, []string{k}, idempotencyPending).Int(); err != nil {
		return fmt.Errorf("idempotency release: %w", err)
	}
	return nil
}
