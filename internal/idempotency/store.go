package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/cryptoctl/tradeengine/internal/apperr"
)

// Store is the Idempotency store (spec.md §4.5, §6): a keyed table of
// {key, client_order_id, first_seen_at} with TTL eviction, plus the
// short-window dedup guard. Backed by Redis so the atomic
// compare-and-set spec.md §7 requires on key insertion maps directly
// onto SETNX.
type Store struct {
	client      *redis.Client
	keyTTL      time.Duration
	dedupWindow time.Duration
	keyPrefix   string
	dedupPrefix string
}

// NewStore builds an idempotency store. cacheTTLHours is the
// IdempotencyRecord lifetime (spec.md default 24h); dedupWindow is the
// short sliding-window guard (spec.md default 5s).
func NewStore(client *redis.Client, cacheTTLHours int, dedupWindow time.Duration) *Store {
	if cacheTTLHours <= 0 {
		cacheTTLHours = 24
	}
	if dedupWindow <= 0 {
		dedupWindow = 5 * time.Second
	}
	return &Store{
		client:      client,
		keyTTL:      time.Duration(cacheTTLHours) * time.Hour,
		dedupWindow: dedupWindow,
		keyPrefix:   "idem:key:",
		dedupPrefix: "idem:dedup:",
	}
}

// Check performs the atomic compare-and-set: if key has not been seen
// within its TTL it is recorded bound to clientOrderID and Check
// returns ResultNew; otherwise it returns ResultDuplicate and the
// client-order-id of the original submission.
func (s *Store) Check(ctx context.Context, key, clientOrderID string) (Result, string, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+key, clientOrderID, s.keyTTL).Result()
	if err != nil {
		return "", "", apperr.Wrap(apperr.APIError, err)
	}
	if ok {
		return ResultNew, clientOrderID, nil
	}

	existing, err := s.client.Get(ctx, s.keyPrefix+key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", "", apperr.Wrap(apperr.APIError, err)
	}
	return ResultDuplicate, existing, nil
}

// CheckDedup enforces the 5-second sliding-window resubmit guard,
// independent of the minute-bucket key above. Returns true if the
// identical (action, symbol, price, size) combination was already seen
// within the window.
func (s *Store) CheckDedup(ctx context.Context, dedupKey string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.dedupPrefix+dedupKey, "1", s.dedupWindow).Result()
	if err != nil {
		return false, apperr.Wrap(apperr.APIError, err)
	}
	return !ok, nil
}

// Invalidate is the privileged operator-override path (spec.md §4.5):
// cancelling an order does NOT free its idempotency key, but an
// operator may explicitly clear it.
func (s *Store) Invalidate(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return apperr.Wrap(apperr.APIError, err)
	}
	log.Warn().Str("key", key).Msg("idempotency key invalidated by operator override")
	return nil
}
