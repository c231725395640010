package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store fences duplicate external deliveries with redis SETNX. A key is
// claimed exactly once inside the TTL window; at-least-once senders retrying
// within it are detected as duplicates.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// EventKey identifies a provider webhook delivery.
func EventKey(provider, eventID string) string {
	return fmt.Sprintf("idem:event:%s:%s", provider, eventID)
}

// CheckoutKey identifies a checkout attempt so request retries do not
// provision duplicate users and orders.
func CheckoutKey(key string) string {
	return fmt.Sprintf("idem:checkout:%s", key)
}

func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}
