package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Slot is the single piece of shared mutable state between the intake side
// (a human submitting a CAPTCHA answer) and the orchestration side. At most
// one unconsumed value exists per run; Take consumes exactly once.
type Slot interface {
	// Put stores the value for the run, replacing any unconsumed one. The
	// value expires after ttl so a stale answer can never satisfy a later
	// prompt.
	Put(ctx context.Context, runID, value string, ttl time.Duration) error
	// Take atomically reads and clears the run's value. The second return is
	// false when no value is pending.
	Take(ctx context.Context, runID string) (string, bool, error)
}

// RedisSlot implements Slot on Redis: SET with expiry on intake, GETDEL on
// consumption. GETDEL gives the atomic read-and-clear the relay contract
// requires without a transaction.
type RedisSlot struct {
	rdb *redis.Client
}

// NewRedisSlot wraps an existing Redis client.
func NewRedisSlot(rdb *redis.Client) *RedisSlot {
	return &RedisSlot{rdb: rdb}
}

func slotKey(runID string) string {
	return fmt.Sprintf("captcha:run:%s", runID)
}

func (s *RedisSlot) Put(ctx context.Context, runID, value string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, slotKey(runID), value, ttl).Err(); err != nil {
		return fmt.Errorf("store captcha value for run %s: %w", runID, err)
	}
	return nil
}

func (s *RedisSlot) Take(ctx context.Context, runID string) (string, bool, error) {
	val, err := s.rdb.GetDel(ctx, slotKey(runID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("take captcha value for run %s: %w", runID, err)
	}
	return val, true, nil
}
