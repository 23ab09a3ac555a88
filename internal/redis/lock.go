package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("slot pair lock not acquired")
)

// Locker guards the critical section for one unordered pair of slots.
// Two racing swap creations for the same pair contend on the same key
// regardless of which direction they come from.
type Locker interface {
	WithPairLock(ctx context.Context, slotA, slotB uuid.UUID, fn func(ctx context.Context) error) error
}

type redisPairLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPairLocker creates a locker keyed on the sorted slot pair.
func NewRedisPairLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisPairLocker{
		client: client,
		ttl:    ttl,
	}
}

func pairLockKey(slotA, slotB uuid.UUID) string {
	lo, hi := slotA.String(), slotB.String()
	if hi < lo {
		lo, hi = hi, lo
	}
	return fmt.Sprintf("lock:swap-pair:%s:%s", lo, hi)
}

func (l *redisPairLocker) WithPairLock(ctx context.Context, slotA, slotB uuid.UUID, fn func(ctx context.Context) error) error {
	key := pairLockKey(slotA, slotB)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire pair lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisPairLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release pair lock: %w", err)
	}
	return nil
}
