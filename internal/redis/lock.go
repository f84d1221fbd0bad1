package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("slot lock held by another request")

// Locker guards the critical section of one professional's date-time.
type Locker interface {
	WithSlotLock(ctx context.Context, professionalID uuid.UUID, at time.Time, fn func(ctx context.Context) error) error
}

// NoopLocker runs fn directly. Used when Redis is disabled; the database
// lock and unique index still serialize bookings.
type NoopLocker struct{}

func (NoopLocker) WithSlotLock(ctx context.Context, _ uuid.UUID, _ time.Time, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type redisSlotLocker struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisSlotLocker returns a Locker backed by one SETNX key per
// (professional, date-time).
func NewRedisSlotLocker(client redis.Cmdable, ttl time.Duration) Locker {
	return &redisSlotLocker{
		client: client,
		ttl:    ttl,
	}
}

func SlotLockKey(professionalID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("lock:slot:%s:%s", professionalID, at.UTC().Format("2006-01-02T15:04"))
}

func (l *redisSlotLocker) WithSlotLock(ctx context.Context, professionalID uuid.UUID, at time.Time, fn func(ctx context.Context) error) error {
	key := SlotLockKey(professionalID, at)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire slot lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		// release even if the request context is already done
		_ = l.release(context.WithoutCancel(ctx), key, token)
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

func (l *redisSlotLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release slot lock: %w", err)
	}
	return nil
}
