// Package lock provides a best-effort advisory lock used to shed
// contention before entering the database transaction.  It is never a
// correctness dependency: when the lock service is unavailable or the
// lock is already held, callers fall back to relying on the storage
// transaction alone.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired means another holder currently owns the lock.
var ErrNotAcquired = errors.New("lock: not acquired")

// Lock is an acquired advisory lock.  Release is safe to call even if
// the lock has meanwhile expired.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker hands out advisory locks.
type Locker interface {
	// Acquire takes the lock named key for at most ttl.  It returns
	// ErrNotAcquired when the lock is held elsewhere and other errors
	// when the lock service itself failed.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// SeatSetKey builds a deterministic lock key for a screening and seat
// set.  Seat ids are sorted so overlapping requests map to comparable
// keys regardless of request order.
func SeatSetKey(screeningID uint64, seatIDs []uint64) string {
	sorted := append([]uint64(nil), seatIDs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("screening:%d:seats:%s", screeningID, strings.Join(parts, ","))
}

// RedisLocker implements Locker with SET NX on a shared Redis
// instance.  Release goes through a Lua script so a lock that expired
// and was re-acquired by someone else is never deleted by the old
// holder.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker wraps a connected Redis client.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	lockKey := "lock:" + key
	value := uuid.NewString()
	ok, err := l.client.SetNX(ctx, lockKey, value, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock acquire: %w", err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return &redisLock{client: l.client, key: lockKey, value: value}, nil
}

type redisLock struct {
	client *redis.Client
	key    string
	value  string
}

func (l *redisLock) Release(ctx context.Context) error {
	// Ownership check and delete are atomic in the script; losing the
	// race (result 0) just means the lock already expired.
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.value).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("lock release: %w", err)
	}
	return nil
}

// NopLocker always succeeds.  It is the fallback when Redis is not
// configured, leaving the database transaction as the only guard.
type NopLocker struct{}

func (NopLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	return nopLock{}, nil
}

type nopLock struct{}

func (nopLock) Release(ctx context.Context) error { return nil }
