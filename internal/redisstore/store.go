package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
)

// LockStore implements lock.Store on Redis. Every call runs through a
// circuit breaker so a dead Redis fails bookings fast instead of stalling
// each request on connection timeouts.
type LockStore struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker[bool]
}

func NewLockStore(client *redis.Client) *LockStore {
	cb := gobreaker.NewCircuitBreaker[bool](gobreaker.Settings{
		Name:        "redis-lock-store",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &LockStore{client: client, breaker: cb}
}

func (s *LockStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.breaker.Execute(func() (bool, error) {
		return s.client.SetNX(ctx, key, value, ttl).Result()
	})
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

// deleteScript removes the key only while it still holds the caller's token,
// so an expired-and-reacquired lock is never deleted out from under its new
// holder.
var deleteScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (s *LockStore) Delete(ctx context.Context, key, value string) error {
	_, err := s.breaker.Execute(func() (bool, error) {
		_, err := deleteScript.Run(ctx, s.client, []string{key}, value).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
