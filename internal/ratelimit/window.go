package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// FixedWindow is a distributed fixed-window rate limiter backed by Redis.
// The window is anchored to the first increment: the counter is created with
// the window duration as its TTL and every attempt increments it, including
// denied ones, so retry storms cannot reset the window. This approximates
// "N per rolling window" without a sliding log, which is the documented
// contract for reminder throttling.
type FixedWindow struct {
	client   *redis.Client
	capacity int
	window   time.Duration
}

// NewFixedWindow constructs a limiter with the provided capacity per window.
func NewFixedWindow(client *redis.Client, capacity int, window time.Duration) *FixedWindow {
	return &FixedWindow{
		client:   client,
		capacity: capacity,
		window:   window,
	}
}

// Allow consumes one unit of budget for the given key. It returns whether
// the attempt fits the window, the remaining budget, and the time until the
// window resets. Increment-and-check runs as a single Redis script so
// concurrent callers on the same key cannot interleave.
func (w *FixedWindow) Allow(ctx context.Context, key string) (bool, int64, time.Duration, error) {
	res, err := windowScript.Run(ctx, w.client, []string{key}, w.window.Milliseconds()).Result()
	if err != nil {
		return false, 0, 0, err
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) < 2 {
		return false, 0, 0, fmt.Errorf("unexpected reply from window script: %T", res)
	}
	count, _ := arr[0].(int64)
	ttlMillis, _ := arr[1].(int64)

	reset := time.Duration(ttlMillis) * time.Millisecond
	if ttlMillis < 0 {
		reset = w.window
	}
	remaining := int64(w.capacity) - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= int64(w.capacity), remaining, reset, nil
}

// UserKey builds the per-user reminder budget key.
func UserKey(userID string) string {
	return fmt.Sprintf("rate-limit:user:%s:reminder", userID)
}

var windowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
return {count, ttl}
`)
