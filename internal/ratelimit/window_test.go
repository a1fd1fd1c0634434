package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, capacity int, window time.Duration) (*FixedWindow, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewFixedWindow(client, capacity, window), mr
}

func TestFixedWindowCapacity(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newTestLimiter(t, 3, 5*time.Minute)

	key := UserKey("user-a")
	for i := 0; i < 3; i++ {
		allowed, _, _, err := limiter.Allow(ctx, key)
		if err != nil {
			t.Fatalf("allow %d: %v", i+1, err)
		}
		if !allowed {
			t.Fatalf("attempt %d should fit the window", i+1)
		}
	}

	allowed, remaining, reset, err := limiter.Allow(ctx, key)
	if err != nil {
		t.Fatalf("allow over capacity: %v", err)
	}
	if allowed {
		t.Fatal("attempt over capacity should be denied")
	}
	if remaining != 0 {
		t.Fatalf("remaining = %d, want 0", remaining)
	}
	if reset <= 0 || reset > 5*time.Minute {
		t.Fatalf("reset = %s, want within (0, 5m]", reset)
	}
}

func TestFixedWindowDeniedAttemptsRetainBudget(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newTestLimiter(t, 1, time.Minute)

	key := UserKey("user-b")
	if allowed, _, _, _ := limiter.Allow(ctx, key); !allowed {
		t.Fatal("first attempt should be allowed")
	}
	// Every denied attempt still occupies the window; none of these may
	// sneak through.
	for i := 0; i < 5; i++ {
		if allowed, _, _, _ := limiter.Allow(ctx, key); allowed {
			t.Fatalf("attempt %d should stay denied", i+2)
		}
	}
}

func TestFixedWindowResetsAfterTTL(t *testing.T) {
	ctx := context.Background()
	limiter, mr := newTestLimiter(t, 1, time.Minute)

	key := UserKey("user-c")
	if allowed, _, _, _ := limiter.Allow(ctx, key); !allowed {
		t.Fatal("first attempt should be allowed")
	}
	if allowed, _, _, _ := limiter.Allow(ctx, key); allowed {
		t.Fatal("second attempt in the same window should be denied")
	}

	mr.FastForward(time.Minute + time.Second)

	allowed, remaining, _, err := limiter.Allow(ctx, key)
	if err != nil {
		t.Fatalf("allow after expiry: %v", err)
	}
	if !allowed {
		t.Fatal("attempt after window expiry should be allowed")
	}
	if remaining != 0 {
		t.Fatalf("remaining after fresh window = %d, want 0", remaining)
	}
}

func TestFixedWindowKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newTestLimiter(t, 1, time.Minute)

	if allowed, _, _, _ := limiter.Allow(ctx, UserKey("user-d")); !allowed {
		t.Fatal("first user should be allowed")
	}
	if allowed, _, _, _ := limiter.Allow(ctx, UserKey("user-e")); !allowed {
		t.Fatal("second user has an independent window")
	}
}
