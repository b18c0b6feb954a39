package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestSlidingWindowAllow(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()
	limiter := SlidingWindow{Client: client, Prefix: "test:"}

	ctx := context.Background()
	window := 2 * time.Second
	limit := 2

	for i := 0; i < limit; i++ {
		allowed, remaining, _, err := limiter.Allow(ctx, "key", window, limit)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !allowed {
			t.Fatalf("expected request %d to be allowed", i)
		}
		if remaining != limit-(i+1) {
			t.Fatalf("unexpected remaining: %d", remaining)
		}
	}

	allowed, remaining, _, err := limiter.Allow(ctx, "key", window, limit)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if allowed {
		t.Fatal("expected third request to be rejected")
	}
	if remaining != 0 {
		t.Fatalf("expected remaining 0, got %d", remaining)
	}

	mr.FastForward(window)

	allowed, _, _, err = limiter.Allow(ctx, "key", window, limit)
	if err != nil {
		t.Fatalf("allow after window: %v", err)
	}
	if !allowed {
		t.Fatal("expected request after window to be allowed")
	}
}

func TestFixedWindowAllow(t *testing.T) {
	lim := NewInMemory("fixed")
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		allowed, remaining, reset, err := lim.Allow(ctx, "key", time.Minute, 2)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !allowed || remaining != 1-i {
			t.Fatalf("request %d: allowed=%v remaining=%d", i, allowed, remaining)
		}
		if !reset.After(time.Now()) {
			t.Fatalf("expected reset in the future, got %v", reset)
		}
	}
	allowed, _, _, err := lim.Allow(ctx, "key", time.Minute, 2)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if allowed {
		t.Fatal("expected third request to be rejected")
	}
}

func TestSlidingWindowRejectionsDoNotConsumeSlots(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	start := time.UnixMilli(1_700_000_000_000)
	now := start
	limiter := SlidingWindow{Client: client, Prefix: "carts:", Now: func() time.Time { return now }}
	ctx := context.Background()
	window := time.Minute

	allowed, _, reset, err := limiter.Allow(ctx, "10.0.0.1", window, 1)
	if err != nil || !allowed {
		t.Fatalf("first request: allowed=%v err=%v", allowed, err)
	}
	if !reset.Equal(start.Add(window)) {
		t.Fatalf("expected reset %v, got %v", start.Add(window), reset)
	}

	for i := 0; i < 3; i++ {
		now = start.Add(time.Duration(i+1) * 10 * time.Second)
		allowed, remaining, reset, err := limiter.Allow(ctx, "10.0.0.1", window, 1)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if allowed || remaining != 0 {
			t.Fatalf("expected rejection, got allowed=%v remaining=%d", allowed, remaining)
		}
		if !reset.Equal(start.Add(window)) {
			t.Fatalf("rejection moved reset to %v", reset)
		}
	}

	members, err := mr.ZMembers("carts:10.0.0.1")
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("expected only the admitted request recorded, got %d", len(members))
	}

	now = start.Add(window + time.Millisecond)
	allowed, _, _, err = limiter.Allow(ctx, "10.0.0.1", window, 1)
	if err != nil || !allowed {
		t.Fatalf("after the oldest request left the window: allowed=%v err=%v", allowed, err)
	}
}
