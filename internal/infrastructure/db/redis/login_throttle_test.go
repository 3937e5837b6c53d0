package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestThrottle(t *testing.T, max int, window time.Duration) (*LoginThrottle, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLoginThrottle(client, max, window), mr
}

func TestLoginThrottle_BlocksAfterMaxFailures(t *testing.T) {
	throttle, _ := newTestThrottle(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := throttle.Allow(ctx, "alice")
		if err != nil {
			t.Fatalf("Allow returned error: %v", err)
		}
		if !ok {
			t.Fatalf("attempt %d: expected allowed", i)
		}
		if err := throttle.RecordFailure(ctx, "alice"); err != nil {
			t.Fatalf("RecordFailure returned error: %v", err)
		}
	}

	ok, err := throttle.Allow(ctx, "alice")
	if err != nil {
		t.Fatalf("Allow returned error: %v", err)
	}
	if ok {
		t.Fatalf("expected alice to be throttled")
	}

	if ok, _ := throttle.Allow(ctx, "bob"); !ok {
		t.Fatalf("expected other usernames unaffected")
	}
}

func TestLoginThrottle_WindowExpires(t *testing.T) {
	throttle, mr := newTestThrottle(t, 1, time.Minute)
	ctx := context.Background()

	if err := throttle.RecordFailure(ctx, "alice"); err != nil {
		t.Fatalf("RecordFailure returned error: %v", err)
	}
	if ttl := mr.TTL("login:failures:alice"); ttl != time.Minute {
		t.Fatalf("expected 1m ttl, got %s", ttl)
	}
	if ok, _ := throttle.Allow(ctx, "alice"); ok {
		t.Fatalf("expected throttled inside window")
	}

	mr.FastForward(time.Minute + time.Second)
	if ok, _ := throttle.Allow(ctx, "alice"); !ok {
		t.Fatalf("expected allowed after window")
	}
}

func TestLoginThrottle_WindowNotExtendedByLaterFailures(t *testing.T) {
	throttle, mr := newTestThrottle(t, 5, time.Minute)
	ctx := context.Background()

	_ = throttle.RecordFailure(ctx, "alice")
	mr.FastForward(30 * time.Second)
	_ = throttle.RecordFailure(ctx, "alice")

	if ttl := mr.TTL("login:failures:alice"); ttl != 30*time.Second {
		t.Fatalf("expected ttl from first failure, got %s", ttl)
	}
}

func TestLoginThrottle_Reset(t *testing.T) {
	throttle, mr := newTestThrottle(t, 1, time.Minute)
	ctx := context.Background()

	_ = throttle.RecordFailure(ctx, "alice")
	if err := throttle.Reset(ctx, "alice"); err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}
	if mr.Exists("login:failures:alice") {
		t.Fatalf("expected key deleted")
	}
	if ok, _ := throttle.Allow(ctx, "alice"); !ok {
		t.Fatalf("expected allowed after reset")
	}
}

func TestLoginThrottle_Defaults(t *testing.T) {
	throttle := NewLoginThrottle(nil, 0, 0)
	if throttle.maxAttempts != defaultMaxAttempts || throttle.window != defaultWindow {
		t.Fatalf("unexpected defaults: %d, %s", throttle.maxAttempts, throttle.window)
	}
}

func TestLoginThrottle_StoreDown(t *testing.T) {
	throttle, mr := newTestThrottle(t, 1, time.Minute)
	mr.Close()

	if _, err := throttle.Allow(context.Background(), "alice"); err == nil {
		t.Fatalf("expected error when redis is unavailable")
	}
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := Connect(context.Background(), Config{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	_ = client.Close()

	if _, err := Connect(context.Background(), Config{Addr: "127.0.0.1:1", Timeout: 200 * time.Millisecond}); err == nil {
		t.Fatalf("expected error for unreachable redis")
	}
}

func TestLoginThrottle_CounterAlwaysHasTTL(t *testing.T) {
	throttle, mr := newTestThrottle(t, 2, time.Minute)
	ctx := context.Background()

	// A counter left without expiry must be re-armed rather than lock the account.
	if err := mr.Set("login:failures:alice", "2"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if ok, _ := throttle.Allow(ctx, "alice"); ok {
		t.Fatalf("expected throttled with seeded counter")
	}

	for i := 0; i < 3; i++ {
		if err := throttle.RecordFailure(ctx, "alice"); err != nil {
			t.Fatalf("RecordFailure returned error: %v", err)
		}
		if ttl := mr.TTL("login:failures:alice"); ttl <= 0 || ttl > time.Minute {
			t.Fatalf("failure %d: expected ttl within window, got %s", i, ttl)
		}
	}

	mr.FastForward(time.Minute + time.Second)
	if ok, _ := throttle.Allow(ctx, "alice"); !ok {
		t.Fatalf("expected allowed once the window passes")
	}
}

func TestLoginThrottle_RecordFailureStoreDown(t *testing.T) {
	throttle, mr := newTestThrottle(t, 1, time.Minute)
	mr.Close()

	if err := throttle.RecordFailure(context.Background(), "alice"); err == nil {
		t.Fatalf("expected error when redis is unavailable")
	}
}
