package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultMaxAttempts = 5
	defaultWindow      = 15 * time.Minute
)

// recordFailure increments the counter and arms the window TTL in one step, so
// a counter never outlives its window.
var recordFailure = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// LoginThrottle counts failed logins per username inside a fixed window.
// Key format: login:failures:<username>
type LoginThrottle struct {
	client      *redis.Client
	maxAttempts int
	window      time.Duration
}

// NewLoginThrottle wraps client. Non-positive limits fall back to 5 attempts
// per 15 minutes.
func NewLoginThrottle(client *redis.Client, maxAttempts int, window time.Duration) *LoginThrottle {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if window <= 0 {
		window = defaultWindow
	}
	return &LoginThrottle{client: client, maxAttempts: maxAttempts, window: window}
}

// Allow reports whether username is still under its failure budget.
func (t *LoginThrottle) Allow(ctx context.Context, username string) (bool, error) {
	raw, err := t.client.Get(ctx, t.key(username)).Result()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("login throttle get: %w", err)
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return false, fmt.Errorf("login throttle parse %q: %w", raw, err)
	}
	return n < t.maxAttempts, nil
}

// RecordFailure bumps the counter. The window starts at the first failure.
func (t *LoginThrottle) RecordFailure(ctx context.Context, username string) error {
	err := recordFailure.Run(ctx, t.client, []string{t.key(username)}, t.window.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("login throttle record: %w", err)
	}
	return nil
}

// Reset clears the counter after a successful login.
func (t *LoginThrottle) Reset(ctx context.Context, username string) error {
	return t.client.Del(ctx, t.key(username)).Err()
}

func (t *LoginThrottle) key(username string) string {
	return "login:failures:" + username
}
