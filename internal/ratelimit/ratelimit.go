// Package ratelimit throttles API clients with a fixed-window counter in
// redis, so limits hold across process restarts and replicas.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Verdict describes one admission decision.
type Verdict struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts requests per client per window via INCR and lets EXPIRE
// end the window. The first request of a window creates the key and arms
// its TTL atomically enough for this purpose: a lost EXPIRE is repaired on
// the next request.
type Limiter struct {
	rdb      *redis.Client
	window   time.Duration
	requests int
}

func New(rdb *redis.Client, window time.Duration, requests int) *Limiter {
	if window <= 0 {
		window = time.Hour
	}
	if requests <= 0 {
		requests = 30
	}
	return &Limiter{rdb: rdb, window: window, requests: requests}
}

// Allow admits or rejects one request from the client. On redis failure it
// fails open: throttling is protective, not load-bearing.
func (l *Limiter) Allow(ctx context.Context, clientID, endpoint string) Verdict {
	key := fmt.Sprintf("ratelimit:%s:%s", clientID, endpoint)

	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		slog.Warn("rate limiter unavailable, failing open", "err", err)
		return Verdict{Allowed: true, Remaining: l.requests}
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, key, l.window).Err(); err != nil {
			slog.Warn("rate limiter expire failed", "key", key, "err", err)
		}
	}
	if count > int64(l.requests) {
		ttl, err := l.rdb.TTL(ctx, key).Result()
		if err != nil || ttl < 0 {
			// Key without a TTL would throttle forever; re-arm it.
			l.rdb.Expire(ctx, key, l.window)
			ttl = l.window
		}
		return Verdict{Allowed: false, RetryAfter: ttl}
	}
	return Verdict{Allowed: true, Remaining: l.requests - int(count)}
}
