package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix   = "scribe:ratelimit:"
	redisCallTimeout = 250 * time.Millisecond
)

// fixedWindowScript counts one hit and returns {hits, pttl}. The window TTL is
// set in the same call, and a key found without a TTL gets one.
// Hits over the limit are reported but not stored.
var fixedWindowScript = redis.NewScript(`
local hits = tonumber(redis.call('GET', KEYS[1]) or '0')
local ttl = redis.call('PTTL', KEYS[1])
if hits >= tonumber(ARGV[2]) and ttl > 0 then
  return {hits + 1, ttl}
end
hits = redis.call('INCR', KEYS[1])
if hits == 1 or ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {hits, ttl}
`)

type redisRateLimiter struct {
	client *redis.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewRedisRateLimiter connects to Redis and returns a limiter shared across
// API replicas.
func NewRedisRateLimiter(addr, password string, db int, logger *slog.Logger) (RateLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return newRedisRateLimiter(client, logger), nil
}

func newRedisRateLimiter(client *redis.Client, logger *slog.Logger) *redisRateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisRateLimiter{client: client, logger: logger, now: time.Now}
}

// Allow fails open when Redis is unavailable.
func (l *redisRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return allowAll()
	}
	if window <= 0 {
		window = time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, redisCallTimeout)
	defer cancel()

	reply, err := fixedWindowScript.Run(ctx, l.client, []string{redisKeyPrefix + key}, window.Milliseconds(), limit).Int64Slice()
	if err != nil || len(reply) != 2 {
		l.logger.Error("redis rate limiter unavailable", "key", key, "error", err)
		return allowAll()
	}
	ttl := time.Duration(reply[1]) * time.Millisecond
	if ttl <= 0 {
		ttl = window
	}
	return decide(reply[0], limit, l.now().Add(ttl))
}

func (l *redisRateLimiter) Close() {
	_ = l.client.Close()
}
