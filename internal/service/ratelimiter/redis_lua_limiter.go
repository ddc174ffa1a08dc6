// Package ratelimiter provides a Redis token bucket shared by all API
// replicas. It guards the credit-consuming AI routes per user.
package ratelimiter

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether subject may spend cost tokens from bucket.
type Limiter interface {
	Allow(ctx context.Context, bucket, subject string, cost int64) (allowed bool, retryAfter time.Duration, err error)
}

// BucketConfig describes one bucket class. Zero values disable limiting.
type BucketConfig struct {
	Capacity   int64
	RefillRate float64
}

// NewBucketConfigFromPerMinute converts a per-minute budget into a bucket.
func NewBucketConfigFromPerMinute(perMinute int) BucketConfig {
	if perMinute <= 0 {
		return BucketConfig{}
	}
	return BucketConfig{
		Capacity:   int64(perMinute),
		RefillRate: float64(perMinute) / 60.0,
	}
}

// RedisLuaLimiter runs the bucket arithmetic atomically inside Redis.
type RedisLuaLimiter struct {
	redis   redis.UniversalClient
	buckets map[string]BucketConfig
	script  *redis.Script
	now     func() time.Time
	mu      sync.RWMutex
}

// NewRedisLuaLimiter returns nil when rdb is nil; a nil limiter allows everything.
func NewRedisLuaLimiter(rdb redis.UniversalClient, buckets map[string]BucketConfig) *RedisLuaLimiter {
	if rdb == nil {
		return nil
	}
	if buckets == nil {
		buckets = map[string]BucketConfig{}
	}
	return &RedisLuaLimiter{
		redis:   rdb,
		buckets: buckets,
		script:  redis.NewScript(tokenBucketScript),
		now:     time.Now,
	}
}

// tokenBucketScript refills the bucket for the elapsed milliseconds, then
// spends cost if it can. It returns {allowed, wait_ms}.
const tokenBucketScript = `
local capacity = tonumber(ARGV[1])
local per_ms = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local state = redis.call("HMGET", KEYS[1], "t", "ts")
local tokens = tonumber(state[1]) or capacity
local stamp = tonumber(state[2]) or now_ms

tokens = math.min(capacity, tokens + math.max(0, now_ms - stamp) * per_ms)

local allowed = 0
local wait_ms = 0
if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
else
  wait_ms = math.ceil((cost - tokens) / per_ms)
end

redis.call("HSET", KEYS[1], "t", tostring(tokens), "ts", now_ms)
redis.call("PEXPIRE", KEYS[1], ARGV[5])
return {allowed, wait_ms}
`

// Allow spends cost tokens of subject's bucket. Redis errors fail open.
func (l *RedisLuaLimiter) Allow(ctx context.Context, bucket, subject string, cost int64) (bool, time.Duration, error) {
	if l == nil || l.redis == nil {
		return true, 0, nil
	}
	l.mu.RLock()
	cfg, ok := l.buckets[bucket]
	l.mu.RUnlock()
	if !ok || cfg.Capacity <= 0 || cfg.RefillRate <= 0 {
		return true, 0, nil
	}
	if cost <= 0 {
		cost = 1
	}

	perMs := cfg.RefillRate / 1000
	// An idle bucket is full again after capacity/rate; the key can go then.
	ttlMs := int64(math.Ceil(float64(cfg.Capacity)/perMs)) + 1000

	key := bucketKey(bucket, subject)
	res, err := l.script.Run(ctx, l.redis, []string{key}, cfg.Capacity, perMs, l.now().UnixMilli(), cost, ttlMs).Int64Slice()
	if err != nil {
		return true, 0, fmt.Errorf("op=ratelimiter.allow: %w", err)
	}
	if len(res) != 2 {
		slog.Warn("rate limiter returned unexpected reply", slog.String("bucket", bucket), slog.Any("reply", res))
		return true, 0, nil
	}
	return res[0] == 1, time.Duration(res[1]) * time.Millisecond, nil
}

func bucketKey(bucket, subject string) string { return "rate:" + bucket + ":" + subject }

// SetBucketConfig updates or creates the configuration of a bucket class.
// It is safe for concurrent use.
func (l *RedisLuaLimiter) SetBucketConfig(bucket string, cfg BucketConfig) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.buckets == nil {
		l.buckets = map[string]BucketConfig{}
	}
	l.buckets[bucket] = cfg
}
