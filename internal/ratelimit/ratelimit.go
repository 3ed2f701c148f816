// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package ratelimit throttles abuse-prone endpoints with a Redis fixed window.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"codeberg.org/oliverandrich/careerhub/internal/config"
	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Count      int64
	Limit      int
	RetryAfter time.Duration
}

// Limiter counts requests per key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Noop allows everything. It is used when Redis is not configured.
type Noop struct{}

// Allow implements Limiter.
func (Noop) Allow(context.Context, string) (Decision, error) {
	return Decision{Allowed: true}, nil
}

// The first hit in a window sets the expiry; the script returns the count
// and the remaining TTL in milliseconds.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// RedisLimiter is a fixed-window counter stored in Redis.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	window time.Duration
	max    int
}

// NewRedisLimiter creates a limiter allowing max hits per window and key.
func NewRedisLimiter(client *redis.Client, prefix string, window time.Duration, max int) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, window: window, max: max}
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	if l.client == nil {
		return Decision{}, errors.New("ratelimit: redis client is nil")
	}
	if l.window <= 0 || l.max <= 0 {
		return Decision{Allowed: true}, nil
	}

	fullKey := "ratelimit:" + key
	if l.prefix != "" {
		fullKey = l.prefix + ":" + fullKey
	}

	values, err := fixedWindowScript.Run(ctx, l.client, []string{fullKey}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: %w", err)
	}
	if len(values) < 2 {
		return Decision{}, fmt.Errorf("ratelimit: unexpected script result %v", values)
	}

	count, ttl := values[0], time.Duration(values[1])*time.Millisecond
	d := Decision{Allowed: count <= int64(l.max), Count: count, Limit: l.max}
	if !d.Allowed {
		d.RetryAfter = ttl
		if d.RetryAfter <= 0 {
			d.RetryAfter = l.window
		}
	}
	return d, nil
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}
