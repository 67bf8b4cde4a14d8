// Package ratelimit provides fixed-window limits shared between processes through Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Result struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// KEYS[1] counter key, ARGV[1] window in ms. Returns {count, pttl}.
var fixedWindow = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

type redisLimiter struct {
	client *redis.Client
	prefix string
	max    int
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, prefix string, max int, window time.Duration) Limiter {
	return &redisLimiter{
		client: client,
		prefix: prefix,
		max:    max,
		window: window,
	}
}

func (l *redisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	res, err := fixedWindow.Run(ctx, l.client, []string{l.prefix + key}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit %s: %w", key, err)
	}

	count, ttl := int(res[0]), time.Duration(res[1])*time.Millisecond

	remaining := l.max - count
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   count <= l.max,
		Remaining: remaining,
		ResetIn:   ttl,
	}, nil
}
