// Package ratelimit counts attempts per key in fixed windows. The memory
// limiter serves a single process; the Redis limiter shares counters between
// replicas.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/campus-voting/internal/application"
)

// Policy bounds attempts per key within a window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Validate rejects non-positive limits and windows.
func (p Policy) Validate() error {
	if p.Limit <= 0 {
		return fmt.Errorf("rate limit must be positive, got %d", p.Limit)
	}
	if p.Window <= 0 {
		return fmt.Errorf("rate window must be positive, got %s", p.Window)
	}
	return nil
}

type bucket struct {
	count   int
	resetAt time.Time
}

// Memory is an in-process fixed-window limiter.
type Memory struct {
	mu      sync.Mutex
	policy  Policy
	now     func() time.Time
	buckets map[string]*bucket
	sweepAt time.Time
}

// NewMemory returns an in-process limiter. A nil clock uses time.Now.
func NewMemory(policy Policy, now func() time.Time) (*Memory, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &Memory{policy: policy, now: now, buckets: make(map[string]*bucket)}, nil
}

// Allow records one attempt for key and reports whether it is within the limit.
func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)

	b, ok := m.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		b = &bucket{resetAt: now.Add(m.policy.Window)}
		m.buckets[key] = b
	}
	b.count++
	return b.count <= m.policy.Limit, nil
}

// sweep drops expired buckets at most once per window.
func (m *Memory) sweep(now time.Time) {
	if now.Before(m.sweepAt) {
		return
	}
	for key, b := range m.buckets {
		if !now.Before(b.resetAt) {
			delete(m.buckets, key)
		}
	}
	m.sweepAt = now.Add(m.policy.Window)
}

func (m *Memory) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

// Redis counts attempts with INCR and a window expiry set on first use.
type Redis struct {
	client redis.Cmdable
	policy Policy
	prefix string
}

// NewRedis returns a limiter backed by client. Keys are namespaced with prefix.
func NewRedis(client redis.Cmdable, policy Policy, prefix string) (*Redis, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &Redis{client: client, policy: policy, prefix: prefix}, nil
}

// Allow increments the key's counter. The expiry is only set when the key is
// new so the window does not slide with each attempt.
func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	full := r.prefix + key
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, full)
	pipe.ExpireNX(ctx, full, r.policy.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return incr.Val() <= int64(r.policy.Limit), nil
}

// Open returns a Redis limiter when redisURL is set and a memory limiter
// otherwise. The returned close function releases the Redis client.
func Open(ctx context.Context, redisURL string, policy Policy) (application.Limiter, func() error, error) {
	if redisURL == "" {
		limiter, err := NewMemory(policy, nil)
		if err != nil {
			return nil, nil, err
		}
		return limiter, func() error { return nil }, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	limiter, err := NewRedis(client, policy, "")
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return limiter, client.Close, nil
}

var (
	_ application.Limiter = (*Memory)(nil)
	_ application.Limiter = (*Redis)(nil)
)
