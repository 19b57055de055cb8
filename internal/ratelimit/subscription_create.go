package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/servicehub/internal/config"
	"go.uber.org/fx"
)

const (
	keySubscriptionCreate = "subscription:create:user:%s"
	keySubscriptionLock   = "subscription:create:lock:%s"

	defaultOrderLockTTL = 10 * time.Second
)

// SubscriptionLimiter throttles subscription creation per user and lets only
// one order per user be in flight at a time.
type SubscriptionLimiter struct {
	bucket  *TokenBucket
	locker  *Locker
	rate    float64
	burst   int
	lockTTL time.Duration
}

// NewSubscriptionLimiter returns nil when rate limiting is disabled; a nil
// limiter allows everything.
func NewSubscriptionLimiter(lc fx.Lifecycle, cfg config.Config) (*SubscriptionLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.CreateRate <= 0 || limitCfg.CreateBurst <= 0 {
		return nil, errors.New("subscription create rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	return NewSubscriptionLimiterWithClient(client, limitCfg.CreateRate, limitCfg.CreateBurst, defaultOrderLockTTL), nil
}

func NewSubscriptionLimiterWithClient(client redis.UniversalClient, rate float64, burst int, lockTTL time.Duration) *SubscriptionLimiter {
	return &SubscriptionLimiter{
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
		rate:    rate,
		burst:   burst,
		lockTTL: lockTTL,
	}
}

func (l *SubscriptionLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *SubscriptionLimiter) AllowCreate(ctx context.Context, userID string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keySubscriptionCreate, strings.TrimSpace(userID)), l.rate, l.burst)
}

// LockOrder returns an empty token and true when the limiter is disabled.
func (l *SubscriptionLimiter) LockOrder(ctx context.Context, userID string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, fmt.Sprintf(keySubscriptionLock, strings.TrimSpace(userID)), l.lockTTL)
}

func (l *SubscriptionLimiter) ReleaseOrder(ctx context.Context, userID, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, fmt.Sprintf(keySubscriptionLock, strings.TrimSpace(userID)), token)
}
