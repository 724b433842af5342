package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Result reports one limiter decision. RetryAfter is only meaningful when
// Allowed is false.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter applies a per-key fixed-window limit. A backend failure must fail
// open: ingestion availability outranks strict limiting.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

type Config struct {
	Max    int
	Window time.Duration
	Prefix string
}

// RedisLimiter counts requests in a fixed window via an atomic
// INCR + EXPIRE pair. The expiry is set only on the first increment of the
// window so the window does not slide.
type RedisLimiter struct {
	client *redis.Client
	cfg    Config
	logger *slog.Logger
}

func NewRedisLimiter(client *redis.Client, cfg Config, logger *slog.Logger) *RedisLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "ratelimit"
	}
	return &RedisLimiter{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	redisKey := fmt.Sprintf("%s:%s", l.cfg.Prefix, key)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.ExpireNX(ctx, redisKey, l.cfg.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		// Fail open: a limiter outage must not block ingestion.
		l.logger.WarnContext(ctx, "rate limiter backend error, failing open", "error", err)
		return Result{Allowed: true, Remaining: l.cfg.Max}, nil
	}

	count := int(incr.Val())
	if count > l.cfg.Max {
		retryAfter, err := l.client.TTL(ctx, redisKey).Result()
		if err != nil || retryAfter < 0 {
			retryAfter = l.cfg.Window
		}
		return Result{Allowed: false, RetryAfter: retryAfter}, nil
	}

	return Result{Allowed: true, Remaining: l.cfg.Max - count}, nil
}
