package grading

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Breaker gates provider:model combinations that keep failing.
type Breaker interface {
	IsOpen(ctx context.Context, provider, model string) bool
	Open(ctx context.Context, provider, model string)
	Close(ctx context.Context, provider, model string)
}

// noopBreaker never trips. Used when no Redis is wired in.
type noopBreaker struct{}

func (noopBreaker) IsOpen(context.Context, string, string) bool { return false }
func (noopBreaker) Open(context.Context, string, string)        {}
func (noopBreaker) Close(context.Context, string, string)       {}

// RedisBreaker keeps circuit breaker state in Redis so every worker sees the
// same cooldowns.
type RedisBreaker struct {
	redis       *redis.Client
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

func NewRedisBreaker(redisClient *redis.Client, baseBackoff, maxBackoff time.Duration) *RedisBreaker {
	if baseBackoff <= 0 {
		baseBackoff = 30 * time.Second
	}
	if maxBackoff <= 0 {
		maxBackoff = 5 * time.Minute
	}
	return &RedisBreaker{redis: redisClient, baseBackoff: baseBackoff, maxBackoff: maxBackoff}
}

func (cb *RedisBreaker) key(provider, model string) string {
	return fmt.Sprintf("cb:%s:%s", provider, model)
}

// Open trips the breaker with exponential backoff per consecutive failure.
func (cb *RedisBreaker) Open(ctx context.Context, provider, model string) {
	key := cb.key(provider, model)

	failuresStr, _ := cb.redis.HGet(ctx, key, "failures").Result()
	failures, _ := strconv.Atoi(failuresStr)
	failures++

	backoff := cb.baseBackoff
	for i := 1; i < failures; i++ {
		backoff *= 2
		if backoff > cb.maxBackoff {
			backoff = cb.maxBackoff
			break
		}
	}

	retryAt := time.Now().Add(backoff).Unix()
	cb.redis.HSet(ctx, key, map[string]interface{}{
		"state":     "open",
		"retry_at":  retryAt,
		"failures":  failures,
		"opened_at": time.Now().Unix(),
	})
	cb.redis.Expire(ctx, key, 10*time.Minute)

	log.Warn().
		Str("provider", provider).
		Str("model", model).
		Dur("cooldown", backoff).
		Int("failures", failures).
		Msg("circuit breaker OPENED")
}

// IsOpen reports whether the cooldown is still active. An expired cooldown
// moves the breaker to half-open and lets one probe through.
func (cb *RedisBreaker) IsOpen(ctx context.Context, provider, model string) bool {
	key := cb.key(provider, model)

	state, err := cb.redis.HGet(ctx, key, "state").Result()
	if err != nil || state != "open" {
		return false
	}

	retryAtStr, _ := cb.redis.HGet(ctx, key, "retry_at").Result()
	retryAt, _ := strconv.ParseInt(retryAtStr, 10, 64)

	if time.Now().Unix() >= retryAt {
		cb.redis.HSet(ctx, key, "state", "half_open")
		log.Info().
			Str("provider", provider).
			Str("model", model).
			Msg("circuit breaker moved to HALF-OPEN")
		return false
	}

	return true
}

// Close resets the breaker on success.
func (cb *RedisBreaker) Close(ctx context.Context, provider, model string) {
	key := cb.key(provider, model)

	state, _ := cb.redis.HGet(ctx, key, "state").Result()
	if state == "" || state == "closed" {
		return
	}

	cb.redis.Del(ctx, key)
	log.Info().
		Str("provider", provider).
		Str("model", model).
		Msg("circuit breaker CLOSED (reset)")
}
