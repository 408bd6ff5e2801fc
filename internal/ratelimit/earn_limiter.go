package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/groundswell-app/groundswell/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyEarnMember = "earn:member:%s"

// EarnLimiter throttles point-earning submissions per member. It degrades
// open: a missing or unreachable Redis lets requests through rather than
// blocking reward claims, since the uniqueness constraint still stops actual
// double-claims.
type EarnLimiter struct {
	enabled bool
	bucket  *TokenBucket
	log     *zap.Logger

	rate  float64
	burst int
}

type LimiterParams struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
}

func NewEarnLimiter(p LimiterParams) *EarnLimiter {
	limiter := &EarnLimiter{log: p.Log.Named("ratelimit")}

	limitCfg := p.Config.RateLimit
	addr := strings.TrimSpace(p.Config.RedisAddr)
	if !limitCfg.Enabled || addr == "" {
		limiter.log.Info("earn rate limiting disabled")
		return limiter
	}
	if limitCfg.EarnRate <= 0 || limitCfg.EarnBurst <= 0 {
		limiter.log.Warn("invalid earn rate limit settings, disabling",
			zap.Float64("rate", limitCfg.EarnRate),
			zap.Int("burst", limitCfg.EarnBurst),
		)
		return limiter
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(p.Config.RedisPassword),
		DB:       p.Config.RedisDB,
	})

	limiter.enabled = true
	limiter.bucket = NewTokenBucket(client)
	limiter.rate = limitCfg.EarnRate
	limiter.burst = limitCfg.EarnBurst
	return limiter
}

func (l *EarnLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// AllowMember takes one token from the member's bucket. Redis errors allow the
// request and are logged.
func (l *EarnLimiter) AllowMember(ctx context.Context, memberID string) (Result, bool) {
	if !l.Enabled() {
		return Result{Allowed: true}, true
	}

	result, err := l.bucket.Allow(ctx, fmt.Sprintf(keyEarnMember, strings.TrimSpace(memberID)), l.rate, l.burst)
	if err != nil {
		l.log.Warn("rate limit check failed, allowing request", zap.Error(err))
		return Result{Allowed: true}, true
	}
	return result, result.Allowed
}

// RetryAfterSeconds rounds up for the Retry-After response header.
func RetryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	seconds := int((d + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
