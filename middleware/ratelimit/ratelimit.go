// Package ratelimit is a fixed-window request limiter backed by Redis.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	logger "github.com/Gopher0727/ProjectChat/middleware/log"
)

// Limiter 限流接口
type Limiter interface {
	// Allow reports whether one more request fits in key's current window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// Remaining returns how many requests are left in key's current window.
	Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error)
}

// RedisLimiter 基于 INCR + EXPIRE 的固定窗口计数
type RedisLimiter struct {
	rdb      redis.Cmdable
	logger   *logger.Logger
	failOpen bool
	now      func() time.Time
}

// NewRedisLimiter 创建限流器，failOpen 为 true 时 Redis 故障放行请求
func NewRedisLimiter(rdb redis.Cmdable, log *logger.Logger, failOpen bool) *RedisLimiter {
	if log == nil {
		log = logger.Nop()
	}
	return &RedisLimiter{rdb: rdb, logger: log.Named("ratelimit"), failOpen: failOpen, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	bucket := l.bucketKey(key, window)

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, bucket)
	pipe.Expire(ctx, bucket, window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		if l.failOpen {
			l.logger.WarnContext(ctx, "rate limit check failed, allowing request", zap.String("key", key), zap.Error(err))
			return true, nil
		}
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	allowed := incr.Val() <= int64(limit)
	if !allowed {
		l.logger.WarnContext(ctx, "rate limit exceeded",
			zap.String("key", key), zap.Int64("count", incr.Val()), zap.Int("limit", limit))
	}
	return allowed, nil
}

func (l *RedisLimiter) Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	count, err := l.rdb.Get(ctx, l.bucketKey(key, window)).Int()
	if err == redis.Nil {
		return limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get remaining requests: %w", err)
	}
	return max(limit-count, 0), nil
}

func (l *RedisLimiter) bucketKey(key string, window time.Duration) string {
	secs := int64(window / time.Second)
	if secs <= 0 {
		secs = 1
	}
	return fmt.Sprintf("ratelimit:%s:%d", key, l.now().Unix()/secs)
}

// KeyFunc 返回限流维度，空字符串表示不限流
type KeyFunc func(c *gin.Context) string

// ByUser 已认证请求按用户限流，否则按客户端 IP
func ByUser(c *gin.Context) string {
	if uid := c.GetInt64("user_id"); uid != 0 {
		return "user:" + strconv.FormatInt(uid, 10)
	}
	return "ip:" + c.ClientIP()
}

// Middleware 超限时返回 429
func Middleware(l Limiter, limit int, window time.Duration, keyFn KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)
		if key == "" || limit <= 0 {
			c.Next()
			return
		}
		allowed, err := l.Allow(c.Request.Context(), key, limit, window)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"code":    http.StatusServiceUnavailable,
				"message": "rate limiter unavailable",
			})
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    http.StatusTooManyRequests,
				"message": "too many requests, please try again later",
			})
			return
		}
		c.Next()
	}
}
