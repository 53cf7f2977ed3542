package middleware

import (
	"sync"
	"time"

	"processhub/internal/common"

	"github.com/gin-gonic/gin"
)

// RateLimiterConfig 限流配置
type RateLimiterConfig struct {
	RequestsPerSecond int           // 每秒补充的令牌数
	BurstSize         int           // 桶容量
	CleanupInterval   time.Duration // 清理间隔
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// RateLimiter 按键的令牌桶限流器
type RateLimiter struct {
	config  RateLimiterConfig
	buckets map[string]*bucket
	mu      sync.Mutex
	now     func() time.Time
	stopCh  chan struct{}
	once    sync.Once
}

// NewRateLimiter 创建限流器，并启动过期桶的清理协程
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.BurstSize < cfg.RequestsPerSecond {
		cfg.BurstSize = cfg.RequestsPerSecond
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	rl := &RateLimiter{
		config:  cfg,
		buckets: make(map[string]*bucket),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Allow 检查是否允许请求
func (rl *RateLimiter) Allow(key string) bool {
	if rl.config.RequestsPerSecond <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		rl.buckets[key] = &bucket{tokens: float64(rl.config.BurstSize - 1), lastUpdate: now}
		return true
	}

	b.tokens += now.Sub(b.lastUpdate).Seconds() * float64(rl.config.RequestsPerSecond)
	if b.tokens > float64(rl.config.BurstSize) {
		b.tokens = float64(rl.config.BurstSize)
	}
	b.lastUpdate = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for key, b := range rl.buckets {
				if now.Sub(b.lastUpdate) > 10*time.Minute {
					delete(rl.buckets, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

// Stop 停止清理协程
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stopCh) })
}

// RateLimitByUser 按 租户+用户 限流，需放在租户中间件之后
func RateLimitByUser(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString(TenantIDKey) + ":" + c.GetString(UserIDKey)
		if key == ":" {
			key = c.ClientIP()
		}
		if !limiter.Allow(key) {
			c.Header("Retry-After", "1")
			common.AbortWithError(c, common.CodeTooManyRequests, "请求过于频繁，请稍后重试")
			return
		}
		c.Next()
	}
}
