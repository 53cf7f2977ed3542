package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld 任务正被其他请求推进
var ErrLockHeld = errors.New("state: task lock held by another request")

// TaskLocker 任务级互斥锁，保证同一任务同一时刻只有一个推进请求
type TaskLocker interface {
	// Acquire 获取锁，拿不到时立即返回 ErrLockHeld；release 幂等
	Acquire(ctx context.Context, taskID string) (release func(), err error)
}

// releaseScript 只删除自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisTaskLocker 基于 Redis SET NX PX 的任务锁
type RedisTaskLocker struct {
	redis redis.UniversalClient
	ttl   time.Duration
}

// NewRedisTaskLocker 创建任务锁，ttl 为锁的最长持有时间
func NewRedisTaskLocker(redisClient redis.UniversalClient, ttl time.Duration) *RedisTaskLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisTaskLocker{
		redis: redisClient,
		ttl:   ttl,
	}
}

// Acquire 获取任务锁
func (l *RedisTaskLocker) Acquire(ctx context.Context, taskID string) (func(), error) {
	key := lockKey(taskID)
	token := uuid.New().String()

	ok, err := l.redis.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("获取任务锁失败: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		// 请求可能已取消，释放锁不能依赖原 ctx
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.redis, []string{key}, token).Err()
	}, nil
}

// NoopLocker 未启用 Redis 时使用，并发控制完全交给数据库版本号
type NoopLocker struct{}

// Acquire 总是成功
func (NoopLocker) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}

// lockKey 生成 Redis key
func lockKey(taskID string) string {
	return fmt.Sprintf("workflow:task:lock:%s", taskID)
}
