package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// OfflineStore 暂存处理人不在线时的推送，重连后按到达顺序补发
// 超出上限时丢弃最早的消息
type OfflineStore interface {
	Append(ctx context.Context, tenantID, userID string, payload []byte) error
	Drain(ctx context.Context, tenantID, userID string) ([][]byte, error)
}

func inboxKey(tenantID, userID string) string {
	return fmt.Sprintf("processhub:inbox:%s:%s", tenantID, userID)
}

// MemoryOfflineStore 单实例部署使用的内存收件箱
type MemoryOfflineStore struct {
	mu      sync.Mutex
	limit   int
	inboxes map[string][][]byte
	dropped int
}

// NewMemoryOfflineStore 创建内存收件箱，limit 为每个处理人保留的条数
func NewMemoryOfflineStore(limit int) *MemoryOfflineStore {
	if limit <= 0 {
		limit = 50
	}
	return &MemoryOfflineStore{limit: limit, inboxes: make(map[string][][]byte)}
}

func (s *MemoryOfflineStore) Append(_ context.Context, tenantID, userID string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := inboxKey(tenantID, userID)
	inbox := append(s.inboxes[key], append([]byte(nil), payload...))
	if overflow := len(inbox) - s.limit; overflow > 0 {
		s.dropped += overflow
		inbox = append([][]byte(nil), inbox[overflow:]...)
	}
	s.inboxes[key] = inbox
	return nil
}

func (s *MemoryOfflineStore) Drain(_ context.Context, tenantID, userID string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := inboxKey(tenantID, userID)
	inbox := s.inboxes[key]
	delete(s.inboxes, key)
	return inbox, nil
}

// Dropped 因超出上限被丢弃的消息数
func (s *MemoryOfflineStore) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// RedisOfflineStore 多实例共享的收件箱，处理人可能重连到任意实例
type RedisOfflineStore struct {
	client redis.UniversalClient
	limit  int64
	ttl    time.Duration
}

// NewRedisOfflineStore 创建 Redis 收件箱
func NewRedisOfflineStore(client redis.UniversalClient, limit int, ttl time.Duration) *RedisOfflineStore {
	if limit <= 0 {
		limit = 100
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisOfflineStore{client: client, limit: int64(limit), ttl: ttl}
}

func (s *RedisOfflineStore) Append(ctx context.Context, tenantID, userID string, payload []byte) error {
	if s == nil || s.client == nil {
		return nil
	}
	key := inboxKey(tenantID, userID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, payload)
		pipe.LTrim(ctx, key, -s.limit, -1)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("写入离线消息失败: %w", err)
	}
	return nil
}

// Drain 读取并清空收件箱，两条命令在同一事务内执行，避免并发连接重复补发
func (s *RedisOfflineStore) Drain(ctx context.Context, tenantID, userID string) ([][]byte, error) {
	if s == nil || s.client == nil {
		return nil, nil
	}
	key := inboxKey(tenantID, userID)
	var messages *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		messages = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("读取离线消息失败: %w", err)
	}

	values := messages.Val()
	out := make([][]byte, len(values))
	for i, v := range values {
		out[i] = []byte(v)
	}
	return out, nil
}
