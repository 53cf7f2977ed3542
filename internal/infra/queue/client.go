package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"processhub/internal/config"
	"processhub/internal/infra"
	"processhub/internal/worker/tasks"

	"github.com/hibiken/asynq"
)

// Client 任务队列客户端接口
type Client interface {
	EnqueueNotification(ctx context.Context, payload tasks.NotificationPayload) error
	Close() error
}

type asynqClient struct {
	client   *asynq.Client
	maxRetry int
}

// NewClient 创建任务队列客户端
func NewClient(redisCfg config.RedisConfig, workerCfg config.WorkerConfig) Client {
	maxRetry := workerCfg.MaxRetry
	if maxRetry <= 0 {
		maxRetry = 5
	}
	return &asynqClient{
		client:   asynq.NewClient(infra.AsynqRedisOpt(redisCfg)),
		maxRetry: maxRetry,
	}
}

func (c *asynqClient) EnqueueNotification(ctx context.Context, payload tasks.NotificationPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(tasks.TypeDeliverNotification, data)

	opts := []asynq.Option{
		asynq.MaxRetry(c.maxRetry),
		asynq.Timeout(time.Minute),
		asynq.Queue(QueueForPriority(payload.Priority)),
	}
	// 同一事件只投递一次
	if payload.EventID != "" {
		opts = append(opts, asynq.TaskID(payload.EventID))
	}

	if _, err := c.client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("enqueue task failed: %w", err)
	}
	return nil
}

func (c *asynqClient) Close() error {
	return c.client.Close()
}

// QueueForPriority 按步骤优先级选择队列
func QueueForPriority(priority string) string {
	switch priority {
	case "URGENT":
		return tasks.QueueCritical
	case "HIGH", "NORMAL":
		return tasks.QueueNotification
	default:
		return tasks.QueueDefault
	}
}
