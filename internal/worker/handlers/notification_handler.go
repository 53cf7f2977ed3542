package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"processhub/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// NotificationDeliverer 通知投递抽象，便于注入 mock
type NotificationDeliverer interface {
	Deliver(ctx context.Context, payload tasks.NotificationPayload) error
}

type NotificationHandler struct {
	deliverer NotificationDeliverer
	logger    *zap.Logger
}

func NewNotificationHandler(deliverer NotificationDeliverer, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		deliverer: deliverer,
		logger:    logger,
	}
}

func (h *NotificationHandler) HandleDeliverNotification(ctx context.Context, t *asynq.Task) error {
	var p tasks.NotificationPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		// 载荷损坏重试也无济于事
		return fmt.Errorf("json unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	if err := h.deliverer.Deliver(ctx, p); err != nil {
		retried, _ := asynq.GetRetryCount(ctx)
		h.logger.Warn("通知投递失败",
			zap.String("event_id", p.EventID),
			zap.String("event_type", p.EventType),
			zap.Int("retried", retried),
			zap.Error(err),
		)
		return err
	}

	h.logger.Debug("通知已投递",
		zap.String("event_id", p.EventID),
		zap.String("event_type", p.EventType),
		zap.String("recipient_id", p.RecipientID),
	)
	return nil
}
