package notification

import (
	"context"
	"errors"
	"fmt"

	"processhub/internal/infra/queue"
	"processhub/internal/logger"
	"processhub/internal/worker/tasks"
	"processhub/internal/workflow/events"

	"go.uber.org/zap"
)

// Deliverer 把一条流程事件投递到全部已启用的通道
type Deliverer struct {
	notifier *MultiNotifier
	logger   *zap.Logger
}

// NewDeliverer 创建投递器
func NewDeliverer(notifier *MultiNotifier, log *zap.Logger) *Deliverer {
	if log == nil {
		log = logger.Get()
	}
	return &Deliverer{notifier: notifier, logger: log}
}

// Deliver 投递通知。WebSocket 失败时消息已进入离线队列，只记录日志；
// Webhook 失败返回错误，由队列重试
func (d *Deliverer) Deliver(ctx context.Context, p tasks.NotificationPayload) error {
	var errs []error
	for _, n := range BuildNotifications(p, d.notifier.Channels()) {
		err := d.notifier.Send(ctx, n)
		if err == nil {
			continue
		}
		log := logger.FromBase(ctx, d.logger).With(
			zap.String("event_id", p.EventID),
			zap.String("event_type", p.EventType),
			zap.String("channel", n.Channel),
			zap.Error(err))
		if n.Channel == ChannelWebSocket {
			log.Debug("WebSocket 通知推送失败")
			continue
		}
		log.Warn("通知投递失败")
		errs = append(errs, fmt.Errorf("%s: %w", n.Channel, err))
	}
	return errors.Join(errs...)
}

// Subscriber 事件来源
type Subscriber interface {
	SubscribeAll() (<-chan events.Event, func())
}

// Dispatcher 订阅流程事件，入队异步投递；未配置队列或入队失败时直接投递
type Dispatcher struct {
	queue     queue.Client
	deliverer *Deliverer
	logger    *zap.Logger
}

// NewDispatcher 创建事件分发器，q 可以为 nil
func NewDispatcher(deliverer *Deliverer, q queue.Client, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = logger.Get()
	}
	return &Dispatcher{queue: q, deliverer: deliverer, logger: log}
}

// Run 阻塞消费事件，直到 ctx 结束或订阅关闭
func (d *Dispatcher) Run(ctx context.Context, source Subscriber) {
	ch, cancel := source.SubscribeAll()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			d.Dispatch(ctx, evt)
		}
	}
}

// Dispatch 分发单个事件
func (d *Dispatcher) Dispatch(ctx context.Context, evt events.Event) {
	payload := PayloadFromEvent(evt)
	if d.queue != nil {
		err := d.queue.EnqueueNotification(ctx, payload)
		if err == nil {
			return
		}
		d.logger.Warn("通知入队失败，改为直接投递",
			zap.String("event_id", evt.ID),
			zap.String("event_type", string(evt.Type)),
			zap.Error(err))
	}
	if err := d.deliverer.Deliver(ctx, payload); err != nil {
		d.logger.Warn("通知直接投递失败", zap.String("event_id", evt.ID), zap.Error(err))
	}
}
