package notification

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"processhub/internal/logger"
	"processhub/internal/metrics"

	"github.com/sethvargo/go-retry"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// 通知通道
const (
	ChannelWebSocket = "websocket"
	ChannelWebhook   = "webhook"
)

// SignatureHeader Webhook 签名请求头，值为 hex(HMAC-SHA256(secret, body))
const SignatureHeader = "X-ProcessHub-Signature"

// Notifier 通知器接口
type Notifier interface {
	Send(ctx context.Context, notification *Notification) error
}

// Notification 通知消息
type Notification struct {
	Channel   string         // websocket, webhook
	EventID   string         // 事件 ID，接收方用于去重
	EventType string         // 事件类型
	TenantID  string         // 租户 ID
	To        string         // 接收者（用户 ID 或 URL）
	Subject   string         // 主题
	Body      string         // 内容
	Data      map[string]any // 附加数据
}

// payload 通知的线上格式，WebSocket 与 Webhook 共用
func (n *Notification) payload() map[string]any {
	return map[string]any{
		"id":        n.EventID,
		"type":      n.EventType,
		"tenantId":  n.TenantID,
		"subject":   n.Subject,
		"body":      n.Body,
		"data":      n.Data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
}

// MultiNotifier 多通道通知器，按 Channel 分发
type MultiNotifier struct {
	webhook   *WebhookNotifier
	websocket *WebSocketNotifier
}

// NewMultiNotifier 创建多通道通知器，未启用的通道传 nil
func NewMultiNotifier(webhook *WebhookNotifier, hub *WebSocketHub) *MultiNotifier {
	m := &MultiNotifier{webhook: webhook}
	if hub != nil {
		m.websocket = NewWebSocketNotifier(hub)
	}
	return m
}

// Channels 已启用的通道
func (m *MultiNotifier) Channels() []string {
	var out []string
	if m.websocket != nil {
		out = append(out, ChannelWebSocket)
	}
	if m.webhook != nil && m.webhook.Enabled() {
		out = append(out, ChannelWebhook)
	}
	return out
}

// Send 发送通知并记录投递指标
func (m *MultiNotifier) Send(ctx context.Context, notification *Notification) error {
	var notifier Notifier
	switch notification.Channel {
	case ChannelWebhook:
		if m.webhook != nil {
			notifier = m.webhook
		}
	case ChannelWebSocket:
		if m.websocket != nil {
			notifier = m.websocket
		}
	default:
		return fmt.Errorf("不支持的通知类型: %s", notification.Channel)
	}
	if notifier == nil {
		return fmt.Errorf("通知器未配置: %s", notification.Channel)
	}

	err := notifier.Send(ctx, notification)
	metrics.RecordNotification(notification.Channel, err)
	return err
}

// WebhookConfig Webhook 配置
type WebhookConfig struct {
	URL             string
	Secret          string
	Timeout         time.Duration
	MaxRetries      uint64
	RetryBaseDelay  time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	Headers         map[string]string
}

// WebhookNotifier Webhook 通知器：指数退避重试，连续失败后熔断
type WebhookNotifier struct {
	config  WebhookConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// errClientStatus 4xx 响应，重试无意义
type errClientStatus struct {
	code int
}

func (e *errClientStatus) Error() string {
	return fmt.Sprintf("Webhook 返回错误状态: %d", e.code)
}

// NewWebhookNotifier 创建 Webhook 通知器
func NewWebhookNotifier(cfg WebhookConfig, log *zap.Logger) *WebhookNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if log == nil {
		log = logger.Get()
	}

	w := &WebhookNotifier{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: log,
	}
	failures := cfg.BreakerFailures
	w.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notification-webhook",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// 对端拒收不代表对端不可用
			var statusErr *errClientStatus
			return err == nil || errors.As(err, &statusErr)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			w.logger.Warn("Webhook 熔断状态变化",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return w
}

// Enabled 是否配置了默认地址
func (w *WebhookNotifier) Enabled() bool {
	return w != nil && w.config.URL != ""
}

// Send 发送 Webhook，网络错误与 5xx 按退避重试，熔断打开时直接失败
func (w *WebhookNotifier) Send(ctx context.Context, notification *Notification) error {
	url := notification.To
	if url == "" {
		url = w.config.URL
	}
	if url == "" {
		return fmt.Errorf("Webhook URL 未配置")
	}

	body, err := json.Marshal(notification.payload())
	if err != nil {
		return fmt.Errorf("序列化 Webhook 负载失败: %w", err)
	}

	backoff := retry.WithMaxRetries(w.config.MaxRetries, retry.NewExponential(w.config.RetryBaseDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := w.breaker.Execute(func() (interface{}, error) {
			return nil, w.post(ctx, url, notification, body)
		})
		if err == nil {
			return nil
		}
		var statusErr *errClientStatus
		if errors.As(err, &statusErr) && statusErr.code != http.StatusTooManyRequests {
			return err
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return err
		}
		w.logger.Debug("Webhook 投递失败，准备重试", zap.String("event_id", notification.EventID), zap.Error(err))
		return retry.RetryableError(err)
	})
}

func (w *WebhookNotifier) post(ctx context.Context, url string, notification *Notification, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("创建 Webhook 请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "ProcessHub-Notifier/1.0")
	req.Header.Set("X-ProcessHub-Event", notification.EventType)
	if notification.EventID != "" {
		req.Header.Set("X-ProcessHub-Delivery", notification.EventID)
	}
	if w.config.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(w.config.Secret, body))
	}
	for key, value := range w.config.Headers {
		req.Header.Set(key, value)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送 Webhook 失败: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &errClientStatus{code: resp.StatusCode}
	default:
		return fmt.Errorf("Webhook 返回错误状态: %d", resp.StatusCode)
	}
}

// Sign 计算 Webhook 签名
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// WebSocketNotifier WebSocket 通知器
type WebSocketNotifier struct {
	hub *WebSocketHub
}

// NewWebSocketNotifier 创建 WebSocket 通知器
func NewWebSocketNotifier(hub *WebSocketHub) *WebSocketNotifier {
	return &WebSocketNotifier{hub: hub}
}

// Send 推送给接收人的全部连接，离线时进入离线队列
func (ws *WebSocketNotifier) Send(ctx context.Context, notification *Notification) error {
	if ws == nil || ws.hub == nil {
		return fmt.Errorf("WebSocket hub 未配置")
	}
	if notification.TenantID == "" || notification.To == "" {
		return fmt.Errorf("WebSocket 通知缺少租户或用户信息")
	}
	return ws.hub.SendToUser(ctx, notification.TenantID, notification.To, notification.payload())
}
