package notification

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"processhub/internal/logger"
	"processhub/internal/metrics"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 5 * time.Second

type clientConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
	done chan struct{}
	once sync.Once
}

func (c *clientConn) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

func (c *clientConn) stop() {
	c.once.Do(func() { close(c.done) })
}

// WebSocketHub 按 租户 → 用户 → 连接 管理在线的处理人
type WebSocketHub struct {
	mu                sync.RWMutex
	clients           map[string]map[string]map[*websocket.Conn]*clientConn
	offline           OfflineStore
	keepAliveInterval time.Duration
	logger            *zap.Logger
}

// HubOption 配置 hub
type HubOption func(*WebSocketHub)

// WithOfflineStore 指定离线存储
func WithOfflineStore(store OfflineStore) HubOption {
	return func(h *WebSocketHub) { h.offline = store }
}

// WithKeepAliveInterval 设置心跳间隔，<=0 关闭心跳
func WithKeepAliveInterval(interval time.Duration) HubOption {
	return func(h *WebSocketHub) { h.keepAliveInterval = interval }
}

// WithHubLogger 设置日志器
func WithHubLogger(l *zap.Logger) HubOption {
	return func(h *WebSocketHub) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewWebSocketHub 创建 Hub
func NewWebSocketHub(opts ...HubOption) *WebSocketHub {
	hub := &WebSocketHub{
		clients:           make(map[string]map[string]map[*websocket.Conn]*clientConn),
		offline:           NewMemoryOfflineStore(50),
		keepAliveInterval: 30 * time.Second,
		logger:            logger.Get(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(hub)
		}
	}
	return hub
}

// Register 注册连接，并补发离线期间的通知
func (h *WebSocketHub) Register(ctx context.Context, tenantID, userID string, conn *websocket.Conn) {
	client := &clientConn{conn: conn, done: make(chan struct{})}

	h.mu.Lock()
	if _, ok := h.clients[tenantID]; !ok {
		h.clients[tenantID] = make(map[string]map[*websocket.Conn]*clientConn)
	}
	if _, ok := h.clients[tenantID][userID]; !ok {
		h.clients[tenantID][userID] = make(map[*websocket.Conn]*clientConn)
	}
	h.clients[tenantID][userID][conn] = client
	h.mu.Unlock()

	metrics.WebSocketConnectionsGauge.WithLabelValues(tenantID).Inc()
	h.replayOffline(ctx, tenantID, userID, client)
	h.startKeepAlive(tenantID, userID, client)
}

// Unregister 移除连接
func (h *WebSocketHub) Unregister(tenantID, userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	users, ok := h.clients[tenantID]
	if !ok {
		return
	}
	if conns, ok := users[userID]; ok {
		if client, ok := conns[conn]; ok {
			client.stop()
			delete(conns, conn)
			metrics.WebSocketConnectionsGauge.WithLabelValues(tenantID).Dec()
		}
		if len(conns) == 0 {
			delete(users, userID)
		}
	}
	if len(users) == 0 {
		delete(h.clients, tenantID)
	}
}

// SendToUser 发送给指定租户/用户的所有连接；没有在线连接时写入离线队列
func (h *WebSocketHub) SendToUser(ctx context.Context, tenantID, userID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	clients := make([]*clientConn, 0, len(h.clients[tenantID][userID]))
	for _, c := range h.clients[tenantID][userID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	if len(clients) == 0 {
		return h.storeOffline(ctx, tenantID, userID, data)
	}

	var firstErr error
	delivered := 0
	for _, client := range clients {
		if err := client.write(websocket.TextMessage, data); err != nil {
			h.Unregister(tenantID, userID, client.conn)
			_ = client.conn.Close()
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		delivered++
	}
	if delivered == 0 {
		_ = h.storeOffline(ctx, tenantID, userID, data)
	}
	return firstErr
}

// Close 关闭全部连接
func (h *WebSocketHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for tenantID, users := range h.clients {
		for _, conns := range users {
			for conn, client := range conns {
				client.stop()
				_ = conn.Close()
				metrics.WebSocketConnectionsGauge.WithLabelValues(tenantID).Dec()
			}
		}
	}
	h.clients = make(map[string]map[string]map[*websocket.Conn]*clientConn)
}

// ConnectedCount 返回指定租户/用户的连接数
func (h *WebSocketHub) ConnectedCount(tenantID, userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[tenantID][userID])
}

func (h *WebSocketHub) replayOffline(ctx context.Context, tenantID, userID string, client *clientConn) {
	if h.offline == nil {
		return
	}
	messages, err := h.offline.Drain(ctx, tenantID, userID)
	if err != nil {
		h.logger.Warn("离线消息重放失败", zap.String("tenant_id", tenantID), zap.String("user_id", userID), zap.Error(err))
		return
	}
	for _, msg := range messages {
		if err := client.write(websocket.TextMessage, msg); err != nil {
			h.logger.Debug("推送离线消息失败", zap.Error(err))
			return
		}
	}
}

func (h *WebSocketHub) storeOffline(ctx context.Context, tenantID, userID string, payload []byte) error {
	if h.offline == nil {
		return nil
	}
	return h.offline.Append(ctx, tenantID, userID, payload)
}

func (h *WebSocketHub) startKeepAlive(tenantID, userID string, client *clientConn) {
	if h.keepAliveInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(h.keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-client.done:
				return
			case <-ticker.C:
				client.mu.Lock()
				err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
				client.mu.Unlock()
				if err != nil {
					h.Unregister(tenantID, userID, client.conn)
					_ = client.conn.Close()
					return
				}
			}
		}
	}()
}
