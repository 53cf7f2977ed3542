package notifications

import (
	"net/http"
	"time"

	response "processhub/api/handlers/common"
	"processhub/internal/common"
	"processhub/internal/notification"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const readTimeout = 2 * time.Minute

// WebSocketHandler 管理步骤通知的 WebSocket 连接
type WebSocketHandler struct {
	hub      *notification.WebSocketHub
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建处理器
func NewWebSocketHandler(hub *notification.WebSocketHub) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 5 * time.Second,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Connect 升级连接并注册客户端
// @Summary 订阅步骤通知
// @Description 浏览器可通过 access_token 查询参数携带令牌；连接后先补发离线消息
// @Tags Notifications
// @Security BearerAuth
// @Success 101
// @Failure 503 {object} response.ErrorResponse
// @Router /api/v1/ws/notifications [get]
func (h *WebSocketHandler) Connect(c *gin.Context) {
	if h == nil || h.hub == nil {
		common.ResponseError(c, common.CodeServiceUnavailable, "WebSocket 服务未就绪")
		return
	}
	tc, ok := response.TenantContext(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	conn.SetReadLimit(1024)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	// 注册前写入，注册后所有写操作都经由 hub 串行化
	_ = conn.WriteJSON(gin.H{
		"type":    "connected",
		"message": "WebSocket 已连接",
	})
	h.hub.Register(c.Request.Context(), tc.TenantID, tc.UserID, conn)

	go h.readLoop(tc.TenantID, tc.UserID, conn)
}

func (h *WebSocketHandler) readLoop(tenantID, userID string, conn *websocket.Conn) {
	defer func() {
		h.hub.Unregister(tenantID, userID, conn)
		_ = conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
