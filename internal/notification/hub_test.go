package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newHubServer(t *testing.T, hub *WebSocketHub) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		q := r.URL.Query()
		hub.Register(r.Context(), q.Get("tenant"), q.Get("user"), conn)
	}))
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})
	return server
}

func dial(t *testing.T, server *httptest.Server, tenantID, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?tenant=" + tenantID + "&user=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readPayload(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(data, &payload))
	return payload
}

func TestHubDeliversToConnectedUser(t *testing.T) {
	hub := NewWebSocketHub(WithKeepAliveInterval(0), WithHubLogger(zap.NewNop()))
	server := newHubServer(t, hub)
	conn := dial(t, server, "tenant-1", "u-1")
	require.Eventually(t, func() bool { return hub.ConnectedCount("tenant-1", "u-1") == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.SendToUser(context.Background(), "tenant-1", "u-1", map[string]string{"subject": "hello"}))
	assert.Equal(t, "hello", readPayload(t, conn)["subject"])

	// 其他租户的同名用户收不到
	require.NoError(t, hub.SendToUser(context.Background(), "tenant-2", "u-1", map[string]string{"subject": "other"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHubReplaysOfflineMessagesInOrder(t *testing.T) {
	hub := NewWebSocketHub(WithKeepAliveInterval(0), WithHubLogger(zap.NewNop()))
	server := newHubServer(t, hub)

	ctx := context.Background()
	require.NoError(t, hub.SendToUser(ctx, "tenant-1", "u-2", map[string]string{"subject": "first"}))
	require.NoError(t, hub.SendToUser(ctx, "tenant-1", "u-2", map[string]string{"subject": "second"}))

	conn := dial(t, server, "tenant-1", "u-2")
	assert.Equal(t, "first", readPayload(t, conn)["subject"])
	assert.Equal(t, "second", readPayload(t, conn)["subject"])
}

func TestHubUnregister(t *testing.T) {
	hub := NewWebSocketHub(WithKeepAliveInterval(0), WithHubLogger(zap.NewNop()))
	server := newHubServer(t, hub)
	dial(t, server, "tenant-1", "u-3")
	require.Eventually(t, func() bool { return hub.ConnectedCount("tenant-1", "u-3") == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Close()
	assert.Zero(t, hub.ConnectedCount("tenant-1", "u-3"))
}

func TestMemoryOfflineStoreLimit(t *testing.T) {
	store := NewMemoryOfflineStore(2)
	ctx := context.Background()
	for _, msg := range []string{"a", "b", "c"} {
		require.NoError(t, store.Append(ctx, "t", "u", []byte(msg)))
	}
	got, err := store.Drain(ctx, "t", "u")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", string(got[0]))
	assert.Equal(t, "c", string(got[1]))
	assert.Equal(t, 1, store.Dropped())

	got, err = store.Drain(ctx, "t", "u")
	require.NoError(t, err)
	assert.Empty(t, got)
}
