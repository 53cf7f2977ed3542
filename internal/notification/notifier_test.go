package notification

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func webhookNotification() *Notification {
	return &Notification{
		Channel:   ChannelWebhook,
		EventID:   "evt-1",
		EventType: "step.assigned",
		TenantID:  "tenant-1",
		Subject:   "新的待办: 审核",
		Body:      "请处理",
	}
}

func TestWebhookNotifierSignsPayload(t *testing.T) {
	var (
		gotBody      []byte
		gotSignature string
		gotEvent     string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSignature = r.Header.Get(SignatureHeader)
		gotEvent = r.Header.Get("X-ProcessHub-Event")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(WebhookConfig{URL: server.URL, Secret: "s3cret"}, zap.NewNop())
	require.NoError(t, notifier.Send(context.Background(), webhookNotification()))

	assert.Equal(t, Sign("s3cret", gotBody), gotSignature)
	assert.Equal(t, "step.assigned", gotEvent)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Equal(t, "evt-1", payload["id"])
	assert.Equal(t, "tenant-1", payload["tenantId"])
}

func TestWebhookNotifierRetriesServerErrors(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(WebhookConfig{
		URL:            server.URL,
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, notifier.Send(context.Background(), webhookNotification()))
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestWebhookNotifierDoesNotRetryClientErrors(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(WebhookConfig{
		URL:            server.URL,
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
	}, zap.NewNop())
	err := notifier.Send(context.Background(), webhookNotification())
	require.Error(t, err)
	var statusErr *errClientStatus
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnprocessableEntity, statusErr.code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestWebhookNotifierBreakerOpens(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(WebhookConfig{
		URL:             server.URL,
		BreakerFailures: 2,
		BreakerTimeout:  time.Minute,
	}, zap.NewNop())

	ctx := context.Background()
	assert.Error(t, notifier.Send(ctx, webhookNotification()))
	assert.Error(t, notifier.Send(ctx, webhookNotification()))

	err := notifier.Send(ctx, webhookNotification())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits), "熔断后不再请求对端")
}

func TestMultiNotifierChannels(t *testing.T) {
	hub := NewWebSocketHub(WithKeepAliveInterval(0), WithHubLogger(zap.NewNop()))

	m := NewMultiNotifier(NewWebhookNotifier(WebhookConfig{}, zap.NewNop()), hub)
	assert.Equal(t, []string{ChannelWebSocket}, m.Channels())

	m = NewMultiNotifier(NewWebhookNotifier(WebhookConfig{URL: "http://example.invalid"}, zap.NewNop()), nil)
	assert.Equal(t, []string{ChannelWebhook}, m.Channels())

	err := m.Send(context.Background(), &Notification{Channel: ChannelWebSocket})
	assert.Error(t, err)
	err = m.Send(context.Background(), &Notification{Channel: "email"})
	assert.Error(t, err)
}
