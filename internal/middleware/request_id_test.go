package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"processhub/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())

	var seenRequestID, seenTraceID string
	r.GET("/ping", func(c *gin.Context) {
		seenRequestID = logger.GetRequestID(c.Request.Context())
		seenTraceID = logger.GetTraceID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	t.Run("沿用上游请求 ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(HeaderRequestID, "req-123")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, "req-123", w.Header().Get(HeaderRequestID))
		assert.Equal(t, "req-123", seenRequestID)
		assert.Equal(t, "req-123", seenTraceID)
	})

	t.Run("缺省时生成", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

		assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
		assert.Equal(t, w.Header().Get(HeaderRequestID), seenRequestID)
	})
}
