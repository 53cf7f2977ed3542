package common

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"processhub/internal/tenant"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestTenantContext(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("缺失上下文返回 401", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

		_, ok := TenantContext(c)
		assert.False(t, ok)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("读取注入的上下文", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		ctx := tenant.WithTenantContext(context.Background(), tenant.TenantContext{TenantID: "t1", UserID: "u1"})
		c.Request = req.WithContext(ctx)

		tc, ok := TenantContext(c)
		assert.True(t, ok)
		assert.Equal(t, "t1", tc.TenantID)
	})
}

func TestBindJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var body struct {
		Name string `json:"name" binding:"required"`
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	c.Request.Header.Set("Content-Type", "application/json")

	assert.False(t, BindJSON(c, &body))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
