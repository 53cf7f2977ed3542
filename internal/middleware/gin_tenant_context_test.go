package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"processhub/internal/auth"
	tenantctx "processhub/internal/tenant"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func withUser(userCtx *auth.UserContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(string(auth.UserContextKey), userCtx)
		c.Next()
	}
}

func TestGinTenantContextMiddlewareInjectsContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(withUser(&auth.UserContext{
		UserID:   "user-1",
		TenantID: "tenant-1",
		Roles:    []string{"super_admin"},
	}))
	r.Use(GinTenantContextMiddleware(zap.NewNop()))
	r.GET("/protected", func(c *gin.Context) {
		tc, ok := tenantctx.FromContext(c.Request.Context())
		if !ok || tc.TenantID != "tenant-1" || !tc.IsSystemAdmin {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		if c.GetString(UserIDKey) != "user-1" {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}

func TestGinTenantContextMiddlewareRejectsMissingUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinTenantContextMiddleware(zap.NewNop()))
	r.GET("/protected", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
}

func TestGinTenantContextMiddlewareRejectsMissingTenant(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(withUser(&auth.UserContext{UserID: "user-1"}))
	r.Use(GinTenantContextMiddleware(zap.NewNop()))
	r.GET("/protected", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/protected", nil))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}
