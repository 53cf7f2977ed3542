package middleware

import (
	"strings"

	"processhub/internal/auth"
	"processhub/internal/common"
	tenantctx "processhub/internal/tenant"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 写入 gin.Context 的身份键
const (
	TenantIDKey = "tenant_id"
	UserIDKey   = "user_id"
)

// GinTenantContextMiddleware 将 JWT 中解析出的用户信息转换为 tenant.TenantContext，并注入标准 context.Context。
// 仅当上游已经通过 AuthMiddleware 验证身份后使用。
func GinTenantContextMiddleware(logger *zap.Logger) gin.HandlerFunc {
	log := logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		userCtx, exists := auth.GetUserContext(c)
		if !exists {
			log.Warn("missing user context before tenant middleware", zap.String("path", c.FullPath()))
			common.AbortWithError(c, common.CodeUnauthorized, "未认证")
			return
		}

		tc := tenantctx.TenantContext{
			TenantID:      strings.TrimSpace(userCtx.TenantID),
			UserID:        strings.TrimSpace(userCtx.UserID),
			Roles:         append([]string{}, userCtx.Roles...),
			IsSystemAdmin: hasSystemAdminRole(userCtx.Roles),
		}
		if tc.TenantID == "" || tc.UserID == "" {
			log.Warn("token missing tenant or user id", zap.String("user", tc.UserID))
			common.AbortWithError(c, common.CodeInvalidRequest, "缺少租户信息")
			return
		}

		c.Set(TenantIDKey, tc.TenantID)
		c.Set(UserIDKey, tc.UserID)

		ctx := tenantctx.WithTenantContext(c.Request.Context(), tc)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func hasSystemAdminRole(roles []string) bool {
	for _, r := range roles {
		switch strings.ToLower(strings.TrimSpace(r)) {
		case "super_admin", "system_admin":
			return true
		}
	}
	return false
}
