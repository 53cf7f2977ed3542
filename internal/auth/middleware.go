package auth

import (
	"strings"

	"processhub/internal/common"

	"github.com/gin-gonic/gin"
)

// ContextKey 上下文键类型
type ContextKey string

// UserContextKey 用户上下文键
const UserContextKey ContextKey = "user"

// AuthMiddleware JWT 认证中间件
// 浏览器建立 WebSocket 时无法设置请求头，允许通过 access_token 查询参数传递
func AuthMiddleware(jwtService *JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractTokenFromBearer(c.GetHeader("Authorization"))
		if token == "" {
			token = strings.TrimSpace(c.Query("access_token"))
		}
		if token == "" {
			common.AbortWithError(c, common.CodeUnauthorized, "缺少认证令牌")
			return
		}

		claims, err := jwtService.ValidateToken(c.Request.Context(), token)
		if err != nil {
			common.AbortWithError(c, common.CodeUnauthorized, "令牌验证失败: "+err.Error())
			return
		}

		c.Set(string(UserContextKey), &UserContext{
			UserID:   claims.UserID,
			TenantID: claims.TenantID,
			Roles:    claims.Roles,
		})
		c.Next()
	}
}

// UserContext 用户上下文
type UserContext struct {
	UserID   string
	TenantID string
	Roles    []string
}

// GetUserContext 从 Gin Context 获取用户上下文
func GetUserContext(c *gin.Context) (*UserContext, bool) {
	userCtx, exists := c.Get(string(UserContextKey))
	if !exists {
		return nil, false
	}
	ctx, ok := userCtx.(*UserContext)
	return ctx, ok
}
