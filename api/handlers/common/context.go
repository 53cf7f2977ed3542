package common

import (
	"processhub/internal/common"
	"processhub/internal/tenant"

	"github.com/gin-gonic/gin"
)

// TenantContext 读取中间件注入的租户上下文，缺失时直接返回 401
func TenantContext(c *gin.Context) (tenant.TenantContext, bool) {
	tc, err := tenant.Require(c.Request.Context())
	if err != nil {
		common.ResponseUnauthorized(c, "")
		return tenant.TenantContext{}, false
	}
	return tc, true
}

// BindJSON 绑定请求体，失败时返回 400
func BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return false
	}
	return true
}

// BindQuery 绑定查询参数，失败时返回 400
func BindQuery(c *gin.Context, obj any) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		common.ResponseBadRequest(c, "查询参数错误: "+err.Error())
		return false
	}
	return true
}
