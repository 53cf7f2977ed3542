package api

import (
	_ "processhub/api/docs"
	"processhub/internal/metrics"
	middlewarepkg "processhub/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// SetupRouter 基于已初始化的容器构建 Gin 路由
func SetupRouter(container *AppContainer) *gin.Engine {
	router := gin.New()

	// 全局中间件
	router.Use(gin.Recovery())
	router.Use(middlewarepkg.RequestIDMiddleware())
	router.Use(RequestLogger())
	router.Use(CORS())

	// Prometheus 指标收集中间件
	router.Use(metrics.PrometheusMiddleware())

	// 公开端点（不需要认证）
	router.GET("/health", HealthCheck())
	router.GET("/ready", ReadinessCheck(container.DB, container.RedisClient != nil))

	// Prometheus 指标端点
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Swagger 文档
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	RegisterRoutes(router, container, container.InitHandlers())
	return router
}
