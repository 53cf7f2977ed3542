package api

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"processhub/internal/logger"
	"processhub/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 探活与指标抓取过于频繁，不记录访问日志
var quietPaths = map[string]struct{}{
	"/health":  {},
	"/ready":   {},
	"/metrics": {},
}

// RequestLogger 访问日志，4xx 记 Warn，5xx 记 Error
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, quiet := quietPaths[c.Request.URL.Path]; quiet {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("tenant_id", c.GetString(middleware.TenantIDKey)),
			zap.String("user_id", c.GetString(middleware.UserIDKey)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		log := logger.WithContext(c.Request.Context())
		switch {
		case status >= http.StatusInternalServerError:
			log.Error("HTTP 请求", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("HTTP 请求", fields...)
		default:
			log.Info("HTTP 请求", fields...)
		}
	}
}

type corsPolicy struct {
	origins []string
	headers string
	methods string
}

func loadCORSPolicy() corsPolicy {
	return corsPolicy{
		origins: getEnvList("CORS_ALLOW_ORIGINS"),
		headers: strings.Join(defaultIfEmpty(getEnvList("CORS_ALLOW_HEADERS"), []string{
			"Content-Type", "Authorization", "Accept", "Origin",
			"Cache-Control", "X-Requested-With", middleware.HeaderRequestID,
		}), ", "),
		methods: strings.Join(defaultIfEmpty(getEnvList("CORS_ALLOW_METHODS"), []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
		}), ", "),
	}
}

// CORS 跨域中间件，未配置 CORS_ALLOW_ORIGINS 时放开所有来源
func CORS() gin.HandlerFunc {
	policy := loadCORSPolicy()
	exposed := strings.Join([]string{middleware.HeaderRequestID, middleware.HeaderTraceID, "Content-Disposition", "Retry-After"}, ", ")

	return func(c *gin.Context) {
		h := c.Writer.Header()
		origin := c.GetHeader("Origin")
		if len(policy.origins) == 0 {
			h.Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" && slices.Contains(policy.origins, origin) {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		}
		h.Set("Access-Control-Allow-Headers", policy.headers)
		h.Set("Access-Control-Allow-Methods", policy.methods)
		h.Set("Access-Control-Expose-Headers", exposed)
		h.Set("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
