package api

import (
	"context"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"processhub/internal/config"
	"processhub/internal/infra"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// ReadinessResponse 就绪检查响应
type ReadinessResponse struct {
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	Database string `json:"database,omitempty"`
	Redis    string `json:"redis,omitempty"`
}

// HealthCheck 健康检查
// @Summary 服务健康检查
// @Description 返回基础健康状态，可供监控探针使用
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func HealthCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, HealthResponse{
			Status:  "healthy",
			Service: "ProcessHub",
		})
	}
}

// ReadinessCheck 就绪检查
// @Summary 服务就绪检查
// @Description 包含数据库与 Redis 连通性结果
// @Tags System
// @Produce json
// @Success 200 {object} ReadinessResponse
// @Failure 503 {object} ReadinessResponse
// @Router /ready [get]
func ReadinessCheck(db *gorm.DB, redisEnabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil {
			c.JSON(503, ReadinessResponse{Status: "not_ready", Reason: "database connection error"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := sqlDB.PingContext(ctx); err != nil {
			c.JSON(503, ReadinessResponse{Status: "not_ready", Reason: "database ping failed"})
			return
		}

		resp := ReadinessResponse{Status: "ready", Database: "connected"}
		if redisEnabled {
			// Redis 仅用于加速与异步投递，不可用时仍然就绪
			resp.Redis = "connected"
			if err := infra.HealthCheckRedis(ctx); err != nil {
				resp.Redis = "degraded"
			}
		}
		c.JSON(200, resp)
	}
}

// --- 环境变量辅助函数 ---
func getEnvList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func defaultIfEmpty(list []string, def []string) []string {
	if len(list) == 0 {
		return def
	}
	return list
}

// normalizeRedisConfig 归一化 Redis 配置，配置缺省时回退到 REDIS_ADDR 等环境变量
func normalizeRedisConfig(cfg config.RedisConfig) config.RedisConfig {
	resolved := cfg
	resolved.Host = strings.TrimSpace(resolved.Host)
	resolved.Mode = strings.TrimSpace(strings.ToLower(resolved.Mode))

	if resolved.Mode == "" {
		resolved.Mode = "standalone"
	}

	if resolved.Host == "" {
		if addr := strings.TrimSpace(os.Getenv("REDIS_ADDR")); addr != "" {
			host, port := parseRedisAddr(addr)
			if host != "" {
				resolved.Host = host
			}
			if resolved.Port == 0 && port > 0 {
				resolved.Port = port
			}
		}
	}
	if resolved.Host == "" {
		resolved.Host = "localhost"
	}
	if resolved.Port == 0 {
		resolved.Port = 6379
	}

	if resolved.Mode == "sentinel" && len(resolved.SentinelAddrs) == 0 {
		resolved.SentinelAddrs = getEnvList("APP_REDIS_SENTINEL_ADDRS")
	}
	if resolved.Mode == "cluster" && len(resolved.ClusterAddrs) == 0 {
		resolved.ClusterAddrs = getEnvList("APP_REDIS_CLUSTER_ADDRS")
	}

	if resolved.PoolSize <= 0 {
		resolved.PoolSize = 10
	}
	if resolved.MinIdleConns <= 0 {
		resolved.MinIdleConns = 5
	}
	return resolved
}

func parseRedisAddr(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 0
	}
	return host, port
}
