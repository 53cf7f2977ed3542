package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processhub_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "processhub_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// 流程引擎指标
var (
	// WorkflowActionsTotal 执行动作次数，result: success, rejected, conflict, error
	WorkflowActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processhub_workflow_actions_total",
			Help: "流程动作执行次数",
		},
		[]string{"result"},
	)

	// WorkflowActionDuration 执行动作耗时（秒）
	WorkflowActionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "processhub_workflow_action_duration_seconds",
			Help:    "流程动作执行耗时分布",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"result"},
	)

	// TasksTotal 任务生命周期事件，event: created, completed, cancelled, deleted
	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processhub_tasks_total",
			Help: "任务生命周期事件次数",
		},
		[]string{"event"},
	)

	// ConcurrentModificationsTotal 并发冲突次数，source: lock, version
	ConcurrentModificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processhub_concurrent_modifications_total",
			Help: "任务并发修改冲突次数",
		},
		[]string{"source"},
	)
)

// 通知指标
var (
	// NotificationDeliveriesTotal 通知投递次数
	NotificationDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processhub_notification_deliveries_total",
			Help: "通知投递次数",
		},
		[]string{"channel", "status"},
	)

	// WebSocketConnectionsGauge WebSocket 在线连接数
	WebSocketConnectionsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "processhub_ws_connections",
			Help: "WebSocket 在线连接数",
		},
		[]string{"tenant_id"},
	)
)

// 数据库指标
var (
	// DBConnections 数据库连接数
	DBConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "processhub_db_connections",
			Help: "数据库连接数",
		},
		[]string{"state"}, // state: open, in_use, idle
	)
)

// 系统指标
var (
	// BuildInfo 构建信息
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "processhub_build_info",
			Help: "ProcessHub 构建信息",
		},
		[]string{"version", "go_version"},
	)
)

// RecordBuildInfo 记录构建信息
func RecordBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}
