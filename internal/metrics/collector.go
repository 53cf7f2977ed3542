package metrics

import (
	"context"
	"database/sql"
	"time"
)

// SystemCollector 定期采集数据库连接池指标
type SystemCollector struct {
	db       *sql.DB
	interval time.Duration
}

// NewSystemCollector 创建系统指标收集器
func NewSystemCollector(db *sql.DB) *SystemCollector {
	return &SystemCollector{
		db:       db,
		interval: 15 * time.Second,
	}
}

// Run 定期收集，ctx 取消后退出
func (c *SystemCollector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collectOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.collectOnce()
		}
	}
}

func (c *SystemCollector) collectOnce() {
	if c.db == nil {
		return
	}
	stats := c.db.Stats()
	DBConnections.WithLabelValues("open").Set(float64(stats.OpenConnections))
	DBConnections.WithLabelValues("in_use").Set(float64(stats.InUse))
	DBConnections.WithLabelValues("idle").Set(float64(stats.Idle))
}

// RecordWorkflowAction 记录一次动作执行的结果与耗时
func RecordWorkflowAction(result string, start time.Time) {
	WorkflowActionsTotal.WithLabelValues(result).Inc()
	WorkflowActionDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
}

// RecordTaskEvent 记录任务生命周期事件
func RecordTaskEvent(event string) {
	TasksTotal.WithLabelValues(event).Inc()
}

// RecordConcurrentModification 记录并发冲突
func RecordConcurrentModification(source string) {
	ConcurrentModificationsTotal.WithLabelValues(source).Inc()
}

// RecordNotification 记录通知投递结果
func RecordNotification(channel string, err error) {
	status := "success"
	if err != nil {
		status = "failed"
	}
	NotificationDeliveriesTotal.WithLabelValues(channel, status).Inc()
}
