package tasks

import "time"

// Task Types
const (
	TypeDeliverNotification = "notification:deliver"
)

// 队列名称
const (
	QueueCritical     = "critical"
	QueueNotification = "notification"
	QueueDefault      = "default"
)

// NotificationPayload 流程事件通知载荷
type NotificationPayload struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	TenantID    string    `json:"tenant_id"`
	TaskID      string    `json:"task_id"`
	TaskTitle   string    `json:"task_title,omitempty"`
	StepTaskID  string    `json:"step_task_id,omitempty"`
	StepName    string    `json:"step_name,omitempty"`
	RecipientID string    `json:"recipient_id,omitempty"`
	ActorID     string    `json:"actor_id,omitempty"`
	ActionName  string    `json:"action_name,omitempty"`
	Priority    string    `json:"priority,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}
