package notification

import (
	"fmt"

	"processhub/internal/worker/tasks"
	"processhub/internal/workflow/events"
)

// PayloadFromEvent 流程事件转换为队列载荷
func PayloadFromEvent(evt events.Event) tasks.NotificationPayload {
	return tasks.NotificationPayload{
		EventID:     evt.ID,
		EventType:   string(evt.Type),
		TenantID:    evt.TenantID,
		TaskID:      evt.TaskID,
		TaskTitle:   evt.TaskTitle,
		StepTaskID:  evt.StepTaskID,
		StepName:    evt.StepName,
		RecipientID: evt.RecipientID,
		ActorID:     evt.ActorID,
		ActionName:  evt.ActionName,
		Priority:    evt.Priority,
		OccurredAt:  evt.OccurredAt,
	}
}

// compose 生成通知的主题与正文
func compose(p tasks.NotificationPayload) (subject, body string) {
	switch events.Type(p.EventType) {
	case events.StepAssigned:
		return "新的待办: " + p.StepName,
			fmt.Sprintf("任务「%s」已流转到「%s」，请及时处理", p.TaskTitle, p.StepName)
	case events.ActionExecuted:
		return "任务有新进展",
			fmt.Sprintf("任务「%s」在「%s」执行了「%s」", p.TaskTitle, p.StepName, p.ActionName)
	case events.TaskCompleted:
		return "任务已完成", fmt.Sprintf("任务「%s」已完成", p.TaskTitle)
	case events.TaskCancelled:
		return "任务已取消", fmt.Sprintf("任务「%s」已被取消", p.TaskTitle)
	default:
		return p.EventType, p.TaskTitle
	}
}

// notifyRecipient 是否推送给接收人；自己触发的事件不提醒自己（分配给自己的待办除外）
func notifyRecipient(p tasks.NotificationPayload) bool {
	if p.RecipientID == "" {
		return false
	}
	if events.Type(p.EventType) == events.StepAssigned {
		return true
	}
	return p.RecipientID != p.ActorID
}

// BuildNotifications 按已启用的通道展开通知
func BuildNotifications(p tasks.NotificationPayload, channels []string) []*Notification {
	subject, body := compose(p)
	data := map[string]any{
		"taskId":      p.TaskID,
		"taskTitle":   p.TaskTitle,
		"stepTaskId":  p.StepTaskID,
		"stepName":    p.StepName,
		"actorId":     p.ActorID,
		"actionName":  p.ActionName,
		"priority":    p.Priority,
		"recipientId": p.RecipientID,
		"occurredAt":  p.OccurredAt,
	}

	out := make([]*Notification, 0, len(channels))
	for _, channel := range channels {
		n := &Notification{
			Channel:   channel,
			EventID:   p.EventID,
			EventType: p.EventType,
			TenantID:  p.TenantID,
			Subject:   subject,
			Body:      body,
			Data:      data,
		}
		if channel == ChannelWebSocket {
			if !notifyRecipient(p) {
				continue
			}
			n.To = p.RecipientID
		}
		out = append(out, n)
	}
	return out
}
