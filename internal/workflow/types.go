package workflow

import "strings"

// StepType 步骤类型
type StepType string

const (
	StepTypeStart    StepType = "START"
	StepTypeUserTask StepType = "USER_TASK"
	StepTypeReview   StepType = "REVIEW"
	StepTypeEnd      StepType = "END"
)

// IsValid 是否为合法的步骤类型
func (t StepType) IsValid() bool {
	switch t {
	case StepTypeStart, StepTypeUserTask, StepTypeReview, StepTypeEnd:
		return true
	}
	return false
}

// Normalize 统一大小写与空白
func (t StepType) Normalize() StepType {
	return StepType(strings.ToUpper(strings.TrimSpace(string(t))))
}

// AssigneeType 处理人类型
type AssigneeType string

const (
	// AssigneeFixed 流程模板上写死的处理人
	AssigneeFixed AssigneeType = "FIXED"
	// AssigneeDynamic 创建任务时指定处理人
	AssigneeDynamic AssigneeType = "DYNAMIC"
)

// IsValid 是否为合法的处理人类型
func (t AssigneeType) IsValid() bool {
	return t == AssigneeFixed || t == AssigneeDynamic
}

// Normalize 统一大小写，空值视为 DYNAMIC
func (t AssigneeType) Normalize() AssigneeType {
	n := AssigneeType(strings.ToUpper(strings.TrimSpace(string(t))))
	if n == "" {
		return AssigneeDynamic
	}
	return n
}

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskStatusRunning   TaskStatus = "RUNNING"
	TaskStatusCompleted TaskStatus = "COMPLETED"
	TaskStatusCancelled TaskStatus = "CANCELLED"
)

// IsValid 是否为合法的任务状态
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusRunning, TaskStatusCompleted, TaskStatusCancelled:
		return true
	}
	return false
}

// IsTerminal 是否为终态
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusCancelled
}

// StepTaskStatus 步骤任务状态
type StepTaskStatus string

const (
	StepTaskPending    StepTaskStatus = "PENDING"
	StepTaskInProgress StepTaskStatus = "IN_PROGRESS"
	StepTaskCompleted  StepTaskStatus = "COMPLETED"
	StepTaskSkipped    StepTaskStatus = "SKIPPED"
	StepTaskCancelled  StepTaskStatus = "CANCELLED"
)

// ActiveStepTaskStatuses 可被执行动作的步骤任务状态
var ActiveStepTaskStatuses = []StepTaskStatus{StepTaskPending, StepTaskInProgress}

// IsValid 是否为合法的步骤任务状态
func (s StepTaskStatus) IsValid() bool {
	switch s {
	case StepTaskPending, StepTaskInProgress, StepTaskCompleted, StepTaskSkipped, StepTaskCancelled:
		return true
	}
	return false
}

// IsActive 是否仍在处理中
func (s StepTaskStatus) IsActive() bool {
	return s == StepTaskPending || s == StepTaskInProgress
}

// Priority 优先级
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// IsValid 是否为合法的优先级
func (p Priority) IsValid() bool {
	return p.Rank() > 0
}

// Rank 优先级权重，越大越紧急，非法值返回 0
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityNormal:
		return 2
	case PriorityHigh:
		return 3
	case PriorityUrgent:
		return 4
	}
	return 0
}

// OrDefault 空值返回 NORMAL
func (p Priority) OrDefault() Priority {
	n := Priority(strings.ToUpper(strings.TrimSpace(string(p))))
	if n == "" {
		return PriorityNormal
	}
	return n
}
