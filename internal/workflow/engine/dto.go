package engine

import (
	"encoding/json"
	"time"

	"processhub/internal/common"
	"processhub/internal/workflow"
)

// StepAssignmentInput 创建任务时为某个步骤预设处理人与优先级
type StepAssignmentInput struct {
	WorkflowStepID string            `json:"workflowStepId" binding:"required"`
	AssigneeID     string            `json:"assigneeId"`
	Priority       workflow.Priority `json:"priority"`
}

// CreateTaskRequest 创建任务请求
type CreateTaskRequest struct {
	ProjectID       string                `json:"projectId" binding:"required"`
	WorkflowID      string                `json:"workflowId" binding:"required"`
	Title           string                `json:"title" binding:"required"`
	Description     string                `json:"description"`
	Priority        workflow.Priority     `json:"priority"`
	BeginDate       *time.Time            `json:"beginDate"`
	EndDate         *time.Time            `json:"endDate"`
	StepAssignments []StepAssignmentInput `json:"stepAssignments"`
}

// UpdateTaskRequest 修改任务基本信息，未传的字段保持不变
// Status 只接受 CANCELLED；Version 非零时作为乐观锁期望版本
type UpdateTaskRequest struct {
	Title       *string              `json:"title"`
	Description *string              `json:"description"`
	Priority    *workflow.Priority   `json:"priority"`
	ProjectID   *string              `json:"projectId"`
	BeginDate   *time.Time           `json:"beginDate"`
	EndDate     *time.Time           `json:"endDate"`
	Status      *workflow.TaskStatus `json:"status"`
	Reason      string               `json:"reason"`
	Version     int64                `json:"version"`
}

// FileInput 随动作提交的文件元数据
type FileInput struct {
	FileName   string `json:"fileName" binding:"required"`
	ObjectName string `json:"objectName"`
	FileSize   int64  `json:"fileSize"`
}

// ExecuteActionRequest 执行动作请求
type ExecuteActionRequest struct {
	ActionName  string          `json:"actionName" binding:"required"`
	Comment     string          `json:"comment"`
	DataBody    json.RawMessage `json:"dataBody" swaggertype:"object"`
	DataType    string          `json:"dataType"`
	ContentType string          `json:"contentType"`
	Files       []FileInput     `json:"files"`
}

// ListTasksRequest 任务列表查询
type ListTasksRequest struct {
	common.PaginationRequest
	ProjectID  string              `form:"projectId"`
	WorkflowID string              `form:"workflowId"`
	Status     workflow.TaskStatus `form:"status"`
	Priority   workflow.Priority   `form:"priority"`
	CreatorID  string              `form:"creatorId"`
	Keyword    string              `form:"keyword"`
}

// ListMyStepTasksRequest 我的待办查询
type ListMyStepTasksRequest struct {
	common.PaginationRequest
	Status workflow.StepTaskStatus `form:"status"`
}

// TaskView 任务视图
type TaskView struct {
	ID              string              `json:"id"`
	ProjectID       string              `json:"projectId"`
	WorkflowID      string              `json:"workflowId"`
	Title           string              `json:"title"`
	Description     string              `json:"description"`
	Status          workflow.TaskStatus `json:"status"`
	Priority        workflow.Priority   `json:"priority"`
	CurrentStepID   string              `json:"currentStepId,omitempty"`
	CurrentStepName string              `json:"currentStepName,omitempty"`
	CurrentStepType workflow.StepType   `json:"currentStepType,omitempty"`
	CreatorID       string              `json:"creatorId"`
	BeginDate       *time.Time          `json:"beginDate,omitempty"`
	EndDate         *time.Time          `json:"endDate,omitempty"`
	CompletedAt     *time.Time          `json:"completedAt,omitempty"`
	Version         int64               `json:"version"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

// StepTaskView 步骤任务视图
type StepTaskView struct {
	ID             string                  `json:"id"`
	TaskID         string                  `json:"taskId"`
	TaskTitle      string                  `json:"taskTitle,omitempty"`
	WorkflowStepID string                  `json:"workflowStepId"`
	StepName       string                  `json:"stepName"`
	StepType       workflow.StepType       `json:"stepType"`
	StepSequence   int                     `json:"stepSequence"`
	Iteration      int                     `json:"iteration"`
	Status         workflow.StepTaskStatus `json:"status"`
	Priority       workflow.Priority       `json:"priority"`
	AssignedUserID string                  `json:"assignedUserId,omitempty"`
	AssigneeName   string                  `json:"assigneeName,omitempty"`
	BeginDate      time.Time               `json:"beginDate"`
	EndDate        *time.Time              `json:"endDate,omitempty"`
	Note           string                  `json:"note,omitempty"`
}

// ActionLogEntry 动作审计记录视图
type ActionLogEntry struct {
	ID           string    `json:"id"`
	TaskID       string    `json:"taskId"`
	StepTaskID   string    `json:"stepTaskId"`
	FromStepID   string    `json:"fromStepId"`
	FromStepName string    `json:"fromStepName"`
	ToStepID     string    `json:"toStepId,omitempty"`
	ToStepName   string    `json:"toStepName,omitempty"`
	ActionName   string    `json:"actionName"`
	ActorID      string    `json:"actorId"`
	ActorName    string    `json:"actorName,omitempty"`
	Comment      string    `json:"comment,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// StepTaskDetail 步骤任务详情：处理记录、提交数据与文件
type StepTaskDetail struct {
	StepTaskView
	Actions []ActionLogEntry        `json:"actions"`
	Data    []workflow.StepTaskData `json:"data"`
	Files   []workflow.StepTaskFile `json:"files"`
}

// AssigneeCheck 是否为当前处理人
type AssigneeCheck struct {
	IsAssignee bool `json:"isAssignee"`
}
