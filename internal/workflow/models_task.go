package workflow

import (
	"time"

	"gorm.io/datatypes"
)

// Task 流程实例。Version 为乐观锁版本号，每次推进加一
type Task struct {
	ID            string     `json:"id" gorm:"primaryKey;type:uuid"`
	TenantID      string     `json:"tenantId" gorm:"type:uuid;not null;index:idx_task_tenant"`
	ProjectID     string     `json:"projectId" gorm:"type:uuid;not null;index"`
	WorkflowID    string     `json:"workflowId" gorm:"type:uuid;not null;index:idx_task_workflow"`
	Title         string     `json:"title" gorm:"size:255;not null"`
	Description   string     `json:"description" gorm:"type:text"`
	Status        TaskStatus `json:"status" gorm:"size:20;not null;index"`
	Priority      Priority   `json:"priority" gorm:"size:20;not null"`
	CurrentStepID *string    `json:"currentStepId,omitempty" gorm:"type:uuid"`
	CreatorID     string     `json:"creatorId" gorm:"type:uuid;not null"`
	BeginDate     *time.Time `json:"beginDate,omitempty"`
	EndDate       *time.Time `json:"endDate,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	Version       int64      `json:"version" gorm:"not null"`
	CreatedAt     time.Time  `json:"createdAt" gorm:"not null"`
	UpdatedAt     time.Time  `json:"updatedAt" gorm:"not null"`
}

// TableName 指定表名
func (Task) TableName() string {
	return "tasks"
}

// CurrentStep 当前步骤ID，未设置时返回空串
func (t *Task) CurrentStep() string {
	if t.CurrentStepID == nil {
		return ""
	}
	return *t.CurrentStepID
}

// StepTask 任务在某个步骤上的一次处理记录
type StepTask struct {
	ID             string         `json:"id" gorm:"primaryKey;type:uuid"`
	TenantID       string         `json:"tenantId" gorm:"type:uuid;not null;index"`
	TaskID         string         `json:"taskId" gorm:"type:uuid;not null;uniqueIndex:idx_step_task_seq,priority:1"`
	WorkflowStepID string         `json:"workflowStepId" gorm:"type:uuid;not null;index"`
	StepSequence   int            `json:"stepSequence" gorm:"not null;uniqueIndex:idx_step_task_seq,priority:2"`
	Iteration      int            `json:"iteration" gorm:"not null"` // 同一步骤在本任务内第几次进入，从1开始
	Status         StepTaskStatus `json:"status" gorm:"size:20;not null;index"`
	Priority       Priority       `json:"priority" gorm:"size:20;not null"`
	AssignedUserID *string        `json:"assignedUserId,omitempty" gorm:"type:uuid;index"`
	BeginDate      time.Time      `json:"beginDate" gorm:"not null"`
	EndDate        *time.Time     `json:"endDate,omitempty"`
	Note           string         `json:"note" gorm:"type:text"`
	CreatedAt      time.Time      `json:"createdAt" gorm:"not null"`
	UpdatedAt      time.Time      `json:"updatedAt" gorm:"not null"`
}

// TableName 指定表名
func (StepTask) TableName() string {
	return "step_tasks"
}

// Assignee 处理人ID，未分配时返回空串
func (s *StepTask) Assignee() string {
	if s.AssignedUserID == nil {
		return ""
	}
	return *s.AssignedUserID
}

// StepTaskAction 动作审计记录，只追加不修改
type StepTaskAction struct {
	ID         string    `json:"id" gorm:"primaryKey;type:uuid"`
	TenantID   string    `json:"tenantId" gorm:"type:uuid;not null;index"`
	TaskID     string    `json:"taskId" gorm:"type:uuid;not null;index:idx_action_task"`
	StepTaskID string    `json:"stepTaskId" gorm:"type:uuid;not null;index"`
	FromStepID string    `json:"fromStepId" gorm:"type:uuid;not null"`
	ToStepID   *string   `json:"toStepId,omitempty" gorm:"type:uuid"`
	ActionName string    `json:"actionName" gorm:"size:100;not null"`
	ActorID    string    `json:"actorId" gorm:"type:uuid;not null;index:idx_action_actor"`
	Comment    string    `json:"comment" gorm:"type:text"`
	CreatedAt  time.Time `json:"createdAt" gorm:"not null;index:idx_action_task"`
}

// TableName 指定表名
func (StepTaskAction) TableName() string {
	return "step_task_actions"
}

// TaskStepAssignmentConfig 创建任务时为某个步骤预设的处理人与优先级
// 对应步骤的 StepTask 创建时被领取（删除）
type TaskStepAssignmentConfig struct {
	ID             string    `json:"id" gorm:"primaryKey;type:uuid"`
	TenantID       string    `json:"tenantId" gorm:"type:uuid;not null"`
	TaskID         string    `json:"taskId" gorm:"type:uuid;not null;uniqueIndex:idx_assignment_task_step,priority:1"`
	WorkflowStepID string    `json:"workflowStepId" gorm:"type:uuid;not null;uniqueIndex:idx_assignment_task_step,priority:2"`
	AssigneeID     *string   `json:"assigneeId,omitempty" gorm:"type:uuid"`
	Priority       Priority  `json:"priority" gorm:"size:20"`
	CreatedAt      time.Time `json:"createdAt" gorm:"not null"`
}

// TableName 指定表名
func (TaskStepAssignmentConfig) TableName() string {
	return "task_step_assignment_configs"
}

// StepTaskData 执行动作时提交的表单数据
type StepTaskData struct {
	ID          string         `json:"id" gorm:"primaryKey;type:uuid"`
	TenantID    string         `json:"tenantId" gorm:"type:uuid;not null"`
	StepTaskID  string         `json:"stepTaskId" gorm:"type:uuid;not null;index"`
	DataBody    datatypes.JSON `json:"dataBody"`
	DataType    string         `json:"dataType" gorm:"size:50"`
	ContentType string         `json:"contentType" gorm:"size:100"`
	CreatedBy   string         `json:"createdBy" gorm:"type:uuid"`
	CreatedAt   time.Time      `json:"createdAt" gorm:"not null"`
}

// TableName 指定表名
func (StepTaskData) TableName() string {
	return "step_task_data"
}

// StepTaskFile 执行动作时关联的文件元数据（文件本体由存储服务负责）
type StepTaskFile struct {
	ID         string    `json:"id" gorm:"primaryKey;type:uuid"`
	TenantID   string    `json:"tenantId" gorm:"type:uuid;not null"`
	StepTaskID string    `json:"stepTaskId" gorm:"type:uuid;not null;index"`
	FileName   string    `json:"fileName" gorm:"size:255;not null"`
	ObjectName string    `json:"objectName" gorm:"size:500"`
	FileSize   int64     `json:"fileSize"`
	UploadedBy string    `json:"uploadedBy" gorm:"type:uuid"`
	CreatedAt  time.Time `json:"createdAt" gorm:"not null"`
}

// TableName 指定表名
func (StepTaskFile) TableName() string {
	return "step_task_files"
}

// AllModels 全部需要迁移的流程表
func AllModels() []any {
	return []any{
		&Workflow{},
		&WorkflowStep{},
		&WorkflowStepTransition{},
		&Task{},
		&StepTask{},
		&StepTaskAction{},
		&TaskStepAssignmentConfig{},
		&StepTaskData{},
		&StepTaskFile{},
	}
}
