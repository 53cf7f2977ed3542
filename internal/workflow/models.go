package workflow

import "time"

// Workflow 流程模板（步骤与流转构成的有向图）
// 一旦有任务引用即不可修改或删除
type Workflow struct {
	ID          string    `json:"id" gorm:"primaryKey;type:uuid"`
	TenantID    string    `json:"tenantId" gorm:"type:uuid;not null;index:idx_workflow_tenant"`
	Name        string    `json:"name" gorm:"size:255;not null"`
	Description string    `json:"description" gorm:"type:text"`
	IsActive    bool      `json:"isActive" gorm:"not null"`
	CreatedBy   string    `json:"createdBy" gorm:"type:uuid"`
	UpdatedBy   string    `json:"updatedBy" gorm:"type:uuid"`
	CreatedAt   time.Time `json:"createdAt" gorm:"not null"`
	UpdatedAt   time.Time `json:"updatedAt" gorm:"not null"`
}

// TableName 指定表名
func (Workflow) TableName() string {
	return "workflows"
}

// WorkflowStep 流程步骤
type WorkflowStep struct {
	ID            string       `json:"id" gorm:"primaryKey;type:uuid"`
	WorkflowID    string       `json:"workflowId" gorm:"type:uuid;not null;index:idx_step_workflow"`
	Name          string       `json:"name" gorm:"size:255;not null"`
	Description   string       `json:"description" gorm:"type:text"`
	Type          StepType     `json:"type" gorm:"size:20;not null"`
	StepOrder     int          `json:"stepOrder" gorm:"not null"`
	Position      int          `json:"position" gorm:"not null"` // 输入顺序，StepOrder 相同时用于排序
	AssigneeType  AssigneeType `json:"assigneeType" gorm:"size:20;not null"`
	AssigneeValue string       `json:"assigneeValue" gorm:"size:100"`
	CreatedAt     time.Time    `json:"createdAt" gorm:"not null"`
	UpdatedAt     time.Time    `json:"updatedAt" gorm:"not null"`
}

// TableName 指定表名
func (WorkflowStep) TableName() string {
	return "workflow_steps"
}

// FixedAssignee 固定处理人ID，非 FIXED 步骤返回空串
func (s *WorkflowStep) FixedAssignee() string {
	if s.AssigneeType != AssigneeFixed {
		return ""
	}
	return s.AssigneeValue
}

// WorkflowStepTransition 步骤间的流转，由动作名触发
type WorkflowStepTransition struct {
	ID         string    `json:"id" gorm:"primaryKey;type:uuid"`
	WorkflowID string    `json:"workflowId" gorm:"type:uuid;not null;index:idx_transition_workflow"`
	FromStepID string    `json:"fromStepId" gorm:"type:uuid;not null;index:idx_transition_from"`
	ToStepID   string    `json:"toStepId" gorm:"type:uuid;not null"`
	Action     string    `json:"action" gorm:"size:100;not null"`
	Position   int       `json:"position" gorm:"not null"` // 创建顺序，同名动作取第一条
	CreatedAt  time.Time `json:"createdAt" gorm:"not null"`
}

// TableName 指定表名
func (WorkflowStepTransition) TableName() string {
	return "workflow_step_transitions"
}
