package workflow

import (
	"strings"
	"time"

	"processhub/internal/common"
)

// StepInput 定义中的步骤，ClientID 仅在本次请求内有效，用于流转引用
type StepInput struct {
	ClientID      string       `json:"clientId" yaml:"id"`
	Name          string       `json:"name" yaml:"name"`
	Description   string       `json:"description,omitempty" yaml:"description,omitempty"`
	Type          StepType     `json:"type" yaml:"type"`
	StepOrder     *int         `json:"stepOrder,omitempty" yaml:"order,omitempty"`
	AssigneeType  AssigneeType `json:"assigneeType,omitempty" yaml:"assigneeType,omitempty"`
	AssigneeValue string       `json:"assigneeValue,omitempty" yaml:"assigneeValue,omitempty"`
}

func (s StepInput) normalized() StepInput {
	s.ClientID = strings.TrimSpace(s.ClientID)
	s.Name = strings.TrimSpace(s.Name)
	s.Type = s.Type.Normalize()
	s.AssigneeType = s.AssigneeType.Normalize()
	s.AssigneeValue = strings.TrimSpace(s.AssigneeValue)
	return s
}

// TransitionInput 定义中的流转
type TransitionInput struct {
	From   string `json:"from" yaml:"from"`
	To     string `json:"to" yaml:"to"`
	Action string `json:"action" yaml:"action"`
}

func (t TransitionInput) normalized() TransitionInput {
	t.From = strings.TrimSpace(t.From)
	t.To = strings.TrimSpace(t.To)
	t.Action = strings.TrimSpace(t.Action)
	return t
}

// CreateWorkflowRequest 创建流程模板请求
type CreateWorkflowRequest struct {
	Name        string            `json:"name" binding:"required"`
	Description string            `json:"description"`
	IsActive    *bool             `json:"isActive"`
	Steps       []StepInput       `json:"steps"`
	Transitions []TransitionInput `json:"transitions"`
}

// UpdateWorkflowRequest 更新流程模板请求，步骤与流转整体替换
type UpdateWorkflowRequest struct {
	Name        string            `json:"name" binding:"required"`
	Description string            `json:"description"`
	IsActive    *bool             `json:"isActive"`
	Steps       []StepInput       `json:"steps"`
	Transitions []TransitionInput `json:"transitions"`
}

// ListWorkflowsRequest 流程模板列表查询
type ListWorkflowsRequest struct {
	common.PaginationRequest
	Keyword  string `form:"keyword"`
	IsActive *bool  `form:"isActive"`
}

// WorkflowStepView 步骤视图
type WorkflowStepView struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Description   string       `json:"description,omitempty"`
	Type          StepType     `json:"type"`
	StepOrder     int          `json:"stepOrder"`
	AssigneeType  AssigneeType `json:"assigneeType"`
	AssigneeValue string       `json:"assigneeValue,omitempty"`
	AssigneeName  string       `json:"assigneeName,omitempty"`
}

// WorkflowTransitionView 流转视图
type WorkflowTransitionView struct {
	ID           string `json:"id"`
	FromStepID   string `json:"fromStepId"`
	FromStepName string `json:"fromStepName"`
	ToStepID     string `json:"toStepId"`
	ToStepName   string `json:"toStepName"`
	Action       string `json:"action"`
}

// WorkflowDetail 流程模板详情
type WorkflowDetail struct {
	ID          string                   `json:"id"`
	TenantID    string                   `json:"tenantId"`
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	IsActive    bool                     `json:"isActive"`
	CreatedBy   string                   `json:"createdBy"`
	UpdatedBy   string                   `json:"updatedBy,omitempty"`
	CreatedAt   time.Time                `json:"createdAt"`
	UpdatedAt   time.Time                `json:"updatedAt"`
	Steps       []WorkflowStepView       `json:"steps"`
	Transitions []WorkflowTransitionView `json:"transitions"`
}

// StartStep 开始步骤
func (d *WorkflowDetail) StartStep() (WorkflowStepView, bool) {
	for _, s := range d.Steps {
		if s.Type == StepTypeStart {
			return s, true
		}
	}
	return WorkflowStepView{}, false
}

// WorkflowSummary 列表项
type WorkflowSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"isActive"`
	StepCount   int64     `json:"stepCount"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
