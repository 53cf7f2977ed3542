package workflow

import (
	"context"

	"processhub/internal/tenant"
)

// WorkflowServiceInterface 流程模板服务接口
type WorkflowServiceInterface interface {
	// CreateWorkflow 创建流程模板
	CreateWorkflow(ctx context.Context, tc tenant.TenantContext, req *CreateWorkflowRequest) (*WorkflowDetail, error)

	// UpdateWorkflow 更新流程模板（步骤与流转整体替换）
	UpdateWorkflow(ctx context.Context, tc tenant.TenantContext, id string, req *UpdateWorkflowRequest) (*WorkflowDetail, error)

	// DeleteWorkflow 删除流程模板
	DeleteWorkflow(ctx context.Context, tc tenant.TenantContext, id string) error

	// GetWorkflow 获取流程模板详情
	GetWorkflow(ctx context.Context, tc tenant.TenantContext, id string) (*WorkflowDetail, error)

	// ListWorkflows 分页查询流程模板
	ListWorkflows(ctx context.Context, tc tenant.TenantContext, req *ListWorkflowsRequest) (*ListWorkflowsResponse, error)

	// ExportWorkflow 导出为 YAML 或 JSON
	ExportWorkflow(ctx context.Context, tc tenant.TenantContext, id string, format ExportFormat) (*ExportResult, error)

	// ImportWorkflow 从 YAML 或 JSON 导入
	ImportWorkflow(ctx context.Context, tc tenant.TenantContext, data []byte, format ExportFormat) (*WorkflowDetail, error)
}

// UserDirectory 用户目录，流程模块只需要按租户解析用户
type UserDirectory interface {
	GetUser(ctx context.Context, tenantID, userID string) (*tenant.User, error)
	DisplayName(ctx context.Context, tenantID, userID string) string
}

var (
	_ WorkflowServiceInterface = (*WorkflowService)(nil)
	_ UserDirectory            = (*tenant.Directory)(nil)
)
