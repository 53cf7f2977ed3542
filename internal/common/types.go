package common

import "net/http"

// ============================================================================
// 通用请求类型
// ============================================================================

// PaginationRequest 分页请求参数
type PaginationRequest struct {
	Page     int `json:"page" form:"page" binding:"omitempty,min=1"`           // 页码，从1开始
	PageSize int `json:"page_size" form:"page_size" binding:"omitempty,min=1"` // 每页数量
}

// DefaultPagination 返回默认分页参数
func DefaultPagination() PaginationRequest {
	return PaginationRequest{
		Page:     1,
		PageSize: 20,
	}
}

// GetPage 获取页码，提供默认值
func (p PaginationRequest) GetPage() int {
	if p.Page < 1 {
		return 1
	}
	return p.Page
}

// GetOffset 计算数据库查询的偏移量
func (p PaginationRequest) GetOffset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

// GetPageSize 获取每页数量，提供默认值
func (p PaginationRequest) GetPageSize() int {
	if p.PageSize < 1 {
		return 20
	}
	if p.PageSize > 100 {
		return 100
	}
	return p.PageSize
}

// ============================================================================
// 通用响应类型
// ============================================================================

// APIResponse 统一API响应格式
type APIResponse struct {
	Success bool   `json:"success"`           // 是否成功
	Data    any    `json:"data,omitempty"`    // 响应数据
	Message string `json:"message,omitempty"` // 提示信息
	Code    int    `json:"code"`              // 业务状态码
}

// SuccessResponse 成功响应
func SuccessResponse(data any) APIResponse {
	return APIResponse{
		Success: true,
		Data:    data,
		Code:    CodeSuccess,
	}
}

// ErrorResponse 错误响应
func ErrorResponse(code int, message string) APIResponse {
	return APIResponse{
		Success: false,
		Message: message,
		Code:    code,
	}
}

// PaginationMeta 分页元信息
type PaginationMeta struct {
	Page       int   `json:"page"`        // 当前页码
	PageSize   int   `json:"page_size"`   // 每页数量
	Total      int64 `json:"total"`       // 总记录数
	TotalPages int   `json:"total_pages"` // 总页数
}

// NewPaginationMeta 创建分页元信息
func NewPaginationMeta(page, pageSize int, total int64) PaginationMeta {
	meta := PaginationMeta{
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	}
	if pageSize > 0 {
		meta.TotalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return meta
}

// ListResponse 列表响应（包含分页信息）
type ListResponse struct {
	Items      any            `json:"items"`      // 数据列表
	Pagination PaginationMeta `json:"pagination"` // 分页信息
}

// ============================================================================
// 业务状态码定义
// ============================================================================

const (
	CodeSuccess = 0

	// 通用错误码
	CodeInvalidRequest     = 1000 // 请求参数错误
	CodeUnauthorized       = 1001 // 未授权
	CodeForbidden          = 1002 // 禁止访问
	CodeNotFound           = 1003 // 资源不存在
	CodeConflict           = 1004 // 资源冲突
	CodeInternalError      = 1005 // 内部错误
	CodeServiceUnavailable = 1006 // 服务不可用
	CodeTooManyRequests    = 1007 // 请求过于频繁

	// 租户/用户/项目
	CodeTenantNotFound  = 2000 // 租户不存在
	CodeUserNotFound    = 2010 // 用户不存在
	CodeProjectNotFound = 2030 // 项目不存在

	// 工作流定义
	CodeWorkflowNotFound            = 5000 // 工作流不存在
	CodeWorkflowValidationFailed    = 5001 // 工作流结构非法
	CodeDuplicateStepReference      = 5002 // 步骤 clientId 重复
	CodeDanglingTransitionReference = 5003 // 流转引用了不存在的步骤
	CodeDuplicateTransitionAction   = 5004 // 同一步骤存在重复动作
	CodeWorkflowInUse               = 5005 // 工作流已被任务引用
	CodeWorkflowInactive            = 5006 // 工作流已停用

	// 任务执行
	CodeTaskNotFound              = 5100 // 任务不存在
	CodeTaskNotRunning            = 5101 // 任务不在运行中
	CodeNoCurrentStep             = 5102 // 任务没有当前步骤
	CodeNotAssignee               = 5103 // 不是当前步骤处理人
	CodeNoMatchingTransition      = 5104 // 当前步骤不存在该动作
	CodeStepTaskNotFound          = 5105 // 步骤任务不存在
	CodeConcurrentModification    = 5106 // 并发修改冲突
	CodeStepTaskStateConflict     = 5107 // 步骤任务状态不允许该操作
	CodeTaskNotDeletable          = 5108 // 任务未结束不可删除
	CodeInvalidAssignment         = 5109 // 步骤分派配置非法
	CodeTaskStateTransitionDenied = 5110 // 任务状态不允许该操作
)

// ErrorMessages 错误码对应的默认消息
var ErrorMessages = map[int]string{
	CodeSuccess:            "操作成功",
	CodeInvalidRequest:     "请求参数错误",
	CodeUnauthorized:       "未授权，请先登录",
	CodeForbidden:          "无权限访问",
	CodeNotFound:           "资源不存在",
	CodeConflict:           "资源冲突",
	CodeInternalError:      "系统内部错误",
	CodeServiceUnavailable: "服务暂不可用",
	CodeTooManyRequests:    "请求过于频繁",

	CodeTenantNotFound:  "租户不存在",
	CodeUserNotFound:    "用户不存在",
	CodeProjectNotFound: "项目不存在",

	CodeWorkflowNotFound:            "工作流不存在",
	CodeWorkflowValidationFailed:    "工作流结构非法",
	CodeDuplicateStepReference:      "步骤标识重复",
	CodeDanglingTransitionReference: "流转引用了不存在的步骤",
	CodeDuplicateTransitionAction:   "同一步骤存在重复的动作",
	CodeWorkflowInUse:               "工作流已被任务引用，不能修改或删除",
	CodeWorkflowInactive:            "工作流已停用",

	CodeTaskNotFound:              "任务不存在",
	CodeTaskNotRunning:            "任务不在运行状态",
	CodeNoCurrentStep:             "任务没有当前步骤",
	CodeNotAssignee:               "当前用户不是该步骤的处理人",
	CodeNoMatchingTransition:      "当前步骤不存在该动作",
	CodeStepTaskNotFound:          "当前步骤任务不存在或已结束",
	CodeConcurrentModification:    "任务已被其他请求修改，请刷新后重试",
	CodeStepTaskStateConflict:     "步骤任务状态不允许该操作",
	CodeTaskNotDeletable:          "只有已完成或已取消的任务可以删除",
	CodeInvalidAssignment:         "步骤分派配置非法",
	CodeTaskStateTransitionDenied: "任务状态不允许该操作",
}

// GetErrorMessage 获取错误码对应的消息
func GetErrorMessage(code int) string {
	if msg, ok := ErrorMessages[code]; ok {
		return msg
	}
	return "未知错误"
}

// HTTPStatus 业务错误码到 HTTP 状态码的映射
func HTTPStatus(code int) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidRequest, CodeWorkflowValidationFailed, CodeDuplicateStepReference,
		CodeDanglingTransitionReference, CodeDuplicateTransitionAction, CodeWorkflowInactive,
		CodeInvalidAssignment:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden, CodeNotAssignee:
		return http.StatusForbidden
	case CodeNotFound, CodeTenantNotFound, CodeUserNotFound, CodeProjectNotFound,
		CodeWorkflowNotFound, CodeTaskNotFound, CodeStepTaskNotFound, CodeNoMatchingTransition:
		return http.StatusNotFound
	case CodeConflict, CodeWorkflowInUse, CodeTaskNotRunning, CodeNoCurrentStep,
		CodeConcurrentModification, CodeStepTaskStateConflict, CodeTaskNotDeletable,
		CodeTaskStateTransitionDenied:
		return http.StatusConflict
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ============================================================================
// 通用业务错误类型
// ============================================================================

// BusinessError 业务错误
type BusinessError struct {
	Code    int    // 错误码
	Message string // 错误信息
}

// Error 实现error接口
func (e *BusinessError) Error() string {
	return e.Message
}

// NewBusinessError 创建业务错误
func NewBusinessError(code int, message string) *BusinessError {
	if message == "" {
		message = GetErrorMessage(code)
	}
	return &BusinessError{
		Code:    code,
		Message: message,
	}
}

// NewBusinessErrorWithCode 根据错误码创建业务错误
func NewBusinessErrorWithCode(code int) *BusinessError {
	return NewBusinessError(code, GetErrorMessage(code))
}

// DetailedError 携带结构化明细的错误（例如字段级校验结果）
type DetailedError interface {
	error
	Details() any
}
