package workflow

import (
	"errors"
	"fmt"
	"strings"

	"processhub/internal/common"
)

// 流程定义相关错误
var (
	ErrWorkflowNotFound            = common.NewBusinessErrorWithCode(common.CodeWorkflowNotFound)
	ErrInvalidWorkflowStructure    = common.NewBusinessErrorWithCode(common.CodeWorkflowValidationFailed)
	ErrDuplicateStepReference      = common.NewBusinessErrorWithCode(common.CodeDuplicateStepReference)
	ErrDanglingTransitionReference = common.NewBusinessErrorWithCode(common.CodeDanglingTransitionReference)
	ErrDuplicateTransitionAction   = common.NewBusinessErrorWithCode(common.CodeDuplicateTransitionAction)
	ErrWorkflowInUse               = common.NewBusinessErrorWithCode(common.CodeWorkflowInUse)
	ErrWorkflowInactive            = common.NewBusinessErrorWithCode(common.CodeWorkflowInactive)
)

// 任务执行相关错误
var (
	ErrTaskNotFound              = common.NewBusinessErrorWithCode(common.CodeTaskNotFound)
	ErrTaskNotRunning            = common.NewBusinessErrorWithCode(common.CodeTaskNotRunning)
	ErrNoCurrentStep             = common.NewBusinessErrorWithCode(common.CodeNoCurrentStep)
	ErrNotAssignee               = common.NewBusinessErrorWithCode(common.CodeNotAssignee)
	ErrNoMatchingTransition      = common.NewBusinessErrorWithCode(common.CodeNoMatchingTransition)
	ErrStepTaskNotFound          = common.NewBusinessErrorWithCode(common.CodeStepTaskNotFound)
	ErrConcurrentModification    = common.NewBusinessErrorWithCode(common.CodeConcurrentModification)
	ErrStepTaskStateConflict     = common.NewBusinessErrorWithCode(common.CodeStepTaskStateConflict)
	ErrTaskStateTransitionDenied = common.NewBusinessErrorWithCode(common.CodeTaskStateTransitionDenied)
	ErrTaskNotDeletable          = common.NewBusinessErrorWithCode(common.CodeTaskNotDeletable)
	ErrInvalidAssignment         = common.NewBusinessErrorWithCode(common.CodeInvalidAssignment)
	ErrProjectNotFound           = common.NewBusinessErrorWithCode(common.CodeProjectNotFound)
	ErrInvalidTaskRequest        = common.NewBusinessError(common.CodeInvalidRequest, "任务参数非法")
	ErrNotTaskOwner              = common.NewBusinessError(common.CodeForbidden, "只有任务创建人可以执行该操作")
)

// ErrTenantMismatch 实体属于其他租户。对外永远以 not found 呈现，只用于日志与测试断言
var ErrTenantMismatch = errors.New("workflow: tenant mismatch")

// HideTenantMismatch 将跨租户访问包装为 not found
func HideTenantMismatch(notFound error) error {
	return errors.Join(notFound, ErrTenantMismatch)
}

// ValidationError 字段级校验错误
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Kind    error  `json:"-"`
}

// DefinitionError 流程定义校验失败，包含全部字段错误
type DefinitionError struct {
	Errors []ValidationError
}

func (e *DefinitionError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ve := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", ve.Field, ve.Message))
	}
	return "工作流定义校验失败: " + strings.Join(msgs, "; ")
}

// Unwrap 返回去重后的错误类别，按首次出现的顺序
func (e *DefinitionError) Unwrap() []error {
	kinds := make([]error, 0, len(e.Errors))
	seen := make(map[error]bool)
	for _, ve := range e.Errors {
		if ve.Kind == nil || seen[ve.Kind] {
			continue
		}
		seen[ve.Kind] = true
		kinds = append(kinds, ve.Kind)
	}
	return kinds
}

// Details 字段错误明细，随响应返回
func (e *DefinitionError) Details() any {
	return e.Errors
}
