package engine

import (
	"context"
	"fmt"

	"processhub/internal/workflow"

	"github.com/qmuntal/stateless"
)

// 状态机触发器
const (
	triggerStart    = "start"
	triggerComplete = "complete"
	triggerSkip     = "skip"
	triggerCancel   = "cancel"
)

// stepTaskMachine 步骤任务状态机：PENDING/IN_PROGRESS 为活动态，其余为终态
func stepTaskMachine(current workflow.StepTaskStatus) *stateless.StateMachine {
	sm := stateless.NewStateMachine(current)
	sm.Configure(workflow.StepTaskPending).
		Permit(triggerStart, workflow.StepTaskInProgress).
		Permit(triggerComplete, workflow.StepTaskCompleted).
		Permit(triggerSkip, workflow.StepTaskSkipped).
		Permit(triggerCancel, workflow.StepTaskCancelled)
	sm.Configure(workflow.StepTaskInProgress).
		Permit(triggerComplete, workflow.StepTaskCompleted).
		Permit(triggerSkip, workflow.StepTaskSkipped).
		Permit(triggerCancel, workflow.StepTaskCancelled)
	sm.Configure(workflow.StepTaskCompleted)
	sm.Configure(workflow.StepTaskSkipped)
	sm.Configure(workflow.StepTaskCancelled)
	return sm
}

// taskMachine 任务状态机：RUNNING 只能进入 COMPLETED 或 CANCELLED
func taskMachine(current workflow.TaskStatus) *stateless.StateMachine {
	sm := stateless.NewStateMachine(current)
	sm.Configure(workflow.TaskStatusRunning).
		Permit(triggerComplete, workflow.TaskStatusCompleted).
		Permit(triggerCancel, workflow.TaskStatusCancelled)
	sm.Configure(workflow.TaskStatusCompleted)
	sm.Configure(workflow.TaskStatusCancelled)
	return sm
}

// nextStepTaskStatus 计算步骤任务在触发器下的目标状态
func nextStepTaskStatus(ctx context.Context, current workflow.StepTaskStatus, trigger string) (workflow.StepTaskStatus, error) {
	sm := stepTaskMachine(current)
	if err := sm.FireCtx(ctx, trigger); err != nil {
		return current, fmt.Errorf("%w: %s 不允许 %s", workflow.ErrStepTaskStateConflict, current, trigger)
	}
	return sm.MustState().(workflow.StepTaskStatus), nil
}

// nextTaskStatus 计算任务在触发器下的目标状态
func nextTaskStatus(ctx context.Context, current workflow.TaskStatus, trigger string) (workflow.TaskStatus, error) {
	sm := taskMachine(current)
	if err := sm.FireCtx(ctx, trigger); err != nil {
		return current, fmt.Errorf("%w: %s 不允许 %s", workflow.ErrTaskStateTransitionDenied, current, trigger)
	}
	return sm.MustState().(workflow.TaskStatus), nil
}
