package engine

import (
	"errors"
	"fmt"

	"processhub/internal/workflow"

	"gorm.io/gorm"
)

// AssignmentResolver 判断操作人是否有权处理任务的当前步骤
// 固定处理人直接放行；否则看当前步骤的活动步骤任务是否分配给了操作人
type AssignmentResolver struct{}

// IsAuthorized 判断 actorID 是否为处理人
func (AssignmentResolver) IsAuthorized(db *gorm.DB, task *workflow.Task, step *workflow.WorkflowStep, actorID string) (bool, error) {
	if actorID == "" {
		return false, nil
	}
	if fixed := step.FixedAssignee(); fixed != "" && fixed == actorID {
		return true, nil
	}

	stepTask, err := findActiveStepTask(db, task.ID, step.ID)
	if err != nil {
		if errors.Is(err, workflow.ErrStepTaskNotFound) {
			return false, nil
		}
		return false, err
	}
	return stepTask.Assignee() == actorID, nil
}

// findActiveStepTask 查询 (task, step) 上序号最大的活动步骤任务
func findActiveStepTask(db *gorm.DB, taskID, stepID string) (*workflow.StepTask, error) {
	var stepTask workflow.StepTask
	err := db.Where("task_id = ? AND workflow_step_id = ? AND status IN ?", taskID, stepID, workflow.ActiveStepTaskStatuses).
		Order("step_sequence DESC").
		First(&stepTask).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, workflow.ErrStepTaskNotFound
		}
		return nil, fmt.Errorf("查询步骤任务失败: %w", err)
	}
	return &stepTask, nil
}
