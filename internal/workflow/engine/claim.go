package engine

import (
	"errors"
	"fmt"

	"processhub/internal/workflow"

	"gorm.io/gorm"
)

// Assignment 领取到的步骤预设
type Assignment struct {
	AssigneeID string
	Priority   workflow.Priority
}

// claimAssignment 领取 (task, step) 的预设配置：查询后按 ID 删除，删除成功才算领取
// 必须在事务内调用，同一配置只会被一个事务领取
func claimAssignment(tx *gorm.DB, taskID, stepID string) (*Assignment, bool, error) {
	var cfg workflow.TaskStepAssignmentConfig
	err := tx.Where("task_id = ? AND workflow_step_id = ?", taskID, stepID).First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("查询步骤预设失败: %w", err)
	}

	result := tx.Where("id = ?", cfg.ID).Delete(&workflow.TaskStepAssignmentConfig{})
	if result.Error != nil {
		return nil, false, fmt.Errorf("领取步骤预设失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, false, nil
	}

	a := &Assignment{Priority: cfg.Priority}
	if cfg.AssigneeID != nil {
		a.AssigneeID = *cfg.AssigneeID
	}
	return a, true, nil
}
