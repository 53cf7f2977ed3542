package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"processhub/internal/logger"
	"processhub/internal/metrics"
	"processhub/internal/tenant"
	"processhub/internal/workflow"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpdateTask 修改运行中任务的标题、描述、优先级、所属项目与起止日期
// 已完成或已取消的任务不可修改；状态只能改为 CANCELLED，效果与 CancelTask 相同
func (e *Engine) UpdateTask(ctx context.Context, tc tenant.TenantContext, taskID string, req *UpdateTaskRequest) (*TaskView, error) {
	release, err := e.acquire(ctx, taskID)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		task      *workflow.Task
		step      *workflow.WorkflowStep
		cancelled bool
	)
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if task, err = loadTask(tx.Clauses(clause.Locking{Strength: "UPDATE"}), tc.TenantID, taskID); err != nil {
			return err
		}
		if task.CreatorID != tc.UserID && !tc.IsSystemAdmin {
			return workflow.ErrNotTaskOwner
		}
		if task.Status.IsTerminal() {
			return workflow.ErrTaskNotRunning
		}
		if req.Version != 0 && req.Version != task.Version {
			metrics.RecordConcurrentModification("version")
			return workflow.ErrConcurrentModification
		}
		expected := task.Version

		if err := e.applyTaskChanges(tx, tc.TenantID, task, req); err != nil {
			return err
		}

		now := e.now()
		task.UpdatedAt = now
		if req.Status != nil && *req.Status != task.Status {
			if *req.Status != workflow.TaskStatusCancelled {
				return fmt.Errorf("%w: 任务状态只能修改为 %s", workflow.ErrInvalidTaskRequest, workflow.TaskStatusCancelled)
			}
			if err := e.cancelInTx(ctx, tx, task, req.Reason, now); err != nil {
				return err
			}
			cancelled = true
		}

		if task.CurrentStepID != nil {
			if step, err = loadStep(tx, task.WorkflowID, *task.CurrentStepID); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		result := tx.Model(&workflow.Task{}).
			Where("id = ? AND version = ?", task.ID, expected).
			Updates(map[string]any{
				"title":       task.Title,
				"description": task.Description,
				"priority":    task.Priority,
				"project_id":  task.ProjectID,
				"begin_date":  task.BeginDate,
				"end_date":    task.EndDate,
				"status":      task.Status,
				"updated_at":  task.UpdatedAt,
				"version":     expected + 1,
			})
		if result.Error != nil {
			return fmt.Errorf("更新任务失败: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			metrics.RecordConcurrentModification("version")
			return workflow.ErrConcurrentModification
		}
		task.Version = expected + 1
		return nil
	})
	if err != nil {
		return nil, err
	}

	if cancelled {
		e.publishCancelled(ctx, task, tc.UserID)
	} else {
		metrics.RecordTaskEvent("updated")
		logger.FromBase(ctx, e.logger).Info("任务已更新", zap.String("task_id", task.ID), zap.String("actor_id", tc.UserID))
	}
	return newTaskView(task, step), nil
}

// applyTaskChanges 把请求中的字段合并到任务上并校验
func (e *Engine) applyTaskChanges(tx *gorm.DB, tenantID string, task *workflow.Task, req *UpdateTaskRequest) error {
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return fmt.Errorf("%w: 标题不能为空", workflow.ErrInvalidTaskRequest)
		}
		task.Title = title
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.Priority != nil {
		priority := req.Priority.OrDefault()
		if !priority.IsValid() {
			return fmt.Errorf("%w: 不支持的优先级 %s", workflow.ErrInvalidTaskRequest, *req.Priority)
		}
		task.Priority = priority
	}
	if req.ProjectID != nil && *req.ProjectID != task.ProjectID {
		project, err := tenant.FindProject(tx, tenantID, *req.ProjectID)
		if err != nil {
			if errors.Is(err, tenant.ErrProjectNotFound) {
				return workflow.ErrProjectNotFound
			}
			return err
		}
		if _, err := tenant.ActivateProject(tx, project); err != nil {
			return err
		}
		task.ProjectID = project.ID
	}
	if req.BeginDate != nil {
		task.BeginDate = req.BeginDate
	}
	if req.EndDate != nil {
		task.EndDate = req.EndDate
	}
	if task.BeginDate != nil && task.EndDate != nil && task.EndDate.Before(*task.BeginDate) {
		return fmt.Errorf("%w: 结束日期早于开始日期", workflow.ErrInvalidTaskRequest)
	}
	return nil
}
