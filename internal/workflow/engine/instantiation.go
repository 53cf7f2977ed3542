package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"processhub/internal/logger"
	"processhub/internal/metrics"
	"processhub/internal/tenant"
	"processhub/internal/workflow"
	"processhub/internal/workflow/events"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateTask 基于流程模板创建任务，并在开始步骤上生成第一个步骤任务
func (e *Engine) CreateTask(ctx context.Context, tc tenant.TenantContext, req *CreateTaskRequest) (view *TaskView, err error) {
	ctx, span := e.tracer.Start(ctx, "engine.CreateTask", trace.WithAttributes(
		attribute.String("workflow.id", req.WorkflowID),
		attribute.String("project.id", req.ProjectID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: 标题不能为空", workflow.ErrInvalidTaskRequest)
	}
	priority := req.Priority.OrDefault()
	if !priority.IsValid() {
		return nil, fmt.Errorf("%w: 不支持的优先级 %s", workflow.ErrInvalidTaskRequest, req.Priority)
	}
	if req.BeginDate != nil && req.EndDate != nil && req.EndDate.Before(*req.BeginDate) {
		return nil, fmt.Errorf("%w: 结束日期早于开始日期", workflow.ErrInvalidTaskRequest)
	}

	var (
		task      *workflow.Task
		startStep *workflow.WorkflowStep
		first     *workflow.StepTask
	)
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		project, err := tenant.FindProject(tx, tc.TenantID, req.ProjectID)
		if err != nil {
			if errors.Is(err, tenant.ErrProjectNotFound) {
				return workflow.ErrProjectNotFound
			}
			return err
		}
		wf, err := workflow.FindWorkflow(tx, tc.TenantID, req.WorkflowID)
		if err != nil {
			return err
		}
		if !wf.IsActive {
			return workflow.ErrWorkflowInactive
		}
		steps, _, err := workflow.LoadGraph(tx, wf.ID)
		if err != nil {
			return err
		}
		for i := range steps {
			if steps[i].Type == workflow.StepTypeStart {
				startStep = &steps[i]
				break
			}
		}
		if startStep == nil {
			return fmt.Errorf("%w: 缺少开始步骤", workflow.ErrInvalidWorkflowStructure)
		}

		configs, err := e.buildAssignments(ctx, tc.TenantID, steps, req.StepAssignments)
		if err != nil {
			return err
		}

		now := e.now()
		task = &workflow.Task{
			ID:            uuid.New().String(),
			TenantID:      tc.TenantID,
			ProjectID:     project.ID,
			WorkflowID:    wf.ID,
			Title:         title,
			Description:   req.Description,
			Status:        workflow.TaskStatusRunning,
			Priority:      priority,
			CurrentStepID: &startStep.ID,
			CreatorID:     tc.UserID,
			BeginDate:     req.BeginDate,
			EndDate:       req.EndDate,
			Version:       1,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Create(task).Error; err != nil {
			return fmt.Errorf("创建任务失败: %w", err)
		}

		for i := range configs {
			configs[i].TaskID = task.ID
			configs[i].CreatedAt = now
		}
		if len(configs) > 0 {
			if err := tx.Create(&configs).Error; err != nil {
				return fmt.Errorf("保存步骤预设失败: %w", err)
			}
		}

		if first, err = e.seedStartStepTask(ctx, tx, task, startStep); err != nil {
			return err
		}

		if _, err := tenant.ActivateProject(tx, project); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordTaskEvent("created")
	logger.FromBase(ctx, e.logger).Info("任务已创建",
		zap.String("task_id", task.ID),
		zap.String("workflow_id", task.WorkflowID),
		zap.String("tenant_id", task.TenantID))
	if e.publisher != nil && first.AssignedUserID != nil {
		e.publisher.Publish(events.Event{
			Type:        events.StepAssigned,
			TenantID:    task.TenantID,
			TaskID:      task.ID,
			TaskTitle:   task.Title,
			StepTaskID:  first.ID,
			StepID:      startStep.ID,
			StepName:    startStep.Name,
			RecipientID: *first.AssignedUserID,
			ActorID:     tc.UserID,
			Priority:    string(first.Priority),
			OccurredAt:  first.BeginDate,
		})
	}
	return newTaskView(task, startStep), nil
}

// seedStartStepTask 开始步骤的步骤任务：序号 0，直接进入处理中
// 处理人依次取固定处理人、创建任务时的预设处理人、任务创建人
func (e *Engine) seedStartStepTask(ctx context.Context, tx *gorm.DB, task *workflow.Task, start *workflow.WorkflowStep) (*workflow.StepTask, error) {
	now := task.CreatedAt
	st := &workflow.StepTask{
		ID:             uuid.New().String(),
		TenantID:       task.TenantID,
		TaskID:         task.ID,
		WorkflowStepID: start.ID,
		StepSequence:   0,
		Iteration:      1,
		Status:         workflow.StepTaskInProgress,
		Priority:       task.Priority,
		BeginDate:      now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	claimed, ok, err := claimAssignment(tx, task.ID, start.ID)
	if err != nil {
		return nil, err
	}
	if ok && claimed.Priority.IsValid() {
		st.Priority = claimed.Priority
	}

	assignee := task.CreatorID
	if ok && claimed.AssigneeID != "" && start.AssigneeType == workflow.AssigneeDynamic {
		assignee = claimed.AssigneeID
	}
	if fixed := start.FixedAssignee(); fixed != "" {
		if e.users == nil {
			assignee = fixed
		} else if _, err := e.users.GetUser(ctx, task.TenantID, fixed); err == nil {
			assignee = fixed
		} else if !errors.Is(err, tenant.ErrUserNotFound) {
			return nil, err
		}
	}
	st.AssignedUserID = &assignee

	if err := tx.Create(st).Error; err != nil {
		return nil, fmt.Errorf("创建开始步骤任务失败: %w", err)
	}
	return st, nil
}

// buildAssignments 校验创建任务时的步骤预设
// DYNAMIC 步骤须指定同租户的处理人；FIXED 步骤只能预设优先级
func (e *Engine) buildAssignments(ctx context.Context, tenantID string, steps []workflow.WorkflowStep, inputs []StepAssignmentInput) ([]workflow.TaskStepAssignmentConfig, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	byID := make(map[string]*workflow.WorkflowStep, len(steps))
	for i := range steps {
		byID[steps[i].ID] = &steps[i]
	}

	seen := make(map[string]bool, len(inputs))
	configs := make([]workflow.TaskStepAssignmentConfig, 0, len(inputs))
	for _, in := range inputs {
		step, ok := byID[in.WorkflowStepID]
		if !ok {
			return nil, fmt.Errorf("%w: 步骤 %s 不属于该流程", workflow.ErrInvalidAssignment, in.WorkflowStepID)
		}
		if seen[step.ID] {
			return nil, fmt.Errorf("%w: 步骤 %s 重复预设", workflow.ErrInvalidAssignment, step.Name)
		}
		seen[step.ID] = true
		if step.Type == workflow.StepTypeEnd {
			return nil, fmt.Errorf("%w: 结束步骤不需要处理人", workflow.ErrInvalidAssignment)
		}

		var priority workflow.Priority
		if strings.TrimSpace(string(in.Priority)) != "" {
			priority = in.Priority.OrDefault()
			if !priority.IsValid() {
				return nil, fmt.Errorf("%w: 不支持的优先级 %s", workflow.ErrInvalidAssignment, in.Priority)
			}
		}

		cfg := workflow.TaskStepAssignmentConfig{
			ID:             uuid.New().String(),
			TenantID:       tenantID,
			WorkflowStepID: step.ID,
			Priority:       priority,
		}
		assigneeID := strings.TrimSpace(in.AssigneeID)
		switch step.AssigneeType {
		case workflow.AssigneeFixed:
			if assigneeID != "" && assigneeID != step.AssigneeValue {
				return nil, fmt.Errorf("%w: 步骤 %s 为固定处理人", workflow.ErrInvalidAssignment, step.Name)
			}
		default:
			if assigneeID == "" {
				if step.Type == workflow.StepTypeStart {
					break
				}
				return nil, fmt.Errorf("%w: 步骤 %s 需要指定处理人", workflow.ErrInvalidAssignment, step.Name)
			}
			if e.users != nil {
				if _, err := e.users.GetUser(ctx, tenantID, assigneeID); err != nil {
					if errors.Is(err, tenant.ErrUserNotFound) {
						return nil, fmt.Errorf("%w: 处理人 %s 不存在", workflow.ErrInvalidAssignment, assigneeID)
					}
					return nil, err
				}
			}
			cfg.AssigneeID = &assigneeID
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// CancelTask 取消运行中的任务，活动步骤任务一并取消
func (e *Engine) CancelTask(ctx context.Context, tc tenant.TenantContext, taskID, reason string) (*TaskView, error) {
	release, err := e.acquire(ctx, taskID)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		task *workflow.Task
		step *workflow.WorkflowStep
	)
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if task, err = loadTask(tx.Clauses(clause.Locking{Strength: "UPDATE"}), tc.TenantID, taskID); err != nil {
			return err
		}
		if task.CreatorID != tc.UserID && !tc.IsSystemAdmin {
			return workflow.ErrNotTaskOwner
		}
		expected := task.Version
		if err := e.cancelInTx(ctx, tx, task, reason, e.now()); err != nil {
			return err
		}
		if task.CurrentStepID != nil {
			if step, err = loadStep(tx, task.WorkflowID, *task.CurrentStepID); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}
		return saveTaskVersioned(tx, task, expected)
	})
	if err != nil {
		return nil, err
	}

	e.publishCancelled(ctx, task, tc.UserID)
	return newTaskView(task, step), nil
}

// cancelInTx 取消任务上的活动步骤任务，并把任务状态置为已取消（不落库任务本身）
func (e *Engine) cancelInTx(ctx context.Context, tx *gorm.DB, task *workflow.Task, reason string, now time.Time) error {
	status, err := nextTaskStatus(ctx, task.Status, triggerCancel)
	if err != nil {
		return err
	}

	note := "任务已取消"
	if r := strings.TrimSpace(reason); r != "" {
		note = note + ": " + r
	}
	var active []workflow.StepTask
	if err := tx.Where("task_id = ? AND status IN ?", task.ID, workflow.ActiveStepTaskStatuses).
		Find(&active).Error; err != nil {
		return fmt.Errorf("查询活动步骤任务失败: %w", err)
	}
	for i := range active {
		next, err := nextStepTaskStatus(ctx, active[i].Status, triggerCancel)
		if err != nil {
			return err
		}
		if err := updateStepTaskStatus(tx, &active[i], next, map[string]any{
			"end_date":   now,
			"note":       note,
			"updated_at": now,
		}); err != nil {
			return err
		}
	}

	task.Status = status
	task.UpdatedAt = now
	return nil
}

func (e *Engine) publishCancelled(ctx context.Context, task *workflow.Task, actorID string) {
	metrics.RecordTaskEvent("cancelled")
	logger.FromBase(ctx, e.logger).Info("任务已取消", zap.String("task_id", task.ID), zap.String("actor_id", actorID))
	if e.publisher == nil {
		return
	}
	e.publisher.Publish(events.Event{
		Type:        events.TaskCancelled,
		TenantID:    task.TenantID,
		TaskID:      task.ID,
		TaskTitle:   task.Title,
		RecipientID: task.CreatorID,
		ActorID:     actorID,
		Priority:    string(task.Priority),
		OccurredAt:  task.UpdatedAt,
	})
}

// DeleteTask 删除已结束的任务及其全部步骤记录
func (e *Engine) DeleteTask(ctx context.Context, tc tenant.TenantContext, taskID string) error {
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := loadTask(tx.Clauses(clause.Locking{Strength: "UPDATE"}), tc.TenantID, taskID)
		if err != nil {
			return err
		}
		if !task.Status.IsTerminal() {
			return workflow.ErrTaskNotDeletable
		}
		if task.CreatorID != tc.UserID && !tc.IsSystemAdmin {
			return workflow.ErrNotTaskOwner
		}

		stepTaskIDs := tx.Model(&workflow.StepTask{}).Select("id").Where("task_id = ?", task.ID)
		if err := tx.Where("step_task_id IN (?)", stepTaskIDs).Delete(&workflow.StepTaskData{}).Error; err != nil {
			return fmt.Errorf("删除表单数据失败: %w", err)
		}
		if err := tx.Where("step_task_id IN (?)", stepTaskIDs).Delete(&workflow.StepTaskFile{}).Error; err != nil {
			return fmt.Errorf("删除文件记录失败: %w", err)
		}
		for _, model := range []any{
			&workflow.StepTaskAction{},
			&workflow.StepTask{},
			&workflow.TaskStepAssignmentConfig{},
		} {
			if err := tx.Where("task_id = ?", task.ID).Delete(model).Error; err != nil {
				return fmt.Errorf("删除任务记录失败: %w", err)
			}
		}
		if err := tx.Delete(&workflow.Task{}, "id = ?", task.ID).Error; err != nil {
			return fmt.Errorf("删除任务失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	metrics.RecordTaskEvent("deleted")
	logger.FromBase(ctx, e.logger).Info("任务已删除", zap.String("task_id", taskID), zap.String("actor_id", tc.UserID))
	return nil
}
