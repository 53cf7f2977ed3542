package engine

import (
	"bytes"
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
	"processhub/internal/workflow/state"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Engine 流程执行引擎：实例化任务、执行动作推进步骤、维护审计记录
type Engine struct {
	db        *gorm.DB
	users     workflow.UserDirectory
	locker    state.TaskLocker
	publisher events.Publisher
	resolver  AssignmentResolver
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// Option 引擎配置项
type Option func(*Engine)

// WithUserDirectory 设置用户目录
func WithUserDirectory(d workflow.UserDirectory) Option {
	return func(e *Engine) {
		e.users = d
	}
}

// WithLocker 设置任务锁，未设置时仅依赖数据库版本号
func WithLocker(l state.TaskLocker) Option {
	return func(e *Engine) {
		if l != nil {
			e.locker = l
		}
	}
}

// WithPublisher 设置事件发布方
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) {
		e.publisher = p
	}
}

// WithLogger 设置日志器
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock 设置时钟，测试用
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New 创建流程执行引擎
func New(db *gorm.DB, opts ...Option) *Engine {
	e := &Engine{
		db:     db,
		locker: state.NoopLocker{},
		logger: logger.Get(),
		tracer: otel.Tracer("processhub/engine"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// actionOutcome 一次动作执行在事务内产生的结果，提交后用于构造响应与发布事件
type actionOutcome struct {
	task      *workflow.Task
	fromStep  *workflow.WorkflowStep
	toStep    *workflow.WorkflowStep
	completed *workflow.StepTask
	next      *workflow.StepTask
	action    *workflow.StepTaskAction
}

// ExecuteAction 在任务当前步骤上执行动作，推进到流转的目标步骤
func (e *Engine) ExecuteAction(ctx context.Context, tc tenant.TenantContext, taskID string, req *ExecuteActionRequest) (view *TaskView, err error) {
	ctx, span := e.tracer.Start(ctx, "engine.ExecuteAction", trace.WithAttributes(
		attribute.String("task.id", taskID),
		attribute.String("workflow.action", req.ActionName),
	))
	start := time.Now()
	defer func() {
		metrics.RecordWorkflowAction(actionResult(err), start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	release, err := e.acquire(ctx, taskID)
	if err != nil {
		return nil, err
	}
	defer release()

	var out *actionOutcome
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := loadTask(tx.Clauses(clause.Locking{Strength: "UPDATE"}), tc.TenantID, taskID)
		if err != nil {
			return err
		}
		out, err = e.applyAction(ctx, tx, tc, task, req)
		return err
	})
	if err != nil {
		if errors.Is(err, workflow.ErrConcurrentModification) {
			metrics.RecordConcurrentModification("version")
		}
		logger.FromBase(ctx, e.logger).Debug("执行动作失败",
			zap.String("task_id", taskID),
			zap.String("action", req.ActionName),
			zap.Error(err))
		return nil, err
	}

	logger.FromBase(ctx, e.logger).Info("动作已执行",
		zap.String("task_id", out.task.ID),
		zap.String("action", out.action.ActionName),
		zap.String("from_step", out.fromStep.Name),
		zap.String("to_step", out.toStep.Name),
		zap.String("actor_id", tc.UserID))
	e.publishOutcome(out, tc.UserID)
	if out.task.Status == workflow.TaskStatusCompleted {
		metrics.RecordTaskEvent("completed")
	}
	return newTaskView(out.task, out.toStep), nil
}

// applyAction 执行动作的事务主体，task 已在事务内加载
func (e *Engine) applyAction(ctx context.Context, tx *gorm.DB, tc tenant.TenantContext, task *workflow.Task, req *ExecuteActionRequest) (*actionOutcome, error) {
	if task.Status != workflow.TaskStatusRunning {
		return nil, workflow.ErrTaskNotRunning
	}
	if task.CurrentStepID == nil {
		return nil, workflow.ErrNoCurrentStep
	}
	currentStep, err := loadStep(tx, task.WorkflowID, *task.CurrentStepID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, workflow.ErrNoCurrentStep
		}
		return nil, err
	}

	ok, err := e.resolver.IsAuthorized(tx, task, currentStep, tc.UserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, workflow.ErrNotAssignee
	}

	transition, err := matchTransition(tx, task.WorkflowID, currentStep.ID, req.ActionName)
	if err != nil {
		return nil, err
	}
	nextStep, err := loadStep(tx, task.WorkflowID, transition.ToStepID)
	if err != nil {
		return nil, fmt.Errorf("加载流转目标步骤失败: %w", err)
	}

	stepTask, err := findActiveStepTask(tx, task.ID, currentStep.ID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	if err := completeStepTask(ctx, tx, stepTask, req.Comment, now); err != nil {
		return nil, err
	}

	action := &workflow.StepTaskAction{
		ID:         uuid.New().String(),
		TenantID:   task.TenantID,
		TaskID:     task.ID,
		StepTaskID: stepTask.ID,
		FromStepID: currentStep.ID,
		ToStepID:   &nextStep.ID,
		ActionName: transition.Action,
		ActorID:    tc.UserID,
		Comment:    req.Comment,
		CreatedAt:  now,
	}
	if err := tx.Create(action).Error; err != nil {
		return nil, fmt.Errorf("记录动作失败: %w", err)
	}
	if err := saveSubmission(tx, task.TenantID, stepTask.ID, tc.UserID, req, now); err != nil {
		return nil, err
	}

	out := &actionOutcome{
		task:      task,
		fromStep:  currentStep,
		toStep:    nextStep,
		completed: stepTask,
		action:    action,
	}

	expectedVersion := task.Version
	task.CurrentStepID = &nextStep.ID
	task.UpdatedAt = now

	if nextStep.Type == workflow.StepTypeEnd {
		status, err := nextTaskStatus(ctx, task.Status, triggerComplete)
		if err != nil {
			return nil, err
		}
		task.Status = status
		task.CompletedAt = &now
		terminal, err := e.newStepTask(tx, task, nextStep, now)
		if err != nil {
			return nil, err
		}
		terminal.Status = workflow.StepTaskCompleted
		terminal.Priority = workflow.PriorityNormal
		terminal.EndDate = &now
		if err := tx.Create(terminal).Error; err != nil {
			return nil, fmt.Errorf("创建结束步骤任务失败: %w", err)
		}
	} else {
		next, err := e.newStepTask(tx, task, nextStep, now)
		if err != nil {
			return nil, err
		}
		if err := assignStepTask(ctx, tx, e.users, task, nextStep, next); err != nil {
			return nil, err
		}
		if err := tx.Create(next).Error; err != nil {
			return nil, fmt.Errorf("创建步骤任务失败: %w", err)
		}
		out.next = next
	}

	if err := saveTaskVersioned(tx, task, expectedVersion); err != nil {
		return nil, err
	}
	return out, nil
}

// StartStepTask 处理人开始处理当前步骤（PENDING → IN_PROGRESS）
func (e *Engine) StartStepTask(ctx context.Context, tc tenant.TenantContext, taskID string) (*StepTaskView, error) {
	release, err := e.acquire(ctx, taskID)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		stepTask *workflow.StepTask
		step     *workflow.WorkflowStep
	)
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := loadTask(tx.Clauses(clause.Locking{Strength: "UPDATE"}), tc.TenantID, taskID)
		if err != nil {
			return err
		}
		if task.Status != workflow.TaskStatusRunning {
			return workflow.ErrTaskNotRunning
		}
		if task.CurrentStepID == nil {
			return workflow.ErrNoCurrentStep
		}
		if step, err = loadStep(tx, task.WorkflowID, *task.CurrentStepID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return workflow.ErrNoCurrentStep
			}
			return err
		}
		if stepTask, err = findActiveStepTask(tx, task.ID, step.ID); err != nil {
			return err
		}
		if stepTask.Assignee() != tc.UserID {
			return workflow.ErrNotAssignee
		}

		status, err := nextStepTaskStatus(ctx, stepTask.Status, triggerStart)
		if err != nil {
			return err
		}
		now := e.now()
		if err := updateStepTaskStatus(tx, stepTask, status, map[string]any{"updated_at": now}); err != nil {
			return err
		}
		stepTask.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	view := newStepTaskView(stepTask, step)
	return &view, nil
}

// acquire 获取任务锁。锁被占用视为并发冲突；Redis 故障时降级为仅依赖版本号
func (e *Engine) acquire(ctx context.Context, taskID string) (func(), error) {
	release, err := e.locker.Acquire(ctx, taskID)
	if err == nil {
		return release, nil
	}
	if errors.Is(err, state.ErrLockHeld) {
		metrics.RecordConcurrentModification("lock")
		return nil, workflow.ErrConcurrentModification
	}
	logger.FromBase(ctx, e.logger).Warn("任务锁不可用，仅依赖版本号控制并发",
		zap.String("task_id", taskID), zap.Error(err))
	return func() {}, nil
}

// newStepTask 构造下一个步骤任务：序号递增，iteration 为该步骤的第几次进入
func (e *Engine) newStepTask(tx *gorm.DB, task *workflow.Task, step *workflow.WorkflowStep, now time.Time) (*workflow.StepTask, error) {
	var agg struct {
		MaxSeq int
	}
	if err := tx.Model(&workflow.StepTask{}).
		Select("COALESCE(MAX(step_sequence), -1) AS max_seq").
		Where("task_id = ?", task.ID).
		Scan(&agg).Error; err != nil {
		return nil, fmt.Errorf("查询步骤序号失败: %w", err)
	}
	var visits int64
	if err := tx.Model(&workflow.StepTask{}).
		Where("task_id = ? AND workflow_step_id = ?", task.ID, step.ID).
		Count(&visits).Error; err != nil {
		return nil, fmt.Errorf("统计步骤访问次数失败: %w", err)
	}

	return &workflow.StepTask{
		ID:             uuid.New().String(),
		TenantID:       task.TenantID,
		TaskID:         task.ID,
		WorkflowStepID: step.ID,
		StepSequence:   agg.MaxSeq + 1,
		Iteration:      int(visits) + 1,
		Status:         workflow.StepTaskPending,
		Priority:       workflow.PriorityNormal,
		BeginDate:      now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// assignStepTask 为新步骤任务确定处理人与优先级：
// 先领取创建任务时的预设，再看固定处理人，最后沿用该步骤上一次的处理人
func assignStepTask(ctx context.Context, tx *gorm.DB, users workflow.UserDirectory, task *workflow.Task, step *workflow.WorkflowStep, st *workflow.StepTask) error {
	claimed, ok, err := claimAssignment(tx, task.ID, step.ID)
	if err != nil {
		return err
	}
	if ok {
		if claimed.Priority.IsValid() {
			st.Priority = claimed.Priority
		}
		if claimed.AssigneeID != "" && step.AssigneeType == workflow.AssigneeDynamic {
			st.AssignedUserID = &claimed.AssigneeID
			return nil
		}
	}

	if fixed := step.FixedAssignee(); fixed != "" {
		if users == nil {
			st.AssignedUserID = &fixed
			return nil
		}
		if _, err := users.GetUser(ctx, task.TenantID, fixed); err == nil {
			st.AssignedUserID = &fixed
			return nil
		} else if !errors.Is(err, tenant.ErrUserNotFound) {
			return err
		}
	}

	var previous workflow.StepTask
	err = tx.Where("task_id = ? AND workflow_step_id = ? AND assigned_user_id IS NOT NULL", task.ID, step.ID).
		Order("step_sequence DESC").
		First(&previous).Error
	if err == nil {
		st.AssignedUserID = previous.AssignedUserID
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("查询历史处理人失败: %w", err)
	}
	return nil
}

// completeStepTask 完成当前步骤任务，comment 非空时写入备注
func completeStepTask(ctx context.Context, tx *gorm.DB, st *workflow.StepTask, comment string, now time.Time) error {
	status, err := nextStepTaskStatus(ctx, st.Status, triggerComplete)
	if err != nil {
		return err
	}
	updates := map[string]any{
		"end_date":   now,
		"updated_at": now,
	}
	if strings.TrimSpace(comment) != "" {
		updates["note"] = comment
		st.Note = comment
	}
	if err := updateStepTaskStatus(tx, st, status, updates); err != nil {
		return err
	}
	st.EndDate = &now
	st.UpdatedAt = now
	return nil
}

// updateStepTaskStatus 以当前状态为条件更新，防止并发覆盖
func updateStepTaskStatus(tx *gorm.DB, st *workflow.StepTask, status workflow.StepTaskStatus, updates map[string]any) error {
	updates["status"] = status
	result := tx.Model(&workflow.StepTask{}).
		Where("id = ? AND status = ?", st.ID, st.Status).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("更新步骤任务失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return workflow.ErrConcurrentModification
	}
	st.Status = status
	return nil
}

// saveSubmission 保存随动作提交的数据与文件元数据
func saveSubmission(tx *gorm.DB, tenantID, stepTaskID, actorID string, req *ExecuteActionRequest, now time.Time) error {
	body := bytes.TrimSpace(req.DataBody)
	if len(body) > 0 && !bytes.Equal(body, []byte("null")) {
		dataType := req.DataType
		if dataType == "" {
			dataType = "JSON"
		}
		contentType := req.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		data := &workflow.StepTaskData{
			ID:          uuid.New().String(),
			TenantID:    tenantID,
			StepTaskID:  stepTaskID,
			DataBody:    datatypes.JSON(body),
			DataType:    dataType,
			ContentType: contentType,
			CreatedBy:   actorID,
			CreatedAt:   now,
		}
		if err := tx.Create(data).Error; err != nil {
			return fmt.Errorf("保存表单数据失败: %w", err)
		}
	}

	if len(req.Files) == 0 {
		return nil
	}
	files := make([]workflow.StepTaskFile, 0, len(req.Files))
	for _, f := range req.Files {
		files = append(files, workflow.StepTaskFile{
			ID:         uuid.New().String(),
			TenantID:   tenantID,
			StepTaskID: stepTaskID,
			FileName:   f.FileName,
			ObjectName: f.ObjectName,
			FileSize:   f.FileSize,
			UploadedBy: actorID,
			CreatedAt:  now,
		})
	}
	if err := tx.Create(&files).Error; err != nil {
		return fmt.Errorf("保存文件记录失败: %w", err)
	}
	return nil
}

// saveTaskVersioned 按版本号条件更新任务，版本不一致说明已被其他请求推进
func saveTaskVersioned(tx *gorm.DB, task *workflow.Task, expectedVersion int64) error {
	result := tx.Model(&workflow.Task{}).
		Where("id = ? AND version = ?", task.ID, expectedVersion).
		Updates(map[string]any{
			"status":          task.Status,
			"current_step_id": task.CurrentStepID,
			"completed_at":    task.CompletedAt,
			"updated_at":      task.UpdatedAt,
			"version":         expectedVersion + 1,
		})
	if result.Error != nil {
		return fmt.Errorf("更新任务失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return workflow.ErrConcurrentModification
	}
	task.Version = expectedVersion + 1
	return nil
}

// matchTransition 在当前步骤的流转中按动作名（忽略大小写）匹配，同名取最早创建的一条
func matchTransition(tx *gorm.DB, workflowID, fromStepID, actionName string) (*workflow.WorkflowStepTransition, error) {
	var transitions []workflow.WorkflowStepTransition
	if err := tx.Where("workflow_id = ? AND from_step_id = ?", workflowID, fromStepID).
		Order("position ASC, created_at ASC").
		Find(&transitions).Error; err != nil {
		return nil, fmt.Errorf("查询流转失败: %w", err)
	}
	name := strings.TrimSpace(actionName)
	for i := range transitions {
		if strings.EqualFold(transitions[i].Action, name) {
			return &transitions[i], nil
		}
	}
	return nil, workflow.ErrNoMatchingTransition
}

// loadTask 加载任务并校验租户，跨租户访问表现为不存在
func loadTask(db *gorm.DB, tenantID, taskID string) (*workflow.Task, error) {
	var task workflow.Task
	if err := db.Where("id = ?", taskID).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, workflow.ErrTaskNotFound
		}
		return nil, fmt.Errorf("查询任务失败: %w", err)
	}
	if task.TenantID != tenantID {
		return nil, workflow.HideTenantMismatch(workflow.ErrTaskNotFound)
	}
	return &task, nil
}

// loadStep 加载属于该流程的步骤，不存在时返回 gorm.ErrRecordNotFound
func loadStep(db *gorm.DB, workflowID, stepID string) (*workflow.WorkflowStep, error) {
	var step workflow.WorkflowStep
	if err := db.Where("id = ? AND workflow_id = ?", stepID, workflowID).First(&step).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("查询步骤失败: %w", err)
	}
	return &step, nil
}

func (e *Engine) publishOutcome(out *actionOutcome, actorID string) {
	if e.publisher == nil {
		return
	}
	base := events.Event{
		TenantID:   out.task.TenantID,
		TaskID:     out.task.ID,
		TaskTitle:  out.task.Title,
		ActorID:    actorID,
		ActionName: out.action.ActionName,
		Priority:   string(out.task.Priority),
		OccurredAt: out.action.CreatedAt,
	}

	executed := base
	executed.Type = events.ActionExecuted
	executed.StepTaskID = out.completed.ID
	executed.StepID = out.fromStep.ID
	executed.StepName = out.fromStep.Name
	executed.RecipientID = out.task.CreatorID
	e.publisher.Publish(executed)

	switch {
	case out.task.Status == workflow.TaskStatusCompleted:
		completed := base
		completed.Type = events.TaskCompleted
		completed.StepID = out.toStep.ID
		completed.StepName = out.toStep.Name
		completed.RecipientID = out.task.CreatorID
		e.publisher.Publish(completed)
	case out.next != nil && out.next.AssignedUserID != nil:
		assigned := base
		assigned.Type = events.StepAssigned
		assigned.StepTaskID = out.next.ID
		assigned.StepID = out.toStep.ID
		assigned.StepName = out.toStep.Name
		assigned.RecipientID = *out.next.AssignedUserID
		assigned.Priority = string(out.next.Priority)
		e.publisher.Publish(assigned)
	}
}

// actionResult 动作执行结果的指标标签
func actionResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, workflow.ErrConcurrentModification):
		return "conflict"
	case errors.Is(err, workflow.ErrNotAssignee),
		errors.Is(err, workflow.ErrNoMatchingTransition),
		errors.Is(err, workflow.ErrTaskNotRunning),
		errors.Is(err, workflow.ErrNoCurrentStep),
		errors.Is(err, workflow.ErrTaskNotFound),
		errors.Is(err, workflow.ErrStepTaskNotFound),
		errors.Is(err, workflow.ErrStepTaskStateConflict):
		return "rejected"
	}
	return "error"
}
