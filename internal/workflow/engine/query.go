package engine

import (
	"context"
	"errors"
	"fmt"

	"processhub/internal/common"
	"processhub/internal/tenant"
	"processhub/internal/workflow"

	"gorm.io/gorm"
)

// PageResult 分页结果
type PageResult[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
}

// priorityOrder 按优先级从高到低排序
const priorityOrder = "CASE priority WHEN 'URGENT' THEN 4 WHEN 'HIGH' THEN 3 WHEN 'NORMAL' THEN 2 ELSE 1 END DESC"

// GetTask 获取任务详情
func (e *Engine) GetTask(ctx context.Context, tc tenant.TenantContext, taskID string) (*TaskView, error) {
	db := e.db.WithContext(ctx)
	task, err := loadTask(db, tc.TenantID, taskID)
	if err != nil {
		return nil, err
	}
	var step *workflow.WorkflowStep
	if task.CurrentStepID != nil {
		if step, err = loadStep(db, task.WorkflowID, *task.CurrentStepID); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return newTaskView(task, step), nil
}

// ListTasks 分页查询租户内的任务
func (e *Engine) ListTasks(ctx context.Context, tc tenant.TenantContext, req *ListTasksRequest) (*PageResult[TaskView], error) {
	base := common.NewBaseService(e.db.WithContext(ctx))
	query := base.DB.Model(&workflow.Task{}).Scopes(common.ByTenant(tc.TenantID))
	if req.ProjectID != "" {
		query = query.Where("project_id = ?", req.ProjectID)
	}
	if req.WorkflowID != "" {
		query = query.Where("workflow_id = ?", req.WorkflowID)
	}
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.Priority != "" {
		query = query.Where("priority = ?", req.Priority)
	}
	if req.CreatorID != "" {
		query = query.Where("creator_id = ?", req.CreatorID)
	}
	query = base.ApplyKeywordSearch(query, req.Keyword, []string{"title"})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("统计任务数量失败: %w", err)
	}
	var tasks []workflow.Task
	if err := query.Order("created_at DESC").Scopes(common.Paginate(req.PaginationRequest)).Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("查询任务列表失败: %w", err)
	}

	stepIDs := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if t.CurrentStepID != nil {
			stepIDs = append(stepIDs, *t.CurrentStepID)
		}
	}
	steps, err := stepsByID(base.DB, stepIDs)
	if err != nil {
		return nil, err
	}

	items := make([]TaskView, 0, len(tasks))
	for i := range tasks {
		var step *workflow.WorkflowStep
		if s, ok := steps[tasks[i].CurrentStep()]; ok {
			step = &s
		}
		items = append(items, *newTaskView(&tasks[i], step))
	}
	return &PageResult[TaskView]{Items: items, Total: total, Page: req.GetPage(), PageSize: req.GetPageSize()}, nil
}

// GetCurrentStepTask 获取任务当前步骤上的步骤任务
// 优先返回活动的步骤任务；任务已结束时返回当前步骤最近的一条
func (e *Engine) GetCurrentStepTask(ctx context.Context, tc tenant.TenantContext, taskID string) (*StepTaskView, error) {
	db := e.db.WithContext(ctx)
	task, err := loadTask(db, tc.TenantID, taskID)
	if err != nil {
		return nil, err
	}
	if task.CurrentStepID == nil {
		return nil, workflow.ErrNoCurrentStep
	}
	step, err := loadStep(db, task.WorkflowID, *task.CurrentStepID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, workflow.ErrNoCurrentStep
		}
		return nil, err
	}

	st, err := findActiveStepTask(db, task.ID, step.ID)
	if errors.Is(err, workflow.ErrStepTaskNotFound) {
		var latest workflow.StepTask
		err = db.Where("task_id = ? AND workflow_step_id = ?", task.ID, step.ID).
			Order("step_sequence DESC").
			First(&latest).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, workflow.ErrStepTaskNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("查询步骤任务失败: %w", err)
		}
		st = &latest
	} else if err != nil {
		return nil, err
	}

	view := newStepTaskView(st, step)
	view.TaskTitle = task.Title
	e.fillAssigneeNames(ctx, tc.TenantID, []*StepTaskView{&view})
	return &view, nil
}

// IsAssignee 当前用户是否为任务当前步骤的处理人，任务已结束时为 false
func (e *Engine) IsAssignee(ctx context.Context, tc tenant.TenantContext, taskID string) (bool, error) {
	db := e.db.WithContext(ctx)
	task, err := loadTask(db, tc.TenantID, taskID)
	if err != nil {
		return false, err
	}
	if task.Status != workflow.TaskStatusRunning || task.CurrentStepID == nil {
		return false, nil
	}
	step, err := loadStep(db, task.WorkflowID, *task.CurrentStepID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return e.resolver.IsAuthorized(db, task, step, tc.UserID)
}

// GetTaskActions 任务的动作审计记录，最新的在前
func (e *Engine) GetTaskActions(ctx context.Context, tc tenant.TenantContext, taskID string, req common.PaginationRequest) (*PageResult[ActionLogEntry], error) {
	db := e.db.WithContext(ctx)
	task, err := loadTask(db, tc.TenantID, taskID)
	if err != nil {
		return nil, err
	}

	query := db.Model(&workflow.StepTaskAction{}).Where("task_id = ?", task.ID)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("统计动作记录失败: %w", err)
	}
	var actions []workflow.StepTaskAction
	if err := query.Scopes(newestActionsFirst, common.Paginate(req)).Find(&actions).Error; err != nil {
		return nil, fmt.Errorf("查询动作记录失败: %w", err)
	}

	items, err := e.actionEntries(ctx, db, tc.TenantID, actions)
	if err != nil {
		return nil, err
	}
	return &PageResult[ActionLogEntry]{Items: items, Total: total, Page: req.GetPage(), PageSize: req.GetPageSize()}, nil
}

// ListStepTasks 任务的步骤时间线，按序号升序
func (e *Engine) ListStepTasks(ctx context.Context, tc tenant.TenantContext, taskID string) ([]StepTaskView, error) {
	db := e.db.WithContext(ctx)
	task, err := loadTask(db, tc.TenantID, taskID)
	if err != nil {
		return nil, err
	}
	var stepTasks []workflow.StepTask
	if err := db.Where("task_id = ?", task.ID).Order("step_sequence ASC").Find(&stepTasks).Error; err != nil {
		return nil, fmt.Errorf("查询步骤任务失败: %w", err)
	}
	views, err := e.stepTaskViews(ctx, db, tc.TenantID, stepTasks)
	if err != nil {
		return nil, err
	}
	for i := range views {
		views[i].TaskTitle = task.Title
	}
	return views, nil
}

// GetStepTaskDetail 步骤任务详情，包含该步骤上的动作、提交数据与文件
func (e *Engine) GetStepTaskDetail(ctx context.Context, tc tenant.TenantContext, stepTaskID string) (*StepTaskDetail, error) {
	db := e.db.WithContext(ctx)
	var st workflow.StepTask
	if err := db.Where("id = ?", stepTaskID).First(&st).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, workflow.ErrStepTaskNotFound
		}
		return nil, fmt.Errorf("查询步骤任务失败: %w", err)
	}
	if st.TenantID != tc.TenantID {
		return nil, workflow.HideTenantMismatch(workflow.ErrStepTaskNotFound)
	}

	views, err := e.stepTaskViews(ctx, db, tc.TenantID, []workflow.StepTask{st})
	if err != nil {
		return nil, err
	}
	detail := &StepTaskDetail{StepTaskView: views[0]}

	var actions []workflow.StepTaskAction
	if err := db.Where("step_task_id = ?", st.ID).Order("created_at ASC").Find(&actions).Error; err != nil {
		return nil, fmt.Errorf("查询动作记录失败: %w", err)
	}
	if detail.Actions, err = e.actionEntries(ctx, db, tc.TenantID, actions); err != nil {
		return nil, err
	}
	if err := db.Where("step_task_id = ?", st.ID).Order("created_at ASC").Find(&detail.Data).Error; err != nil {
		return nil, fmt.Errorf("查询表单数据失败: %w", err)
	}
	if err := db.Where("step_task_id = ?", st.ID).Order("created_at ASC").Find(&detail.Files).Error; err != nil {
		return nil, fmt.Errorf("查询文件记录失败: %w", err)
	}
	return detail, nil
}

// ListMyStepTasks 分配给当前用户的步骤任务（默认仅活动状态），高优先级、早开始的在前
func (e *Engine) ListMyStepTasks(ctx context.Context, tc tenant.TenantContext, req *ListMyStepTasksRequest) (*PageResult[StepTaskView], error) {
	db := e.db.WithContext(ctx)
	query := db.Model(&workflow.StepTask{}).
		Scopes(common.ByTenant(tc.TenantID)).
		Where("assigned_user_id = ?", tc.UserID)
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	} else {
		query = query.Where("status IN ?", workflow.ActiveStepTaskStatuses)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("统计待办数量失败: %w", err)
	}
	var stepTasks []workflow.StepTask
	if err := query.Order(priorityOrder).Order("begin_date ASC").
		Scopes(common.Paginate(req.PaginationRequest)).
		Find(&stepTasks).Error; err != nil {
		return nil, fmt.Errorf("查询待办失败: %w", err)
	}

	items, err := e.stepTaskViews(ctx, db, tc.TenantID, stepTasks)
	if err != nil {
		return nil, err
	}
	taskIDs := make([]string, 0, len(stepTasks))
	for _, st := range stepTasks {
		taskIDs = append(taskIDs, st.TaskID)
	}
	titles, err := taskTitles(db, taskIDs)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].TaskTitle = titles[items[i].TaskID]
	}
	return &PageResult[StepTaskView]{Items: items, Total: total, Page: req.GetPage(), PageSize: req.GetPageSize()}, nil
}

// ListMyActivity 与当前用户相关的最近动作：本人执行的，以及本人曾处理过的任务上的全部动作
func (e *Engine) ListMyActivity(ctx context.Context, tc tenant.TenantContext, req common.PaginationRequest) (*PageResult[ActionLogEntry], error) {
	db := e.db.WithContext(ctx)
	involved := db.Model(&workflow.StepTask{}).Select("1").
		Where("step_tasks.task_id = step_task_actions.task_id AND step_tasks.assigned_user_id = ?", tc.UserID)
	query := db.Model(&workflow.StepTaskAction{}).
		Where("step_task_actions.tenant_id = ?", tc.TenantID).
		Where("step_task_actions.actor_id = ? OR EXISTS (?)", tc.UserID, involved)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("统计动作记录失败: %w", err)
	}
	var actions []workflow.StepTaskAction
	if err := query.Scopes(newestActionsFirst, common.Paginate(req)).Find(&actions).Error; err != nil {
		return nil, fmt.Errorf("查询动作记录失败: %w", err)
	}
	items, err := e.actionEntries(ctx, db, tc.TenantID, actions)
	if err != nil {
		return nil, err
	}
	return &PageResult[ActionLogEntry]{Items: items, Total: total, Page: req.GetPage(), PageSize: req.GetPageSize()}, nil
}

// newestActionsFirst 最新的动作在前；时间相同时按步骤任务序号倒序，保证顺序稳定
func newestActionsFirst(db *gorm.DB) *gorm.DB {
	return db.Order("step_task_actions.created_at DESC").
		Order("(SELECT st.step_sequence FROM step_tasks st WHERE st.id = step_task_actions.step_task_id) DESC").
		Order("step_task_actions.id DESC")
}

func (e *Engine) stepTaskViews(ctx context.Context, db *gorm.DB, tenantID string, stepTasks []workflow.StepTask) ([]StepTaskView, error) {
	ids := make([]string, 0, len(stepTasks))
	for _, st := range stepTasks {
		ids = append(ids, st.WorkflowStepID)
	}
	steps, err := stepsByID(db, ids)
	if err != nil {
		return nil, err
	}

	views := make([]StepTaskView, 0, len(stepTasks))
	for i := range stepTasks {
		var step *workflow.WorkflowStep
		if s, ok := steps[stepTasks[i].WorkflowStepID]; ok {
			step = &s
		}
		views = append(views, newStepTaskView(&stepTasks[i], step))
	}
	ptrs := make([]*StepTaskView, 0, len(views))
	for i := range views {
		ptrs = append(ptrs, &views[i])
	}
	e.fillAssigneeNames(ctx, tenantID, ptrs)
	return views, nil
}

func (e *Engine) fillAssigneeNames(ctx context.Context, tenantID string, views []*StepTaskView) {
	if e.users == nil {
		return
	}
	for _, v := range views {
		if v.AssignedUserID != "" {
			v.AssigneeName = e.users.DisplayName(ctx, tenantID, v.AssignedUserID)
		}
	}
}

func (e *Engine) actionEntries(ctx context.Context, db *gorm.DB, tenantID string, actions []workflow.StepTaskAction) ([]ActionLogEntry, error) {
	ids := make([]string, 0, len(actions)*2)
	for _, a := range actions {
		ids = append(ids, a.FromStepID)
		if a.ToStepID != nil {
			ids = append(ids, *a.ToStepID)
		}
	}
	steps, err := stepsByID(db, ids)
	if err != nil {
		return nil, err
	}

	entries := make([]ActionLogEntry, 0, len(actions))
	for _, a := range actions {
		entry := ActionLogEntry{
			ID:           a.ID,
			TaskID:       a.TaskID,
			StepTaskID:   a.StepTaskID,
			FromStepID:   a.FromStepID,
			FromStepName: steps[a.FromStepID].Name,
			ActionName:   a.ActionName,
			ActorID:      a.ActorID,
			Comment:      a.Comment,
			CreatedAt:    a.CreatedAt,
		}
		if a.ToStepID != nil {
			entry.ToStepID = *a.ToStepID
			entry.ToStepName = steps[*a.ToStepID].Name
		}
		if e.users != nil {
			entry.ActorName = e.users.DisplayName(ctx, tenantID, a.ActorID)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func stepsByID(db *gorm.DB, ids []string) (map[string]workflow.WorkflowStep, error) {
	out := make(map[string]workflow.WorkflowStep, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var steps []workflow.WorkflowStep
	if err := db.Where("id IN ?", ids).Find(&steps).Error; err != nil {
		return nil, fmt.Errorf("查询步骤失败: %w", err)
	}
	for _, s := range steps {
		out[s.ID] = s
	}
	return out, nil
}

func taskTitles(db *gorm.DB, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var tasks []workflow.Task
	if err := db.Select("id", "title").Where("id IN ?", ids).Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("查询任务标题失败: %w", err)
	}
	for _, t := range tasks {
		out[t.ID] = t.Title
	}
	return out, nil
}

func newTaskView(task *workflow.Task, current *workflow.WorkflowStep) *TaskView {
	v := &TaskView{
		ID:            task.ID,
		ProjectID:     task.ProjectID,
		WorkflowID:    task.WorkflowID,
		Title:         task.Title,
		Description:   task.Description,
		Status:        task.Status,
		Priority:      task.Priority,
		CurrentStepID: task.CurrentStep(),
		CreatorID:     task.CreatorID,
		BeginDate:     task.BeginDate,
		EndDate:       task.EndDate,
		CompletedAt:   task.CompletedAt,
		Version:       task.Version,
		CreatedAt:     task.CreatedAt,
		UpdatedAt:     task.UpdatedAt,
	}
	if current != nil {
		v.CurrentStepName = current.Name
		v.CurrentStepType = current.Type
	}
	return v
}

func newStepTaskView(st *workflow.StepTask, step *workflow.WorkflowStep) StepTaskView {
	v := StepTaskView{
		ID:             st.ID,
		TaskID:         st.TaskID,
		WorkflowStepID: st.WorkflowStepID,
		StepSequence:   st.StepSequence,
		Iteration:      st.Iteration,
		Status:         st.Status,
		Priority:       st.Priority,
		AssignedUserID: st.Assignee(),
		BeginDate:      st.BeginDate,
		EndDate:        st.EndDate,
		Note:           st.Note,
	}
	if step != nil {
		v.StepName = step.Name
		v.StepType = step.Type
	}
	return v
}
