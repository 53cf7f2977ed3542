package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"processhub/internal/common"
	"processhub/internal/tenant"
	"processhub/internal/workflow"
	"processhub/internal/workflow/events"
	"processhub/internal/workflow/state"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	tenantID    = "11111111-1111-1111-1111-111111111111"
	otherTenant = "22222222-2222-2222-2222-222222222222"
	creatorID   = "u-creator"
	workerID    = "u-worker"
	reviewerID  = "u-reviewer"
	strangerID  = "u-stranger"
)

func as(userID string) tenant.TenantContext {
	return tenant.TenantContext{TenantID: tenantID, UserID: userID}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(evt events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) ofType(t events.Type) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type heldLocker struct{}

func (heldLocker) Acquire(context.Context, string) (func(), error) {
	return nil, state.ErrLockHeld
}

type fixture struct {
	db        *gorm.DB
	engine    *Engine
	workflows *workflow.WorkflowService
	published *recordingPublisher
	detail    *workflow.WorkflowDetail
	projectID string
	steps     map[string]workflow.WorkflowStepView
}

// tickingClock 每次调用前进一秒，保证审计记录时间严格递增
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:engine_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err, "打开 sqlite 失败")
	models := append(workflow.AllModels(), &tenant.User{}, &tenant.Project{})
	require.NoError(t, db.AutoMigrate(models...), "迁移 schema 失败")

	for _, u := range []tenant.User{
		{ID: creatorID, TenantID: tenantID, Email: "creator@example.com", Username: "creator", FirstName: "Chen"},
		{ID: workerID, TenantID: tenantID, Email: "worker@example.com", Username: "worker", FirstName: "Wang"},
		{ID: reviewerID, TenantID: tenantID, Email: "reviewer@example.com", Username: "reviewer", FirstName: "Li"},
		{ID: strangerID, TenantID: otherTenant, Email: "x@example.com", Username: "x"},
	} {
		require.NoError(t, db.Create(&u).Error)
	}
	project := tenant.Project{ID: "p-1", TenantID: tenantID, Name: "财务", Status: tenant.ProjectStatusDraft}
	require.NoError(t, db.Create(&project).Error)

	users := tenant.NewDirectory(db, tenant.WithDirectoryLogger(zap.NewNop()))
	workflows := workflow.NewWorkflowService(db, workflow.WithUserDirectory(users), workflow.WithServiceLogger(zap.NewNop()))
	detail, err := workflows.CreateWorkflow(context.Background(), as(creatorID), &workflow.CreateWorkflowRequest{
		Name: "报销",
		Steps: []workflow.StepInput{
			{ClientID: "s", Name: "提交", Type: workflow.StepTypeStart},
			{ClientID: "w", Name: "处理", Type: workflow.StepTypeUserTask},
			{ClientID: "r", Name: "审核", Type: workflow.StepTypeReview, AssigneeType: workflow.AssigneeFixed, AssigneeValue: reviewerID},
			{ClientID: "e", Name: "完成", Type: workflow.StepTypeEnd},
		},
		Transitions: []workflow.TransitionInput{
			{From: "s", To: "w", Action: "submit"},
			{From: "w", To: "r", Action: "done"},
			{From: "r", To: "e", Action: "approve"},
			{From: "r", To: "w", Action: "reject"},
		},
	})
	require.NoError(t, err)

	published := &recordingPublisher{}
	base := []Option{
		WithUserDirectory(users),
		WithPublisher(published),
		WithLogger(zap.NewNop()),
		WithClock(tickingClock()),
	}
	f := &fixture{
		db:        db,
		engine:    New(db, append(base, opts...)...),
		workflows: workflows,
		published: published,
		detail:    detail,
		projectID: project.ID,
		steps:     make(map[string]workflow.WorkflowStepView),
	}
	for _, s := range detail.Steps {
		f.steps[s.Name] = s
	}
	return f
}

func (f *fixture) createTask(t *testing.T, priority workflow.Priority) *TaskView {
	t.Helper()
	view, err := f.engine.CreateTask(context.Background(), as(creatorID), &CreateTaskRequest{
		ProjectID:  f.projectID,
		WorkflowID: f.detail.ID,
		Title:      "差旅报销",
		Priority:   priority,
		StepAssignments: []StepAssignmentInput{
			{WorkflowStepID: f.steps["处理"].ID, AssigneeID: workerID, Priority: workflow.PriorityHigh},
			{WorkflowStepID: f.steps["审核"].ID, Priority: workflow.PriorityUrgent},
		},
	})
	require.NoError(t, err)
	return view
}

func (f *fixture) stepTasks(t *testing.T, taskID string) []workflow.StepTask {
	t.Helper()
	var out []workflow.StepTask
	require.NoError(t, f.db.Where("task_id = ?", taskID).Order("step_sequence ASC").Find(&out).Error)
	return out
}

func (f *fixture) count(t *testing.T, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Where(where, args...).Count(&n).Error)
	return n
}

func (f *fixture) execute(t *testing.T, userID, taskID, action string) *TaskView {
	t.Helper()
	view, err := f.engine.ExecuteAction(context.Background(), as(userID), taskID, &ExecuteActionRequest{ActionName: action})
	require.NoError(t, err, "%s 执行 %s 失败", userID, action)
	return view
}

func TestCreateTaskSeedsStartStep(t *testing.T) {
	f := newFixture(t)
	view := f.createTask(t, "")

	assert.Equal(t, workflow.TaskStatusRunning, view.Status)
	assert.Equal(t, workflow.PriorityNormal, view.Priority)
	assert.Equal(t, f.steps["提交"].ID, view.CurrentStepID)
	assert.Equal(t, workflow.StepTypeStart, view.CurrentStepType)
	assert.Equal(t, int64(1), view.Version)

	sts := f.stepTasks(t, view.ID)
	require.Len(t, sts, 1)
	assert.Equal(t, 0, sts[0].StepSequence)
	assert.Equal(t, 1, sts[0].Iteration)
	assert.Equal(t, workflow.StepTaskInProgress, sts[0].Status)
	assert.Equal(t, creatorID, sts[0].Assignee())

	assert.Equal(t, int64(2), f.count(t, &workflow.TaskStepAssignmentConfig{}, "task_id = ?", view.ID))

	var project tenant.Project
	require.NoError(t, f.db.First(&project, "id = ?", f.projectID).Error)
	assert.Equal(t, tenant.ProjectStatusActive, project.Status)

	assigned := f.published.ofType(events.StepAssigned)
	require.Len(t, assigned, 1)
	assert.Equal(t, creatorID, assigned[0].RecipientID)

	err := f.workflows.DeleteWorkflow(context.Background(), as(creatorID), f.detail.ID)
	assert.ErrorIs(t, err, workflow.ErrWorkflowInUse)
}

func TestExecuteActionRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.createTask(t, workflow.PriorityNormal)

	view := f.execute(t, creatorID, task.ID, "SUBMIT")
	assert.Equal(t, "处理", view.CurrentStepName)
	assert.Equal(t, int64(2), view.Version)
	assert.Zero(t, f.count(t, &workflow.TaskStepAssignmentConfig{}, "task_id = ? AND workflow_step_id = ?", task.ID, f.steps["处理"].ID))

	data := json.RawMessage(`{"amount": 1280}`)
	view, err := f.engine.ExecuteAction(ctx, as(workerID), task.ID, &ExecuteActionRequest{
		ActionName: "done",
		Comment:    "票据已核对",
		DataBody:   data,
		Files:      []FileInput{{FileName: "invoice.pdf", ObjectName: "tenant/invoice.pdf", FileSize: 2048}},
	})
	require.NoError(t, err)
	assert.Equal(t, "审核", view.CurrentStepName)

	f.execute(t, reviewerID, task.ID, "reject")
	f.execute(t, workerID, task.ID, "done")
	view = f.execute(t, reviewerID, task.ID, "Approve")

	assert.Equal(t, workflow.TaskStatusCompleted, view.Status)
	assert.Equal(t, f.steps["完成"].ID, view.CurrentStepID)
	assert.Equal(t, int64(6), view.Version)
	assert.NotNil(t, view.CompletedAt)

	sts := f.stepTasks(t, task.ID)
	require.Len(t, sts, 6)
	type row struct {
		step      string
		iteration int
		status    workflow.StepTaskStatus
		assignee  string
		priority  workflow.Priority
	}
	names := map[string]string{}
	for name, s := range f.steps {
		names[s.ID] = name
	}
	got := make([]row, 0, len(sts))
	for i, st := range sts {
		assert.Equal(t, i, st.StepSequence)
		got = append(got, row{names[st.WorkflowStepID], st.Iteration, st.Status, st.Assignee(), st.Priority})
	}
	assert.Equal(t, []row{
		{"提交", 1, workflow.StepTaskCompleted, creatorID, workflow.PriorityNormal},
		{"处理", 1, workflow.StepTaskCompleted, workerID, workflow.PriorityHigh},
		{"审核", 1, workflow.StepTaskCompleted, reviewerID, workflow.PriorityUrgent},
		{"处理", 2, workflow.StepTaskCompleted, workerID, workflow.PriorityNormal},
		{"审核", 2, workflow.StepTaskCompleted, reviewerID, workflow.PriorityNormal},
		{"完成", 1, workflow.StepTaskCompleted, "", workflow.PriorityNormal},
	}, got)
	terminal := sts[5]
	require.NotNil(t, terminal.EndDate)
	assert.True(t, terminal.BeginDate.Equal(*terminal.EndDate))
	assert.Equal(t, "票据已核对", sts[1].Note)

	actions, err := f.engine.GetTaskActions(ctx, as(creatorID), task.ID, common.PaginationRequest{})
	require.NoError(t, err)
	require.Equal(t, int64(5), actions.Total)
	var labels []string
	for _, a := range actions.Items {
		labels = append(labels, a.ActionName)
	}
	assert.Equal(t, []string{"approve", "done", "reject", "done", "submit"}, labels)
	assert.Equal(t, "审核", actions.Items[0].FromStepName)
	assert.Equal(t, "完成", actions.Items[0].ToStepName)
	assert.Equal(t, "Li", actions.Items[0].ActorName)

	detail, err := f.engine.GetStepTaskDetail(ctx, as(creatorID), sts[1].ID)
	require.NoError(t, err)
	require.Len(t, detail.Actions, 1)
	require.Len(t, detail.Data, 1)
	assert.JSONEq(t, `{"amount": 1280}`, string(detail.Data[0].DataBody))
	assert.Equal(t, "JSON", detail.Data[0].DataType)
	require.Len(t, detail.Files, 1)
	assert.Equal(t, workerID, detail.Files[0].UploadedBy)

	assert.Len(t, f.published.ofType(events.ActionExecuted), 5)
	assert.Len(t, f.published.ofType(events.TaskCompleted), 1)
	// 开始步骤 + 4 次流转到非结束步骤
	assert.Len(t, f.published.ofType(events.StepAssigned), 5)

	_, err = f.engine.ExecuteAction(ctx, as(reviewerID), task.ID, &ExecuteActionRequest{ActionName: "approve"})
	assert.ErrorIs(t, err, workflow.ErrTaskNotRunning)
}

func TestExecuteActionFailuresLeaveStateUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.createTask(t, workflow.PriorityNormal)

	var before workflow.Task
	require.NoError(t, f.db.First(&before, "id = ?", task.ID).Error)

	cases := []struct {
		name   string
		userID string
		action string
		want   error
		status int
	}{
		{"unknown action", creatorID, "escalate", workflow.ErrNoMatchingTransition, 404},
		{"action of another step", creatorID, "approve", workflow.ErrNoMatchingTransition, 404},
		{"not assignee", workerID, "submit", workflow.ErrNotAssignee, 403},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.ExecuteAction(ctx, as(tc.userID), task.ID, &ExecuteActionRequest{ActionName: tc.action})
			require.ErrorIs(t, err, tc.want)
			var bizErr *common.BusinessError
			require.ErrorAs(t, err, &bizErr)
			assert.Equal(t, tc.status, common.HTTPStatus(bizErr.Code))
		})
	}

	var after workflow.Task
	require.NoError(t, f.db.First(&after, "id = ?", task.ID).Error)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, before.CurrentStep(), after.CurrentStep())
	assert.Equal(t, before.Status, after.Status)

	sts := f.stepTasks(t, task.ID)
	require.Len(t, sts, 1)
	assert.Equal(t, workflow.StepTaskInProgress, sts[0].Status)
	assert.Zero(t, f.count(t, &workflow.StepTaskAction{}, "task_id = ?", task.ID))
}

func TestTenantIsolation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.createTask(t, workflow.PriorityNormal)

	outsider := tenant.TenantContext{TenantID: otherTenant, UserID: creatorID}

	_, err := f.engine.ExecuteAction(ctx, outsider, task.ID, &ExecuteActionRequest{ActionName: "submit"})
	assert.ErrorIs(t, err, workflow.ErrTaskNotFound)
	assert.ErrorIs(t, err, workflow.ErrTenantMismatch)

	_, err = f.engine.GetTask(ctx, outsider, task.ID)
	assert.ErrorIs(t, err, workflow.ErrTaskNotFound)
	_, err = f.engine.GetTaskActions(ctx, outsider, task.ID, common.PaginationRequest{})
	assert.ErrorIs(t, err, workflow.ErrTaskNotFound)
	_, err = f.engine.IsAssignee(ctx, outsider, task.ID)
	assert.ErrorIs(t, err, workflow.ErrTaskNotFound)
	_, err = f.engine.GetCurrentStepTask(ctx, outsider, task.ID)
	assert.ErrorIs(t, err, workflow.ErrTaskNotFound)

	sts := f.stepTasks(t, task.ID)
	_, err = f.engine.GetStepTaskDetail(ctx, outsider, sts[0].ID)
	assert.ErrorIs(t, err, workflow.ErrStepTaskNotFound)

	list, err := f.engine.ListTasks(ctx, outsider, &ListTasksRequest{})
	require.NoError(t, err)
	assert.Zero(t, list.Total)

	_, err = f.engine.CreateTask(ctx, outsider, &CreateTaskRequest{ProjectID: f.projectID, WorkflowID: f.detail.ID, Title: "越权"})
	assert.ErrorIs(t, err, workflow.ErrProjectNotFound)

	_, err = f.engine.ExecuteAction(ctx, as(creatorID), "missing", &ExecuteActionRequest{ActionName: "submit"})
	assert.ErrorIs(t, err, workflow.ErrTaskNotFound)
	assert.NotErrorIs(t, err, workflow.ErrTenantMismatch)
}

func TestStaleVersionIsConcurrentModification(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.createTask(t, workflow.PriorityNormal)

	err := f.db.Transaction(func(tx *gorm.DB) error {
		loaded, err := loadTask(tx, tenantID, task.ID)
		require.NoError(t, err)
		// 模拟另一请求在读取之后提交了推进
		require.NoError(t, tx.Model(&workflow.Task{}).Where("id = ?", task.ID).
			Update("version", gorm.Expr("version + 1")).Error)
		_, err = f.engine.applyAction(ctx, tx, as(creatorID), loaded, &ExecuteActionRequest{ActionName: "submit"})
		return err
	})
	require.ErrorIs(t, err, workflow.ErrConcurrentModification)

	got, err := f.engine.GetTask(ctx, as(creatorID), task.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, f.steps["提交"].ID, got.CurrentStepID)
	assert.Len(t, f.stepTasks(t, task.ID), 1)
	assert.Zero(t, f.count(t, &workflow.StepTaskAction{}, "task_id = ?", task.ID))
}

func TestHeldLockIsConcurrentModification(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithLocker(heldLocker{}))
	task := f.createTask(t, workflow.PriorityNormal)

	_, err := f.engine.ExecuteAction(ctx, as(creatorID), task.ID, &ExecuteActionRequest{ActionName: "submit"})
	assert.ErrorIs(t, err, workflow.ErrConcurrentModification)
	assert.Zero(t, f.count(t, &workflow.StepTaskAction{}, "task_id = ?", task.ID))
}

func TestSerializedDoubleSubmit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.createTask(t, workflow.PriorityNormal)

	f.execute(t, creatorID, task.ID, "submit")
	_, err := f.engine.ExecuteAction(ctx, as(creatorID), task.ID, &ExecuteActionRequest{ActionName: "submit"})
	assert.ErrorIs(t, err, workflow.ErrNotAssignee)
	assert.Equal(t, int64(1), f.count(t, &workflow.StepTaskAction{}, "task_id = ?", task.ID))
}

func TestCreateTaskValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	base := func() *CreateTaskRequest {
		return &CreateTaskRequest{ProjectID: f.projectID, WorkflowID: f.detail.ID, Title: "报销"}
	}

	req := base()
	req.Title = "  "
	_, err := f.engine.CreateTask(ctx, as(creatorID), req)
	assert.ErrorIs(t, err, workflow.ErrInvalidTaskRequest)

	req = base()
	req.Priority = "CRITICAL"
	_, err = f.engine.CreateTask(ctx, as(creatorID), req)
	assert.ErrorIs(t, err, workflow.ErrInvalidTaskRequest)

	req = base()
	req.StepAssignments = []StepAssignmentInput{{WorkflowStepID: f.steps["处理"].ID}}
	_, err = f.engine.CreateTask(ctx, as(creatorID), req)
	assert.ErrorIs(t, err, workflow.ErrInvalidAssignment)

	req = base()
	req.StepAssignments = []StepAssignmentInput{{WorkflowStepID: f.steps["处理"].ID, AssigneeID: strangerID}}
	_, err = f.engine.CreateTask(ctx, as(creatorID), req)
	assert.ErrorIs(t, err, workflow.ErrInvalidAssignment)

	req = base()
	req.StepAssignments = []StepAssignmentInput{{WorkflowStepID: f.steps["审核"].ID, AssigneeID: workerID}}
	_, err = f.engine.CreateTask(ctx, as(creatorID), req)
	assert.ErrorIs(t, err, workflow.ErrInvalidAssignment)

	req = base()
	req.StepAssignments = []StepAssignmentInput{{WorkflowStepID: "not-a-step", AssigneeID: workerID}}
	_, err = f.engine.CreateTask(ctx, as(creatorID), req)
	assert.ErrorIs(t, err, workflow.ErrInvalidAssignment)

	req = base()
	req.ProjectID = "missing"
	_, err = f.engine.CreateTask(ctx, as(creatorID), req)
	assert.ErrorIs(t, err, workflow.ErrProjectNotFound)

	require.NoError(t, f.db.Model(&workflow.Workflow{}).Where("id = ?", f.detail.ID).Update("is_active", false).Error)
	_, err = f.engine.CreateTask(ctx, as(creatorID), base())
	assert.ErrorIs(t, err, workflow.ErrWorkflowInactive)

	assert.Zero(t, f.count(t, &workflow.Task{}, "1 = 1"))
}

func TestUnassignedDynamicStepBlocksEveryone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	view, err := f.engine.CreateTask(ctx, as(creatorID), &CreateTaskRequest{
		ProjectID: f.projectID, WorkflowID: f.detail.ID, Title: "无人处理",
	})
	require.NoError(t, err)

	f.execute(t, creatorID, view.ID, "submit")
	current, err := f.engine.GetCurrentStepTask(ctx, as(creatorID), view.ID)
	require.NoError(t, err)
	assert.Empty(t, current.AssignedUserID)
	assert.Equal(t, workflow.StepTaskPending, current.Status)

	for _, user := range []string{creatorID, workerID, reviewerID} {
		_, err := f.engine.ExecuteAction(ctx, as(user), view.ID, &ExecuteActionRequest{ActionName: "done"})
		assert.ErrorIs(t, err, workflow.ErrNotAssignee, user)
	}
}

func TestStartStepTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.createTask(t, workflow.PriorityNormal)
	f.execute(t, creatorID, task.ID, "submit")

	_, err := f.engine.StartStepTask(ctx, as(reviewerID), task.ID)
	assert.ErrorIs(t, err, workflow.ErrNotAssignee)

	view, err := f.engine.StartStepTask(ctx, as(workerID), task.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StepTaskInProgress, view.Status)
	assert.Equal(t, "处理", view.StepName)

	_, err = f.engine.StartStepTask(ctx, as(workerID), task.ID)
	assert.ErrorIs(t, err, workflow.ErrStepTaskStateConflict)

	f.execute(t, workerID, task.ID, "done")
}

func TestIsAssigneeAndCurrentStepTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.createTask(t, workflow.PriorityNormal)

	ok, err := f.engine.IsAssignee(ctx, as(creatorID), task.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.engine.IsAssignee(ctx, as(workerID), task.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	f.execute(t, creatorID, task.ID, "submit")
	f.execute(t, workerID, task.ID, "done")

	// 固定处理人无需步骤任务分配即可处理
	ok, err = f.engine.IsAssignee(ctx, as(reviewerID), task.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	current, err := f.engine.GetCurrentStepTask(ctx, as(workerID), task.ID)
	require.NoError(t, err)
	assert.Equal(t, "审核", current.StepName)
	assert.Equal(t, reviewerID, current.AssignedUserID)
	assert.Equal(t, "Li", current.AssigneeName)
	assert.Equal(t, "差旅报销", current.TaskTitle)

	f.execute(t, reviewerID, task.ID, "approve")
	ok, err = f.engine.IsAssignee(ctx, as(reviewerID), task.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	current, err = f.engine.GetCurrentStepTask(ctx, as(creatorID), task.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StepTypeEnd, current.StepType)
	assert.Equal(t, workflow.StepTaskCompleted, current.Status)
}

func TestCancelAndDeleteTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.createTask(t, workflow.PriorityNormal)
	f.execute(t, creatorID, task.ID, "submit")

	assert.ErrorIs(t, f.engine.DeleteTask(ctx, as(creatorID), task.ID), workflow.ErrTaskNotDeletable)

	_, err := f.engine.CancelTask(ctx, as(workerID), task.ID, "")
	assert.ErrorIs(t, err, workflow.ErrNotTaskOwner)

	view, err := f.engine.CancelTask(ctx, as(creatorID), task.ID, "预算取消")
	require.NoError(t, err)
	assert.Equal(t, workflow.TaskStatusCancelled, view.Status)
	assert.Equal(t, int64(3), view.Version)

	sts := f.stepTasks(t, task.ID)
	require.Len(t, sts, 2)
	assert.Equal(t, workflow.StepTaskCancelled, sts[1].Status)
	assert.Contains(t, sts[1].Note, "预算取消")
	assert.Len(t, f.published.ofType(events.TaskCancelled), 1)

	_, err = f.engine.CancelTask(ctx, as(creatorID), task.ID, "")
	assert.ErrorIs(t, err, workflow.ErrTaskStateTransitionDenied)
	_, err = f.engine.ExecuteAction(ctx, as(workerID), task.ID, &ExecuteActionRequest{ActionName: "done"})
	assert.ErrorIs(t, err, workflow.ErrTaskNotRunning)

	require.NoError(t, f.engine.DeleteTask(ctx, as(creatorID), task.ID))
	assert.Zero(t, f.count(t, &workflow.Task{}, "id = ?", task.ID))
	assert.Zero(t, f.count(t, &workflow.StepTask{}, "task_id = ?", task.ID))
	assert.Zero(t, f.count(t, &workflow.StepTaskAction{}, "task_id = ?", task.ID))
	assert.Zero(t, f.count(t, &workflow.TaskStepAssignmentConfig{}, "task_id = ?", task.ID))

	// 任务删除后流程模板可以再次修改
	require.NoError(t, f.workflows.DeleteWorkflow(ctx, as(creatorID), f.detail.ID))
}

func TestListQueries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	low := f.createTask(t, workflow.PriorityLow)
	urgent := f.createTask(t, workflow.PriorityUrgent)
	f.execute(t, creatorID, low.ID, "submit")
	f.execute(t, creatorID, urgent.ID, "submit")
	f.execute(t, workerID, urgent.ID, "done")

	mine, err := f.engine.ListMyStepTasks(ctx, as(creatorID), &ListMyStepTasksRequest{})
	require.NoError(t, err)
	assert.Zero(t, mine.Total)

	third := f.createTask(t, workflow.PriorityNormal)
	mine, err = f.engine.ListMyStepTasks(ctx, as(creatorID), &ListMyStepTasksRequest{})
	require.NoError(t, err)
	require.Equal(t, int64(1), mine.Total)
	assert.Equal(t, third.ID, mine.Items[0].TaskID)

	queue, err := f.engine.ListMyStepTasks(ctx, as(reviewerID), &ListMyStepTasksRequest{})
	require.NoError(t, err)
	require.Len(t, queue.Items, 1)
	assert.Equal(t, workflow.PriorityUrgent, queue.Items[0].Priority)
	assert.Equal(t, "差旅报销", queue.Items[0].TaskTitle)

	// 把 low 任务的待办降为 LOW，urgent 任务退回后的待办为 NORMAL
	require.NoError(t, f.db.Model(&workflow.StepTask{}).
		Where("task_id = ? AND status = ?", low.ID, workflow.StepTaskPending).
		Update("priority", workflow.PriorityLow).Error)
	f.execute(t, reviewerID, urgent.ID, "reject")
	worker, err := f.engine.ListMyStepTasks(ctx, as(workerID), &ListMyStepTasksRequest{})
	require.NoError(t, err)
	require.Len(t, worker.Items, 2)
	assert.Equal(t, urgent.ID, worker.Items[0].TaskID)
	assert.Equal(t, low.ID, worker.Items[1].TaskID)

	// 创建人处理过三个任务的开始步骤，其中两个任务上已有动作
	activity, err := f.engine.ListMyActivity(ctx, as(creatorID), common.PaginationRequest{PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(4), activity.Total)
	require.Len(t, activity.Items, 1)
	assert.Equal(t, urgent.ID, activity.Items[0].TaskID)
	assert.Equal(t, "reject", activity.Items[0].ActionName)

	timeline, err := f.engine.ListStepTasks(ctx, as(creatorID), urgent.ID)
	require.NoError(t, err)
	require.Len(t, timeline, 4)
	assert.Equal(t, []string{"提交", "处理", "审核", "处理"},
		[]string{timeline[0].StepName, timeline[1].StepName, timeline[2].StepName, timeline[3].StepName})

	tasks, err := f.engine.ListTasks(ctx, as(creatorID), &ListTasksRequest{Priority: workflow.PriorityUrgent})
	require.NoError(t, err)
	require.Equal(t, int64(1), tasks.Total)
	assert.Equal(t, "处理", tasks.Items[0].CurrentStepName)
}

func TestCreateTaskPreassignedStartStep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	view, err := f.engine.CreateTask(ctx, as(creatorID), &CreateTaskRequest{
		ProjectID:  f.projectID,
		WorkflowID: f.detail.ID,
		Title:      "代填报销",
		StepAssignments: []StepAssignmentInput{
			{WorkflowStepID: f.steps["提交"].ID, AssigneeID: workerID, Priority: workflow.PriorityHigh},
			{WorkflowStepID: f.steps["处理"].ID, AssigneeID: workerID},
		},
	})
	require.NoError(t, err)

	sts := f.stepTasks(t, view.ID)
	require.Len(t, sts, 1)
	assert.Equal(t, workerID, sts[0].Assignee())
	assert.Equal(t, workflow.PriorityHigh, sts[0].Priority)
	assert.Zero(t, f.count(t, &workflow.TaskStepAssignmentConfig{}, "task_id = ? AND workflow_step_id = ?", view.ID, f.steps["提交"].ID))

	assigned := f.published.ofType(events.StepAssigned)
	require.Len(t, assigned, 1)
	assert.Equal(t, workerID, assigned[0].RecipientID)

	_, err = f.engine.ExecuteAction(ctx, as(creatorID), view.ID, &ExecuteActionRequest{ActionName: "submit"})
	assert.ErrorIs(t, err, workflow.ErrNotAssignee)
	view = f.execute(t, workerID, view.ID, "submit")
	assert.Equal(t, "处理", view.CurrentStepName)
}

func TestUpdateTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.createTask(t, workflow.PriorityNormal)

	other := tenant.Project{ID: "p-2", TenantID: tenantID, Name: "行政", Status: tenant.ProjectStatusDraft}
	foreign := tenant.Project{ID: "p-x", TenantID: otherTenant, Name: "外部"}
	require.NoError(t, f.db.Create(&other).Error)
	require.NoError(t, f.db.Create(&foreign).Error)

	title := "差旅报销（三月）"
	priority := workflow.Priority("urgent")
	view, err := f.engine.UpdateTask(ctx, as(creatorID), task.ID, &UpdateTaskRequest{
		Title:     &title,
		Priority:  &priority,
		ProjectID: &other.ID,
		Version:   1,
	})
	require.NoError(t, err)
	assert.Equal(t, title, view.Title)
	assert.Equal(t, workflow.PriorityUrgent, view.Priority)
	assert.Equal(t, other.ID, view.ProjectID)
	assert.Equal(t, int64(2), view.Version)
	assert.Equal(t, "提交", view.CurrentStepName)

	var project tenant.Project
	require.NoError(t, f.db.First(&project, "id = ?", other.ID).Error)
	assert.Equal(t, tenant.ProjectStatusActive, project.Status)

	_, err = f.engine.UpdateTask(ctx, as(creatorID), task.ID, &UpdateTaskRequest{Title: &title, Version: 1})
	assert.ErrorIs(t, err, workflow.ErrConcurrentModification)

	_, err = f.engine.UpdateTask(ctx, as(creatorID), task.ID, &UpdateTaskRequest{ProjectID: &foreign.ID})
	assert.ErrorIs(t, err, workflow.ErrProjectNotFound)

	begin := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	end := begin.Add(-24 * time.Hour)
	_, err = f.engine.UpdateTask(ctx, as(creatorID), task.ID, &UpdateTaskRequest{BeginDate: &begin, EndDate: &end})
	assert.ErrorIs(t, err, workflow.ErrInvalidTaskRequest)

	blank := "  "
	_, err = f.engine.UpdateTask(ctx, as(creatorID), task.ID, &UpdateTaskRequest{Title: &blank})
	assert.ErrorIs(t, err, workflow.ErrInvalidTaskRequest)

	_, err = f.engine.UpdateTask(ctx, as(workerID), task.ID, &UpdateTaskRequest{Title: &title})
	assert.ErrorIs(t, err, workflow.ErrNotTaskOwner)

	_, err = f.engine.UpdateTask(ctx, tenant.TenantContext{TenantID: otherTenant, UserID: strangerID}, task.ID, &UpdateTaskRequest{Title: &title})
	assert.ErrorIs(t, err, workflow.ErrTaskNotFound)

	completed := workflow.TaskStatusCompleted
	_, err = f.engine.UpdateTask(ctx, as(creatorID), task.ID, &UpdateTaskRequest{Status: &completed})
	assert.ErrorIs(t, err, workflow.ErrInvalidTaskRequest)

	got, err := f.engine.GetTask(ctx, as(creatorID), task.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version, "失败的修改不应改变版本")

	cancelled := workflow.TaskStatusCancelled
	view, err = f.engine.UpdateTask(ctx, as(creatorID), task.ID, &UpdateTaskRequest{Status: &cancelled, Reason: "行程取消"})
	require.NoError(t, err)
	assert.Equal(t, workflow.TaskStatusCancelled, view.Status)
	assert.Equal(t, int64(3), view.Version)
	sts := f.stepTasks(t, task.ID)
	require.Len(t, sts, 1)
	assert.Equal(t, workflow.StepTaskCancelled, sts[0].Status)
	assert.Contains(t, sts[0].Note, "行程取消")
	assert.Len(t, f.published.ofType(events.TaskCancelled), 1)

	_, err = f.engine.UpdateTask(ctx, as(creatorID), task.ID, &UpdateTaskRequest{Title: &title})
	assert.ErrorIs(t, err, workflow.ErrTaskNotRunning)
}

func TestConcurrentApproveAndReject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.createTask(t, workflow.PriorityNormal)
	f.execute(t, creatorID, task.ID, "submit")
	f.execute(t, workerID, task.ID, "done")

	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		results = make([]error, 2)
	)
	for i, action := range []string{"approve", "reject"} {
		wg.Add(1)
		go func(i int, action string) {
			defer wg.Done()
			<-start
			_, results[i] = f.engine.ExecuteAction(ctx, as(reviewerID), task.ID, &ExecuteActionRequest{ActionName: action})
		}(i, action)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		isExpected := errors.Is(err, workflow.ErrTaskNotRunning) ||
			errors.Is(err, workflow.ErrConcurrentModification) ||
			errors.Is(err, workflow.ErrNotAssignee)
		assert.True(t, isExpected, "意外的错误: %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(3), f.count(t, &workflow.StepTaskAction{}, "task_id = ?", task.ID))
	assert.Equal(t, int64(1), f.count(t, &workflow.StepTaskAction{}, "task_id = ? AND action_name IN ?", task.ID, []string{"approve", "reject"}))
}

func TestTaskActionsOrderWithEqualTimestamps(t *testing.T) {
	ctx := context.Background()
	frozen := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, WithClock(func() time.Time { return frozen }))
	task := f.createTask(t, workflow.PriorityNormal)

	f.execute(t, creatorID, task.ID, "submit")
	f.execute(t, workerID, task.ID, "done")
	f.execute(t, reviewerID, task.ID, "reject")
	f.execute(t, workerID, task.ID, "done")

	for i := 0; i < 3; i++ {
		page, err := f.engine.GetTaskActions(ctx, as(creatorID), task.ID, common.PaginationRequest{})
		require.NoError(t, err)
		names := make([]string, 0, len(page.Items))
		for _, item := range page.Items {
			names = append(names, item.ActionName)
		}
		assert.Equal(t, []string{"done", "reject", "done", "submit"}, names)
	}
}
