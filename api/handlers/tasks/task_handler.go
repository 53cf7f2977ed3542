package tasks

import (
	response "processhub/api/handlers/common"
	"processhub/internal/common"
	"processhub/internal/workflow/engine"

	"github.com/gin-gonic/gin"
)

// TaskHandler 任务、步骤任务与动作执行 Handler
type TaskHandler struct {
	engine *engine.Engine
}

// NewTaskHandler 创建 TaskHandler 实例
func NewTaskHandler(e *engine.Engine) *TaskHandler {
	return &TaskHandler{engine: e}
}

// CancelTaskRequest 取消任务请求
type CancelTaskRequest struct {
	Reason string `json:"reason"`
}

// CreateTask 创建任务
// @Summary 基于流程模板创建任务
// @Description 项目必须存在于当前租户，可为各步骤预设处理人与优先级
// @Tags Tasks
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body engine.CreateTaskRequest true "任务参数"
// @Success 201 {object} engine.TaskView
// @Failure 400 {object} response.ErrorResponse
// @Router /api/v1/tasks [post]
func (h *TaskHandler) CreateTask(c *gin.Context) {
	tc, ok := response.TenantContext(c)
	if !ok {
		return
	}
	var req engine.CreateTaskRequest
	if !response.BindJSON(c, &req) {
		return
	}

	view, err := h.engine.CreateTask(c.Request.Context(), tc, &req)
	if err != nil {
		common.ResponseErr(c, err)
		return
	}
	common.ResponseCreated(c, view)
}

// ListTasks 查询任务列表
// @Summary 查询任务列表
// @Tags Tasks
// @Security BearerAuth
// @Produce json
// @Param projectId query string false "项目 ID"
// @Param workflowId query string false "工作流 ID"
// @Param status query string false "任务状态"
// @Param priority query string false "优先级"
// @Param keyword query string false "标题关键字"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.ListResponse
// @Router /api/v1/tasks [get]
func (h *TaskHandler) ListTasks(c *gin.Context) {
	tc, ok := response.TenantContext(c)
	if !ok {
		return
	}
	var req engine.ListTasksRequest
	if !response.BindQuery(c, &req) {
		return
	}

	page, err := h.engine.ListTasks(c.Request.Context(), tc, &req)
	if err != nil {
		common.ResponseErr(c, err)
		return
	}
	common.ResponseList(c, page.Items, page.Total, req.PaginationRequest)
}

// GetTask 查询任务详情
// @Summary 查询任务详情
// @Tags Tasks
// @Security BearerAuth
// @Produce json
// @Param id path string true "任务 ID"
// @Success 200 {object} engine.TaskView
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/tasks/{id} [get]
func (h *TaskHandler) GetTask(c *gin.Context) {
	tc, ok := response.TenantContext(c)
	if !ok {
		return
	}
	view, err := h.engine.GetTask(c.Request.Context(), tc, c.Param("id"))
	if err != nil {
		common.ResponseErr(c, err)
		return
	}
	common.ResponseSuccess(c, view)
}

// UpdateTask 修改任务
// @Summary 修改运行中任务的基本信息
// @Tags Tasks
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "任务 ID"
// @Param request body engine.UpdateTaskRequest true "修改内容"
// @Success 200 {object} engine.TaskView
// @Failure 400 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /api/v1/tasks/{id} [put]
func (h *TaskHandler) UpdateTask(c *gin.Context) {
	tc, ok := response.TenantContext(c)
	if !ok {
		return
	}
	var req engine.UpdateTaskRequest
	if !response.BindJSON(c, &req) {
		return
	}

	view, err := h.engine.UpdateTask(c.Request.Context(), tc, c.Param("id"), &req)
	if err != nil {
		common.ResponseErr(c, err)
		return
	}
	common.ResponseSuccess(c, view)
}

// CancelTask 取消任务
// @Summary 取消运行中的任务
// @Tags Tasks
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "任务 ID"
// @Param request body CancelTaskRequest false "取消原因"
// @Success 200 {object} engine.TaskView
// @Failure 409 {object} response.ErrorResponse
// @Router /api/v1/tasks/{id}/cancel [post]
func (h *TaskHandler) CancelTask(c *gin.Context) {
	tc, ok := response.TenantContext(c)
	if !ok {
		return
	}
	var req CancelTaskRequest
	if c.Request.ContentLength > 0 && !response.BindJSON(c, &req) {
		return
	}

	view, err := h.engine.CancelTask(c.Request.Context(), tc, c.Param("id"), req.Reason)
	if err != nil {
		common.ResponseErr(c, err)
		return
	}
	common.ResponseSuccess(c, view)
}

// DeleteTask 删除已结束的任务
// @Summary 删除任务
// @Tags Tasks
// @Security BearerAuth
// @Param id path string true "任务 ID"
// @Success 204
// @Failure 409 {object} response.ErrorResponse
// @Router /api/v1/tasks/{id} [delete]
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	tc, ok := response.TenantContext(c)
	if !ok {
		return
	}
	if err := h.engine.DeleteTask(c.Request.Context(), tc, c.Param("id")); err != nil {
		common.ResponseErr(c, err)
		return
	}
	common.ResponseNoContent(c)
}

// ExecuteAction 在当前步骤上执行动作
// @Summary 执行动作并推进任务
// @Description 仅当前步骤处理人可执行，动作名需匹配当前步骤的流转
// @Tags Tasks
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "任务 ID"
// @Param request body engine.ExecuteActionRequest true "动作参数"
// @Success 200 {object} engine.TaskView
// @Failure 403 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Failure 429 {object} response.ErrorResponse
// @Router /api/v1/tasks/{id}/actions [post]
func (h *TaskHandler) ExecuteAction(c *gin.Context) {
	tc, ok := response.TenantContext(c)
	if !ok {
		return
	}
	var req engine.ExecuteActionRequest
	if !response.BindJSON(c, &req) {
		return
	}

	view, err := h.engine.ExecuteAction(c.Request.Context(), tc, c.Param("id"), &req)
	if err != nil {
		common.ResponseErr(c, err)
		return
	}
	common.ResponseSuccess(c, view)
}

// GetTaskActions 查询任务的动作记录（最新在前）
// @Summary 查询动作记录
// @Tags Tasks
// @Security BearerAuth
// @Produce json
// @Param id path string true "任务 ID"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.ListResponse
// @Router /api/v1/tasks/{id}/actions [get]
func (h *TaskHandler) GetTaskActions(c *gin.Context) {
	tc, ok := response.TenantContext(c)
	if !ok {
		return
	}
	var req common.PaginationRequest
	if !response.BindQuery(c, &req) {
		return
	}

	page, err := h.engine.GetTaskActions(c.Request.Context(), tc, c.Param("id"), req)
	if err != nil {
		common.ResponseErr(c, err)
		return
	}
	common.ResponseList(c, page.Items, page.Total, req)
}

// ListStepTasks 查询任务的步骤时间线
// @Summary 查询步骤时间线
// @Tags Tasks
// @Security BearerAuth
// @Produce json
// @Param id path string true "任务 ID"
// @Success 200 {array} engine.StepTaskView
// @Router /api/v1/tasks/{id}/step-tasks [get]
func (h *TaskHandler) ListStepTasks(c *gin.Context) {
	tc, ok := response.TenantContext(c)
	if !ok {
		return
	}
	items, err := h.engine.ListStepTasks(c.Request.Context(), tc, c.Param("id"))
	if err != nil {
		common.ResponseErr(c, err)
		return
	}
	common.ResponseSuccess(c, items)
}

// GetCurrentStepTask 查询当前步骤任务
// @Summary 查询当前步骤任务
// @Tags Tasks
// @Security BearerAuth
// @Produce json
// @Param id path string true "任务 ID"
// @Success 200 {object} engine.StepTaskView
// @Failure 409 {object} response.ErrorResponse
// @Router /api/v1/tasks/{id}/current-step [get]
func (h *TaskHandler) GetCurrentStepTask(c *gin.Context) {
	tc, ok := response.TenantContext(c)
	if !ok {
		return
	}
	view, err := h.engine.GetCurrentStepTask(c.Request.Context(), tc, c.Param("id"))
	if err != nil {
		common.ResponseErr(c, err)
		return
	}
	common.ResponseSuccess(c, view)
}

// StartStepTask 开始处理当前步骤
// @Summary 开始处理当前步骤
// @Tags Tasks
// @Security BearerAuth
// @Produce json
// @Param id path string true "任务 ID"
// @Success 200 {object} engine.StepTaskView
// @Failure 403 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /api/v1/tasks/{id}/current-step/start [post]
func (h *TaskHandler) StartStepTask(c *gin.Context) {
	tc, ok := response.TenantContext(c)
	if !ok {
		return
	}
	view, err := h.engine.StartStepTask(c.Request.Context(), tc, c.Param("id"))
	if err != nil {
		common.ResponseErr(c, err)
		return
	}
	common.ResponseSuccess(c, view)
}

// IsAssignee 判断调用者是否为当前步骤处理人
// @Summary 是否为当前处理人
// @Tags Tasks
// @Security BearerAuth
// @Produce json
// @Param id path string true "任务 ID"
// @Success 200 {object} engine.AssigneeCheck
// @Router /api/v1/tasks/{id}/is-assignee [get]
func (h *TaskHandler) IsAssignee(c *gin.Context) {
	tc, ok := response.TenantContext(c)
	if !ok {
		return
	}
	isAssignee, err := h.engine.IsAssignee(c.Request.Context(), tc, c.Param("id"))
	if err != nil {
		common.ResponseErr(c, err)
		return
	}
	common.ResponseSuccess(c, engine.AssigneeCheck{IsAssignee: isAssignee})
}

// GetStepTaskDetail 查询步骤任务详情
// @Summary 查询步骤任务详情
// @Description 包含处理记录、提交数据与文件
// @Tags StepTasks
// @Security BearerAuth
// @Produce json
// @Param id path string true "步骤任务 ID"
// @Success 200 {object} engine.StepTaskDetail
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/step-tasks/{id} [get]
func (h *TaskHandler) GetStepTaskDetail(c *gin.Context) {
	tc, ok := response.TenantContext(c)
	if !ok {
		return
	}
	detail, err := h.engine.GetStepTaskDetail(c.Request.Context(), tc, c.Param("id"))
	if err != nil {
		common.ResponseErr(c, err)
		return
	}
	common.ResponseSuccess(c, detail)
}

// ListMyStepTasks 我的待办
// @Summary 查询分派给我的步骤任务
// @Tags StepTasks
// @Security BearerAuth
// @Produce json
// @Param status query string false "步骤任务状态"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.ListResponse
// @Router /api/v1/step-tasks/mine [get]
func (h *TaskHandler) ListMyStepTasks(c *gin.Context) {
	tc, ok := response.TenantContext(c)
	if !ok {
		return
	}
	var req engine.ListMyStepTasksRequest
	if !response.BindQuery(c, &req) {
		return
	}

	page, err := h.engine.ListMyStepTasks(c.Request.Context(), tc, &req)
	if err != nil {
		common.ResponseErr(c, err)
		return
	}
	common.ResponseList(c, page.Items, page.Total, req.PaginationRequest)
}

// ListMyActivity 我最近的操作
// @Summary 查询我执行过的动作
// @Tags StepTasks
// @Security BearerAuth
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.ListResponse
// @Router /api/v1/activity/mine [get]
func (h *TaskHandler) ListMyActivity(c *gin.Context) {
	tc, ok := response.TenantContext(c)
	if !ok {
		return
	}
	var req common.PaginationRequest
	if !response.BindQuery(c, &req) {
		return
	}

	page, err := h.engine.ListMyActivity(c.Request.Context(), tc, req)
	if err != nil {
		common.ResponseErr(c, err)
		return
	}
	common.ResponseList(c, page.Items, page.Total, req)
}
