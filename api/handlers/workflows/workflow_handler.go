package workflows

import (
	"errors"
	"io"
	"net/http"

	response "processhub/api/handlers/common"
	"processhub/internal/common"
	"processhub/internal/workflow"

	"github.com/gin-gonic/gin"
)

// 导入文件上限
const maxImportSize = 1 << 20

// WorkflowHandler 流程模板管理 Handler
type WorkflowHandler struct {
	service *workflow.WorkflowService
}

// NewWorkflowHandler 创建 WorkflowHandler 实例
func NewWorkflowHandler(service *workflow.WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{service: service}
}

// ListWorkflows 查询流程模板列表
// @Summary 查询流程模板列表
// @Description 按关键字与启用状态筛选当前租户的流程模板
// @Tags Workflows
// @Security BearerAuth
// @Produce json
// @Param keyword query string false "名称关键字"
// @Param isActive query bool false "是否启用"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.ListResponse
// @Failure 401 {object} response.ErrorResponse
// @Router /api/v1/workflows [get]
func (h *WorkflowHandler) ListWorkflows(c *gin.Context) {
	tc, ok := response.TenantContext(c)
	if !ok {
		return
	}
	var req workflow.ListWorkflowsRequest
	if !response.BindQuery(c, &req) {
		return
	}

	resp, err := h.service.ListWorkflows(c.Request.Context(), tc, &req)
	if err != nil {
		common.ResponseErr(c, err)
		return
	}
	common.ResponseList(c, resp.Items, resp.Total, req.PaginationRequest)
}

// GetWorkflow 查询流程模板详情
// @Summary 查询流程模板详情
// @Tags Workflows
// @Security BearerAuth
// @Produce json
// @Param id path string true "工作流 ID"
// @Success 200 {object} workflow.WorkflowDetail
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/workflows/{id} [get]
func (h *WorkflowHandler) GetWorkflow(c *gin.Context) {
	tc, ok := response.TenantContext(c)
	if !ok {
		return
	}
	detail, err := h.service.GetWorkflow(c.Request.Context(), tc, c.Param("id"))
	if err != nil {
		common.ResponseErr(c, err)
		return
	}
	common.ResponseSuccess(c, detail)
}

// CreateWorkflow 创建流程模板
// @Summary 创建流程模板
// @Description 步骤以 clientId 互相引用，流转中的 from/to 指向 clientId
// @Tags Workflows
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body workflow.CreateWorkflowRequest true "流程模板"
// @Success 201 {object} workflow.WorkflowDetail
// @Failure 400 {object} response.ErrorResponse
// @Router /api/v1/workflows [post]
func (h *WorkflowHandler) CreateWorkflow(c *gin.Context) {
	tc, ok := response.TenantContext(c)
	if !ok {
		return
	}
	var req workflow.CreateWorkflowRequest
	if !response.BindJSON(c, &req) {
		return
	}

	detail, err := h.service.CreateWorkflow(c.Request.Context(), tc, &req)
	if err != nil {
		common.ResponseErr(c, err)
		return
	}
	common.ResponseCreated(c, detail)
}

// UpdateWorkflow 更新流程模板
// @Summary 更新流程模板
// @Description 整体替换步骤与流转，已被任务引用的模板不可修改
// @Tags Workflows
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "工作流 ID"
// @Param request body workflow.UpdateWorkflowRequest true "更新参数"
// @Success 200 {object} workflow.WorkflowDetail
// @Failure 400 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /api/v1/workflows/{id} [put]
func (h *WorkflowHandler) UpdateWorkflow(c *gin.Context) {
	tc, ok := response.TenantContext(c)
	if !ok {
		return
	}
	var req workflow.UpdateWorkflowRequest
	if !response.BindJSON(c, &req) {
		return
	}

	detail, err := h.service.UpdateWorkflow(c.Request.Context(), tc, c.Param("id"), &req)
	if err != nil {
		common.ResponseErr(c, err)
		return
	}
	common.ResponseSuccess(c, detail)
}

// DeleteWorkflow 删除流程模板
// @Summary 删除流程模板
// @Tags Workflows
// @Security BearerAuth
// @Param id path string true "工作流 ID"
// @Success 204
// @Failure 409 {object} response.ErrorResponse
// @Router /api/v1/workflows/{id} [delete]
func (h *WorkflowHandler) DeleteWorkflow(c *gin.Context) {
	tc, ok := response.TenantContext(c)
	if !ok {
		return
	}
	if err := h.service.DeleteWorkflow(c.Request.Context(), tc, c.Param("id")); err != nil {
		common.ResponseErr(c, err)
		return
	}
	common.ResponseNoContent(c)
}

// ExportWorkflow 导出流程定义
// @Summary 导出流程定义
// @Tags Workflows
// @Security BearerAuth
// @Produce application/x-yaml
// @Param id path string true "工作流 ID"
// @Param format query string false "yaml 或 json，默认 yaml"
// @Success 200 {file} file
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/workflows/{id}/export [get]
func (h *WorkflowHandler) ExportWorkflow(c *gin.Context) {
	tc, ok := response.TenantContext(c)
	if !ok {
		return
	}
	format, err := workflow.ParseExportFormat(c.Query("format"))
	if err != nil {
		common.ResponseBadRequest(c, err.Error())
		return
	}

	result, err := h.service.ExportWorkflow(c.Request.Context(), tc, c.Param("id"), format)
	if err != nil {
		common.ResponseErr(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+result.Filename)
	c.Data(http.StatusOK, result.ContentType, result.Data)
}

// ImportWorkflow 导入流程定义
// @Summary 导入流程定义
// @Description 请求体为导出的 YAML/JSON 文档，按创建流程同样的规则校验
// @Tags Workflows
// @Security BearerAuth
// @Accept application/x-yaml
// @Produce json
// @Param format query string false "yaml 或 json，默认 yaml"
// @Success 201 {object} workflow.WorkflowDetail
// @Failure 400 {object} response.ErrorResponse
// @Router /api/v1/workflows/import [post]
func (h *WorkflowHandler) ImportWorkflow(c *gin.Context) {
	tc, ok := response.TenantContext(c)
	if !ok {
		return
	}
	format, err := workflow.ParseExportFormat(c.Query("format"))
	if err != nil {
		common.ResponseBadRequest(c, err.Error())
		return
	}

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportSize+1))
	if err != nil {
		common.ResponseBadRequest(c, "读取请求体失败")
		return
	}
	if len(data) > maxImportSize {
		common.ResponseBadRequest(c, "导入文件过大")
		return
	}

	detail, err := h.service.ImportWorkflow(c.Request.Context(), tc, data, format)
	if err != nil {
		var bizErr *common.BusinessError
		if !errors.As(err, &bizErr) {
			common.ResponseBadRequest(c, err.Error())
			return
		}
		common.ResponseErr(c, err)
		return
	}
	common.ResponseCreated(c, detail)
}
