package api

import (
	"processhub/internal/auth"
	"processhub/internal/logger"
	middlewarepkg "processhub/internal/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册所有业务路由
func RegisterRoutes(router *gin.Engine, container *AppContainer, handlers *Handlers) {
	apiV1 := router.Group("/api/v1")
	apiV1.Use(auth.AuthMiddleware(container.JWTService), middlewarepkg.GinTenantContextMiddleware(logger.Get()))
	registerAPIRoutes(apiV1, container, handlers)
}

// registerAPIRoutes 注册需要认证的 API 路由
func registerAPIRoutes(apiGroup *gin.RouterGroup, c *AppContainer, h *Handlers) {
	// WebSocket
	apiGroup.GET("/ws/notifications", h.Notification.Connect)

	// 流程模板
	registerWorkflowRoutes(apiGroup, h)

	// 任务与动作
	registerTaskRoutes(apiGroup, c, h)

	// 我的待办与动态
	registerStepTaskRoutes(apiGroup, h)
}

func registerWorkflowRoutes(apiGroup *gin.RouterGroup, h *Handlers) {
	workflowsGroup := apiGroup.Group("/workflows")
	{
		workflowsGroup.GET("", h.Workflow.ListWorkflows)
		workflowsGroup.POST("", h.Workflow.CreateWorkflow)
		workflowsGroup.POST("/import", h.Workflow.ImportWorkflow)
		workflowsGroup.GET("/:id", h.Workflow.GetWorkflow)
		workflowsGroup.GET("/:id/export", h.Workflow.ExportWorkflow)
		workflowsGroup.PUT("/:id", h.Workflow.UpdateWorkflow)
		workflowsGroup.DELETE("/:id", h.Workflow.DeleteWorkflow)
	}
}

func registerTaskRoutes(apiGroup *gin.RouterGroup, c *AppContainer, h *Handlers) {
	tasksGroup := apiGroup.Group("/tasks")
	{
		tasksGroup.GET("", h.Task.ListTasks)
		tasksGroup.POST("", h.Task.CreateTask)
		tasksGroup.GET("/:id", h.Task.GetTask)
		tasksGroup.PUT("/:id", h.Task.UpdateTask)
		tasksGroup.POST("/:id/cancel", h.Task.CancelTask)
		tasksGroup.DELETE("/:id", h.Task.DeleteTask)

		// 动作执行按 租户+用户 限流
		tasksGroup.POST("/:id/actions", middlewarepkg.RateLimitByUser(c.ActionLimiter), h.Task.ExecuteAction)
		tasksGroup.GET("/:id/actions", h.Task.GetTaskActions)

		tasksGroup.GET("/:id/step-tasks", h.Task.ListStepTasks)
		tasksGroup.GET("/:id/current-step", h.Task.GetCurrentStepTask)
		tasksGroup.POST("/:id/current-step/start", h.Task.StartStepTask)
		tasksGroup.GET("/:id/is-assignee", h.Task.IsAssignee)
	}
}

func registerStepTaskRoutes(apiGroup *gin.RouterGroup, h *Handlers) {
	stepTasks := apiGroup.Group("/step-tasks")
	{
		stepTasks.GET("/mine", h.Task.ListMyStepTasks)
		stepTasks.GET("/:id", h.Task.GetStepTaskDetail)
	}
	apiGroup.GET("/activity/mine", h.Task.ListMyActivity)
}
