package common

import (
	"errors"
	"net/http"

	"processhub/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ResponseSuccess 返回成功响应
func ResponseSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, SuccessResponse(data))
}

// ResponseCreated 返回创建成功响应（201）
func ResponseCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, SuccessResponse(data))
}

// ResponseNoContent 返回无内容响应（204）
func ResponseNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// ResponseList 返回分页列表响应
func ResponseList(c *gin.Context, items any, total int64, req PaginationRequest) {
	c.JSON(http.StatusOK, SuccessResponse(ListResponse{
		Items:      items,
		Pagination: NewPaginationMeta(req.GetPage(), req.GetPageSize(), total),
	}))
}

// ResponseError 返回错误响应
func ResponseError(c *gin.Context, code int, message string) {
	if message == "" {
		message = GetErrorMessage(code)
	}
	c.JSON(HTTPStatus(code), ErrorResponse(code, message))
}

// ResponseBadRequest 返回参数错误响应
func ResponseBadRequest(c *gin.Context, message string) {
	ResponseError(c, CodeInvalidRequest, message)
}

// ResponseUnauthorized 返回未认证响应
func ResponseUnauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "未认证，请先登录"
	}
	ResponseError(c, CodeUnauthorized, message)
}

// ResponseErr 根据错误类型返回响应
// 业务错误按错误码映射 HTTP 状态，其余错误统一返回 500 且不透出内部信息
func ResponseErr(c *gin.Context, err error) {
	var bizErr *BusinessError
	if errors.As(err, &bizErr) {
		resp := ErrorResponse(bizErr.Code, bizErr.Message)
		var detailed DetailedError
		if errors.As(err, &detailed) {
			resp.Data = detailed.Details()
		}
		c.JSON(HTTPStatus(bizErr.Code), resp)
		return
	}

	logger.WithContext(c.Request.Context()).Error("请求处理失败",
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	ResponseError(c, CodeInternalError, "")
}

// AbortWithError 中断并返回错误
func AbortWithError(c *gin.Context, code int, message string) {
	ResponseError(c, code, message)
	c.Abort()
}
