package common

// ErrorResponse 统一错误返回结构，仅用于接口文档
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// PaginationMeta 分页元信息
type PaginationMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// ListResponse 列表响应结构，仅用于接口文档
type ListResponse struct {
	Success bool `json:"success"`
	Code    int  `json:"code"`
	Data    struct {
		Items      any            `json:"items"`
		Pagination PaginationMeta `json:"pagination"`
	} `json:"data"`
}
