package dto

import "time"

// APIResponse 通用API响应结构
type APIResponse[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) APIResponse[any] {
	return APIResponse[any]{
		Code:    code,
		Message: message,
	}
}

// ExecutionSummary 批量执行摘要
type ExecutionSummary struct {
	ID           string    `json:"id"`
	WorkflowName string    `json:"workflow_name"`
	StartedAt    time.Time `json:"started_at"`
	Duration     string    `json:"duration"`
	Concurrency  int       `json:"concurrency"`
	RunCount     int       `json:"run_count"`
	SuccessCount int       `json:"success_count"`
}

// RunSummary 单次运行摘要
type RunSummary struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	RunID      string `json:"run_id"`
	Status     string `json:"status"`
	Duration   string `json:"duration"`
	Attempts   int    `json:"attempts"`
	FailedNode string `json:"failed_node,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ExecutionDetail 批量执行详情，Runs 与输入顺序一致
type ExecutionDetail struct {
	ExecutionSummary
	FailedIndices []int        `json:"failed_indices"`
	Runs          []RunSummary `json:"runs"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

// ListResponse 列表响应
type ListResponse[T any] struct {
	Total   int  `json:"total"`
	Items   []T  `json:"items"`
	HasMore bool `json:"has_more"`
}
