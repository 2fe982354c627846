package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/eoflow/pkg/api/dto"
	"github.com/LENAX/eoflow/pkg/core/executor"
	"github.com/LENAX/eoflow/pkg/storage"
)

// ExecutionReader 执行记录查询接口
type ExecutionReader interface {
	GetStatistics(ctx context.Context, id string) (*executor.Statistics, error)
	ListExecutions(ctx context.Context, limit int) ([]storage.ExecutionSummary, error)
}

// ExecutionHandler 批量执行记录API处理器
type ExecutionHandler struct {
	repo ExecutionReader
}

// NewExecutionHandler 创建ExecutionHandler
func NewExecutionHandler(repo ExecutionReader) *ExecutionHandler {
	return &ExecutionHandler{repo: repo}
}

// List 列出批量执行记录（按开始时间倒序）
// GET /api/v1/executions
func (h *ExecutionHandler) List(c *gin.Context) {
	var query dto.ListQueryRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("查询参数错误: %v", err)))
		return
	}
	if h.repo == nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, "存储未配置"))
		return
	}

	// 多取一条用于判断是否还有更多
	limit := query.GetDefaultLimit()
	rows, err := h.repo.ListExecutions(c.Request.Context(), query.Offset+limit+1)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("查询执行记录失败: %v", err)))
		return
	}

	items := make([]dto.ExecutionSummary, 0, limit)
	for i := query.Offset; i < len(rows) && len(items) < limit; i++ {
		items = append(items, toSummary(rows[i]))
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.ExecutionSummary]{
		Total:   len(items),
		Items:   items,
		HasMore: len(rows) > query.Offset+limit,
	}))
}

// Get 获取批量执行详情
// GET /api/v1/executions/:id
func (h *ExecutionHandler) Get(c *gin.Context) {
	if h.repo == nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, "存储未配置"))
		return
	}
	id := c.Param("id")
	stats, err := h.repo.GetStatistics(c.Request.Context(), id)
	if errors.Is(err, storage.ErrExecutionNotFound) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, fmt.Sprintf("执行记录 %s 不存在", id)))
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("查询执行记录失败: %v", err)))
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(ToExecutionDetail(stats)))
}

// ToExecutionDetail 把执行统计转换为API结构
func ToExecutionDetail(stats *executor.Statistics) dto.ExecutionDetail {
	detail := dto.ExecutionDetail{
		ExecutionSummary: dto.ExecutionSummary{
			ID:           stats.ExecutionID,
			WorkflowName: stats.WorkflowName,
			StartedAt:    stats.Start,
			Duration:     formatDuration(stats.Duration()),
			Concurrency:  stats.Concurrency,
			RunCount:     len(stats.Runs),
			SuccessCount: stats.SuccessCount(),
		},
		FailedIndices: stats.FailedIndices(),
		Runs:          make([]dto.RunSummary, 0, len(stats.Runs)),
	}
	if detail.FailedIndices == nil {
		detail.FailedIndices = []int{}
	}
	for _, r := range stats.Runs {
		detail.Runs = append(detail.Runs, dto.RunSummary{
			Index:      r.Index,
			Name:       r.Name,
			RunID:      r.RunID,
			Status:     r.Status(),
			Duration:   formatDuration(r.Duration()),
			Attempts:   r.Attempts,
			FailedNode: r.FailedNode,
			Error:      r.Error,
		})
	}
	return detail
}

func toSummary(row storage.ExecutionSummary) dto.ExecutionSummary {
	return dto.ExecutionSummary{
		ID:           row.ID,
		WorkflowName: row.WorkflowName,
		StartedAt:    time.Unix(0, row.StartedAt),
		Duration:     formatDuration(time.Duration(row.DurationMs) * time.Millisecond),
		Concurrency:  row.Concurrency,
		RunCount:     row.RunCount,
		SuccessCount: row.SuccessCount,
	}
}
