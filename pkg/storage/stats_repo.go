package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/LENAX/eoflow/pkg/core/executor"
)

// ErrExecutionNotFound 执行记录不存在
var ErrExecutionNotFound = errors.New("execution not found")

// ExecutionSummary 执行记录摘要（对外导出）
type ExecutionSummary struct {
	ID           string `db:"id" json:"id"`
	WorkflowName string `db:"workflow_name" json:"workflow_name"`
	StartedAt    int64  `db:"started_at" json:"started_at"`
	DurationMs   int64  `db:"duration_ms" json:"duration_ms"`
	Concurrency  int    `db:"concurrency" json:"concurrency"`
	RunCount     int    `db:"run_count" json:"run_count"`
	SuccessCount int    `db:"success_count" json:"success_count"`
}

type executionRow struct {
	ExecutionSummary
	Document string `db:"document"`
}

// StatsRepository 批量执行统计的持久化（对外导出）
type StatsRepository struct {
	db *DB
}

// NewStatsRepository 创建统计仓库
func NewStatsRepository(db *DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// SaveStatistics 保存一次批量执行的统计
func (r *StatsRepository) SaveStatistics(ctx context.Context, stats *executor.Statistics) error {
	if stats == nil || stats.ExecutionID == "" {
		return fmt.Errorf("统计缺少执行ID")
	}
	doc, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("序列化统计失败: %w", err)
	}
	row := executionRow{
		ExecutionSummary: ExecutionSummary{
			ID:           stats.ExecutionID,
			WorkflowName: stats.WorkflowName,
			StartedAt:    stats.Start.UnixNano(),
			DurationMs:   stats.Duration().Milliseconds(),
			Concurrency:  stats.Concurrency,
			RunCount:     len(stats.Runs),
			SuccessCount: stats.SuccessCount(),
		},
		Document: string(doc),
	}
	columns := []string{"id", "workflow_name", "started_at", "duration_ms", "concurrency", "run_count", "success_count", "document"}
	query := r.db.Dialect.UpsertSQL("eoflow_executions", columns, "id", columns[1:])
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("保存执行统计 %s 失败: %w", stats.ExecutionID, err)
	}
	return nil
}

// GetStatistics 按执行ID读取完整统计
func (r *StatsRepository) GetStatistics(ctx context.Context, id string) (*executor.Statistics, error) {
	var doc string
	err := r.db.GetContext(ctx, &doc, r.db.Rebind("SELECT document FROM eoflow_executions WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrExecutionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("查询执行统计 %s 失败: %w", id, err)
	}
	var stats executor.Statistics
	if err := json.Unmarshal([]byte(doc), &stats); err != nil {
		return nil, fmt.Errorf("解析执行统计 %s 失败: %w", id, err)
	}
	return &stats, nil
}

// ListExecutions 按开始时间倒序列出执行记录，limit<=0 时不限
func (r *StatsRepository) ListExecutions(ctx context.Context, limit int) ([]ExecutionSummary, error) {
	query := "SELECT id, workflow_name, started_at, duration_ms, concurrency, run_count, success_count FROM eoflow_executions ORDER BY started_at DESC"
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	summaries := []ExecutionSummary{}
	if err := r.db.SelectContext(ctx, &summaries, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("查询执行记录失败: %w", err)
	}
	return summaries, nil
}

var _ executor.StatisticsRepository = (*StatsRepository)(nil)
