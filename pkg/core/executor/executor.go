// Package executor 在一组相互独立的输入上批量执行工作流，并汇总统计
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/LENAX/eoflow/internal/logger"
	"github.com/LENAX/eoflow/pkg/core/engine"
	"github.com/LENAX/eoflow/pkg/core/eodata"
	"github.com/LENAX/eoflow/pkg/core/events"
	"github.com/LENAX/eoflow/pkg/core/task"
)

// maxConcurrency 并发运行数上限
const maxConcurrency = 1000

// RunInput 单次运行的输入（对外导出）
type RunInput struct {
	Name        string           // 运行名称，为空时使用 run-<index>
	Patch       *eodata.Patch    // 初始容器，为空时从 Source 加载
	Source      string           // 通过 PatchStore 加载初始容器
	Destination string           // 运行成功后通过 PatchStore 保存最终容器
	Overrides   engine.Overrides // 运行级参数覆盖
}

// Executor 批量执行器（对外导出）
// 执行图只读共享，每个运行的容器与中间结果存储都是私有的
type Executor struct {
	concurrency int
	runTimeout  time.Duration
	retry       RetryPolicy
	store       task.PatchStore
	publisher   events.Publisher
	metrics     MetricsRecorder
	repo        StatisticsRepository
	log         logrus.FieldLogger
}

// New 创建执行器
func New(opts ...Option) (*Executor, error) {
	e := &Executor{
		concurrency: 1,
		log:         logger.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.concurrency > maxConcurrency {
		return nil, fmt.Errorf("并发数不能超过 %d", maxConcurrency)
	}
	if e.runTimeout < 0 {
		return nil, fmt.Errorf("运行超时不能为负数")
	}
	return e, nil
}

// Concurrency 并发运行数
func (e *Executor) Concurrency() int {
	if e.concurrency < 1 {
		return 1
	}
	return e.concurrency
}

// RunAll 对每个输入执行一次工作流（对外导出）
// 单个运行的失败不会影响其他运行；只有参数非法时返回error。
// 结果中的 Runs 与 inputs 顺序一致。
func (e *Executor) RunAll(ctx context.Context, wf *engine.Workflow, inputs []RunInput) (*Statistics, error) {
	if wf == nil {
		return nil, fmt.Errorf("工作流不能为空")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	stats := &Statistics{
		ExecutionID:  uuid.NewString(),
		WorkflowName: wf.Name(),
		Start:        time.Now(),
		Concurrency:  e.Concurrency(),
		Runs:         make([]RunStats, len(inputs)),
	}
	log := e.log.WithFields(logrus.Fields{"execution_id": stats.ExecutionID, "workflow": wf.Name()})
	log.WithField("runs", len(inputs)).Info("开始批量执行")
	e.publish(ctx, events.NewEvent(events.EventExecutionStarted, stats.ExecutionID, wf.Name()).
		WithMetadata("runs", fmt.Sprint(len(inputs))))

	if e.Concurrency() == 1 {
		for i := range inputs {
			stats.Runs[i] = e.runOne(ctx, wf, stats.ExecutionID, i, inputs[i], log)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(e.Concurrency())
		for i := range inputs {
			i := i
			g.Go(func() error {
				// 每个goroutine只写自己下标的位置
				stats.Runs[i] = e.runOne(ctx, wf, stats.ExecutionID, i, inputs[i], log)
				return nil
			})
		}
		_ = g.Wait()
	}

	stats.End = time.Now()
	log.WithFields(logrus.Fields{
		"succeeded": stats.SuccessCount(),
		"failed":    len(stats.Runs) - stats.SuccessCount(),
		"duration":  stats.Duration(),
	}).Info("批量执行结束")
	e.publish(ctx, events.NewEvent(events.EventExecutionFinished, stats.ExecutionID, wf.Name()).
		WithMetadata("succeeded", fmt.Sprint(stats.SuccessCount())))

	if e.repo != nil {
		if err := e.repo.SaveStatistics(ctx, stats); err != nil {
			log.WithError(err).Warn("保存执行统计失败")
		}
	}
	return stats, nil
}

// runOne 执行单个输入，包含加载、重试与保存
func (e *Executor) runOne(ctx context.Context, wf *engine.Workflow, executionID string, index int, input RunInput, log logrus.FieldLogger) (rs RunStats) {
	rs = RunStats{
		Index: index,
		Name:  input.Name,
		RunID: uuid.NewString(),
		Start: time.Now(),
	}
	if rs.Name == "" {
		rs.Name = fmt.Sprintf("run-%d", index)
	}
	log = log.WithFields(logrus.Fields{"run": rs.Name, "run_id": rs.RunID})

	if e.metrics != nil {
		e.metrics.RunStarted()
	}
	e.publish(ctx, events.NewEvent(events.EventRunStarted, executionID, wf.Name()).WithRun(index, rs.RunID, rs.Name))

	defer func() {
		rs.End = time.Now()
		if e.metrics != nil {
			e.metrics.RunFinished(rs.Status(), rs.Duration())
		}
		ev := events.NewEvent(events.EventRunSucceeded, executionID, wf.Name()).WithRun(index, rs.RunID, rs.Name)
		switch rs.Status() {
		case StatusTimeout:
			ev.Type = events.EventRunTimeout
			ev.FailedNode, ev.Error = rs.FailedNode, rs.Error
		case StatusFailed:
			ev.Type = events.EventRunFailed
			ev.FailedNode, ev.Error = rs.FailedNode, rs.Error
		}
		ev.WithMetadata("attempts", fmt.Sprint(rs.Attempts))
		e.publish(ctx, ev)
	}()

	loadCtx, cancelLoad := e.withRunTimeout(ctx)
	patch, err := e.initialPatch(loadCtx, input)
	cancelLoad()
	if err != nil {
		rs.Error = err.Error()
		rs.Timeout = errors.Is(err, context.DeadlineExceeded)
		log.WithError(err).Warn("加载初始容器失败")
		return rs
	}

	outcome := e.runWithRetry(ctx, wf, rs.RunID, patch, input.Overrides, &rs, log)
	rs.Outcome = outcome
	rs.Nodes = outcome.Nodes
	rs.Success = outcome.Success
	rs.Timeout = outcome.Timeout()
	rs.FailedNode = outcome.FailedNode
	if outcome.Err != nil {
		rs.Error = outcome.Err.Error()
	}

	if rs.Success && input.Destination != "" && e.store != nil {
		saveCtx, cancelSave := e.withRunTimeout(ctx)
		err := e.store.Save(saveCtx, outcome.Patch, input.Destination)
		cancelSave()
		if err != nil {
			rs.Success = false
			rs.Timeout = errors.Is(err, context.DeadlineExceeded)
			rs.Error = fmt.Sprintf("保存结果到 %s 失败: %v", input.Destination, err)
			log.WithError(err).Warn("保存运行结果失败")
		}
	}
	return rs
}

// withRunTimeout 按单次运行超时派生上下文，运行、加载与保存各自受其约束
func (e *Executor) withRunTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.runTimeout > 0 {
		return context.WithTimeout(ctx, e.runTimeout)
	}
	return ctx, func() {}
}

// runWithRetry 执行运行，失败时按策略从输入的深拷贝重新开始
func (e *Executor) runWithRetry(ctx context.Context, wf *engine.Workflow, runID string, patch *eodata.Patch, overrides engine.Overrides, rs *RunStats, log logrus.FieldLogger) *engine.RunOutcome {
	retrying := e.retry.MaxAttempts > 1
	for attempt := 1; ; attempt++ {
		rs.Attempts = attempt

		runPatch := patch
		if retrying && patch != nil {
			runPatch = patch.Copy(true)
		}

		runCtx, cancel := e.withRunTimeout(ctx)
		outcome := wf.RunWithID(runCtx, runID, runPatch, overrides)
		cancel()

		if outcome.Success || outcome.Timeout() || attempt >= e.retry.MaxAttempts || ctx.Err() != nil {
			return outcome
		}

		delay := e.retry.backoff(attempt)
		log.WithFields(logrus.Fields{"attempt": attempt, "delay": delay, "node": outcome.FailedNode}).
			WithError(outcome.Err).Info("运行失败，准备重试")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return outcome
		}
	}
}

// initialPatch 返回运行的初始容器
func (e *Executor) initialPatch(ctx context.Context, input RunInput) (*eodata.Patch, error) {
	if input.Patch != nil || input.Source == "" {
		return input.Patch, nil
	}
	if e.store == nil {
		return nil, fmt.Errorf("输入 %s 需要从 %s 加载，但未配置存储", input.Name, input.Source)
	}
	p, err := e.store.Load(ctx, input.Source)
	if err != nil {
		return nil, fmt.Errorf("从 %s 加载初始容器失败: %w", input.Source, err)
	}
	return p, nil
}

func (e *Executor) publish(ctx context.Context, ev *events.Event) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.log.WithError(err).WithField("event", ev.Type).Warn("发布事件失败")
	}
}
