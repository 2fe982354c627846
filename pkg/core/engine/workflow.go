// Package engine 按拓扑顺序执行单次运行，并管理中间结果的生命周期
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/LENAX/eoflow/internal/logger"
	"github.com/LENAX/eoflow/pkg/core/dag"
	"github.com/LENAX/eoflow/pkg/core/eodata"
	"github.com/LENAX/eoflow/pkg/core/task"
)

// Overrides 运行级参数覆盖：节点ID -> 参数
type Overrides map[string]map[string]any

// Workflow 已构建的执行图加上运行所需的协作者（对外导出）
// Workflow 只读，可以被多个运行并发使用
type Workflow struct {
	name     string
	graph    *dag.Graph
	log      logrus.FieldLogger
	observer Observer
}

// Option Workflow 配置项
type Option func(*Workflow)

// WithName 设置工作流名称
func WithName(name string) Option {
	return func(w *Workflow) { w.name = name }
}

// WithLogger 设置日志器
func WithLogger(l logrus.FieldLogger) Option {
	return func(w *Workflow) {
		if l != nil {
			w.log = l
		}
	}
}

// WithObserver 追加观察者
func WithObserver(o Observer) Option {
	return func(w *Workflow) {
		if o == nil {
			return
		}
		if w.observer == nil {
			w.observer = o
			return
		}
		w.observer = Observers{w.observer, o}
	}
}

// New 创建Workflow（对外导出）
func New(g *dag.Graph, opts ...Option) (*Workflow, error) {
	if g == nil {
		return nil, fmt.Errorf("执行图不能为空")
	}
	w := &Workflow{
		name:     "workflow",
		graph:    g,
		log:      logger.Discard(),
		observer: NopObserver{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Name 工作流名称
func (w *Workflow) Name() string { return w.name }

// Graph 执行图
func (w *Workflow) Graph() *dag.Graph { return w.graph }

// Run 执行一次运行，运行ID自动生成
func (w *Workflow) Run(ctx context.Context, patch *eodata.Patch, overrides Overrides) *RunOutcome {
	return w.RunWithID(ctx, uuid.NewString(), patch, overrides)
}

// RunWithID 使用指定运行ID执行一次运行（对外导出）
//
// 节点严格按图的拓扑顺序依次执行。每个节点执行后，其上游结果的剩余消费者数减一，
// 归零时立即释放。第一个失败的节点会中止运行（fail-fast），之后的节点不再执行。
func (w *Workflow) RunWithID(ctx context.Context, runID string, patch *eodata.Patch, overrides Overrides) *RunOutcome {
	if ctx == nil {
		ctx = context.Background()
	}
	outcome := &RunOutcome{
		RunID:    runID,
		Workflow: w.name,
		Start:    time.Now(),
	}
	log := w.log.WithFields(logrus.Fields{"workflow": w.name, "run_id": runID})

	store := NewResultStore(w.graph, func(idx int) {
		nodeID := w.graph.NodeAt(idx).ID
		log.WithField("node", nodeID).Debug("释放中间结果")
		w.observer.OnRelease(runID, nodeID)
	})
	outputs := make(map[string]any)
	completed := 0

	fail := func(nodeID string, err error) *RunOutcome {
		store.ReleaseAll()
		outcome.Success = false
		outcome.FailedNode = nodeID
		outcome.Err = err
		outcome.Partial = completed > 0
		outcome.End = time.Now()
		log.WithField("node", nodeID).WithError(err).Debug("运行失败")
		return outcome
	}

	for _, idx := range w.graph.OrderIndices() {
		node := w.graph.NodeAt(idx)

		if err := ctx.Err(); err != nil {
			return fail(node.ID, w.contextError(runID, node.ID, err))
		}

		args, err := w.gatherArgs(node, store)
		if err != nil {
			return fail(node.ID, err)
		}
		params := mergeParams(node.Params, overrides[node.ID])
		tc := task.NewTaskContext(ctx, node.ID, runID, w.name, params, patch)

		log.WithField("node", node.ID).Debug("节点开始执行")
		w.observer.OnNodeStart(runID, node.ID)
		stats := NodeStats{Node: node.ID, Task: node.Name(), Start: time.Now()}

		value, err := w.invoke(ctx, runID, node, tc, args)

		stats.End = time.Now()
		if err != nil {
			stats.Error = err.Error()
		}
		outcome.Nodes = append(outcome.Nodes, stats)
		w.observer.OnNodeFinish(runID, node.ID, stats.Duration(), err)
		if err != nil {
			return fail(node.ID, err)
		}
		completed++

		// 返回的Patch成为后续节点的运行容器
		if p, ok := value.(*eodata.Patch); ok && p != nil {
			patch = p
		} else {
			patch = tc.Patch()
		}

		if w.graph.IsTerminal(idx) {
			outputs[node.ID] = value
			store.Retain(value)
		}
		store.Put(idx, value)
		store.Consume(idx)
	}

	outcome.Success = true
	outcome.Outputs = outputs
	outcome.Patch = patch
	outcome.End = time.Now()
	log.WithField("duration", outcome.Duration()).Debug("运行完成")
	return outcome
}

// gatherArgs 按依赖声明顺序收集上游结果，并应用命名输出选择器
func (w *Workflow) gatherArgs(node *dag.Node, store *ResultStore) ([]any, error) {
	args := make([]any, 0, len(node.Dependencies))
	for _, dep := range node.Dependencies {
		producer, _ := w.graph.Node(dep.Node)
		value, ok := store.Get(producer.Index)
		if !ok {
			// 引用计数保证上游结果在最后一个消费者执行前一直存在
			return nil, w.execError(node, fmt.Errorf("上游节点 %s 的结果已被释放", dep.Node))
		}
		if dep.Output != "" {
			selected, err := selectOutput(value, dep)
			if err != nil {
				return nil, w.execError(node, err)
			}
			value = selected
		}
		args = append(args, value)
	}
	return args, nil
}

func selectOutput(value any, dep dag.Dependency) (any, error) {
	var outputs map[string]any
	switch v := value.(type) {
	case task.Outputs:
		outputs = v
	case map[string]any:
		outputs = v
	default:
		return nil, fmt.Errorf("%w: 上游节点 %s 没有命名输出（结果类型 %T），无法选择 %q", ErrMissingOutput, dep.Node, value, dep.Output)
	}
	selected, ok := outputs[dep.Output]
	if !ok {
		return nil, fmt.Errorf("%w: 上游节点 %s 没有输出 %q", ErrMissingOutput, dep.Node, dep.Output)
	}
	return selected, nil
}

// invoke 在独立goroutine中执行任务，使运行可以在超时或取消时立即返回
// 超时后任务goroutine不会被强制终止，任务应通过 TaskContext.Done() 感知取消
func (w *Workflow) invoke(ctx context.Context, runID string, node *dag.Node, tc *task.TaskContext, args []any) (any, error) {
	done := make(chan taskResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				err := w.execError(node, fmt.Errorf("panic: %v", r))
				err.Panic = true
				done <- taskResult{err: err}
			}
		}()
		value, err := node.Task.Execute(tc, args...)
		if err != nil {
			done <- taskResult{err: w.execError(node, err)}
			return
		}
		done <- taskResult{value: value}
	}()

	r, ok := awaitTask(ctx, done)
	if !ok {
		return nil, w.contextError(runID, node.ID, ctx.Err())
	}
	return r.value, r.err
}

type taskResult struct {
	value any
	err   error
}

// awaitTask 等待任务结果；上下文结束时已经完成的任务仍以其结果为准
func awaitTask(ctx context.Context, done <-chan taskResult) (taskResult, bool) {
	select {
	case r := <-done:
		return r, true
	case <-ctx.Done():
		select {
		case r := <-done:
			return r, true
		default:
			return taskResult{}, false
		}
	}
}

func (w *Workflow) execError(node *dag.Node, cause error) *TaskExecutionError {
	inputs := make([]string, 0, len(node.Dependencies))
	for _, dep := range node.Dependencies {
		inputs = append(inputs, dep.Node)
	}
	return &TaskExecutionError{Node: node.ID, Task: node.Name(), Inputs: inputs, Cause: cause}
}

func (w *Workflow) contextError(runID, nodeID string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &RunTimeoutError{RunID: runID, Node: nodeID}
	}
	return fmt.Errorf("运行 %s 在节点 %s 处被取消: %w", runID, nodeID, err)
}

// mergeParams 节点参数叠加运行级覆盖参数，返回新的map
func mergeParams(base, override map[string]any) map[string]any {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	merged := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}
