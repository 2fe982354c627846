package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/LENAX/eoflow/pkg/core/dag"
	"github.com/LENAX/eoflow/pkg/core/eodata"
	"github.com/LENAX/eoflow/pkg/core/task"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recorder 按顺序记录观察者事件
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) OnNodeStart(_, nodeID string) { r.add("start:" + nodeID) }
func (r *recorder) OnNodeFinish(_, nodeID string, _ time.Duration, _ error) {
	r.add("finish:" + nodeID)
}
func (r *recorder) OnRelease(_, nodeID string) { r.add("release:" + nodeID) }

func (r *recorder) indexOf(e string) int {
	for i, ev := range r.events {
		if ev == e {
			return i
		}
	}
	return -1
}

// buffer 模拟大块内存，记录释放次数
type buffer struct {
	released int
}

func (b *buffer) Release() { b.released++ }

func value(v any) task.Task {
	return task.Func(func(tc *task.TaskContext, args ...any) (any, error) { return v, nil })
}

func deps(ids ...string) []dag.Dependency {
	out := make([]dag.Dependency, len(ids))
	for i, id := range ids {
		out[i] = dag.Dependency{Node: id}
	}
	return out
}

func newWorkflow(t *testing.T, specs []dag.TaskSpec, opts ...Option) *Workflow {
	t.Helper()
	g, err := dag.Build(specs)
	require.NoError(t, err)
	w, err := New(g, opts...)
	require.NoError(t, err)
	return w
}

func TestRun_ReleasesAfterLastConsumer(t *testing.T) {
	buf := &buffer{}
	var seenByB, seenByC int

	specs := []dag.TaskSpec{
		{ID: "A", Task: value(buf)},
		{ID: "B", Dependencies: deps("A"), Task: task.Func(func(tc *task.TaskContext, args ...any) (any, error) {
			seenByB = args[0].(*buffer).released
			return "b", nil
		})},
		{ID: "C", Dependencies: deps("A"), Task: task.Func(func(tc *task.TaskContext, args ...any) (any, error) {
			// A的结果在C执行时仍然存在
			seenByC = args[0].(*buffer).released
			return "c", nil
		})},
	}
	rec := &recorder{}
	w := newWorkflow(t, specs, WithObserver(rec))

	outcome := w.Run(context.Background(), nil, nil)
	require.True(t, outcome.Success, "%v", outcome.Err)

	assert.Equal(t, 0, seenByB)
	assert.Equal(t, 0, seenByC)
	assert.Equal(t, 1, buf.released)

	// A 在 C（第二个消费者）完成后才释放，且在 B 完成后仍然保留
	releaseA := rec.indexOf("release:A")
	require.NotEqual(t, -1, releaseA)
	assert.Greater(t, releaseA, rec.indexOf("finish:C"))
	assert.Greater(t, rec.indexOf("start:C"), rec.indexOf("finish:B"))
	assert.Equal(t, map[string]any{"B": "b", "C": "c"}, outcome.Outputs)
}

func TestRun_ReleaseTimingIsImmediate(t *testing.T) {
	// A -> B -> C，A 只有 B 一个消费者，应在 C 开始前释放
	rec := &recorder{}
	w := newWorkflow(t, []dag.TaskSpec{
		{ID: "A", Task: value(1)},
		{ID: "B", Dependencies: deps("A"), Task: value(2)},
		{ID: "C", Dependencies: deps("B"), Task: value(3)},
	}, WithObserver(rec))

	outcome := w.Run(context.Background(), nil, nil)
	require.True(t, outcome.Success)
	assert.Less(t, rec.indexOf("release:A"), rec.indexOf("start:C"))
	assert.Greater(t, rec.indexOf("release:A"), rec.indexOf("finish:B"))
}

func TestRun_FailFast(t *testing.T) {
	boom := errors.New("boom")
	cRan := false
	w := newWorkflow(t, []dag.TaskSpec{
		{ID: "A", Task: value(1)},
		{ID: "B", Dependencies: deps("A"), Task: task.Func(func(tc *task.TaskContext, args ...any) (any, error) {
			return nil, boom
		})},
		{ID: "C", Dependencies: deps("B"), Task: task.Func(func(tc *task.TaskContext, args ...any) (any, error) {
			cRan = true
			return nil, nil
		})},
	})

	outcome := w.Run(context.Background(), nil, nil)
	assert.False(t, outcome.Success)
	assert.Equal(t, "B", outcome.FailedNode)
	assert.False(t, cRan)
	assert.True(t, outcome.Partial)
	assert.Nil(t, outcome.Outputs)
	assert.ErrorIs(t, outcome.Err, boom)

	var execErr *TaskExecutionError
	require.True(t, errors.As(outcome.Err, &execErr))
	assert.Equal(t, "B", execErr.Node)
	assert.Equal(t, []string{"A"}, execErr.Inputs)
	assert.Len(t, outcome.Nodes, 2)
}

func TestRun_FirstNodeFailsIsNotPartial(t *testing.T) {
	w := newWorkflow(t, []dag.TaskSpec{
		{ID: "A", Task: task.Func(func(tc *task.TaskContext, args ...any) (any, error) { return nil, errors.New("x") })},
	})
	outcome := w.Run(context.Background(), nil, nil)
	assert.False(t, outcome.Partial)
	assert.Equal(t, "A", outcome.FailedNode)
}

func TestRun_PanicRecovered(t *testing.T) {
	w := newWorkflow(t, []dag.TaskSpec{
		{ID: "A", Task: task.Func(func(tc *task.TaskContext, args ...any) (any, error) { panic("bad input") })},
	})
	outcome := w.Run(context.Background(), nil, nil)
	var execErr *TaskExecutionError
	require.True(t, errors.As(outcome.Err, &execErr))
	assert.True(t, execErr.Panic)
	assert.Contains(t, execErr.Error(), "bad input")
}

func TestRun_OverridesAndParams(t *testing.T) {
	var got map[string]any
	w := newWorkflow(t, []dag.TaskSpec{
		{ID: "A", Params: map[string]any{"threshold": 0.5, "band": "B04"}, Task: task.Func(func(tc *task.TaskContext, args ...any) (any, error) {
			got = tc.Params
			return nil, nil
		})},
	})

	outcome := w.Run(context.Background(), nil, Overrides{"A": {"threshold": 0.8}})
	require.True(t, outcome.Success)
	assert.Equal(t, map[string]any{"threshold": 0.8, "band": "B04"}, got)

	// 覆盖参数不会修改图中的节点参数
	node, _ := w.Graph().Node("A")
	assert.Equal(t, 0.5, node.Params["threshold"])
}

func TestRun_NamedOutputs(t *testing.T) {
	var got []any
	w := newWorkflow(t, []dag.TaskSpec{
		{ID: "split", Task: value(task.Outputs{"left": 1, "right": 2})},
		{ID: "join", Dependencies: []dag.Dependency{{Node: "split", Output: "right"}, {Node: "split", Output: "left"}},
			Task: task.Func(func(tc *task.TaskContext, args ...any) (any, error) {
				got = args
				return nil, nil
			})},
	})
	outcome := w.Run(context.Background(), nil, nil)
	require.True(t, outcome.Success)
	assert.Equal(t, []any{2, 1}, got)

	bad := newWorkflow(t, []dag.TaskSpec{
		{ID: "split", Task: value(task.Outputs{"left": 1})},
		{ID: "join", Dependencies: []dag.Dependency{{Node: "split", Output: "middle"}}, Task: value(nil)},
	})
	outcome = bad.Run(context.Background(), nil, nil)
	assert.Equal(t, "join", outcome.FailedNode)
	assert.ErrorIs(t, outcome.Err, ErrMissingOutput)
}

func TestRun_PatchOwnershipPassing(t *testing.T) {
	initial := eodata.New(nil, nil)
	replacement := eodata.New(nil, nil)
	var seen *eodata.Patch

	w := newWorkflow(t, []dag.TaskSpec{
		{ID: "mutate", Task: task.Func(func(tc *task.TaskContext, args ...any) (any, error) {
			return nil, tc.Patch().Set(eodata.MetaInfoType, "step", 1)
		})},
		{ID: "swap", Dependencies: deps("mutate"), Task: value(replacement)},
		{ID: "check", Dependencies: deps("swap"), Task: task.Func(func(tc *task.TaskContext, args ...any) (any, error) {
			seen = tc.Patch()
			return nil, nil
		})},
	})

	outcome := w.Run(context.Background(), initial, nil)
	require.True(t, outcome.Success)
	assert.True(t, initial.Has(eodata.MetaInfoType, "step"))
	assert.Same(t, replacement, seen)
	assert.Same(t, replacement, outcome.Patch)
}

func TestRun_Timeout(t *testing.T) {
	w := newWorkflow(t, []dag.TaskSpec{
		{ID: "slow", Task: task.Func(func(tc *task.TaskContext, args ...any) (any, error) {
			select {
			case <-tc.Done():
				return nil, tc.Err()
			case <-time.After(5 * time.Second):
				return nil, nil
			}
		})},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	outcome := w.Run(ctx, nil, nil)

	assert.False(t, outcome.Success)
	assert.True(t, outcome.Timeout())
	assert.Equal(t, "slow", outcome.FailedNode)
	assert.ErrorIs(t, outcome.Err, context.DeadlineExceeded)
}

func TestRun_Cancelled(t *testing.T) {
	w := newWorkflow(t, []dag.TaskSpec{{ID: "A", Task: value(1)}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome := w.Run(ctx, nil, nil)
	assert.False(t, outcome.Success)
	assert.False(t, outcome.Timeout())
	assert.ErrorIs(t, outcome.Err, context.Canceled)
}

func TestRun_FailureReleasesHeldResults(t *testing.T) {
	buf := &buffer{}
	rec := &recorder{}
	w := newWorkflow(t, []dag.TaskSpec{
		{ID: "A", Task: value(buf)},
		{ID: "B", Dependencies: deps("A"), Task: task.Func(func(tc *task.TaskContext, args ...any) (any, error) {
			return nil, fmt.Errorf("fail")
		})},
		{ID: "C", Dependencies: deps("A"), Task: value(nil)},
	}, WithObserver(rec))

	outcome := w.Run(context.Background(), nil, nil)
	assert.False(t, outcome.Success)
	assert.Equal(t, 1, buf.released)
	assert.NotEqual(t, -1, rec.indexOf("release:A"))
}

func TestResultStore_TerminalNotReleasedThroughReleaser(t *testing.T) {
	g := dag.MustBuild([]dag.TaskSpec{{ID: "A", Task: value(nil)}})
	var released []int
	store := NewResultStore(g, func(idx int) { released = append(released, idx) })

	buf := &buffer{}
	store.Put(0, buf)
	assert.Equal(t, []int{0}, released)
	assert.Equal(t, 0, buf.released)
	assert.Equal(t, 0, store.Held())
}

func TestRun_ConcurrentRunsShareGraph(t *testing.T) {
	w := newWorkflow(t, []dag.TaskSpec{
		{ID: "tag", Task: task.Func(func(tc *task.TaskContext, args ...any) (any, error) {
			return nil, tc.Patch().Set(eodata.MetaInfoType, "run", tc.RunID)
		})},
	})

	var wg sync.WaitGroup
	patches := make([]*eodata.Patch, 8)
	for i := range patches {
		patches[i] = eodata.New(nil, nil)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w.RunWithID(context.Background(), fmt.Sprintf("r%d", i), patches[i], nil)
		}(i)
	}
	wg.Wait()

	for i, p := range patches {
		v, _ := p.Get(eodata.MetaInfoType, "run")
		assert.Equal(t, fmt.Sprintf("r%d", i), v)
	}
}

func TestRun_PassThroughTerminalNotReleased(t *testing.T) {
	buf := &buffer{}
	rec := &recorder{}
	w := newWorkflow(t, []dag.TaskSpec{
		{ID: "a", Task: value(buf)},
		{ID: "b", Dependencies: deps("a"), Task: task.Func(func(tc *task.TaskContext, args ...any) (any, error) {
			return args[0], nil
		})},
	}, WithObserver(rec))

	outcome := w.Run(context.Background(), nil, nil)
	require.True(t, outcome.Success, "%v", outcome.Err)

	out, ok := outcome.Output("b")
	require.True(t, ok)
	assert.Same(t, buf, out)
	assert.Equal(t, 0, buf.released)
	// 引用仍按时释放
	assert.NotEqual(t, -1, rec.indexOf("release:a"))
}

func TestRun_NamedOutputPassThroughNotReleased(t *testing.T) {
	buf := &buffer{}
	w := newWorkflow(t, []dag.TaskSpec{
		{ID: "a", Task: value(buf)},
		{ID: "b", Dependencies: deps("a"), Task: task.Func(func(tc *task.TaskContext, args ...any) (any, error) {
			return task.Outputs{"raw": args[0]}, nil
		})},
	})

	outcome := w.Run(context.Background(), nil, nil)
	require.True(t, outcome.Success, "%v", outcome.Err)
	assert.Equal(t, 0, buf.released)
}

func TestRun_AbortReleasesRetainedValues(t *testing.T) {
	buf := &buffer{}
	w := newWorkflow(t, []dag.TaskSpec{
		{ID: "a", Task: value(buf)},
		{ID: "b", Dependencies: deps("a"), Output: true, Task: task.Func(func(tc *task.TaskContext, args ...any) (any, error) {
			return args[0], nil
		})},
		{ID: "c", Dependencies: deps("a"), Task: task.Func(func(tc *task.TaskContext, args ...any) (any, error) {
			return nil, errors.New("fail")
		})},
	})

	outcome := w.Run(context.Background(), nil, nil)
	require.False(t, outcome.Success)
	assert.Nil(t, outcome.Outputs)
	assert.Equal(t, 1, buf.released)
}

func TestAwaitTask_CompletedResultWinsOverDeadline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 100; i++ {
		done := make(chan taskResult, 1)
		done <- taskResult{value: i}
		r, ok := awaitTask(ctx, done)
		require.True(t, ok)
		assert.Equal(t, i, r.value)
	}

	_, ok := awaitTask(ctx, make(chan taskResult, 1))
	assert.False(t, ok)
}
