package dag

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/eoflow/pkg/core/task"
)

var noop = task.Func(func(tc *task.TaskContext, args ...any) (any, error) { return nil, nil })

func spec(id string, deps ...string) TaskSpec {
	s := TaskSpec{ID: id, Task: noop}
	for _, d := range deps {
		s.Dependencies = append(s.Dependencies, Dependency{Node: d})
	}
	return s
}

// assertOrderRespectsEdges 每条边的上游都排在下游之前
func assertOrderRespectsEdges(t *testing.T, g *Graph, specs []TaskSpec) {
	t.Helper()
	pos := make(map[string]int)
	for i, id := range g.Order() {
		pos[id] = i
	}
	require.Len(t, pos, len(specs))
	for _, s := range specs {
		for _, d := range s.Dependencies {
			assert.Less(t, pos[d.Node], pos[s.ID], "%s 应该在 %s 之前执行", d.Node, s.ID)
		}
	}
}

func TestBuild_Diamond(t *testing.T) {
	specs := []TaskSpec{
		spec("load"),
		spec("ndvi", "load"),
		spec("mask", "load"),
		spec("merge", "ndvi", "mask"),
	}
	g, err := Build(specs)
	require.NoError(t, err)

	assert.Equal(t, []string{"load", "ndvi", "mask", "merge"}, g.Order())
	assert.Equal(t, [][]string{{"load"}, {"ndvi", "mask"}, {"merge"}}, g.Levels())
	assert.Equal(t, 2, g.Refcount("load"))
	assert.Equal(t, 1, g.Refcount("ndvi"))
	assert.Equal(t, 0, g.Refcount("merge"))
	assert.Equal(t, []string{"merge"}, g.Terminals())
	assertOrderRespectsEdges(t, g, specs)

	children, err := g.GetChildren("load")
	require.NoError(t, err)
	assert.Equal(t, []string{"ndvi", "mask"}, children)
}

func TestBuild_TiesBrokenByDeclarationOrder(t *testing.T) {
	// c 声明在 b 之前，两者都只依赖 a
	specs := []TaskSpec{spec("z"), spec("a"), spec("c", "a"), spec("b", "a")}
	g, err := Build(specs)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a", "c", "b"}, g.Order())

	// 下游声明在上游之前
	specs = []TaskSpec{spec("sink", "src"), spec("src")}
	g, err = Build(specs)
	require.NoError(t, err)
	assert.Equal(t, []string{"src", "sink"}, g.Order())
}

func TestBuild_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 20; round++ {
		// 随机生成无环图：只允许依赖下标更小的节点，再打乱声明顺序
		n := 12
		specs := make([]TaskSpec, n)
		for i := 0; i < n; i++ {
			specs[i] = spec(fmt.Sprintf("n%d", i))
			for j := 0; j < i; j++ {
				if rng.Intn(4) == 0 {
					specs[i].Dependencies = append(specs[i].Dependencies, Dependency{Node: fmt.Sprintf("n%d", j)})
				}
			}
		}
		rng.Shuffle(n, func(i, j int) { specs[i], specs[j] = specs[j], specs[i] })

		g1, err := Build(specs)
		require.NoError(t, err)
		g2, err := Build(specs)
		require.NoError(t, err)
		assert.Equal(t, g1.Order(), g2.Order())
		assertOrderRespectsEdges(t, g1, specs)
	}
}

func TestBuild_Cycle(t *testing.T) {
	specs := []TaskSpec{
		spec("a"),
		spec("b", "a", "d"),
		spec("c", "b"),
		spec("d", "c"),
		spec("e", "d"),
	}
	_, err := Build(specs)
	require.Error(t, err)

	var cycleErr *GraphCycleError
	require.True(t, errors.As(err, &cycleErr))
	assert.ErrorIs(t, err, ErrGraphBuild)

	// 闭合路径中的每一条边都真实存在
	cycle := cycleErr.Cycle
	require.GreaterOrEqual(t, len(cycle), 2)
	assert.Equal(t, cycle[0], cycle[len(cycle)-1])
	deps := make(map[string]map[string]bool)
	for _, s := range specs {
		deps[s.ID] = make(map[string]bool)
		for _, d := range s.Dependencies {
			deps[s.ID][d.Node] = true
		}
	}
	for i := 0; i+1 < len(cycle); i++ {
		assert.True(t, deps[cycle[i+1]][cycle[i]], "边 %s -> %s 不存在", cycle[i], cycle[i+1])
	}
	assert.ElementsMatch(t, []string{"b", "c", "d"}, cycle[:len(cycle)-1])
}

func TestBuild_SelfDependency(t *testing.T) {
	_, err := Build([]TaskSpec{spec("a", "a")})
	var cycleErr *GraphCycleError
	require.True(t, errors.As(err, &cycleErr))
	assert.Equal(t, []string{"a", "a"}, cycleErr.Cycle)
}

func TestBuild_UnknownDependency(t *testing.T) {
	_, err := Build([]TaskSpec{spec("a"), spec("b", "missing")})
	var unknownErr *UnknownDependencyError
	require.True(t, errors.As(err, &unknownErr))
	assert.Equal(t, "b", unknownErr.Node)
	assert.Equal(t, "missing", unknownErr.Missing)
	assert.ErrorIs(t, err, ErrGraphBuild)
}

func TestBuild_DuplicateNode(t *testing.T) {
	_, err := Build([]TaskSpec{spec("a"), spec("a")})
	var dupErr *DuplicateNodeError
	require.True(t, errors.As(err, &dupErr))
	assert.Equal(t, "a", dupErr.ID)
}

func TestBuild_InvalidSpec(t *testing.T) {
	_, err := Build([]TaskSpec{{ID: "", Task: noop}})
	assert.ErrorIs(t, err, ErrInvalidSpec)
	_, err = Build([]TaskSpec{{ID: "a"}})
	assert.ErrorIs(t, err, ErrInvalidSpec)
}

func TestBuild_RefcountCountsDistinctConsumers(t *testing.T) {
	// b 通过两个命名输出依赖 a，只算一个消费者
	specs := []TaskSpec{
		spec("a"),
		{ID: "b", Task: noop, Dependencies: []Dependency{{Node: "a", Output: "x"}, {Node: "a", Output: "y"}}},
		spec("c", "a"),
	}
	g, err := Build(specs)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0, 0}, g.Refcounts())
	b, ok := g.Node("b")
	require.True(t, ok)
	assert.Equal(t, []int{0}, b.Parents)
	assert.Len(t, b.Dependencies, 2)
}

func TestBuild_ExplicitOutputs(t *testing.T) {
	specs := []TaskSpec{spec("a"), spec("b", "a"), spec("c", "a")}
	specs[0].Output = true
	g, err := Build(specs)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, g.Terminals())
	assert.True(t, g.IsTerminal(0))
	assert.False(t, g.IsTerminal(1))
}

func TestBuild_ParamsCopied(t *testing.T) {
	params := map[string]interface{}{"k": 1}
	s := spec("a")
	s.Params = params
	g, err := Build([]TaskSpec{s})
	require.NoError(t, err)
	params["k"] = 2
	node, _ := g.Node("a")
	assert.Equal(t, 1, node.Params["k"])
}
