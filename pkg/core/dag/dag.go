package dag

import (
	"container/heap"
	"fmt"
	"sort"
	"strings"
)

// Graph 执行图（对外导出）
// 构建后不可变，可以被多个并发运行共享
type Graph struct {
	nodes     []*Node
	index     map[string]int
	order     []int
	levels    [][]int
	refcounts []int
	terminal  []bool
}

// Build 校验任务声明并构建执行图（对外导出）
// 校验顺序：声明完整性、ID重复、未知依赖、循环依赖。任何错误都不会返回部分构建的图。
// 执行顺序使用 Kahn 算法，多个入度为0的节点中总是先选声明顺序最靠前的。
func Build(specs []TaskSpec) (*Graph, error) {
	g := &Graph{
		nodes: make([]*Node, 0, len(specs)),
		index: make(map[string]int, len(specs)),
	}

	// 1. 声明完整性与ID重复
	for i, spec := range specs {
		if spec.ID == "" {
			return nil, fmt.Errorf("%w: 第%d个任务缺少ID", ErrInvalidSpec, i)
		}
		if spec.Task == nil {
			return nil, fmt.Errorf("%w: 节点 %s 缺少任务", ErrInvalidSpec, spec.ID)
		}
		if _, exists := g.index[spec.ID]; exists {
			return nil, &DuplicateNodeError{ID: spec.ID}
		}
		g.index[spec.ID] = i
		g.nodes = append(g.nodes, &Node{
			ID:           spec.ID,
			Index:        i,
			Task:         spec.Task,
			Dependencies: append([]Dependency(nil), spec.Dependencies...),
			Params:       copyParams(spec.Params),
			Output:       spec.Output,
		})
	}

	// 2. 解析依赖，构建去重的父子关系
	for _, node := range g.nodes {
		seen := make(map[int]bool, len(node.Dependencies))
		for _, dep := range node.Dependencies {
			if dep.Node == "" {
				return nil, fmt.Errorf("%w: 节点 %s 存在空的依赖", ErrInvalidSpec, node.ID)
			}
			parent, ok := g.index[dep.Node]
			if !ok {
				return nil, &UnknownDependencyError{Node: node.ID, Missing: dep.Node}
			}
			if seen[parent] {
				continue
			}
			seen[parent] = true
			node.Parents = append(node.Parents, parent)
			g.nodes[parent].Children = append(g.nodes[parent].Children, node.Index)
		}
	}
	for _, node := range g.nodes {
		sort.Ints(node.Children)
	}

	// 3. 拓扑排序，无法排完所有节点说明存在环
	order, levels := g.kahn()
	if len(order) < len(g.nodes) {
		return nil, &GraphCycleError{Cycle: g.findCycle(order)}
	}
	g.order = order
	g.levels = levels

	// 4. 引用计数与终端节点
	g.refcounts = make([]int, len(g.nodes))
	g.terminal = make([]bool, len(g.nodes))
	hasOutput := false
	for _, node := range g.nodes {
		g.refcounts[node.Index] = len(node.Children)
		if node.Output {
			hasOutput = true
		}
	}
	for _, node := range g.nodes {
		if hasOutput {
			g.terminal[node.Index] = node.Output
		} else {
			g.terminal[node.Index] = len(node.Children) == 0
		}
	}
	return g, nil
}

// MustBuild 同 Build，失败时panic，用于测试与静态定义的工作流
func MustBuild(specs []TaskSpec) *Graph {
	g, err := Build(specs)
	if err != nil {
		panic(err)
	}
	return g
}

// kahn 按声明顺序打破平局的 Kahn 算法，同时计算层级
func (g *Graph) kahn() ([]int, [][]int) {
	inDegree := make([]int, len(g.nodes))
	level := make([]int, len(g.nodes))
	ready := &indexHeap{}
	for _, node := range g.nodes {
		inDegree[node.Index] = len(node.Parents)
		if inDegree[node.Index] == 0 {
			heap.Push(ready, node.Index)
		}
	}

	order := make([]int, 0, len(g.nodes))
	var levels [][]int
	for ready.Len() > 0 {
		current := heap.Pop(ready).(int)
		order = append(order, current)

		if level[current] == len(levels) {
			levels = append(levels, nil)
		}
		levels[level[current]] = append(levels[level[current]], current)

		for _, child := range g.nodes[current].Children {
			if level[current]+1 > level[child] {
				level[child] = level[current] + 1
			}
			inDegree[child]--
			if inDegree[child] == 0 {
				heap.Push(ready, child)
			}
		}
	}
	for _, l := range levels {
		sort.Ints(l)
	}
	return order, levels
}

// findCycle 在未被排序的节点中用DFS找出一条闭合路径
// 使用三色标记法：0=白色（未访问），1=灰色（正在访问），2=黑色（已访问）
func (g *Graph) findCycle(sorted []int) []string {
	color := make([]int, len(g.nodes))
	for _, idx := range sorted {
		color[idx] = 2
	}
	parent := make([]int, len(g.nodes))
	var cycle []int

	var dfs func(current int) bool
	dfs = func(current int) bool {
		color[current] = 1
		for _, child := range g.nodes[current].Children {
			switch color[child] {
			case 0:
				parent[child] = current
				if dfs(child) {
					return true
				}
			case 1:
				// 后向边 current -> child，沿parent回溯得到 child -> ... -> current
				path := []int{current}
				for cur := current; cur != child; {
					cur = parent[cur]
					path = append(path, cur)
				}
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				cycle = append(path, child)
				return true
			}
		}
		color[current] = 2
		return false
	}

	for _, node := range g.nodes {
		if color[node.Index] == 0 && dfs(node.Index) {
			break
		}
	}

	ids := make([]string, len(cycle))
	for i, idx := range cycle {
		ids[i] = g.nodes[idx].ID
	}
	return ids
}

// Len 节点数量
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Node 按ID获取节点
func (g *Graph) Node(id string) (*Node, bool) {
	idx, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return g.nodes[idx], true
}

// NodeAt 按声明下标获取节点
func (g *Graph) NodeAt(idx int) *Node {
	return g.nodes[idx]
}

// Nodes 按声明顺序返回所有节点
func (g *Graph) Nodes() []*Node {
	return append([]*Node(nil), g.nodes...)
}

// OrderIndices 执行顺序（节点下标）
func (g *Graph) OrderIndices() []int {
	return append([]int(nil), g.order...)
}

// Order 执行顺序（节点ID）
func (g *Graph) Order() []string {
	return g.ids(g.order)
}

// Levels 拓扑层级（节点ID）
func (g *Graph) Levels() [][]string {
	result := make([][]string, len(g.levels))
	for i, l := range g.levels {
		result[i] = g.ids(l)
	}
	return result
}

// TopologicalSort 返回执行顺序与层级
func (g *Graph) TopologicalSort() *TopologicalOrder {
	return &TopologicalOrder{Order: g.Order(), Levels: g.Levels()}
}

// Refcounts 每个节点的直接下游消费者数量（按声明下标）
func (g *Graph) Refcounts() []int {
	return append([]int(nil), g.refcounts...)
}

// Refcount 指定节点的直接下游消费者数量
func (g *Graph) Refcount(id string) int {
	idx, ok := g.index[id]
	if !ok {
		return 0
	}
	return g.refcounts[idx]
}

// IsTerminal 节点是否为终端节点
func (g *Graph) IsTerminal(idx int) bool {
	return g.terminal[idx]
}

// Terminals 终端节点ID（按声明顺序）
func (g *Graph) Terminals() []string {
	var ids []string
	for i, t := range g.terminal {
		if t {
			ids = append(ids, g.nodes[i].ID)
		}
	}
	return ids
}

// GetParents 获取节点的上游节点ID
func (g *Graph) GetParents(id string) ([]string, error) {
	node, ok := g.Node(id)
	if !ok {
		return nil, fmt.Errorf("节点 %s 不存在", id)
	}
	return g.ids(node.Parents), nil
}

// GetChildren 获取节点的下游节点ID
func (g *Graph) GetChildren(id string) ([]string, error) {
	node, ok := g.Node(id)
	if !ok {
		return nil, fmt.Errorf("节点 %s 不存在", id)
	}
	return g.ids(node.Children), nil
}

func (g *Graph) String() string {
	var sb strings.Builder
	for i, level := range g.Levels() {
		fmt.Fprintf(&sb, "level %d: %s\n", i, strings.Join(level, ", "))
	}
	return sb.String()
}

func (g *Graph) ids(indices []int) []string {
	ids := make([]string, len(indices))
	for i, idx := range indices {
		ids[i] = g.nodes[idx].ID
	}
	return ids
}

func copyParams(params map[string]interface{}) map[string]interface{} {
	if params == nil {
		return nil
	}
	cp := make(map[string]interface{}, len(params))
	for k, v := range params {
		cp[k] = v
	}
	return cp
}

// indexHeap 节点下标的最小堆
type indexHeap []int

func (h indexHeap) Len() int            { return len(h) }
func (h indexHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x interface{}) { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
