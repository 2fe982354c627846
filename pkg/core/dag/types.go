// Package dag 把任务声明构建为经过校验的有向无环图与确定性的执行顺序
package dag

import (
	"github.com/LENAX/eoflow/pkg/core/task"
)

// Dependency 上游依赖声明（对外导出）
type Dependency struct {
	Node   string // 上游节点ID
	Output string // 命名输出选择器，为空时绑定上游的完整输出
}

// TaskSpec 任务声明（对外导出）
type TaskSpec struct {
	ID           string
	Task         task.Task
	Dependencies []Dependency
	Params       map[string]interface{}
	Output       bool // 是否为终端节点，其输出会出现在运行结果中
}

// Node DAG节点结构（对外导出）
// 构建完成后只读
type Node struct {
	ID           string
	Index        int // 声明顺序
	Task         task.Task
	Dependencies []Dependency
	Params       map[string]interface{}
	Output       bool

	Parents  []int // 去重后的上游节点下标，按首次出现顺序
	Children []int // 去重后的下游节点下标，升序
}

// Name 任务展示名称
func (n *Node) Name() string {
	return task.NameOf(n.Task)
}

// TopologicalOrder 拓扑排序结果（对外导出）
type TopologicalOrder struct {
	Order  []string   // 执行顺序
	Levels [][]string // 每一层的节点ID，同层节点之间没有依赖
}
