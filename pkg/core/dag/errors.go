package dag

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrGraphBuild 所有构建错误都可以用 errors.Is 匹配该错误
	ErrGraphBuild = errors.New("graph build failed")
	// ErrInvalidSpec 任务声明不完整（空ID、空任务或空依赖）
	ErrInvalidSpec = errors.New("invalid task spec")
)

// GraphCycleError 存在循环依赖（对外导出）
// Cycle 是输入中真实存在的闭合路径，首尾节点相同
type GraphCycleError struct {
	Cycle []string
}

func (e *GraphCycleError) Error() string {
	return fmt.Sprintf("检测到循环依赖: %s", strings.Join(e.Cycle, " -> "))
}

func (e *GraphCycleError) Is(target error) bool { return target == ErrGraphBuild }

// UnknownDependencyError 依赖的上游节点不存在（对外导出）
type UnknownDependencyError struct {
	Node    string
	Missing string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("节点 %s 依赖的节点 %s 不存在", e.Node, e.Missing)
}

func (e *UnknownDependencyError) Is(target error) bool { return target == ErrGraphBuild }

// DuplicateNodeError 节点ID重复（对外导出）
type DuplicateNodeError struct {
	ID string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("节点ID重复: %s", e.ID)
}

func (e *DuplicateNodeError) Is(target error) bool { return target == ErrGraphBuild }
