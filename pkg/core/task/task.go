// Package task 定义工作流节点的调用约定、执行上下文与任务注册中心
package task

import (
	"fmt"
	"reflect"
)

// Task 工作流中的计算单元（对外导出）
// args 为上游节点的输出（按依赖声明顺序），运行容器与参数通过 TaskContext 获取。
// 返回 *eodata.Patch 时，该 Patch 成为后续节点使用的运行容器。
type Task interface {
	Execute(tc *TaskContext, args ...any) (any, error)
}

// Func 函数适配器，使普通函数满足 Task 接口（对外导出）
type Func func(tc *TaskContext, args ...any) (any, error)

// Execute 调用函数本身
func (f Func) Execute(tc *TaskContext, args ...any) (any, error) {
	return f(tc, args...)
}

// Outputs 多个命名输出，下游通过 Dependency.Output 选择其中一项（对外导出）
type Outputs map[string]any

// Releaser 中间结果释放时会被调用（对外导出）
// 持有大块内存或外部资源的输出值可以实现该接口
type Releaser interface {
	Release()
}

// Namer 可选接口，提供任务的展示名称
type Namer interface {
	Name() string
}

// NameOf 返回任务的展示名称，未实现 Namer 时使用类型名
func NameOf(t Task) string {
	if t == nil {
		return "<nil>"
	}
	if n, ok := t.(Namer); ok {
		return n.Name()
	}
	typ := reflect.TypeOf(t)
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() == reflect.Func {
		return "func"
	}
	return typ.Name()
}

// named 为任意 Task 附加名称
type named struct {
	Task
	name string
}

func (n named) Name() string { return n.name }

// WithName 返回带展示名称的 Task
func WithName(t Task, name string) Task {
	return named{Task: t, name: name}
}

// ArgError 位置参数不符合任务要求
type ArgError struct {
	Index    int
	Expected string
	Actual   any
}

func (e *ArgError) Error() string {
	return fmt.Sprintf("第%d个参数类型错误: 期望 %s，实际为 %T", e.Index, e.Expected, e.Actual)
}
