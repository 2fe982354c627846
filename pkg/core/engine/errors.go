package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrMissingOutput 上游没有产生依赖声明中的命名输出
var ErrMissingOutput = errors.New("missing named output")

// TaskExecutionError 任务执行失败（对外导出）
// 包含失败节点、任务名称、输入来源与原始错误
type TaskExecutionError struct {
	Node   string
	Task   string
	Inputs []string // 上游节点ID，按依赖声明顺序
	Panic  bool
	Cause  error
}

func (e *TaskExecutionError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "节点 %s（任务 %s）执行失败", e.Node, e.Task)
	if len(e.Inputs) > 0 {
		fmt.Fprintf(&sb, "，输入来自 [%s]", strings.Join(e.Inputs, ", "))
	}
	if e.Panic {
		sb.WriteString("，任务panic")
	}
	fmt.Fprintf(&sb, ": %v", e.Cause)
	return sb.String()
}

func (e *TaskExecutionError) Unwrap() error { return e.Cause }

// RunTimeoutError 运行超时（对外导出）
type RunTimeoutError struct {
	RunID string
	Node  string // 超时发生时正在执行或即将执行的节点
}

func (e *RunTimeoutError) Error() string {
	return fmt.Sprintf("运行 %s 超时，节点 %s 未完成", e.RunID, e.Node)
}

// Unwrap 使 errors.Is(err, context.DeadlineExceeded) 成立
func (e *RunTimeoutError) Unwrap() error { return context.DeadlineExceeded }

// IsTimeout 错误是否为运行超时
func IsTimeout(err error) bool {
	var timeoutErr *RunTimeoutError
	return errors.As(err, &timeoutErr)
}
