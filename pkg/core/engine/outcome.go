package engine

import (
	"time"

	"github.com/LENAX/eoflow/pkg/core/eodata"
)

// NodeStats 单个节点的执行记录
type NodeStats struct {
	Node  string    `json:"node"`
	Task  string    `json:"task"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Error string    `json:"error,omitempty"`
}

// Duration 执行耗时
func (s NodeStats) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// RunOutcome 单次运行的结果（对外导出）
// 成功时 Outputs 包含所有终端节点的输出；失败时不暴露任何输出，
// FailedNode 与 Err 给出失败原因，Partial 表示失败前已有节点完成。
type RunOutcome struct {
	RunID      string
	Workflow   string
	Success    bool
	Outputs    map[string]any
	Patch      *eodata.Patch // 运行结束时的容器，失败时为nil
	FailedNode string
	Err        error
	Partial    bool
	Nodes      []NodeStats
	Start      time.Time
	End        time.Time
}

// Duration 运行耗时
func (o *RunOutcome) Duration() time.Duration {
	return o.End.Sub(o.Start)
}

// Output 获取终端节点输出
func (o *RunOutcome) Output(nodeID string) (any, bool) {
	v, ok := o.Outputs[nodeID]
	return v, ok
}

// Timeout 是否因超时失败
func (o *RunOutcome) Timeout() bool {
	return o.Err != nil && IsTimeout(o.Err)
}
