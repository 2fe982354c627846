package executor

import (
	"time"

	"github.com/LENAX/eoflow/pkg/core/engine"
)

// 运行状态
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusTimeout   = "timeout"
)

// RunStats 单次运行的统计（对外导出）
type RunStats struct {
	Index      int                `json:"index"`
	Name       string             `json:"name"`
	RunID      string             `json:"run_id"`
	Start      time.Time          `json:"start"`
	End        time.Time          `json:"end"`
	Success    bool               `json:"success"`
	Timeout    bool               `json:"timeout"`
	FailedNode string             `json:"failed_node,omitempty"`
	Error      string             `json:"error,omitempty"`
	Attempts   int                `json:"attempts"`
	Nodes      []engine.NodeStats `json:"nodes,omitempty"`

	// Outcome 最后一次尝试的完整结果，不参与持久化
	Outcome *engine.RunOutcome `json:"-"`
}

// Status 运行状态
func (r RunStats) Status() string {
	switch {
	case r.Success:
		return StatusSucceeded
	case r.Timeout:
		return StatusTimeout
	default:
		return StatusFailed
	}
}

// Duration 运行耗时（包含重试）
func (r RunStats) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Statistics 一次批量执行的统计（对外导出）
// Runs 与输入顺序一致，与完成顺序无关
type Statistics struct {
	ExecutionID  string     `json:"execution_id"`
	WorkflowName string     `json:"workflow_name"`
	Start        time.Time  `json:"start"`
	End          time.Time  `json:"end"`
	Concurrency  int        `json:"concurrency"`
	Runs         []RunStats `json:"runs"`
}

// Duration 批量执行耗时
func (s *Statistics) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// SuccessCount 成功的运行数量
func (s *Statistics) SuccessCount() int {
	n := 0
	for _, r := range s.Runs {
		if r.Success {
			n++
		}
	}
	return n
}

// FailedIndices 失败运行在输入中的位置
func (s *Statistics) FailedIndices() []int {
	var indices []int
	for _, r := range s.Runs {
		if !r.Success {
			indices = append(indices, r.Index)
		}
	}
	return indices
}
