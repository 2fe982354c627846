// Package events 提供批量执行与单次运行的事件发布订阅
package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType 事件类型
type EventType string

const (
	// 批量执行事件
	EventExecutionStarted  EventType = "execution.started"  // 批量执行开始
	EventExecutionFinished EventType = "execution.finished" // 批量执行结束

	// 运行事件
	EventRunStarted   EventType = "run.started"   // 运行开始
	EventRunSucceeded EventType = "run.succeeded" // 运行成功
	EventRunFailed    EventType = "run.failed"    // 运行失败
	EventRunTimeout   EventType = "run.timeout"   // 运行超时
)

// AllEventTypes 所有事件类型
func AllEventTypes() []EventType {
	return []EventType{
		EventExecutionStarted, EventExecutionFinished,
		EventRunStarted, EventRunSucceeded, EventRunFailed, EventRunTimeout,
	}
}

// Event 事件基础结构
type Event struct {
	ID          string            `json:"id"`                    // 事件ID（UUID）
	Type        EventType         `json:"type"`                  // 事件类型
	ExecutionID string            `json:"execution_id"`          // 批量执行ID
	Workflow    string            `json:"workflow"`              // 工作流名称
	RunID       string            `json:"run_id,omitempty"`      // 运行ID
	RunName     string            `json:"run_name,omitempty"`    // 运行名称
	Index       int               `json:"index"`                 // 运行在输入中的位置
	FailedNode  string            `json:"failed_node,omitempty"` // 失败节点
	Error       string            `json:"error,omitempty"`       // 错误信息
	Timestamp   time.Time         `json:"timestamp"`             // 事件时间
	Metadata    map[string]string `json:"metadata,omitempty"`    // 元数据
}

// NewEvent 创建事件
func NewEvent(eventType EventType, executionID, workflow string) *Event {
	return &Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		ExecutionID: executionID,
		Workflow:    workflow,
		Timestamp:   time.Now(),
	}
}

// WithRun 设置运行信息
func (e *Event) WithRun(index int, runID, name string) *Event {
	e.Index = index
	e.RunID = runID
	e.RunName = name
	return e
}

// WithFailure 设置失败信息
func (e *Event) WithFailure(node string, err error) *Event {
	e.FailedNode = node
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithMetadata 添加元数据
func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}
