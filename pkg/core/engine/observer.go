package engine

import "time"

// Observer 运行过程的观察者（对外导出）
// 回调在运行所在的goroutine中同步执行，实现需要自行保证并发安全（多个运行可能并行）
type Observer interface {
	OnNodeStart(runID, nodeID string)
	OnNodeFinish(runID, nodeID string, duration time.Duration, err error)
	OnRelease(runID, nodeID string)
}

// NopObserver 空实现，可嵌入只关心部分回调的观察者
type NopObserver struct{}

func (NopObserver) OnNodeStart(string, string)                         {}
func (NopObserver) OnNodeFinish(string, string, time.Duration, error) {}
func (NopObserver) OnRelease(string, string)                           {}

// Observers 组合多个观察者
type Observers []Observer

func (os Observers) OnNodeStart(runID, nodeID string) {
	for _, o := range os {
		o.OnNodeStart(runID, nodeID)
	}
}

func (os Observers) OnNodeFinish(runID, nodeID string, d time.Duration, err error) {
	for _, o := range os {
		o.OnNodeFinish(runID, nodeID, d, err)
	}
}

func (os Observers) OnRelease(runID, nodeID string) {
	for _, o := range os {
		o.OnRelease(runID, nodeID)
	}
}
