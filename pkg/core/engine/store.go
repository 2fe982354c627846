package engine

import (
	"reflect"

	"github.com/LENAX/eoflow/pkg/core/dag"
	"github.com/LENAX/eoflow/pkg/core/task"
)

// ResultStore 单次运行的中间结果存储（对外导出）
// 以节点下标为索引，remaining 为每个结果尚未执行的下游消费者数量。
// 只被拥有该运行的goroutine访问，不加锁。
type ResultStore struct {
	graph     *dag.Graph
	values    []any
	present   []bool
	remaining []int
	retained  []any // 已交给运行结果的值，释放时不调用 Releaser
	onRelease func(idx int)
}

// NewResultStore 创建中间结果存储，引用计数从图中复制
func NewResultStore(g *dag.Graph, onRelease func(idx int)) *ResultStore {
	return &ResultStore{
		graph:     g,
		values:    make([]any, g.Len()),
		present:   make([]bool, g.Len()),
		remaining: g.Refcounts(),
		onRelease: onRelease,
	}
}

// Put 保存节点结果
// 没有下游消费者的结果不会被保留
func (s *ResultStore) Put(idx int, value any) {
	s.values[idx] = value
	s.present[idx] = true
	if s.remaining[idx] == 0 {
		s.Release(idx)
	}
}

// Get 获取节点结果
func (s *ResultStore) Get(idx int) (any, bool) {
	return s.values[idx], s.present[idx]
}

// Consume 记录消费者已执行，每个上游只减一次，计数归零时释放
// 返回本次释放的节点下标
func (s *ResultStore) Consume(consumer int) []int {
	var released []int
	for _, parent := range s.graph.NodeAt(consumer).Parents {
		if s.remaining[parent] == 0 {
			continue
		}
		s.remaining[parent]--
		if s.remaining[parent] == 0 {
			s.Release(parent)
			released = append(released, parent)
		}
	}
	return released
}

// Retain 标记一个已交给运行结果的值
// 上游节点的结果被终端节点原样返回时，释放上游结果不会调用它的 Releaser
func (s *ResultStore) Retain(value any) {
	if _, ok := value.(task.Releaser); ok {
		s.retained = append(s.retained, value)
	}
	if outputs, ok := value.(task.Outputs); ok {
		for _, v := range outputs {
			s.Retain(v)
		}
	}
}

// Release 释放节点结果
// 终端节点的结果以及被 Retain 标记的值已交给运行结果，只丢弃引用，不调用 Releaser
func (s *ResultStore) Release(idx int) {
	s.release(idx, true)
}

// ReleaseAll 释放所有仍被持有的结果，运行中止时使用
// 中止的运行不暴露输出，被 Retain 标记的值同样调用 Releaser
func (s *ResultStore) ReleaseAll() {
	for idx := range s.values {
		s.release(idx, false)
	}
	s.retained = nil
}

func (s *ResultStore) release(idx int, honorRetained bool) {
	if !s.present[idx] {
		return
	}
	value := s.values[idx]
	s.values[idx] = nil
	s.present[idx] = false
	if r, ok := value.(task.Releaser); ok && !s.graph.IsTerminal(idx) && !(honorRetained && s.isRetained(value)) {
		r.Release()
	}
	if s.onRelease != nil {
		s.onRelease(idx)
	}
}

func (s *ResultStore) isRetained(value any) bool {
	if len(s.retained) == 0 || !reflect.TypeOf(value).Comparable() {
		return false
	}
	for _, v := range s.retained {
		if reflect.TypeOf(v) == reflect.TypeOf(value) && v == value {
			return true
		}
	}
	return false
}

// Remaining 节点结果尚未执行的消费者数量
func (s *ResultStore) Remaining(idx int) int {
	return s.remaining[idx]
}

// Held 当前持有的结果数量
func (s *ResultStore) Held() int {
	n := 0
	for _, ok := range s.present {
		if ok {
			n++
		}
	}
	return n
}
