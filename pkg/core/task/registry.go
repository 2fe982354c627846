package task

import (
	"fmt"
	"sort"
	"sync"
)

// Factory 根据节点参数创建 Task 实例
type Factory func(params map[string]interface{}) (Task, error)

// Meta 注册项的元数据
type Meta struct {
	Name        string
	Description string
}

// Registry 任务注册中心（对外导出）
// 工作流配置通过任务名引用注册的 Factory
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	metaMap   map[string]*Meta
}

// NewRegistry 创建空的注册中心
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		metaMap:   make(map[string]*Meta),
	}
}

// Register 注册任务工厂
func (r *Registry) Register(name string, factory Factory, description string) error {
	if name == "" {
		return fmt.Errorf("任务名称不能为空")
	}
	if factory == nil {
		return fmt.Errorf("任务 %s 的工厂函数不能为空", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("任务 %s 已注册", name)
	}
	r.factories[name] = factory
	r.metaMap[name] = &Meta{Name: name, Description: description}
	return nil
}

// RegisterTask 注册无状态的任务实例，所有节点共享同一实例
func (r *Registry) RegisterTask(name string, t Task, description string) error {
	if t == nil {
		return fmt.Errorf("任务 %s 不能为空", name)
	}
	return r.Register(name, func(map[string]interface{}) (Task, error) { return t, nil }, description)
}

// RegisterFunc 通过 Wrap 注册普通函数
func (r *Registry) RegisterFunc(name string, fn interface{}, description string) error {
	t, err := Wrap(fn)
	if err != nil {
		return fmt.Errorf("包装任务 %s 失败: %w", name, err)
	}
	return r.RegisterTask(name, t, description)
}

// New 使用注册的工厂创建任务
func (r *Registry) New(name string, params map[string]interface{}) (Task, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("任务 %s 未注册", name)
	}
	t, err := factory(params)
	if err != nil {
		return nil, fmt.Errorf("创建任务 %s 失败: %w", name, err)
	}
	return WithName(t, name), nil
}

// Exists 检查任务是否已注册
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// GetMeta 获取元数据
func (r *Registry) GetMeta(name string) *Meta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metaMap[name]
}

// Unregister 注销任务
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; !ok {
		return fmt.Errorf("任务 %s 未注册", name)
	}
	delete(r.factories, name)
	delete(r.metaMap, name)
	return nil
}

// ListAll 列出所有已注册的任务名（排序后）
func (r *Registry) ListAll() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
