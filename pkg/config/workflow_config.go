package config

import "gopkg.in/yaml.v3"

// WorkflowConfig 工作流定义文件（对外导出）
type WorkflowConfig struct {
	Workflow struct {
		Name        string           `yaml:"name"`
		Description string           `yaml:"description"`
		Nodes       []NodeDefinition `yaml:"nodes"`
		Runs        []RunDefinition  `yaml:"runs"`
	} `yaml:"workflow"`
}

// NodeDefinition 节点定义
type NodeDefinition struct {
	ID        string                 `yaml:"id"`
	Task      string                 `yaml:"task"` // 注册表中的任务名称
	Params    map[string]interface{} `yaml:"params"`
	DependsOn []DependencyDefinition `yaml:"depends_on"`
	Output    bool                   `yaml:"output"`
}

// DependencyDefinition 依赖定义，Output 为空时使用上游的完整结果
type DependencyDefinition struct {
	Node   string `yaml:"node"`
	Output string `yaml:"output"`
}

// UnmarshalYAML 支持直接写节点ID的简写形式
func (d *DependencyDefinition) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		d.Node = value.Value
		return nil
	}
	type plain DependencyDefinition
	return value.Decode((*plain)(d))
}

// RunDefinition 单次运行的输入
// Source、Destination 与 Overrides 中的 ${name} 占位符在生成运行输入时替换，
// 可用的变量为 index、name 以及 Vars 中的键。
type RunDefinition struct {
	Name        string                            `yaml:"name"`
	Vars        map[string]interface{}            `yaml:"vars"`
	Source      string                            `yaml:"source"`
	Destination string                            `yaml:"destination"`
	Overrides   map[string]map[string]interface{} `yaml:"overrides"`
}

// GetNodeByID 根据ID获取节点定义
func (c *WorkflowConfig) GetNodeByID(id string) *NodeDefinition {
	for i := range c.Workflow.Nodes {
		if c.Workflow.Nodes[i].ID == id {
			return &c.Workflow.Nodes[i]
		}
	}
	return nil
}
