package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/LENAX/eoflow/pkg/core/dag"
	"github.com/LENAX/eoflow/pkg/core/engine"
	"github.com/LENAX/eoflow/pkg/core/executor"
	"github.com/LENAX/eoflow/pkg/core/task"
)

// LoadEngineConfig 加载框架配置文件
// 文件不存在时返回默认配置
func LoadEngineConfig(path string) (*EngineConfig, error) {
	var cfg EngineConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := ValidateEngineConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadWorkflowConfig 加载工作流定义文件
func LoadWorkflowConfig(path string) (*WorkflowConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取工作流文件 %s 失败: %w", path, err)
	}
	return ParseWorkflowConfig(data)
}

// ParseWorkflowConfig 从YAML内容解析工作流定义
func ParseWorkflowConfig(data []byte) (*WorkflowConfig, error) {
	var cfg WorkflowConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析工作流定义失败: %w", err)
	}
	return &cfg, nil
}

// TaskSpecs 通过注册表实例化所有节点
func (c *WorkflowConfig) TaskSpecs(registry *task.Registry) ([]dag.TaskSpec, error) {
	specs := make([]dag.TaskSpec, 0, len(c.Workflow.Nodes))
	for _, node := range c.Workflow.Nodes {
		t, err := registry.New(node.Task, node.Params)
		if err != nil {
			return nil, fmt.Errorf("节点 %s: %w", node.ID, err)
		}
		deps := make([]dag.Dependency, 0, len(node.DependsOn))
		for _, d := range node.DependsOn {
			deps = append(deps, dag.Dependency{Node: d.Node, Output: d.Output})
		}
		specs = append(specs, dag.TaskSpec{
			ID:           node.ID,
			Task:         t,
			Dependencies: deps,
			Params:       node.Params,
			Output:       node.Output,
		})
	}
	return specs, nil
}

// RunInputs 转换为执行器的运行输入，并替换占位符
func (c *WorkflowConfig) RunInputs() ([]executor.RunInput, error) {
	inputs := make([]executor.RunInput, 0, len(c.Workflow.Runs))
	for i, r := range c.Workflow.Runs {
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("run-%d", i)
		}
		vars := map[string]interface{}{"index": i, "name": name}
		for k, v := range r.Vars {
			vars[k] = v
		}

		var unreplaced []string
		source, missing := ReplacePlaceholders(r.Source, vars)
		unreplaced = append(unreplaced, missing...)
		dest, missing := ReplacePlaceholders(r.Destination, vars)
		unreplaced = append(unreplaced, missing...)

		var overrides engine.Overrides
		if len(r.Overrides) > 0 {
			overrides = make(engine.Overrides, len(r.Overrides))
			for nodeID, params := range r.Overrides {
				expanded, missing := expandValue(map[string]interface{}(params), vars)
				unreplaced = append(unreplaced, missing...)
				overrides[nodeID] = expanded.(map[string]interface{})
			}
		}
		if len(unreplaced) > 0 {
			return nil, placeholderError(name, unreplaced)
		}

		inputs = append(inputs, executor.RunInput{
			Name:        name,
			Source:      source,
			Destination: dest,
			Overrides:   overrides,
		})
	}
	return inputs, nil
}
