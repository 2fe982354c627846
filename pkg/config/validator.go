package config

import (
	"fmt"

	"github.com/LENAX/eoflow/pkg/core/task"
)

// ValidateEngineConfig 校验框架配置合法性
func ValidateEngineConfig(cfg *EngineConfig) error {
	if cfg == nil {
		return fmt.Errorf("配置不能为空")
	}
	c := &cfg.EOFlow

	// 校验General
	if c.General.InstanceName == "" {
		return fmt.Errorf("instance_name不能为空")
	}
	if c.General.LogLevel != "" {
		validLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[c.General.LogLevel] {
			return fmt.Errorf("log_level必须是debug/info/warn/error之一")
		}
	}

	// 校验Storage
	validDBTypes := map[string]bool{
		"sqlite":     true,
		"postgres":   true,
		"postgresql": true,
		"mysql":      true,
	}
	if !validDBTypes[c.Storage.Database.Type] {
		return fmt.Errorf("database.type必须是sqlite/postgres/mysql之一")
	}
	if c.Storage.Database.DSN == "" {
		return fmt.Errorf("database.dsn不能为空")
	}
	if c.Storage.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns必须大于0")
	}
	if c.Storage.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns不能为负数")
	}
	switch c.Storage.OverwritePermission {
	case "", "ADD_ONLY", "OVERWRITE_FEATURES", "OVERWRITE_PATCH":
	default:
		return fmt.Errorf("storage.overwrite_permission必须是ADD_ONLY/OVERWRITE_FEATURES/OVERWRITE_PATCH之一")
	}

	// 校验Execution
	if c.Execution.WorkerConcurrency <= 0 || c.Execution.WorkerConcurrency > 1000 {
		return fmt.Errorf("execution.worker_concurrency必须在1到1000之间")
	}
	if c.Execution.RunTimeout < 0 {
		return fmt.Errorf("execution.run_timeout不能为负数")
	}

	// 校验Retry
	if c.Execution.Retry.Enabled {
		if c.Execution.Retry.MaxAttempts < 0 {
			return fmt.Errorf("execution.retry.max_attempts不能为负数")
		}
		if c.Execution.Retry.Delay < 0 {
			return fmt.Errorf("execution.retry.delay不能为负数")
		}
		if c.Execution.Retry.MaxDelay < 0 {
			return fmt.Errorf("execution.retry.max_delay不能为负数")
		}
		if c.Execution.Retry.MaxDelay > 0 && c.Execution.Retry.Delay > c.Execution.Retry.MaxDelay {
			return fmt.Errorf("execution.retry.delay不能大于max_delay")
		}
	}

	// 校验API
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port必须在0到65535之间")
	}
	return nil
}

// ValidateWorkflowConfig 校验工作流定义合法性
// registry 非空时校验任务名称是否已注册。图结构（环、未知依赖）由 dag.Build 校验。
func ValidateWorkflowConfig(cfg *WorkflowConfig, registry *task.Registry) error {
	if cfg == nil {
		return fmt.Errorf("配置不能为空")
	}
	if cfg.Workflow.Name == "" {
		return fmt.Errorf("workflow.name不能为空")
	}
	if len(cfg.Workflow.Nodes) == 0 {
		return fmt.Errorf("workflow.nodes不能为空")
	}

	nodeIDMap := make(map[string]bool)
	for i, node := range cfg.Workflow.Nodes {
		if node.ID == "" {
			return fmt.Errorf("nodes[%d].id不能为空", i)
		}
		if nodeIDMap[node.ID] {
			return fmt.Errorf("nodes中存在重复的id: %s", node.ID)
		}
		nodeIDMap[node.ID] = true

		if node.Task == "" {
			return fmt.Errorf("nodes[%d].task不能为空", i)
		}
		if registry != nil && !registry.Exists(node.Task) {
			return fmt.Errorf("nodes[%d].task %s 未在注册表中注册", i, node.Task)
		}
		for k, dep := range node.DependsOn {
			if dep.Node == "" {
				return fmt.Errorf("nodes[%d].depends_on[%d].node不能为空", i, k)
			}
		}
	}

	for i, run := range cfg.Workflow.Runs {
		for nodeID := range run.Overrides {
			if !nodeIDMap[nodeID] {
				return fmt.Errorf("runs[%d].overrides 引用了不存在的节点 %s", i, nodeID)
			}
		}
	}
	return nil
}
