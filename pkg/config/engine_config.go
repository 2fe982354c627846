package config

import (
	"time"
)

// EngineConfig 引擎框架配置（对外导出）
type EngineConfig struct {
	EOFlow struct {
		General struct {
			InstanceName string `yaml:"instance_name"`
			LogLevel     string `yaml:"log_level"`
			Env          string `yaml:"env"`
		} `yaml:"general"`
		Storage struct {
			Database struct {
				Type            string        `yaml:"type"`
				DSN             string        `yaml:"dsn"`
				MaxOpenConns    int           `yaml:"max_open_conns"`
				MaxIdleConns    int           `yaml:"max_idle_conns"`
				ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
				ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
			} `yaml:"database"`
			// OverwritePermission 保存容器时的覆盖策略
			OverwritePermission string `yaml:"overwrite_permission"`
		} `yaml:"storage"`
		Execution struct {
			WorkerConcurrency int           `yaml:"worker_concurrency"`
			RunTimeout        time.Duration `yaml:"run_timeout"`
			Retry             struct {
				Enabled     bool          `yaml:"enabled"`
				MaxAttempts int           `yaml:"max_attempts"`
				Delay       time.Duration `yaml:"delay"`
				MaxDelay    time.Duration `yaml:"max_delay"`
			} `yaml:"retry"`
		} `yaml:"execution"`
		Events struct {
			Enabled bool `yaml:"enabled"`
		} `yaml:"events"`
		API struct {
			Host string `yaml:"host"`
			Port int    `yaml:"port"`
		} `yaml:"api"`
	} `yaml:"eoflow"`
}

// GetDatabaseType 获取数据库类型
func (c *EngineConfig) GetDatabaseType() string {
	return c.EOFlow.Storage.Database.Type
}

// GetDatabaseDSN 获取数据库DSN
func (c *EngineConfig) GetDatabaseDSN() string {
	return c.EOFlow.Storage.Database.DSN
}

// GetWorkerConcurrency 获取并发运行数
func (c *EngineConfig) GetWorkerConcurrency() int {
	concurrency := c.EOFlow.Execution.WorkerConcurrency
	if concurrency <= 0 {
		return 1 // 默认顺序执行
	}
	return concurrency
}

// GetRetryAttempts 获取最大尝试次数，未启用重试时为1
func (c *EngineConfig) GetRetryAttempts() int {
	if !c.EOFlow.Execution.Retry.Enabled || c.EOFlow.Execution.Retry.MaxAttempts < 1 {
		return 1
	}
	return c.EOFlow.Execution.Retry.MaxAttempts
}

// ApplyDefaults 应用默认值
func (c *EngineConfig) ApplyDefaults() {
	// General默认值
	if c.EOFlow.General.InstanceName == "" {
		c.EOFlow.General.InstanceName = "eoflow"
	}
	if c.EOFlow.General.LogLevel == "" {
		c.EOFlow.General.LogLevel = "info"
	}
	if c.EOFlow.General.Env == "" {
		c.EOFlow.General.Env = "dev"
	}

	// Database默认值
	if c.EOFlow.Storage.Database.Type == "" {
		c.EOFlow.Storage.Database.Type = "sqlite"
	}
	if c.EOFlow.Storage.Database.DSN == "" {
		c.EOFlow.Storage.Database.DSN = "./eoflow.db"
	}
	if c.EOFlow.Storage.Database.MaxOpenConns <= 0 {
		c.EOFlow.Storage.Database.MaxOpenConns = 10
	}
	if c.EOFlow.Storage.Database.MaxIdleConns <= 0 {
		c.EOFlow.Storage.Database.MaxIdleConns = 5
	}
	if c.EOFlow.Storage.Database.ConnMaxLifetime <= 0 {
		c.EOFlow.Storage.Database.ConnMaxLifetime = 2 * time.Hour
	}
	if c.EOFlow.Storage.Database.ConnMaxIdleTime <= 0 {
		c.EOFlow.Storage.Database.ConnMaxIdleTime = 1 * time.Hour
	}
	if c.EOFlow.Storage.OverwritePermission == "" {
		c.EOFlow.Storage.OverwritePermission = "ADD_ONLY"
	}

	// Execution默认值
	if c.EOFlow.Execution.WorkerConcurrency <= 0 {
		c.EOFlow.Execution.WorkerConcurrency = 1
	}

	// Retry默认值
	if c.EOFlow.Execution.Retry.MaxAttempts <= 0 {
		c.EOFlow.Execution.Retry.MaxAttempts = 3
	}
	if c.EOFlow.Execution.Retry.Delay <= 0 {
		c.EOFlow.Execution.Retry.Delay = 1 * time.Second
	}
	if c.EOFlow.Execution.Retry.MaxDelay <= 0 {
		c.EOFlow.Execution.Retry.MaxDelay = 5 * time.Second
	}

	// API默认值
	if c.EOFlow.API.Host == "" {
		c.EOFlow.API.Host = "0.0.0.0"
	}
	if c.EOFlow.API.Port <= 0 {
		c.EOFlow.API.Port = 8080
	}
}
