package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/eoflow/pkg/core/dag"
	"github.com/LENAX/eoflow/pkg/core/task"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadEngineConfig(t *testing.T) {
	path := writeFile(t, "engine.yaml", `
eoflow:
  general:
    instance_name: "test-engine"
    log_level: "debug"
    env: "test"
  storage:
    database:
      type: "sqlite"
      dsn: "./test.db"
      max_open_conns: 5
      max_idle_conns: 2
      conn_max_lifetime: "1h"
    overwrite_permission: "OVERWRITE_FEATURES"
  execution:
    worker_concurrency: 4
    run_timeout: "90s"
    retry:
      enabled: true
      max_attempts: 5
      delay: "2s"
      max_delay: "10s"
  api:
    port: 9090
`)
	cfg, err := LoadEngineConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "test-engine", cfg.EOFlow.General.InstanceName)
	assert.Equal(t, "debug", cfg.EOFlow.General.LogLevel)
	assert.Equal(t, "sqlite", cfg.GetDatabaseType())
	assert.Equal(t, "./test.db", cfg.GetDatabaseDSN())
	assert.Equal(t, time.Hour, cfg.EOFlow.Storage.Database.ConnMaxLifetime)
	assert.Equal(t, "OVERWRITE_FEATURES", cfg.EOFlow.Storage.OverwritePermission)
	assert.Equal(t, 4, cfg.GetWorkerConcurrency())
	assert.Equal(t, 90*time.Second, cfg.EOFlow.Execution.RunTimeout)
	assert.Equal(t, 5, cfg.GetRetryAttempts())
	assert.Equal(t, 2*time.Second, cfg.EOFlow.Execution.Retry.Delay)
	assert.Equal(t, 9090, cfg.EOFlow.API.Port)
}

func TestLoadEngineConfig_Defaults(t *testing.T) {
	cfg, err := LoadEngineConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "eoflow", cfg.EOFlow.General.InstanceName)
	assert.Equal(t, "info", cfg.EOFlow.General.LogLevel)
	assert.Equal(t, "sqlite", cfg.GetDatabaseType())
	assert.Equal(t, 1, cfg.GetWorkerConcurrency())
	assert.Equal(t, "ADD_ONLY", cfg.EOFlow.Storage.OverwritePermission)
	// 未启用重试
	assert.Equal(t, 1, cfg.GetRetryAttempts())
	assert.Equal(t, 8080, cfg.EOFlow.API.Port)
}

func TestLoadEngineConfig_Invalid(t *testing.T) {
	_, err := LoadEngineConfig(writeFile(t, "bad.yaml", "eoflow: [not, a, map]"))
	assert.Error(t, err)

	_, err = LoadEngineConfig(writeFile(t, "level.yaml", `
eoflow:
  general:
    log_level: "verbose"
`))
	assert.ErrorContains(t, err, "log_level")
}

func TestValidateEngineConfig(t *testing.T) {
	valid := func() *EngineConfig {
		cfg := &EngineConfig{}
		cfg.ApplyDefaults()
		return cfg
	}
	require.NoError(t, ValidateEngineConfig(valid()))
	assert.Error(t, ValidateEngineConfig(nil))

	cases := map[string]func(*EngineConfig){
		"database.type": func(c *EngineConfig) { c.EOFlow.Storage.Database.Type = "oracle" },
		"database.dsn":  func(c *EngineConfig) { c.EOFlow.Storage.Database.DSN = "" },
		"overwrite":     func(c *EngineConfig) { c.EOFlow.Storage.OverwritePermission = "ALWAYS" },
		"concurrency":   func(c *EngineConfig) { c.EOFlow.Execution.WorkerConcurrency = 1001 },
		"run_timeout":   func(c *EngineConfig) { c.EOFlow.Execution.RunTimeout = -time.Second },
		"retry.delay": func(c *EngineConfig) {
			c.EOFlow.Execution.Retry.Enabled = true
			c.EOFlow.Execution.Retry.Delay = time.Minute
			c.EOFlow.Execution.Retry.MaxDelay = time.Second
		},
		"api.port": func(c *EngineConfig) { c.EOFlow.API.Port = 70000 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.Error(t, ValidateEngineConfig(cfg))
		})
	}
}

const workflowYAML = `
workflow:
  name: "ndvi"
  nodes:
    - id: create
      task: create_patch
      params:
        bbox: {min_x: 0, min_y: 0, max_x: 1, max_y: 1, crs: "EPSG:4326"}
    - id: init
      task: initialize_feature
      depends_on: [create]
      params:
        feature: "mask_timeless:valid"
        shape: [2, 2, 1]
        value: 1
    - id: rename
      task: rename_feature
      depends_on:
        - node: init
      params:
        feature: "mask_timeless:valid"
        new_name: "is_valid"
      output: true
  runs:
    - name: tile-0
      destination: "out/0"
    - name: tile-1
      overrides:
        init:
          value: 0
`

func TestLoadWorkflowConfig(t *testing.T) {
	cfg, err := LoadWorkflowConfig(writeFile(t, "wf.yaml", workflowYAML))
	require.NoError(t, err)

	assert.Equal(t, "ndvi", cfg.Workflow.Name)
	require.Len(t, cfg.Workflow.Nodes, 3)
	assert.Equal(t, []DependencyDefinition{{Node: "create"}}, cfg.Workflow.Nodes[1].DependsOn)
	assert.Equal(t, []DependencyDefinition{{Node: "init"}}, cfg.Workflow.Nodes[2].DependsOn)
	assert.True(t, cfg.GetNodeByID("rename").Output)
	assert.Nil(t, cfg.GetNodeByID("missing"))

	inputs, err := cfg.RunInputs()
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, "out/0", inputs[0].Destination)
	assert.Equal(t, 0, inputs[1].Overrides["init"]["value"])

	_, err = LoadWorkflowConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWorkflowConfig_TaskSpecs(t *testing.T) {
	registry := task.NewRegistry()
	require.NoError(t, task.RegisterBuiltins(registry, nil))

	cfg, err := ParseWorkflowConfig([]byte(workflowYAML))
	require.NoError(t, err)
	require.NoError(t, ValidateWorkflowConfig(cfg, registry))

	specs, err := cfg.TaskSpecs(registry)
	require.NoError(t, err)
	g, err := dag.Build(specs)
	require.NoError(t, err)
	assert.Equal(t, []string{"create", "init", "rename"}, g.Order())
	assert.Equal(t, []string{"rename"}, g.Terminals())
}

func TestValidateWorkflowConfig(t *testing.T) {
	registry := task.NewRegistry()
	require.NoError(t, task.RegisterBuiltins(registry, nil))

	cases := map[string]string{
		"empty name": `
workflow:
  nodes: [{id: a, task: copy}]`,
		"no nodes": `
workflow:
  name: x`,
		"duplicate id": `
workflow:
  name: x
  nodes: [{id: a, task: copy}, {id: a, task: copy}]`,
		"unknown task": `
workflow:
  name: x
  nodes: [{id: a, task: not_registered}]`,
		"override unknown node": `
workflow:
  name: x
  nodes: [{id: a, task: copy}]
  runs:
    - overrides: {b: {deep: true}}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := ParseWorkflowConfig([]byte(content))
			require.NoError(t, err)
			assert.Error(t, ValidateWorkflowConfig(cfg, registry))
		})
	}
	assert.Error(t, ValidateWorkflowConfig(nil, registry))
}

func TestRunInputs_Placeholders(t *testing.T) {
	cfg, err := ParseWorkflowConfig([]byte(`
workflow:
  name: x
  nodes: [{id: init, task: initialize_feature}]
  runs:
    - name: tile-a
      source: "in/${name}"
      destination: "out/${region}/${index}"
      vars: {region: alps, fill: 3}
      overrides:
        init: {value: "${fill}", label: "${region}-${index}", shape: ["${fill}", 2]}
    - source: "in/${name}"
`))
	require.NoError(t, err)

	inputs, err := cfg.RunInputs()
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, "in/tile-a", inputs[0].Source)
	assert.Equal(t, "out/alps/0", inputs[0].Destination)
	assert.Equal(t, 3, inputs[0].Overrides["init"]["value"])
	assert.Equal(t, "alps-0", inputs[0].Overrides["init"]["label"])
	assert.Equal(t, []interface{}{3, 2}, inputs[0].Overrides["init"]["shape"])
	assert.Equal(t, "run-1", inputs[1].Name)
	assert.Equal(t, "in/run-1", inputs[1].Source)

	cfg.Workflow.Runs[1].Destination = "out/${missing}"
	_, err = cfg.RunInputs()
	assert.ErrorContains(t, err, "missing")
}

func TestReplacePlaceholders(t *testing.T) {
	out, missing := ReplacePlaceholders("a/${x}/${y}/${", map[string]interface{}{"x": 1})
	assert.Equal(t, "a/1/${y}/${", out)
	assert.Equal(t, []string{"y"}, missing)

	out, missing = ReplacePlaceholders("plain", nil)
	assert.Equal(t, "plain", out)
	assert.Empty(t, missing)
}
