package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/eoflow/pkg/api/dto"
	"github.com/LENAX/eoflow/pkg/core/executor"
	"github.com/LENAX/eoflow/pkg/storage"
)

const testWorkflow = `
workflow:
  name: "cli-test"
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
  runs:
    - name: tile-0
      destination: "out/0"
    - name: tile-1
      overrides:
        init:
          shape: [2, 2]
`

func setup(t *testing.T) (configPath, workflowPath string) {
	t.Helper()
	color.NoColor = true
	dir := t.TempDir()
	configPath = filepath.Join(dir, "engine.yaml")
	engineYAML := fmt.Sprintf(`
eoflow:
  general:
    log_level: error
  storage:
    database:
      type: sqlite
      dsn: %q
  execution:
    worker_concurrency: 2
  events:
    enabled: true
`, filepath.Join(dir, "eoflow.db"))
	require.NoError(t, os.WriteFile(configPath, []byte(engineYAML), 0644))

	workflowPath = filepath.Join(dir, "workflow.yaml")
	require.NoError(t, os.WriteFile(workflowPath, []byte(testWorkflow), 0644))
	return configPath, workflowPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRunAndReport(t *testing.T) {
	configPath, workflowPath := setup(t)

	out, err := execute(t, "run", "-c", configPath, "-w", workflowPath, "--json")
	require.NoError(t, err)
	var stats executor.Statistics
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, "cli-test", stats.WorkflowName)
	require.Len(t, stats.Runs, 2)
	assert.True(t, stats.Runs[0].Success, stats.Runs[0].Error)
	assert.False(t, stats.Runs[1].Success)
	assert.Equal(t, "init", stats.Runs[1].FailedNode)

	_, err = execute(t, "run", "-c", configPath, "-w", workflowPath, "--fail-on-error")
	assert.Error(t, err)

	out, err = execute(t, "report", "-c", configPath, "--json")
	require.NoError(t, err)
	var rows []storage.ExecutionSummary
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	assert.Len(t, rows, 2)

	out, err = execute(t, "report", stats.ExecutionID, "-c", configPath, "--json")
	require.NoError(t, err)
	var detail dto.ExecutionDetail
	require.NoError(t, json.Unmarshal([]byte(out), &detail))
	assert.Equal(t, stats.ExecutionID, detail.ID)
	assert.Equal(t, []int{1}, detail.FailedIndices)

	out, err = execute(t, "report", stats.ExecutionID, "-c", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "tile-0")
	assert.Contains(t, out, "succeeded")
}

func TestRun_SavesDestination(t *testing.T) {
	configPath, workflowPath := setup(t)
	_, err := execute(t, "run", "-c", configPath, "-w", workflowPath)
	require.NoError(t, err)

	out, err := execute(t, "run", "-c", configPath, "-w", workflowPath)
	// ADD_ONLY 策略下相同内容可以重复保存
	require.NoError(t, err)
	assert.Contains(t, out, "tile-0")
}

func TestRun_MissingWorkflow(t *testing.T) {
	configPath, _ := setup(t)
	_, err := execute(t, "run", "-c", configPath, "-w", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = execute(t, "run", "-c", configPath)
	assert.Error(t, err)
}

func TestGraph(t *testing.T) {
	_, workflowPath := setup(t)

	out, err := execute(t, "graph", "-w", workflowPath, "--json")
	require.NoError(t, err)
	var nodes []graphNode
	require.NoError(t, json.Unmarshal([]byte(out), &nodes))
	require.Len(t, nodes, 2)
	assert.Equal(t, "create", nodes[0].ID)
	assert.Equal(t, 0, nodes[0].Level)
	assert.Equal(t, 1, nodes[0].Consumers)
	assert.Equal(t, []string{"create"}, nodes[1].DependsOn)
	assert.True(t, nodes[1].Terminal)

	cyclic := filepath.Join(t.TempDir(), "cyclic.yaml")
	require.NoError(t, os.WriteFile(cyclic, []byte(`
workflow:
  name: cyclic
  nodes:
    - {id: a, task: copy, depends_on: [b]}
    - {id: b, task: copy, depends_on: [a]}
`), 0644))
	_, err = execute(t, "graph", "-w", cyclic)
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, Version)
}
