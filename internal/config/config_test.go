package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codalotl/agentbench/internal/config"
	"github.com/codalotl/agentbench/internal/results"
	"github.com/codalotl/agentbench/internal/task"
	"github.com/codalotl/agentbench/internal/workspace"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), config.DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingOptional(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yml"), true)
	require.NoError(t, err)
	require.Equal(t, config.Default(), cfg)
	require.Equal(t, workspace.DefaultRoot, cfg.WorkspaceDir)

	_, err = config.Load(filepath.Join(t.TempDir(), "nope.yml"), false)
	require.Error(t, err)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
tasks_dir: bench/tasks
task_defaults:
  repository: https://github.com/example/bench.git
  ref: v1
  verify_command: go test ./...
  verify_timeout: 120
index:
  enabled: false
`)
	cfg, err := config.Load(path, false)
	require.NoError(t, err)
	require.Equal(t, "bench/tasks", cfg.TasksDir)
	require.Equal(t, results.DefaultDir, cfg.ResultsDir)
	require.Equal(t, task.Resolver{
		Repository:    "https://github.com/example/bench.git",
		Ref:           "v1",
		VerifyCommand: "go test ./...",
		VerifyTimeout: 120,
	}, cfg.Resolver())
	require.Empty(t, cfg.IndexPath())
}

func TestLoadRejectsInvalid(t *testing.T) {
	for name, body := range map[string]string{
		"bad yaml":         "tasks_dir: [",
		"empty tasks":      `tasks_dir: ""`,
		"negative timeout": "task_defaults:\n  verify_timeout: -1\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, body), false)
			require.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := config.Default()
	env := map[string]string{
		config.EnvTasks:   "/srv/tasks",
		config.EnvResults: "",
	}
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.Equal(t, "/srv/tasks", cfg.TasksDir)
	require.Equal(t, results.DefaultDir, cfg.ResultsDir)
	require.Equal(t, workspace.DefaultRoot, cfg.WorkspaceDir)
}

func TestIndexPath(t *testing.T) {
	cfg := config.Default()
	cfg.ResultsDir = "out"
	require.Equal(t, filepath.Join("out", results.DefaultIndexFile), cfg.IndexPath())

	cfg.Index.Path = "/var/lib/agentbench.db"
	require.Equal(t, "/var/lib/agentbench.db", cfg.IndexPath())
}
