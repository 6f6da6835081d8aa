package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/codalotl/agentbench/internal/results"
	"github.com/codalotl/agentbench/internal/task"
	"github.com/codalotl/agentbench/internal/workspace"
)

// DefaultFile is the config file read when --config is not given.
const DefaultFile = "agentbench.yml"

// Environment variables that override the file.
const (
	EnvTasks     = "AGENTBENCH_TASKS"
	EnvResults   = "AGENTBENCH_RESULTS"
	EnvWorkspace = "AGENTBENCH_WORKSPACE"
)

// Config holds the harness settings. Precedence is flags > environment > file > defaults.
type Config struct {
	TasksDir     string       `yaml:"tasks_dir"`
	ResultsDir   string       `yaml:"results_dir"`
	WorkspaceDir string       `yaml:"workspace_dir"`
	RegistryDir  string       `yaml:"registry_dir"` // holds agents.yml and llms.yml
	TaskDefaults TaskDefaults `yaml:"task_defaults"`
	Index        Index        `yaml:"index"`
}

// TaskDefaults fill in task declarations that leave these fields out.
type TaskDefaults struct {
	Repository    string `yaml:"repository"`
	Ref           string `yaml:"ref"`
	VerifyCommand string `yaml:"verify_command"`
	VerifyTimeout int    `yaml:"verify_timeout"` // seconds
}

// Index controls the SQLite results index.
type Index struct {
	Enabled bool `yaml:"enabled"`
	// Path defaults to results.DefaultIndexFile inside the results directory.
	Path string `yaml:"path,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		TasksDir:     "tasks",
		ResultsDir:   results.DefaultDir,
		WorkspaceDir: workspace.DefaultRoot,
		RegistryDir:  ".",
		Index:        Index{Enabled: true},
	}
}

// Load reads path over the defaults. A missing file is not an error when optional is true.
func Load(path string, optional bool) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides directories from the environment. lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	for env, dst := range map[string]*string{
		EnvTasks:     &c.TasksDir,
		EnvResults:   &c.ResultsDir,
		EnvWorkspace: &c.WorkspaceDir,
	} {
		if v, ok := lookup(env); ok && v != "" {
			*dst = v
		}
	}
}

func (c *Config) Validate() error {
	if c.TasksDir == "" {
		return fmt.Errorf("tasks_dir is required")
	}
	if c.ResultsDir == "" {
		return fmt.Errorf("results_dir is required")
	}
	if c.WorkspaceDir == "" {
		return fmt.Errorf("workspace_dir is required")
	}
	if c.TaskDefaults.VerifyTimeout < 0 {
		return fmt.Errorf("task_defaults.verify_timeout must not be negative")
	}
	return nil
}

// Resolver returns the task resolver configured by TaskDefaults.
func (c *Config) Resolver() task.Resolver {
	return task.Resolver{
		Repository:    c.TaskDefaults.Repository,
		Ref:           c.TaskDefaults.Ref,
		VerifyCommand: c.TaskDefaults.VerifyCommand,
		VerifyTimeout: c.TaskDefaults.VerifyTimeout,
	}
}

// IndexPath returns the SQLite index location, or "" when the index is disabled.
func (c *Config) IndexPath() string {
	if !c.Index.Enabled {
		return ""
	}
	if c.Index.Path != "" {
		return c.Index.Path
	}
	return filepath.Join(c.ResultsDir, results.DefaultIndexFile)
}
