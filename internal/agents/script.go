package agents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/sirupsen/logrus"

	"github.com/codalotl/agentbench/internal/logging"
	"github.com/codalotl/agentbench/internal/task"
)

// ScriptConfig configures a Script backend.
type ScriptConfig struct {
	Name    string
	Version string
	Model   string
	// Command is tokenized like a shell command line (quotes respected, no expansion).
	Command string
	Env     map[string]string
	Logger  logrus.FieldLogger
}

// Script runs an arbitrary command as the agent. The task prompt is written to the command's stdin and
// the task is described through AGENTBENCH_* environment variables. Exit code 0 means the agent reports
// success.
type Script struct {
	name    string
	version string
	model   string
	argv    []string
	env     []string
	logger  logrus.FieldLogger
}

func NewScript(cfg ScriptConfig) (*Script, error) {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		return nil, errors.New("script agent requires a name")
	}
	argv, err := shellwords.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse command for agent %q: %w", name, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("agent %q has no command", name)
	}
	return &Script{
		name:    name,
		version: strings.TrimSpace(cfg.Version),
		model:   strings.TrimSpace(cfg.Model),
		argv:    argv,
		env:     envList(cfg.Env),
		logger:  logging.OrNoop(cfg.Logger).WithField("svc", "agents.Script"),
	}, nil
}

func (s *Script) Name() string  { return s.name }
func (s *Script) Model() string { return s.model }

func (s *Script) Execute(ctx context.Context, def *task.Definition, workDir string) (*Result, error) {
	cmd := exec.CommandContext(ctx, s.argv[0], s.argv[1:]...)
	cmd.Dir = workDir
	cmd.Stdin = strings.NewReader(def.Prompt)
	cmd.Env = childEnv(append([]string{
		"AGENTBENCH_TASK_ID=" + def.ID,
		"AGENTBENCH_CATEGORY=" + def.Category,
		"AGENTBENCH_MODEL=" + s.model,
		"AGENTBENCH_WORKDIR=" + workDir,
		fmt.Sprintf("AGENTBENCH_MAX_ITERATIONS=%d", def.MaxIterations),
	}, s.env...))
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	s.logger.WithFields(logrus.Fields{"task": def.ID, "dir": workDir}).Debugf("Executing: %s", strings.Join(s.argv, " "))
	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	if ctx.Err() != nil {
		return nil, &ExecutionError{Agent: s.name, Err: ctx.Err()}
	}
	var exitErr *exec.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		return nil, &ExecutionError{Agent: s.name, Err: fmt.Errorf("start %s: %w", s.argv[0], runErr)}
	}

	return &Result{
		Success:      runErr == nil,
		Transcript:   out.String(),
		Iterations:   1,
		Duration:     duration,
		AgentVersion: s.version,
		Model:        s.model,
	}, nil
}

// envList renders env as sorted KEY=VALUE pairs.
func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// childEnv returns the current process environment with extra appended. Later entries win in exec, so
// extra overrides inherited values without touching os.Environ itself.
func childEnv(extra []string) []string {
	if len(extra) == 0 {
		return nil
	}
	return append(os.Environ(), extra...)
}
