package agents

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/codalotl/agentbench/internal/logging"
	"github.com/codalotl/agentbench/internal/task"
)

const claudeBinary = "claude"

// ClaudeConfig configures a Claude Code CLI backend.
type ClaudeConfig struct {
	// Name overrides the recorded agent name. Defaults to "claude".
	Name string
	// Binary overrides the executable. Defaults to "claude" on PATH.
	Binary string
	Model  string
	// Env is added to the child process environment only.
	Env    map[string]string
	Logger logrus.FieldLogger
}

// Claude runs tasks with the Claude Code CLI in non-interactive print mode.
type Claude struct {
	name   string
	binary string
	model  string
	env    []string
	logger logrus.FieldLogger

	versionOnce sync.Once
	version     string
}

func NewClaude(cfg ClaudeConfig) *Claude {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = "claude"
	}
	binary := strings.TrimSpace(cfg.Binary)
	if binary == "" {
		binary = claudeBinary
	}
	return &Claude{
		name:   name,
		binary: binary,
		model:  strings.TrimSpace(cfg.Model),
		env:    envList(cfg.Env),
		logger: logging.OrNoop(cfg.Logger).WithField("svc", "agents.Claude"),
	}
}

func (c *Claude) Name() string  { return c.name }
func (c *Claude) Model() string { return c.model }

func (c *Claude) Execute(ctx context.Context, def *task.Definition, workDir string) (*Result, error) {
	prompt := strings.TrimSpace(def.Prompt)
	if prompt == "" {
		return nil, &ExecutionError{Agent: c.name, Err: errors.New("task prompt is empty")}
	}

	args := c.args(def, prompt)
	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Dir = workDir
	cmd.Env = childEnv(c.env)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger := c.logger.WithFields(logrus.Fields{"task": def.ID, "model": c.model, "dir": workDir})
	logger.Debugf("Executing: %s %s", c.binary, strings.Join(args[:len(args)-1], " "))

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	if ctx.Err() != nil {
		return nil, &ExecutionError{Agent: c.name, Err: ctx.Err()}
	}
	var exitErr *exec.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		return nil, &ExecutionError{Agent: c.name, Err: fmt.Errorf("start %s: %w", c.binary, runErr)}
	}

	parsed := parseClaudeOutput(stdout.Bytes())
	transcript := stdout.String()
	if stderr.Len() > 0 {
		transcript = fmt.Sprintf("%s\n\nSTDERR:\n%s", transcript, stderr.String())
	}
	iterations := parsed.numTurns
	if iterations <= 0 {
		iterations = 1
	}

	res := &Result{
		Success:      runErr == nil && !parsed.isError,
		Transcript:   transcript,
		Iterations:   iterations,
		InputTokens:  parsed.usage.inputTokens + parsed.usage.cacheReadTokens + parsed.usage.cacheWriteTokens,
		OutputTokens: parsed.usage.outputTokens,
		Duration:     duration,
		AgentVersion: c.Version(ctx),
		Model:        c.model,
		Session:      parsed.session,
	}
	logger.WithFields(logrus.Fields{
		"iterations": res.Iterations,
		"tokens":     res.TotalTokens(),
		"duration":   duration,
	}).Infof("Agent finished (success=%t)", res.Success)
	return res, nil
}

func (c *Claude) args(def *task.Definition, prompt string) []string {
	args := permissionArgs(def.Permissions)
	args = append(args, "-p", "--output-format=stream-json", "--verbose")
	if c.model != "" {
		args = append(args, fmt.Sprintf("--model=%s", c.model))
	}
	if def.MaxIterations > 0 {
		args = append(args, fmt.Sprintf("--max-turns=%d", def.MaxIterations))
	}
	return append(args, prompt)
}

// permissionArgs maps task permissions onto Claude Code's --permission-mode and --allowedTools flags.
func permissionArgs(p task.Permissions) []string {
	var args []string
	switch {
	case p.Mode != "":
		args = append(args, "--permission-mode", p.Mode)
	case p.Write || p.Bash || p.Network:
		args = append(args, "--permission-mode", "dontAsk")
	}

	var tools []string
	if p.Read {
		tools = append(tools, "Read", "Glob", "Grep")
	}
	if p.Write {
		tools = append(tools, "Write", "Edit")
	}
	if p.Bash {
		tools = append(tools, "Bash")
	}
	if p.Network {
		tools = append(tools, "WebFetch", "WebSearch")
	}
	if len(tools) > 0 {
		args = append(args, "--allowedTools", strings.Join(tools, ","))
	}
	return args
}

// Version returns the CLI version, or "" if it cannot be determined. The lookup runs once per Claude.
func (c *Claude) Version(ctx context.Context) string {
	c.versionOnce.Do(func() {
		v, err := claudeVersion(ctx, c.binary)
		if err != nil {
			c.logger.Warnf("Could not determine claude version: %v", err)
			return
		}
		c.version = v
	})
	return c.version
}

type claudeUsage struct {
	inputTokens      int
	cacheReadTokens  int
	cacheWriteTokens int
	outputTokens     int
}

type claudeOutput struct {
	usage    claudeUsage
	session  string
	numTurns int
	isError  bool
}

func parseClaudeOutput(raw []byte) claudeOutput {
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	buf := make([]byte, 0, 1024*1024)
	scanner.Buffer(buf, 16*1024*1024)

	var out claudeOutput
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var payload map[string]any
		if err := json.Unmarshal([]byte(line), &payload); err != nil {
			continue
		}

		if out.session == "" {
			out.session = extractClaudeSessionID(payload)
		}
		if payload["type"] == "result" {
			if n, ok := asInt(payload["num_turns"]); ok {
				out.numTurns = n
			}
			if isErr, ok := payload["is_error"].(bool); ok {
				out.isError = isErr
			}
		}
		if u, ok := payload["usage"]; ok {
			updateClaudeUsage(&out.usage, u)
		}
	}
	return out
}

func extractClaudeSessionID(payload map[string]any) string {
	for _, key := range []string{"session_id", "sessionId"} {
		if sid, ok := payload[key].(string); ok && strings.TrimSpace(sid) != "" {
			return strings.TrimSpace(sid)
		}
	}
	return ""
}

func updateClaudeUsage(target *claudeUsage, raw any) {
	m, ok := raw.(map[string]any)
	if !ok {
		return
	}
	if val, ok := asInt(m["input_tokens"]); ok {
		target.inputTokens = val
	}
	if val, ok := asInt(m["cache_read_input_tokens"]); ok {
		target.cacheReadTokens = val
	}
	if val, ok := asInt(m["cache_creation_input_tokens"]); ok {
		target.cacheWriteTokens = val
	}
	if val, ok := asInt(m["output_tokens"]); ok {
		target.outputTokens = val
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}

var claudeVersionPattern = regexp.MustCompile(`\d+\.\d+\.\d+(?:[-\w\.]+)?`)

func claudeVersion(ctx context.Context, binary string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, "-v")
	output, err := cmd.CombinedOutput()
	trimmed := strings.TrimSpace(string(output))
	if version := parseClaudeVersion(trimmed); version != "" {
		return version, nil
	}
	if err != nil {
		return "", err
	}
	if trimmed == "" {
		return "", errors.New("claude -v returned no output")
	}
	return "", fmt.Errorf("could not parse claude version from %q", trimmed)
}

func parseClaudeVersion(output string) string {
	if output == "" {
		return ""
	}
	if match := claudeVersionPattern.FindString(output); match != "" {
		return match
	}
	fields := strings.Fields(output)
	if len(fields) == 1 {
		return fields[0]
	}
	return ""
}
