package agents

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codalotl/agentbench/internal/task"
)

func TestParseClaudeOutput_ExtractsSessionUsageAndTurns(t *testing.T) {
	raw := strings.Join([]string{
		`{"type":"system","subtype":"init","session_id":"09d8c476-46e2-45cc-a86b-3f3d3d90cdb5","model":"claude-sonnet-4-5-20250929"}`,
		`{"type":"result","subtype":"success","is_error":false,"num_turns":7,"session_id":"09d8c476-46e2-45cc-a86b-3f3d3d90cdb5","usage":{"input_tokens":1712,"cache_creation_input_tokens":28152,"cache_read_input_tokens":125992,"output_tokens":1574}}`,
	}, "\n")

	out := parseClaudeOutput([]byte(raw))

	require.Equal(t, "09d8c476-46e2-45cc-a86b-3f3d3d90cdb5", out.session)
	require.Equal(t, 1712, out.usage.inputTokens)
	require.Equal(t, 28152, out.usage.cacheWriteTokens)
	require.Equal(t, 125992, out.usage.cacheReadTokens)
	require.Equal(t, 1574, out.usage.outputTokens)
	require.Equal(t, 7, out.numTurns)
	require.False(t, out.isError)
}

func TestParseClaudeOutput_FallbackWhenNonJSON(t *testing.T) {
	out := parseClaudeOutput([]byte("plain output line"))

	require.Zero(t, out.usage.inputTokens)
	require.Zero(t, out.usage.outputTokens)
	require.Zero(t, out.numTurns)
	require.Empty(t, out.session)
}

func TestParseClaudeOutput_ResultError(t *testing.T) {
	out := parseClaudeOutput([]byte(`{"type":"result","subtype":"error_max_turns","is_error":true,"num_turns":3}`))
	require.True(t, out.isError)
	require.Equal(t, 3, out.numTurns)
}

func TestParseClaudeVersion(t *testing.T) {
	require.Equal(t, "2.0.62", parseClaudeVersion("2.0.62 (Claude Code)"))
	require.Equal(t, "2.0.62", parseClaudeVersion("claude version 2.0.62"))
}

func TestPermissionArgs(t *testing.T) {
	tests := []struct {
		name  string
		perms task.Permissions
		want  []string
	}{
		{
			name:  "read only",
			perms: task.Permissions{Read: true},
			want:  []string{"--allowedTools", "Read,Glob,Grep"},
		},
		{
			name:  "write implies dontAsk",
			perms: task.Permissions{Read: true, Write: true, Bash: true},
			want:  []string{"--permission-mode", "dontAsk", "--allowedTools", "Read,Glob,Grep,Write,Edit,Bash"},
		},
		{
			name:  "explicit mode wins",
			perms: task.Permissions{Mode: "acceptEdits", Network: true},
			want:  []string{"--permission-mode", "acceptEdits", "--allowedTools", "WebFetch,WebSearch"},
		},
		{
			name:  "nothing",
			perms: task.Permissions{},
			want:  nil,
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, permissionArgs(tc.perms))
		})
	}
}

func TestClaudeArgs(t *testing.T) {
	c := NewClaude(ClaudeConfig{Model: "claude-sonnet-4-5"})
	def := &task.Definition{ID: "TOOLS-001", MaxIterations: 5, Permissions: task.Permissions{Read: true}}

	args := c.args(def, "do it")
	require.Equal(t, []string{
		"--allowedTools", "Read,Glob,Grep",
		"-p", "--output-format=stream-json", "--verbose",
		"--model=claude-sonnet-4-5",
		"--max-turns=5",
		"do it",
	}, args)
}

func TestClaudeExecuteWithFakeBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake claude is a shell script")
	}
	dir := t.TempDir()
	bin := filepath.Join(dir, "fake-claude")
	script := `#!/bin/sh
if [ "$1" = "-v" ]; then echo "2.0.62 (Claude Code)"; exit 0; fi
echo "$FAKE_MARKER" > marker.txt
echo '{"type":"result","is_error":false,"num_turns":4,"session_id":"s1","usage":{"input_tokens":10,"cache_read_input_tokens":5,"output_tokens":20}}'
`
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))

	workDir := t.TempDir()
	c := NewClaude(ClaudeConfig{Binary: bin, Model: "m", Env: map[string]string{"FAKE_MARKER": "hello"}})
	res, err := c.Execute(context.Background(), &task.Definition{ID: "TOOLS-001", Prompt: "go"}, workDir)
	require.NoError(t, err)

	require.True(t, res.Success)
	require.Equal(t, 4, res.Iterations)
	require.Equal(t, 15, res.InputTokens)
	require.Equal(t, 20, res.OutputTokens)
	require.Equal(t, 35, res.TotalTokens())
	require.Equal(t, "2.0.62", res.AgentVersion)
	require.Equal(t, "s1", res.Session)

	marker, err := os.ReadFile(filepath.Join(workDir, "marker.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(marker))
	_, set := os.LookupEnv("FAKE_MARKER")
	require.False(t, set)
}

func TestClaudeExecuteMissingBinary(t *testing.T) {
	c := NewClaude(ClaudeConfig{Binary: filepath.Join(t.TempDir(), "nope")})
	_, err := c.Execute(context.Background(), &task.Definition{ID: "TOOLS-001", Prompt: "go"}, t.TempDir())
	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	require.Equal(t, "claude", ee.Agent)
}

func TestClaudeExecuteEmptyPrompt(t *testing.T) {
	c := NewClaude(ClaudeConfig{})
	_, err := c.Execute(context.Background(), &task.Definition{ID: "TOOLS-001"}, t.TempDir())
	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
}
