package verify_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codalotl/agentbench/internal/task"
	"github.com/codalotl/agentbench/internal/verify"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		command string
		runPath string
		want    []string
		wantErr bool
	}{
		{name: "simple", command: "python3 verify.py", runPath: "TOOLS/001", want: []string{"python3", "verify.py"}},
		{name: "redundant prefix", command: "python3 TOOLS/001/verify.py", runPath: "TOOLS/001", want: []string{"python3", "verify.py"}},
		{name: "dot prefix", command: "python3 ./TOOLS/001/verify.py", runPath: "TOOLS/001", want: []string{"python3", "verify.py"}},
		{name: "prefix of other dir kept", command: "cat TOOLS/0010/x", runPath: "TOOLS/001", want: []string{"cat", "TOOLS/0010/x"}},
		{name: "double quotes", command: `sh -c "echo hello world"`, runPath: "A/1", want: []string{"sh", "-c", "echo hello world"}},
		{name: "single quotes", command: `sh -c 'exit 3'`, runPath: "A/1", want: []string{"sh", "-c", "exit 3"}},
		{name: "no env expansion", command: "echo $HOME", runPath: "A/1", want: []string{"echo", "$HOME"}},
		{name: "empty", command: "   ", runPath: "A/1", wantErr: true},
		{name: "unterminated quote", command: `echo "oops`, runPath: "A/1", wantErr: true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := verify.ParseCommand(tc.command, tc.runPath)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("verification tests use sh")
	}
}

func newTask(t *testing.T, command string, timeout int) *task.Definition {
	t.Helper()
	def, err := task.Resolver{}.Resolve(task.Raw{
		ID:           "TOOLS-001",
		Verification: &task.RawVerification{Command: command, Timeout: timeout},
	})
	require.NoError(t, err)
	return def
}

func prepare(t *testing.T, def *task.Definition) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, filepath.FromSlash(def.RunPath())), 0o755))
	return root
}

func TestVerifyPass(t *testing.T) {
	requireShell(t)
	def := newTask(t, `sh -c "echo ok; echo warn >&2"`, 10)
	root := prepare(t, def)

	res, err := verify.New(nil).Verify(context.Background(), def, root)
	require.NoError(t, err)
	require.True(t, res.Passed)
	require.Equal(t, 0, res.ExitCode)
	require.Equal(t, "ok\n", res.Stdout)
	require.Equal(t, "warn\n", res.Stderr)
	require.Equal(t, "Exit code: 0\n\nSTDOUT:\nok\n\n\nSTDERR:\nwarn\n", res.Transcript())
}

func TestVerifyFailIsNotAnError(t *testing.T) {
	requireShell(t)
	def := newTask(t, `sh -c "echo nope; exit 3"`, 10)
	root := prepare(t, def)

	res, err := verify.New(nil).Verify(context.Background(), def, root)
	require.NoError(t, err)
	require.False(t, res.Passed)
	require.Equal(t, 3, res.ExitCode)
	require.Contains(t, res.Transcript(), "Exit code: 3")
}

func TestVerifyRunsInsideRunPath(t *testing.T) {
	requireShell(t)
	def := newTask(t, "sh check.sh", 10)
	root := prepare(t, def)
	script := "test \"$(basename \"$(pwd)\")\" = 001\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "TOOLS", "001", "check.sh"), []byte(script), 0o644))

	res, err := verify.New(nil).Verify(context.Background(), def, root)
	require.NoError(t, err)
	require.True(t, res.Passed, res.Transcript())
}

func TestVerifyTimeout(t *testing.T) {
	requireShell(t)
	def := newTask(t, "sleep 30", 1)
	root := prepare(t, def)

	start := time.Now()
	_, err := verify.New(nil).Verify(context.Background(), def, root)
	var ve *verify.Error
	require.ErrorAs(t, err, &ve)
	require.True(t, ve.TimedOut)
	require.Less(t, time.Since(start), 20*time.Second)
}

func TestVerifyCanceledContext(t *testing.T) {
	requireShell(t)
	def := newTask(t, "sleep 30", 10)
	root := prepare(t, def)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	_, err := verify.New(nil).Verify(ctx, def, root)
	var ve *verify.Error
	require.ErrorAs(t, err, &ve)
	require.False(t, ve.TimedOut)
	require.ErrorIs(t, err, context.Canceled)
}

func TestVerifyMissingProgram(t *testing.T) {
	def := newTask(t, "definitely-not-a-real-binary-xyz", 10)
	root := prepare(t, def)

	_, err := verify.New(nil).Verify(context.Background(), def, root)
	var ve *verify.Error
	require.ErrorAs(t, err, &ve)
	require.False(t, ve.TimedOut)
	require.True(t, strings.Contains(err.Error(), "definitely-not-a-real-binary-xyz"))
}
