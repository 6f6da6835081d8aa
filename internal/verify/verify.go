package verify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/sirupsen/logrus"

	"github.com/codalotl/agentbench/internal/fsutil"
	"github.com/codalotl/agentbench/internal/logging"
	"github.com/codalotl/agentbench/internal/task"
)

// DefaultWaitDelay bounds how long Verify waits for a terminated command to exit before killing it.
const DefaultWaitDelay = 5 * time.Second

// Result is the outcome of one verification run. Passed is true only for exit code 0.
type Result struct {
	Passed   bool
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Transcript renders the result in the form stored alongside benchmark results.
func (r *Result) Transcript() string {
	return fmt.Sprintf("Exit code: %d\n\nSTDOUT:\n%s\n\nSTDERR:\n%s", r.ExitCode, r.Stdout, r.Stderr)
}

// Error reports a verification that could not produce a pass/fail answer: the command could not be
// parsed or started, or it did not finish in time.
type Error struct {
	TaskID   string
	Command  string
	TimedOut bool
	Err      error
}

func (e *Error) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("verification of %s timed out: %v", e.TaskID, e.Err)
	}
	return fmt.Sprintf("verification of %s: %v", e.TaskID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Verifier runs a task's verification command inside a prepared workspace.
type Verifier struct {
	logger    logrus.FieldLogger
	waitDelay time.Duration
}

func New(logger logrus.FieldLogger) *Verifier {
	return &Verifier{
		logger:    logging.OrNoop(logger).WithField("svc", "verify.Verifier"),
		waitDelay: DefaultWaitDelay,
	}
}

// Verify runs def's verification command with the working directory set to workspaceRoot joined with the
// run path. The task's timeout is the only deadline applied; when it fires the command's process group is
// sent SIGTERM and, after a grace period, killed. A non-zero exit is a failed Result, not an error.
func (v *Verifier) Verify(ctx context.Context, def *task.Definition, workspaceRoot string) (*Result, error) {
	args, err := ParseCommand(def.Verification.Command, def.RunPath())
	if err != nil {
		return nil, &Error{TaskID: def.ID, Command: def.Verification.Command, Err: err}
	}
	dir, err := fsutil.SafeJoin(workspaceRoot, def.RunPath())
	if err != nil {
		return nil, &Error{TaskID: def.ID, Command: def.Verification.Command, Err: err}
	}

	timeout := def.Verification.Timeout()
	if timeout <= 0 {
		timeout = time.Duration(task.DefaultVerifyTimeout) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.Dir = dir
	terminateOnCancel(cmd)
	cmd.WaitDelay = v.waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger := v.logger.WithFields(logrus.Fields{"task": def.ID, "dir": dir})
	logger.Debugf("Running verification: %s", strings.Join(args, " "))

	start := time.Now()
	runErr := cmd.Run()
	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err := settle(res, runErr, runCtx, ctx, def, timeout); err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{"exit_code": res.ExitCode, "duration": res.Duration}).Infof("Verification finished (passed=%t)", res.Passed)
	return res, nil
}

// ParseCommand splits command into argv, keeping quoted substrings whole. Tokens that redundantly start
// with runPath are made relative to it, since the command already runs from inside the run path.
func ParseCommand(command, runPath string) ([]string, error) {
	if strings.TrimSpace(command) == "" {
		return nil, errors.New("verification command is empty")
	}
	args, err := shellwords.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse verification command %q: %w", command, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("no args parsed from %q", command)
	}
	prefix := strings.Trim(path.Clean(strings.ReplaceAll(runPath, "\\", "/")), "/")
	if prefix == "" || prefix == "." {
		return args, nil
	}
	for i, arg := range args {
		trimmed := strings.TrimPrefix(arg, "./")
		if rest, ok := strings.CutPrefix(trimmed, prefix+"/"); ok && rest != "" {
			args[i] = rest
		}
	}
	return args, nil
}

// settle fills res from the outcome of cmd.Run. A command that exited 0 passes even if the deadline
// expired right after it finished; only a command that failed while the deadline or ctx was done is a
// timeout or cancellation.
func settle(res *Result, runErr error, runCtx, ctx context.Context, def *task.Definition, timeout time.Duration) error {
	if runErr == nil {
		res.Passed = true
		return nil
	}
	if runCtx.Err() != nil {
		if ctx.Err() != nil {
			return &Error{TaskID: def.ID, Command: def.Verification.Command, Err: ctx.Err()}
		}
		return &Error{
			TaskID:   def.ID,
			Command:  def.Verification.Command,
			TimedOut: true,
			Err:      fmt.Errorf("no result after %s", timeout),
		}
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return nil
	}
	return &Error{TaskID: def.ID, Command: def.Verification.Command, Err: runErr}
}
