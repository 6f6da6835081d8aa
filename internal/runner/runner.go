package runner

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/codalotl/agentbench/internal/agents"
	"github.com/codalotl/agentbench/internal/fsutil"
	"github.com/codalotl/agentbench/internal/logging"
	"github.com/codalotl/agentbench/internal/task"
	"github.com/codalotl/agentbench/internal/types"
	"github.com/codalotl/agentbench/internal/verify"
)

// Tasks looks up task definitions.
type Tasks interface {
	LoadByID(id string) (*task.Definition, error)
	LoadAll() ([]*task.Definition, error)
	LoadCategory(category string) ([]*task.Definition, error)
}

// Workspaces provisions and removes per-run workspaces.
type Workspaces interface {
	Prepare(ctx context.Context, def *task.Definition, runID string) (string, error)
	AgentPath(def *task.Definition, runID string) (string, error)
	Cleanup(def *task.Definition, runID string) error
}

// Verifier runs a task's verification command in a workspace.
type Verifier interface {
	Verify(ctx context.Context, def *task.Definition, workspaceRoot string) (*verify.Result, error)
}

// Recorder persists results.
type Recorder interface {
	Save(ctx context.Context, res types.BenchmarkResult) (string, error)
	SaveSuite(suite types.SuiteResults) ([]string, error)
}

// Config is the configuration for a Runner.
type Config struct {
	Tasks      Tasks
	Workspaces Workspaces
	Verifier   Verifier
	Recorder   Recorder
	Logger     logrus.FieldLogger
	// Now defaults to time.Now.
	Now func() time.Time
}

func (c *Config) defaults() error {
	if c.Tasks == nil {
		return fmt.Errorf("tasks is required")
	}
	if c.Workspaces == nil {
		return fmt.Errorf("workspaces is required")
	}
	if c.Verifier == nil {
		return fmt.Errorf("verifier is required")
	}
	if c.Recorder == nil {
		return fmt.Errorf("recorder is required")
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	c.Logger = logging.OrNoop(c.Logger).WithField("svc", "runner.Runner")
	return nil
}

// Runner drives task executions through their stages.
type Runner struct {
	tasks      Tasks
	workspaces Workspaces
	verifier   Verifier
	recorder   Recorder
	logger     logrus.FieldLogger
	now        func() time.Time
}

func New(cfg Config) (*Runner, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Runner{
		tasks:      cfg.Tasks,
		workspaces: cfg.Workspaces,
		verifier:   cfg.Verifier,
		recorder:   cfg.Recorder,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}, nil
}

// Stage names an execution step. They are used in log lines.
type Stage string

const (
	StagePrepareWorkspace  Stage = "prepare_workspace"
	StageExecuteAgent      Stage = "execute_agent"
	StageVerify            Stage = "verify"
	StageSkipVerify        Stage = "skip_verify"
	StageSaveResult        Stage = "save_result"
	StageCleanupWorkspace  Stage = "cleanup_workspace"
	StagePreserveWorkspace Stage = "preserve_workspace"
)

// Failure reasons recorded on results.
const (
	ReasonVerificationFailed = "Verification tests failed"
)

// RunTask loads taskID and executes it once with agent.
func (r *Runner) RunTask(ctx context.Context, taskID string, agent agents.Agent, skipVerify bool, runID string) (types.BenchmarkResult, error) {
	if err := checkRunID(runID); err != nil {
		return types.BenchmarkResult{}, err
	}
	def, err := r.tasks.LoadByID(taskID)
	if err != nil {
		return types.BenchmarkResult{}, err
	}
	return r.Execute(ctx, def, agent, skipVerify, runID)
}

// Execute runs def with agent: prepare the workspace, execute the agent, verify (unless skipVerify),
// save the result, then remove the workspace on success or keep it for inspection on failure.
//
// Failures of the prepare, agent and verify stages become failed results, which are saved and returned
// with a nil error. A returned error means the result could not be saved or ctx was canceled; the
// workspace is left in place in that case.
func (r *Runner) Execute(ctx context.Context, def *task.Definition, agent agents.Agent, skipVerify bool, runID string) (types.BenchmarkResult, error) {
	e := &execution{
		r:     r,
		def:   def,
		runID: runID,
		start: r.now(),
		logger: r.logger.WithFields(logrus.Fields{
			"task":   def.ID,
			"agent":  agent.Name(),
			"model":  agent.Model(),
			"run_id": runID,
		}),
		outcome: types.Outcome{
			TaskID:    def.ID,
			Agent:     agent.Name(),
			ModelName: agent.Model(),
			RunID:     runID,
		},
	}

	root, agentDir, err := e.prepare(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return types.BenchmarkResult{}, ctxErr
		}
		e.logger.Warnf("Workspace preparation failed: %v", err)
		return e.finish(ctx, e.failed(fmt.Sprintf("Failed to prepare workspace: %v", err)))
	}

	e.stage(StageExecuteAgent).Infof("Running agent in %s", agentDir)
	ar, err := agent.Execute(ctx, def, agentDir)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return types.BenchmarkResult{}, ctxErr
		}
		return e.finish(ctx, e.failed(fmt.Sprintf("Agent execution failed: %v", err)))
	}
	e.outcome.AgentVersion = ar.AgentVersion
	e.outcome.Iterations = ar.Iterations
	e.outcome.InputTokens = ar.InputTokens
	e.outcome.OutputTokens = ar.OutputTokens
	e.outcome.AgentOutput = ar.Transcript

	if skipVerify {
		e.stage(StageSkipVerify).Infof("Verification skipped")
		return e.finish(ctx, e.succeeded())
	}

	logger := e.stage(StageVerify)
	vr, err := r.verifier.Verify(ctx, def, root)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return types.BenchmarkResult{}, ctxErr
		}
		logger.Warnf("Verification could not complete: %v", err)
		return e.finish(ctx, e.failed(fmt.Sprintf("Verification failed: %v", err)))
	}
	e.outcome.VerificationOutput = vr.Transcript()
	if !vr.Passed {
		return e.finish(ctx, e.failed(ReasonVerificationFailed))
	}
	return e.finish(ctx, e.succeeded())
}

// checkRunID rejects run ids that could not key a workspace directory. Empty means no run id.
func checkRunID(runID string) error {
	if runID == "" {
		return nil
	}
	if err := fsutil.CheckName(runID); err != nil {
		return fmt.Errorf("invalid run id: %w", err)
	}
	return nil
}

// execution holds the state of one Execute call.
type execution struct {
	r       *Runner
	def     *task.Definition
	runID   string
	start   time.Time
	logger  logrus.FieldLogger
	outcome types.Outcome
}

func (e *execution) stage(s Stage) logrus.FieldLogger {
	l := e.logger.WithField("stage", s)
	l.Debugf("Entering stage")
	return l
}

// prepare provisions the workspace and makes sure the agent directory exists inside it.
func (e *execution) prepare(ctx context.Context) (root, agentDir string, err error) {
	e.stage(StagePrepareWorkspace)
	root, err = e.r.workspaces.Prepare(ctx, e.def, e.runID)
	if err != nil {
		return "", "", err
	}
	agentDir, err = e.r.workspaces.AgentPath(e.def, e.runID)
	if err != nil {
		return "", "", err
	}
	if err := os.MkdirAll(agentDir, 0o755); err != nil {
		return "", "", err
	}
	return root, agentDir, nil
}

func (e *execution) succeeded() types.BenchmarkResult {
	e.stamp()
	return types.Succeeded(e.outcome)
}

func (e *execution) failed(reason string) types.BenchmarkResult {
	e.stamp()
	return types.Failed(e.outcome, reason)
}

func (e *execution) stamp() {
	now := e.r.now()
	e.outcome.Duration = now.Sub(e.start)
	e.outcome.Timestamp = now
}

// finish saves result and then cleans up or preserves the workspace.
func (e *execution) finish(ctx context.Context, result types.BenchmarkResult) (types.BenchmarkResult, error) {
	e.stage(StageSaveResult)
	path, err := e.r.recorder.Save(ctx, result)
	if err != nil {
		return result, err
	}
	e.logger.WithField("path", path).Infof("Result saved (success=%t)", result.Success)

	if !result.Success {
		e.stage(StagePreserveWorkspace).Infof("Workspace kept for inspection")
		return result, nil
	}
	e.stage(StageCleanupWorkspace)
	if err := e.r.workspaces.Cleanup(e.def, e.runID); err != nil {
		e.logger.Warnf("Could not remove workspace: %v", err)
	}
	return result, nil
}
