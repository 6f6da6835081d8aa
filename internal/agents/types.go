package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/codalotl/agentbench/internal/task"
)

// Result contains the details returned by an Agent Execute invocation.
type Result struct {
	// Success is the agent's own view of whether it finished. Verification decides the benchmark outcome.
	Success bool

	// Transcript is the full transcript
	Transcript string

	// Iterations is the number of turns the agent took. Backends that cannot tell report 1.
	Iterations int

	InputTokens  int // input tokens, cached and uncached
	OutputTokens int // number of reasoning/output tokens

	Duration     time.Duration
	AgentVersion string
	Model        string

	// If an agent supports it, this is the session ID.
	Session string
}

// TotalTokens returns input plus output tokens.
func (r *Result) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// Agent executes one task in a working directory. Implementations must treat workDir as the only place
// they operate and must not change the process working directory or environment, so several agents can
// run concurrently in one process.
type Agent interface {
	// Name is the agent identifier recorded in results.
	Name() string
	// Model is the model identifier recorded in results. It may be empty.
	Model() string
	Execute(ctx context.Context, def *task.Definition, workDir string) (*Result, error)
}

// ExecutionError reports an agent that could not be run to completion: it failed to start, crashed, or
// was interrupted.
type ExecutionError struct {
	Agent string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("agent %s: %v", e.Agent, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
