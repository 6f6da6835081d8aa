package runner

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/codalotl/agentbench/internal/agents"
	"github.com/codalotl/agentbench/internal/types"
)

// Execution is one agent configuration in a parallel run of a task.
type Execution struct {
	Agent agents.Agent
	// RunID keys the execution's workspace. An empty RunID is replaced by a generated one.
	RunID string
}

// NewRunID returns a new lexically sortable run id.
func NewRunID() string {
	return strings.ToLower(ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String())
}

// RunTaskParallel executes taskID once per element of execs, concurrently. Each execution gets its own
// workspace keyed by its run id. Results are returned in the order of execs regardless of completion
// order. An error from any execution cancels the others and is returned.
func (r *Runner) RunTaskParallel(ctx context.Context, taskID string, execs []Execution, skipVerify bool) ([]types.BenchmarkResult, error) {
	if len(execs) == 0 {
		return nil, fmt.Errorf("no executions for task %s", taskID)
	}
	def, err := r.tasks.LoadByID(taskID)
	if err != nil {
		return nil, err
	}

	runIDs := make([]string, len(execs))
	seen := make(map[string]bool, len(execs))
	for i, e := range execs {
		if e.Agent == nil {
			return nil, fmt.Errorf("execution %d has no agent", i)
		}
		id := e.RunID
		if id == "" {
			id = NewRunID()
		}
		if err := checkRunID(id); err != nil {
			return nil, err
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate run id %q", id)
		}
		seen[id] = true
		runIDs[i] = id
	}

	r.logger.WithField("task", taskID).Infof("Running %d executions in parallel", len(execs))

	out := make([]types.BenchmarkResult, len(execs))
	g, ctx := errgroup.WithContext(ctx)
	for i, e := range execs {
		g.Go(func() error {
			res, err := r.Execute(ctx, def, e.Agent, skipVerify, runIDs[i])
			if err != nil {
				return fmt.Errorf("run %s: %w", runIDs[i], err)
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
