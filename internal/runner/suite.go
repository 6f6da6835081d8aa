package runner

import (
	"context"
	"fmt"

	"github.com/codalotl/agentbench/internal/agents"
	"github.com/codalotl/agentbench/internal/task"
	"github.com/codalotl/agentbench/internal/types"
)

// RunAll executes every task once with agent, one at a time, and saves the suite.
func (r *Runner) RunAll(ctx context.Context, agent agents.Agent, skipVerify bool) (types.SuiteResults, error) {
	defs, err := r.tasks.LoadAll()
	if err != nil {
		return types.SuiteResults{}, err
	}
	return r.runSuite(ctx, defs, agent, skipVerify)
}

// RunCategory executes every task in category once with agent, one at a time, and saves the suite.
func (r *Runner) RunCategory(ctx context.Context, category string, agent agents.Agent, skipVerify bool) (types.SuiteResults, error) {
	defs, err := r.tasks.LoadCategory(category)
	if err != nil {
		return types.SuiteResults{}, err
	}
	return r.runSuite(ctx, defs, agent, skipVerify)
}

func (r *Runner) runSuite(ctx context.Context, defs []*task.Definition, agent agents.Agent, skipVerify bool) (types.SuiteResults, error) {
	label := SuiteLabel(agent)
	logger := r.logger.WithField("suite", label)
	logger.Infof("Running %d tasks", len(defs))

	results := make([]types.BenchmarkResult, 0, len(defs))
	for i, def := range defs {
		logger.Infof("[%d/%d] %s", i+1, len(defs), def.ID)
		res, err := r.Execute(ctx, def, agent, skipVerify, "")
		if err != nil {
			return types.SuiteResults{}, fmt.Errorf("task %s: %w", def.ID, err)
		}
		results = append(results, res)
	}

	suite := types.NewSuiteResults(label, results, r.now())
	if _, err := r.recorder.SaveSuite(suite); err != nil {
		return suite, err
	}
	logger.Infof("Suite finished: %d/%d passed (%.1f%%)", suite.Passed, suite.TotalTasks, suite.PassRate*100)
	return suite, nil
}

// SuiteLabel is the agent label used for suite results: the agent name, plus the model when one is set.
func SuiteLabel(agent agents.Agent) string {
	if m := agent.Model(); m != "" {
		return agent.Name() + "_" + m
	}
	return agent.Name()
}
