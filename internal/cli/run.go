package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codalotl/agentbench/internal/agents"
	"github.com/codalotl/agentbench/internal/fsutil"
	"github.com/codalotl/agentbench/internal/runner"
	"github.com/codalotl/agentbench/internal/types"
)

// SuiteAll selects every task for --suite.
const SuiteAll = "all"

type runOptions struct {
	taskID     string
	suite      string
	agent      string
	models     []string
	skipVerify bool
	runID      string
}

func newRunCmd(a *app) *cobra.Command {
	var opts runOptions
	cmd := silenceUsageAndErrors(&cobra.Command{
		Use:   "run (--task <id> | --suite <all|category>) [--agent <agent>] [--model <model>]...",
		Short: "Run benchmark tasks",
		Long: `Run one task or a suite of tasks with an agent.

With --task and several --model flags the task runs once per model, concurrently, each in its own
workspace. With --suite each model runs the suite in turn.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd.Context(), a, opts)
		},
	})
	cmd.Flags().StringVar(&opts.taskID, "task", "", "task ID to run")
	cmd.Flags().StringVar(&opts.suite, "suite", "", `run "all" tasks or every task in a category`)
	cmd.Flags().StringVar(&opts.agent, "agent", "claude", "agent from agents.yml")
	cmd.Flags().StringArrayVar(&opts.models, "model", nil, "model from llms.yml (repeatable; default: the agent's first model)")
	cmd.Flags().BoolVar(&opts.skipVerify, "skip-verify", false, "do not run verification; completed runs pass")
	cmd.Flags().StringVar(&opts.runID, "run-id", "", "workspace key for a single run (default: the task ID alone)")
	cmd.MarkFlagsMutuallyExclusive("task", "suite")
	cmd.MarkFlagsOneRequired("task", "suite")
	return cmd
}

func runCommand(ctx context.Context, a *app, opts runOptions) error {
	if len(opts.models) > 1 && opts.runID != "" {
		return errors.New("invalid argument: --run-id cannot be combined with several --model flags")
	}
	if opts.runID != "" {
		if err := fsutil.CheckName(opts.runID); err != nil {
			return fmt.Errorf("invalid argument for --run-id: %w", err)
		}
	}
	reg, err := a.registry()
	if err != nil {
		return err
	}
	models := opts.models
	if len(models) == 0 {
		models = []string{""}
	}
	built := make([]agents.Agent, 0, len(models))
	for _, m := range models {
		ag, err := reg.Build(opts.agent, m, a.logger)
		if err != nil {
			return err
		}
		built = append(built, ag)
	}

	r, closeRunner, err := a.newRunner(ctx)
	if err != nil {
		return err
	}
	defer closeRunner()

	switch {
	case opts.taskID != "" && len(built) == 1:
		if err := a.printer.Appf("Running task %s with %s", opts.taskID, runner.SuiteLabel(built[0])); err != nil {
			return err
		}
		res, err := r.RunTask(ctx, opts.taskID, built[0], opts.skipVerify, opts.runID)
		if err != nil {
			return err
		}
		return a.printer.Result(res)

	case opts.taskID != "":
		execs := make([]runner.Execution, len(built))
		labels := make([]string, len(built))
		for i, ag := range built {
			execs[i] = runner.Execution{Agent: ag}
			labels[i] = runner.SuiteLabel(ag)
		}
		if err := a.printer.Appf("Running task %s with %s in parallel", opts.taskID, strings.Join(labels, ", ")); err != nil {
			return err
		}
		all, err := r.RunTaskParallel(ctx, opts.taskID, execs, opts.skipVerify)
		if err != nil {
			return err
		}
		for _, res := range all {
			if err := a.printer.Result(res); err != nil {
				return err
			}
		}
		return nil

	default:
		for _, ag := range built {
			if err := a.printer.Appf("Running suite %q with %s", opts.suite, runner.SuiteLabel(ag)); err != nil {
				return err
			}
			suite, err := runSuite(ctx, a, r, opts.suite, ag, opts.skipVerify)
			if err != nil {
				return err
			}
			if err := a.printer.Suite(suite); err != nil {
				return err
			}
		}
		return nil
	}
}

func runSuite(ctx context.Context, a *app, r *runner.Runner, suite string, ag agents.Agent, skipVerify bool) (types.SuiteResults, error) {
	if strings.EqualFold(suite, SuiteAll) {
		return r.RunAll(ctx, ag, skipVerify)
	}
	defs, err := a.loader().LoadCategory(suite)
	if err != nil {
		return types.SuiteResults{}, err
	}
	if len(defs) == 0 {
		return types.SuiteResults{}, fmt.Errorf("no tasks in category %q", suite)
	}
	return r.RunCategory(ctx, suite, ag, skipVerify)
}
