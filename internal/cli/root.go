package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/codalotl/agentbench/internal/agents"
	"github.com/codalotl/agentbench/internal/config"
	"github.com/codalotl/agentbench/internal/logging"
	"github.com/codalotl/agentbench/internal/output"
	"github.com/codalotl/agentbench/internal/results"
	"github.com/codalotl/agentbench/internal/runner"
	"github.com/codalotl/agentbench/internal/task"
	"github.com/codalotl/agentbench/internal/verify"
	"github.com/codalotl/agentbench/internal/workspace"
)

// These function variables allow tests to stub external dependencies.
var (
	lookupEnv = os.LookupEnv
	newCloner = func(logger logrus.FieldLogger) workspace.Cloner { return workspace.NewGitCloner(logger) }
)

type globalFlags struct {
	configPath   string
	tasksDir     string
	resultsDir   string
	workspaceDir string
	registryDir  string
	debug        bool
	logFormat    string
	noColor      bool
}

// app is the state shared by every command. It is filled in by the root command before any
// subcommand runs.
type app struct {
	flags   globalFlags
	stdout  io.Writer
	stderr  io.Writer
	cfg     *config.Config
	logger  logrus.FieldLogger
	printer *output.Printer
}

// Execute runs the CLI with args (without the program name).
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{stdout: stdout, stderr: stderr}
	root := silenceUsageAndErrors(&cobra.Command{
		Use:   "agentbench",
		Short: "Benchmark AI coding agents on declarative tasks.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	})
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", "", "config file (default: "+config.DefaultFile+" if present)")
	pf.StringVar(&a.flags.tasksDir, "tasks-dir", "", "tasks directory")
	pf.StringVar(&a.flags.resultsDir, "results-dir", "", "results directory")
	pf.StringVar(&a.flags.workspaceDir, "workspace-dir", "", "workspace directory")
	pf.StringVar(&a.flags.registryDir, "registry-dir", "", "directory holding agents.yml and llms.yml")
	pf.BoolVar(&a.flags.debug, "debug", false, "enable debug logging")
	pf.StringVar(&a.flags.logFormat, "log-format", string(logging.FormatText), "log format: text or json")
	pf.BoolVar(&a.flags.noColor, "no-color", false, "disable colored logs")

	root.AddCommand(newListCmd(a))
	root.AddCommand(newValidateCmd(a))
	root.AddCommand(newRunCmd(a))
	root.AddCommand(newReportCmd(a))
	root.AddCommand(newHistoryCmd(a))

	executed, err := root.ExecuteContextC(ctx)
	if err != nil {
		maybePrintUsage(executed, root, err)
	}
	return err
}

func (a *app) init() error {
	logger, err := logging.New(logging.Options{
		Out:     a.stderr,
		Debug:   a.flags.debug,
		Format:  logging.Format(a.flags.logFormat),
		NoColor: a.flags.noColor,
	})
	if err != nil {
		return fmt.Errorf("invalid argument for --log-format: %w", err)
	}
	a.logger = logger
	a.printer = output.NewPrinter(a.stdout)

	path, optional := a.flags.configPath, false
	if path == "" {
		path, optional = config.DefaultFile, true
	}
	cfg, err := config.Load(path, optional)
	if err != nil {
		return err
	}
	cfg.ApplyEnv(lookupEnv)
	for _, o := range []struct {
		flag string
		dst  *string
	}{
		{a.flags.tasksDir, &cfg.TasksDir},
		{a.flags.resultsDir, &cfg.ResultsDir},
		{a.flags.workspaceDir, &cfg.WorkspaceDir},
		{a.flags.registryDir, &cfg.RegistryDir},
	} {
		if o.flag != "" {
			*o.dst = o.flag
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.logger.WithFields(logrus.Fields{
		"tasks":     cfg.TasksDir,
		"results":   cfg.ResultsDir,
		"workspace": cfg.WorkspaceDir,
	}).Debugf("Configuration loaded")
	return nil
}

func (a *app) loader() *task.Loader {
	return task.NewLoader(a.cfg.TasksDir, a.cfg.Resolver(), a.logger)
}

// openIndex opens the results index. It returns nil when the index is disabled.
func (a *app) openIndex(ctx context.Context) (*results.SQLiteIndex, error) {
	path := a.cfg.IndexPath()
	if path == "" {
		return nil, nil
	}
	return results.OpenIndex(ctx, results.IndexConfig{DBPath: path, Logger: a.logger})
}

// newRunner wires the runner and returns a func that releases what it opened.
func (a *app) newRunner(ctx context.Context) (*runner.Runner, func(), error) {
	idx, err := a.openIndex(ctx)
	if err != nil {
		// The index is a secondary copy; runs go ahead without it.
		a.logger.Warnf("Results index unavailable: %v", err)
		idx = nil
	}
	closeFn := func() {}
	recCfg := results.RecorderConfig{Dir: a.cfg.ResultsDir, Logger: a.logger}
	if idx != nil {
		recCfg.Index = idx
		closeFn = func() {
			if err := idx.Close(); err != nil {
				a.logger.Warnf("Could not close results index: %v", err)
			}
		}
	}

	r, err := runner.New(runner.Config{
		Tasks:      a.loader(),
		Workspaces: workspace.NewManager(a.cfg.WorkspaceDir, newCloner(a.logger), a.logger),
		Verifier:   verify.New(a.logger),
		Recorder:   results.NewRecorder(recCfg),
		Logger:     a.logger,
	})
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return r, closeFn, nil
}

func (a *app) registry() (*agents.Registry, error) {
	return agents.LoadRegistry(a.cfg.RegistryDir)
}

func silenceUsageAndErrors(cmd *cobra.Command) *cobra.Command {
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	return cmd
}

func maybePrintUsage(cmd, root *cobra.Command, err error) {
	if err == nil {
		return
	}
	target := cmd
	if target == nil {
		target = root
	}
	if target == nil {
		return
	}
	if shouldShowUsage(err) {
		_ = target.Usage()
	}
}

func shouldShowUsage(err error) bool {
	msg := strings.ToLower(err.Error())
	if strings.HasPrefix(msg, "unknown command") {
		return true
	}
	if strings.HasPrefix(msg, "unknown flag") || strings.HasPrefix(msg, "unknown shorthand flag") {
		return true
	}
	if strings.Contains(msg, "accepts") && strings.Contains(msg, "arg") {
		return true
	}
	if strings.Contains(msg, "required flag") {
		return true
	}
	if strings.Contains(msg, "flag needs an argument") {
		return true
	}
	if strings.HasPrefix(msg, "invalid argument") {
		return true
	}
	if strings.Contains(msg, "flags in the group") {
		return true
	}
	return false
}

func splitCommaList(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
