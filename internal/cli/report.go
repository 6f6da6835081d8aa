package cli

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/codalotl/agentbench/internal/fsutil"
	"github.com/codalotl/agentbench/internal/report"
	"github.com/codalotl/agentbench/internal/results"
)

func newReportCmd(a *app) *cobra.Command {
	var tasks string
	var agentList string
	var models string
	var limit int
	var after string
	var allAgentVersions bool
	var collect bool

	cmd := silenceUsageAndErrors(&cobra.Command{
		Use:   "report",
		Short: "Aggregate results into a CSV report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if collect {
				return collectResults(cmd.Context(), a)
			}
			var afterTime *time.Time
			if strings.TrimSpace(after) != "" {
				parsed, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(after), time.Local)
				if err != nil {
					return fmt.Errorf("invalid --after (expected YYYY-MM-DD): %w", err)
				}
				afterTime = &parsed
			}

			rep, err := report.Run(report.Options{
				ResultsDir:       a.cfg.ResultsDir,
				Tasks:            splitCommaList(tasks),
				Agents:           splitCommaList(agentList),
				Models:           splitCommaList(models),
				Limit:            limit,
				After:            afterTime,
				AllAgentVersions: allAgentVersions,
				Logger:           a.logger,
			})
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := rep.WriteCSV(&buf); err != nil {
				return err
			}
			_, err = a.stdout.Write(buf.Bytes())
			return err
		},
	})

	cmd.Flags().StringVar(&tasks, "tasks", "", "comma-separated task list (default: all)")
	cmd.Flags().StringVar(&agentList, "agents", "", "comma-separated agent list (default: all)")
	cmd.Flags().StringVar(&models, "models", "", "comma-separated model list (default: all)")
	cmd.Flags().IntVar(&limit, "limit", 1, "most recent N results per {task,agent,model}")
	cmd.Flags().StringVar(&after, "after", "", "only include results on/after YYYY-MM-DD (local time)")
	cmd.Flags().BoolVar(&allAgentVersions, "all-agent-versions", false, "include all agent versions (default: only newest)")
	cmd.Flags().BoolVar(&collect, "collect", false, "rebuild summary.csv (and the index) from the per-run result files")

	return cmd
}

// collectResults rewrites summary.csv from every per-run result file and re-adds them to the index.
func collectResults(ctx context.Context, a *app) error {
	all, err := report.Collect(a.cfg.ResultsDir, a.logger)
	if err != nil {
		return err
	}
	if len(all) == 0 {
		return a.printer.Appf("No results found in %s", a.cfg.ResultsDir)
	}

	var buf bytes.Buffer
	if err := results.WriteSummaryCSV(&buf, all); err != nil {
		return err
	}
	path := filepath.Join(a.cfg.ResultsDir, results.SummaryCSV)
	if err := fsutil.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := a.printer.Appf("Wrote %d results to %s", len(all), path); err != nil {
		return err
	}

	idx, err := a.openIndex(ctx)
	if err != nil {
		return err
	}
	if idx == nil {
		return nil
	}
	defer idx.Close()
	for _, res := range all {
		if err := idx.Add(ctx, res, filepath.Join(a.cfg.ResultsDir, results.ResultFilename(res))); err != nil {
			return err
		}
	}
	return a.printer.Appf("Indexed %d results in %s", len(all), a.cfg.IndexPath())
}
