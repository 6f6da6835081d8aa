package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/codalotl/agentbench/internal/output"
	"github.com/codalotl/agentbench/internal/results"
)

func newHistoryCmd(a *app) *cobra.Command {
	var q results.Query
	var passed, failed bool
	cmd := silenceUsageAndErrors(&cobra.Command{
		Use:   "history",
		Short: "Show recent runs from the results index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			switch {
			case passed:
				v := true
				q.Success = &v
			case failed:
				v := false
				q.Success = &v
			}
			idx, err := a.openIndex(ctx)
			if err != nil {
				return err
			}
			if idx == nil {
				return errors.New("the results index is disabled (index.enabled in the config)")
			}
			defer idx.Close()

			entries, err := idx.Find(ctx, q)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return a.printer.App("No runs recorded.")
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				status := "FAIL"
				if e.Success {
					status = "PASS"
				}
				rows = append(rows, []string{
					output.Ago(e.Timestamp),
					e.TaskID,
					e.Agent,
					e.ModelName,
					status,
					strconv.Itoa(e.Iterations),
					humanize.Comma(int64(e.TokensUsed)),
					fmt.Sprintf("%.1fs", e.DurationSecs),
				})
			}
			return a.printer.Table([]string{"WHEN", "TASK", "AGENT", "MODEL", "RESULT", "ITER", "TOKENS", "DURATION"}, rows)
		},
	})
	cmd.Flags().StringVar(&q.TaskID, "task", "", "only this task")
	cmd.Flags().StringVar(&q.Agent, "agent", "", "only this agent")
	cmd.Flags().StringVar(&q.Model, "model", "", "only this model")
	cmd.Flags().IntVar(&q.Limit, "limit", 20, "maximum rows (0 for all)")
	cmd.Flags().BoolVar(&passed, "passed", false, "only passing runs")
	cmd.Flags().BoolVar(&failed, "failed", false, "only failing runs")
	cmd.MarkFlagsMutuallyExclusive("passed", "failed")
	return cmd
}
