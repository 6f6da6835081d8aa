package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codalotl/agentbench/internal/task"
)

func newListCmd(a *app) *cobra.Command {
	var verbose bool
	var category string
	cmd := silenceUsageAndErrors(&cobra.Command{
		Use:   "list",
		Short: "List available tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := a.loader()
			var defs []*task.Definition
			var err error
			if category != "" {
				defs, err = loader.LoadCategory(category)
			} else {
				defs, err = loader.LoadAll()
			}
			if err != nil {
				return err
			}
			if len(defs) == 0 {
				return a.printer.Appf("No tasks found in %s", loader.Dir())
			}
			if err := a.printer.Appf("Available tasks (%d):", len(defs)); err != nil {
				return err
			}
			if verbose {
				return printTaskDetails(a, defs)
			}
			rows := make([][]string, 0, len(defs))
			for _, d := range defs {
				rows = append(rows, []string{d.ID, d.Title, d.Category, d.Difficulty})
			}
			return a.printer.Table([]string{"ID", "TITLE", "CATEGORY", "DIFFICULTY"}, rows)
		},
	})
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show detailed information")
	cmd.Flags().StringVar(&category, "category", "", "only list tasks in this category")
	return cmd
}

func printTaskDetails(a *app, defs []*task.Definition) error {
	for _, d := range defs {
		rows := [][]string{
			{"Title:", d.Title},
			{"Category:", d.Category},
			{"Difficulty:", d.Difficulty},
			{"Repository:", d.Source.Repository},
			{"Ref:", d.Source.Ref},
			{"Run path:", d.RunPath()},
			{"Verify:", d.Verification.Command},
			{"Timeout:", d.Verification.Timeout().String()},
		}
		if d.MaxIterations > 0 {
			rows = append(rows, []string{"Max iterations:", strconv.Itoa(d.MaxIterations)})
		}
		if len(d.Metadata.Tags) > 0 {
			rows = append(rows, []string{"Tags:", strings.Join(d.Metadata.Tags, ", ")})
		}
		if err := a.printer.Appf("%s:", d.ID); err != nil {
			return err
		}
		for i := range rows {
			rows[i][0] = "  " + rows[i][0]
		}
		if err := a.printer.Table(nil, rows); err != nil {
			return err
		}
	}
	return nil
}

func newValidateCmd(a *app) *cobra.Command {
	return silenceUsageAndErrors(&cobra.Command{
		Use:   "validate <task-id | file.yaml>",
		Short: "Resolve and validate a task definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := resolveTaskArg(a, args[0])
			if err != nil {
				return err
			}
			formatted, err := json.MarshalIndent(def, "", "  ")
			if err != nil {
				return fmt.Errorf("format task: %w", err)
			}
			if err := a.printer.Plain(string(formatted)); err != nil {
				return err
			}
			return a.printer.App("valid")
		},
	})
}

// resolveTaskArg loads a task by ID, or straight from a declaration file so format errors are reported
// instead of the task being skipped.
func resolveTaskArg(a *app, arg string) (*task.Definition, error) {
	ext := strings.ToLower(filepath.Ext(arg))
	if ext != ".yaml" && ext != ".yml" {
		return a.loader().LoadByID(arg)
	}
	raw, err := task.LoadFile(arg)
	if err != nil {
		return nil, err
	}
	def, err := a.cfg.Resolver().Resolve(*raw)
	if err != nil {
		return nil, err
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}
