package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/codalotl/agentbench/internal/logging"
	"github.com/codalotl/agentbench/internal/results"
	"github.com/codalotl/agentbench/internal/types"
)

type Options struct {
	ResultsDir       string
	Tasks            []string
	Agents           []string
	Models           []string
	Limit            int // latest results kept per (task, agent, model); 0 means 1
	After            *time.Time
	AllAgentVersions bool
	Logger           logrus.FieldLogger
}

// Row aggregates the results of one agent/model pair.
type Row struct {
	Agent          string
	Model          string
	AgentVersion   string
	UniqueTasks    int
	Count          int
	Passed         int
	PassRate       float64 // percent
	AvgTimeSeconds float64
	AvgIterations  float64
	AvgTokInput    float64
	AvgTokOutput   float64
	AvgTokTotal    float64
}

type Report struct {
	Rows []Row
}

// Run loads every per-run result under opts.ResultsDir, filters them, and aggregates one Row per
// agent/model pair. Rows are sorted by pass rate, best first.
func Run(opts Options) (*Report, error) {
	if strings.TrimSpace(opts.ResultsDir) == "" {
		return nil, errors.New("ResultsDir is required")
	}
	limit := opts.Limit
	if limit == 0 {
		limit = 1
	}
	if limit < 1 {
		return nil, fmt.Errorf("limit must be >= 1, got %d", limit)
	}

	all, err := Collect(opts.ResultsDir, opts.Logger)
	if err != nil {
		return nil, err
	}

	taskSet := sliceToSet(opts.Tasks)
	agentSet := sliceToSet(opts.Agents)
	modelSet := sliceToSet(opts.Models)

	filtered := make([]types.BenchmarkResult, 0, len(all))
	for _, r := range all {
		if taskSet != nil && !taskSet[r.TaskID] {
			continue
		}
		if agentSet != nil && !agentSet[r.Agent] {
			continue
		}
		if modelSet != nil && !modelSet[r.ModelName] {
			continue
		}
		if opts.After != nil && r.Timestamp.Before(*opts.After) {
			continue
		}
		filtered = append(filtered, r)
	}

	if !opts.AllAgentVersions {
		filtered = filterToLatestVersionPerAgentModel(filtered)
	}
	filtered = applyLimitPerTaskAgentModel(filtered, limit)

	grouped := map[string][]types.BenchmarkResult{}
	for _, r := range filtered {
		key := agentModelKey(r.Agent, r.ModelName)
		grouped[key] = append(grouped[key], r)
	}

	rows := make([]Row, 0, len(grouped))
	for _, group := range grouped {
		rows = append(rows, buildRow(group, opts.AllAgentVersions))
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].PassRate != rows[j].PassRate {
			return rows[i].PassRate > rows[j].PassRate
		}
		if rows[i].Agent != rows[j].Agent {
			return rows[i].Agent < rows[j].Agent
		}
		return rows[i].Model < rows[j].Model
	})

	return &Report{Rows: rows}, nil
}

func (r *Report) WriteCSV(w io.Writer) error {
	if w == nil {
		return errors.New("writer is nil")
	}
	header := []string{
		"agent",
		"model",
		"agent_version",
		"unique_tasks",
		"count",
		"passed",
		"pass_rate",
		"avg_time",
		"avg_iterations",
		"avg_tok_input",
		"avg_tok_output",
		"avg_tok_total",
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range r.Rows {
		record := []string{
			row.Agent,
			row.Model,
			row.AgentVersion,
			strconv.Itoa(row.UniqueTasks),
			strconv.Itoa(row.Count),
			strconv.Itoa(row.Passed),
			formatFloat(row.PassRate),
			formatFloat(row.AvgTimeSeconds),
			formatFloat(row.AvgIterations),
			formatFloat(row.AvgTokInput),
			formatFloat(row.AvgTokOutput),
			formatFloat(row.AvgTokTotal),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Collect returns every per-run result file under dir, oldest first. A missing dir has no results.
// Files that cannot be read or parsed are skipped with a warning.
func Collect(dir string, logger logrus.FieldLogger) ([]types.BenchmarkResult, error) {
	logger = logging.OrNoop(logger).WithField("svc", "report.Collect")
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var out []types.BenchmarkResult
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !results.IsResultFile(d.Name()) {
			return nil
		}
		res, err := readResult(path)
		if err != nil {
			logger.Warnf("Skipping %s: %v", path, err)
			return nil
		}
		if res.Timestamp.IsZero() {
			if info, err := d.Info(); err == nil {
				res.Timestamp = info.ModTime().UTC()
			}
		}
		out = append(out, res)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func readResult(path string) (types.BenchmarkResult, error) {
	var res types.BenchmarkResult
	data, err := os.ReadFile(path)
	if err != nil {
		return res, err
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return res, fmt.Errorf("parse: %w", err)
	}
	if strings.TrimSpace(res.TaskID) == "" {
		return res, errors.New("missing task_id")
	}
	return res, nil
}

func sliceToSet(items []string) map[string]bool {
	var out map[string]bool
	for _, s := range items {
		val := strings.TrimSpace(s)
		if val == "" {
			continue
		}
		if out == nil {
			out = map[string]bool{}
		}
		out[val] = true
	}
	return out
}

func agentModelKey(agent, model string) string {
	return strings.TrimSpace(agent) + "\x00" + strings.TrimSpace(model)
}

func taskAgentModelKey(taskID, agent, model string) string {
	return strings.TrimSpace(taskID) + "\x00" + agentModelKey(agent, model)
}

func applyLimitPerTaskAgentModel(all []types.BenchmarkResult, limit int) []types.BenchmarkResult {
	grouped := map[string][]types.BenchmarkResult{}
	for _, r := range all {
		key := taskAgentModelKey(r.TaskID, r.Agent, r.ModelName)
		grouped[key] = append(grouped[key], r)
	}
	out := make([]types.BenchmarkResult, 0, len(all))
	for _, group := range grouped {
		sort.Slice(group, func(i, j int) bool {
			return group[i].Timestamp.After(group[j].Timestamp)
		})
		if len(group) > limit {
			group = group[:limit]
		}
		out = append(out, group...)
	}
	return out
}

func buildRow(group []types.BenchmarkResult, allAgentVersions bool) Row {
	uniqueTasks := map[string]bool{}
	versions := map[string]bool{}

	passed := 0
	var times, iterations, tokIn, tokOut, tokTotal []float64
	for _, r := range group {
		uniqueTasks[r.TaskID] = true
		if v := strings.TrimSpace(r.AgentVersion); v != "" {
			versions[v] = true
		}
		if r.Success {
			passed++
		}
		// Zero means the value was never reported, so it is left out of the average.
		if r.DurationSecs != 0 {
			times = append(times, r.DurationSecs)
		}
		if r.Iterations != 0 {
			iterations = append(iterations, float64(r.Iterations))
		}
		if r.InputTokens != 0 {
			tokIn = append(tokIn, float64(r.InputTokens))
		}
		if r.OutputTokens != 0 {
			tokOut = append(tokOut, float64(r.OutputTokens))
		}
		if r.TokensUsed != 0 {
			tokTotal = append(tokTotal, float64(r.TokensUsed))
		}
	}

	versionList := uniqueVersionsSorted(versions)
	versionValue := ""
	switch {
	case allAgentVersions:
		versionValue = strings.Join(versionList, ",")
	case len(versionList) > 0:
		versionValue = versionList[len(versionList)-1]
	}

	return Row{
		Agent:          group[0].Agent,
		Model:          group[0].ModelName,
		AgentVersion:   versionValue,
		UniqueTasks:    len(uniqueTasks),
		Count:          len(group),
		Passed:         passed,
		PassRate:       float64(passed) / float64(len(group)) * 100,
		AvgTimeSeconds: avgOrZero(times),
		AvgIterations:  avgOrZero(iterations),
		AvgTokInput:    avgOrZero(tokIn),
		AvgTokOutput:   avgOrZero(tokOut),
		AvgTokTotal:    avgOrZero(tokTotal),
	}
}

func avgOrZero(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func formatFloat(v float64) string {
	// Nudge away from zero so values like 1.005 round to 1.01.
	rounded := math.Round((v+math.Copysign(1e-9, v))*100) / 100
	if rounded == 0 {
		return "0"
	}
	s := strconv.FormatFloat(rounded, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}
