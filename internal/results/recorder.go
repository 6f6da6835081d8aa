package results

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/codalotl/agentbench/internal/fsutil"
	"github.com/codalotl/agentbench/internal/logging"
	"github.com/codalotl/agentbench/internal/types"
)

const (
	// DefaultDir is the results directory used when nothing else is configured.
	DefaultDir = "results"
	// RunsDir is the subdirectory that receives a second copy of every suite file.
	RunsDir = "runs"

	SummaryCSV  = "summary.csv"
	SummaryJSON = "summary.json"

	// timestampLayout is used in file names; it sorts lexically and has no path-hostile characters.
	timestampLayout = "20060102_150405.000"
)

// Index receives every saved result. Implementations are best-effort sinks: failures are logged by the
// Recorder and never fail a save.
type Index interface {
	Add(ctx context.Context, res types.BenchmarkResult, path string) error
}

// Recorder persists benchmark results under a results directory.
type Recorder struct {
	dir    string
	index  Index
	logger logrus.FieldLogger

	// mu serializes read-modify-write cycles on the summary files.
	mu sync.Mutex
}

// RecorderConfig configures NewRecorder.
type RecorderConfig struct {
	Dir    string
	Index  Index
	Logger logrus.FieldLogger
}

func NewRecorder(cfg RecorderConfig) *Recorder {
	dir := cfg.Dir
	if dir == "" {
		dir = DefaultDir
	}
	return &Recorder{
		dir:    dir,
		index:  cfg.Index,
		logger: logging.OrNoop(cfg.Logger).WithField("svc", "results.Recorder"),
	}
}

// Dir returns the results directory.
func (r *Recorder) Dir() string {
	return r.dir
}

// Save writes the per-run result file and returns its path. A failure to write it is returned. After
// that the summaries and the index are updated; failures there are logged and do not affect the return.
func (r *Recorder) Save(ctx context.Context, res types.BenchmarkResult) (string, error) {
	path := filepath.Join(r.dir, ResultFilename(res))
	if err := writeJSON(path, res); err != nil {
		return "", fmt.Errorf("save result for %s: %w", res.TaskID, err)
	}

	logger := r.logger.WithFields(logrus.Fields{"task": res.TaskID, "agent": res.Agent, "model": res.ModelName})
	logger.Debugf("Saved result to %s", path)

	r.mu.Lock()
	if err := r.appendCSV(res); err != nil {
		logger.Warnf("Could not update %s: %v", SummaryCSV, err)
	}
	if err := r.appendJSON(res); err != nil {
		logger.Warnf("Could not update %s: %v", SummaryJSON, err)
	}
	r.mu.Unlock()

	if r.index != nil {
		if err := r.index.Add(ctx, res, path); err != nil {
			logger.Warnf("Could not index result: %v", err)
		}
	}
	return path, nil
}

// SaveSuite writes the suite file to the results directory and to its runs/ subdirectory. It returns
// the paths written.
func (r *Recorder) SaveSuite(suite types.SuiteResults) ([]string, error) {
	name := SuiteFilename(suite)
	paths := []string{
		filepath.Join(r.dir, name),
		filepath.Join(r.dir, RunsDir, name),
	}
	for _, p := range paths {
		if err := writeJSON(p, suite); err != nil {
			return nil, fmt.Errorf("save suite results: %w", err)
		}
	}
	r.logger.WithField("agent", suite.Agent).Infof("Saved suite results to %s", paths[0])
	return paths, nil
}

// ResultFilename returns "<task>_<agent>_<model>_<timestamp>_<pass|fail>.json". When the result has a
// run id it goes before the status, so parallel runs finishing in the same millisecond stay apart.
func ResultFilename(res types.BenchmarkResult) string {
	status := "fail"
	if res.Success {
		status = "pass"
	}
	stamp := res.Timestamp.UTC().Format(timestampLayout)
	if res.RunID != "" {
		stamp += "_" + safePart(res.RunID, "run")
	}
	return fmt.Sprintf("%s_%s_%s_%s_%s.json",
		safePart(res.TaskID, "task"),
		safePart(res.Agent, "agent"),
		safePart(res.ModelName, "default"),
		stamp,
		status)
}

// SuiteFilename returns "suite_<label>_<timestamp>.json".
func SuiteFilename(suite types.SuiteResults) string {
	return fmt.Sprintf("suite_%s_%s.json", safePart(suite.Agent, "agent"), suite.Timestamp.UTC().Format(timestampLayout))
}

// IsResultFile reports whether name looks like a per-run result file.
func IsResultFile(name string) bool {
	if !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, "suite_") || name == SummaryJSON {
		return false
	}
	return strings.HasSuffix(name, "_pass.json") || strings.HasSuffix(name, "_fail.json")
}

var unsafeChars = strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")

func safePart(value, fallback string) string {
	val := strings.TrimSpace(value)
	if val == "" {
		return fallback
	}
	return unsafeChars.Replace(val)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, data, 0o644)
}
