package results

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/codalotl/agentbench/internal/fsutil"
	"github.com/codalotl/agentbench/internal/types"
)

// maxErrorLen caps the error column of the summary CSV.
const maxErrorLen = 100

// CSVHeader is the column layout of summary.csv.
var CSVHeader = []string{
	"task_id", "agent", "agent_version", "model_name", "timestamp",
	"success", "score", "iterations", "duration_secs", "tokens_used", "error",
}

// SummaryEntry is one element of summary.json.
type SummaryEntry struct {
	TaskID       string    `json:"task_id"`
	AgentVersion string    `json:"agent_version,omitempty"`
	ModelName    string    `json:"model_name,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Iterations   int       `json:"iterations"`
	DurationSecs float64   `json:"duration_secs"`
	TokensUsed   int       `json:"tokens_used"`
}

// CSVRecord renders res as a summary.csv row.
func CSVRecord(res types.BenchmarkResult) []string {
	return []string{
		res.TaskID,
		res.Agent,
		res.AgentVersion,
		res.ModelName,
		formatTimestamp(res.Timestamp),
		strconv.FormatBool(res.Success),
		strconv.Itoa(res.Score),
		strconv.Itoa(res.Iterations),
		strconv.FormatFloat(res.DurationSecs, 'f', 2, 64),
		strconv.Itoa(res.TokensUsed),
		truncate(res.Error, maxErrorLen),
	}
}

// WriteSummaryCSV writes the header followed by one row per result.
func WriteSummaryCSV(w io.Writer, all []types.BenchmarkResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, res := range all {
		if err := cw.Write(CSVRecord(res)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// appendCSV adds res to summary.csv unless a row with the same task, agent and timestamp exists. The
// CSV is an audit log of every attempt, so agent is part of the key.
func (r *Recorder) appendCSV(res types.BenchmarkResult) error {
	path := filepath.Join(r.dir, SummaryCSV)
	rows, err := readCSV(path)
	if err != nil {
		return err
	}

	record := CSVRecord(res)
	key := csvKey(record)
	for _, row := range rows {
		if len(row) >= 5 && csvKey(row) == key {
			return nil
		}
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if len(rows) == 0 {
		if err := cw.Write(CSVHeader); err != nil {
			return err
		}
	}
	if err := cw.Write(record); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func csvKey(row []string) string {
	return row[0] + "\x00" + row[1] + "\x00" + row[4]
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}

// appendJSON adds successful results to summary.json unless an entry with the same task and timestamp
// exists. summary.json is a leaderboard of passing runs, so agent is not part of the key.
func (r *Recorder) appendJSON(res types.BenchmarkResult) error {
	if !res.Success {
		return nil
	}
	path := filepath.Join(r.dir, SummaryJSON)
	entries, err := ReadSummaryJSON(path)
	if err != nil {
		return err
	}
	ts := res.Timestamp.UTC()
	for _, e := range entries {
		if e.TaskID == res.TaskID && e.Timestamp.Equal(ts) {
			return nil
		}
	}
	entries = append(entries, SummaryEntry{
		TaskID:       res.TaskID,
		AgentVersion: res.AgentVersion,
		ModelName:    res.ModelName,
		Timestamp:    ts,
		Iterations:   res.Iterations,
		DurationSecs: res.DurationSecs,
		TokensUsed:   res.TokensUsed,
	})
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, data, 0o644)
}

// ReadSummaryJSON returns the entries of a summary.json file. A missing file has no entries.
func ReadSummaryJSON(path string) ([]SummaryEntry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []SummaryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return entries, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
