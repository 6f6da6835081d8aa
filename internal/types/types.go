package types

import (
	"time"
)

// Scores assigned to passing and failing results.
const (
	ScorePass = 100
	ScoreFail = 0
)

// BenchmarkResult is the record of one task execution by one agent/model. Build it with Succeeded or
// Failed; it is not modified afterwards.
type BenchmarkResult struct {
	TaskID             string    `json:"task_id"`
	Agent              string    `json:"agent"`
	AgentVersion       string    `json:"agent_version,omitempty"`
	ModelName          string    `json:"model_name,omitempty"`
	RunID              string    `json:"run_id,omitempty"`
	Success            bool      `json:"success"`
	Score              int       `json:"score"`
	Iterations         int       `json:"iterations"`
	InputTokens        int       `json:"input_tokens"`
	OutputTokens       int       `json:"output_tokens"`
	TokensUsed         int       `json:"tokens_used"`
	DurationSecs       float64   `json:"duration_secs"`
	VerificationOutput string    `json:"verification_output,omitempty"`
	AgentOutput        string    `json:"agent_output,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
	Error              string    `json:"error,omitempty"`
}

// Outcome carries everything known about an execution when its result is built.
type Outcome struct {
	TaskID             string
	Agent              string
	AgentVersion       string
	ModelName          string
	RunID              string
	Iterations         int
	InputTokens        int
	OutputTokens       int
	Duration           time.Duration
	AgentOutput        string
	VerificationOutput string
	Timestamp          time.Time
}

// Succeeded builds a passing result.
func Succeeded(o Outcome) BenchmarkResult {
	r := fromOutcome(o)
	r.Success = true
	r.Score = ScorePass
	return r
}

// Failed builds a failing result with reason as its error.
func Failed(o Outcome, reason string) BenchmarkResult {
	r := fromOutcome(o)
	r.Success = false
	r.Score = ScoreFail
	r.Error = reason
	return r
}

func fromOutcome(o Outcome) BenchmarkResult {
	ts := o.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return BenchmarkResult{
		TaskID:             o.TaskID,
		Agent:              o.Agent,
		AgentVersion:       o.AgentVersion,
		ModelName:          o.ModelName,
		RunID:              o.RunID,
		Iterations:         o.Iterations,
		InputTokens:        o.InputTokens,
		OutputTokens:       o.OutputTokens,
		TokensUsed:         o.InputTokens + o.OutputTokens,
		DurationSecs:       o.Duration.Seconds(),
		VerificationOutput: o.VerificationOutput,
		AgentOutput:        o.AgentOutput,
		Timestamp:          ts.UTC(),
	}
}

// SuiteResults aggregates the results of one suite run.
type SuiteResults struct {
	Agent             string            `json:"agent"`
	Timestamp         time.Time         `json:"timestamp"`
	Results           []BenchmarkResult `json:"results"`
	TotalTasks        int               `json:"total_tasks"`
	Passed            int               `json:"passed"`
	Failed            int               `json:"failed"`
	PassRate          float64           `json:"pass_rate"`
	TotalDurationSecs float64           `json:"total_duration_secs"`
}

// NewSuiteResults computes the aggregate fields from results. PassRate is the fraction passed/total
// (0.75 for three of four) and is 0 for an empty suite.
func NewSuiteResults(agent string, results []BenchmarkResult, ts time.Time) SuiteResults {
	if results == nil {
		results = []BenchmarkResult{}
	}
	s := SuiteResults{
		Agent:      agent,
		Timestamp:  ts.UTC(),
		Results:    results,
		TotalTasks: len(results),
	}
	for _, r := range results {
		if r.Success {
			s.Passed++
		} else {
			s.Failed++
		}
		s.TotalDurationSecs += r.DurationSecs
	}
	if s.TotalTasks > 0 {
		s.PassRate = float64(s.Passed) / float64(s.TotalTasks)
	}
	return s
}
