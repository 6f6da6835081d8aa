package types_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codalotl/agentbench/internal/types"
)

func TestSucceededAndFailed(t *testing.T) {
	ts := time.Date(2025, 3, 4, 5, 6, 7, 0, time.FixedZone("x", 3600))
	o := types.Outcome{
		TaskID:       "TOOLS-001",
		Agent:        "claude",
		ModelName:    "sonnet",
		Iterations:   3,
		InputTokens:  100,
		OutputTokens: 50,
		Duration:     1500 * time.Millisecond,
		Timestamp:    ts,
	}

	pass := types.Succeeded(o)
	require.True(t, pass.Success)
	require.Equal(t, types.ScorePass, pass.Score)
	require.Equal(t, 150, pass.TokensUsed)
	require.Equal(t, 1.5, pass.DurationSecs)
	require.Equal(t, time.UTC, pass.Timestamp.Location())
	require.True(t, ts.Equal(pass.Timestamp))
	require.Empty(t, pass.Error)

	fail := types.Failed(o, "Verification tests failed")
	require.False(t, fail.Success)
	require.Equal(t, types.ScoreFail, fail.Score)
	require.Equal(t, 3, fail.Iterations)
	require.Equal(t, "Verification tests failed", fail.Error)
}

func TestNewSuiteResults(t *testing.T) {
	results := []types.BenchmarkResult{
		types.Succeeded(types.Outcome{TaskID: "A-1", Duration: time.Second}),
		types.Failed(types.Outcome{TaskID: "A-2", Duration: 2 * time.Second}, "boom"),
		types.Succeeded(types.Outcome{TaskID: "A-3", Duration: time.Second}),
		types.Succeeded(types.Outcome{TaskID: "A-4"}),
	}
	s := types.NewSuiteResults("claude", results, time.Now())

	require.Equal(t, 4, s.TotalTasks)
	require.Equal(t, 3, s.Passed)
	require.Equal(t, 1, s.Failed)
	require.Equal(t, s.TotalTasks, s.Passed+s.Failed)
	require.InDelta(t, 0.75, s.PassRate, 1e-9)
	require.InDelta(t, 4.0, s.TotalDurationSecs, 1e-9)
	require.Equal(t, "A-1", s.Results[0].TaskID)
	require.Equal(t, "A-4", s.Results[3].TaskID)
}

func TestNewSuiteResultsEmpty(t *testing.T) {
	s := types.NewSuiteResults("claude", nil, time.Now())
	require.Zero(t, s.TotalTasks)
	require.Zero(t, s.PassRate)
	require.NotNil(t, s.Results)
}

func TestNewSuiteResultsPassRateIsFraction(t *testing.T) {
	s := types.NewSuiteResults("a", []types.BenchmarkResult{
		types.Succeeded(types.Outcome{TaskID: "A-1"}),
		types.Failed(types.Outcome{TaskID: "A-2"}, "boom"),
	}, time.Now())
	require.Equal(t, 0.5, s.PassRate)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	require.Contains(t, string(data), `"pass_rate":0.5`)
}
