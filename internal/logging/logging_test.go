package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codalotl/agentbench/internal/logging"
)

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Out: &buf, Format: logging.FormatJSON})
	require.NoError(t, err)

	logger.WithField("task", "TOOLS-001").Info("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "hello", line["msg"])
	require.Equal(t, "TOOLS-001", line["task"])
}

func TestNewDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Out: &buf})
	require.NoError(t, err)
	logger.Debug("hidden")
	require.Empty(t, buf.String())

	buf.Reset()
	logger, err = logging.New(logging.Options{Out: &buf, Debug: true, NoColor: true})
	require.NoError(t, err)
	logger.Debug("shown")
	require.Contains(t, buf.String(), "shown")
}

func TestNewUnknownFormat(t *testing.T) {
	_, err := logging.New(logging.Options{Format: "xml"})
	require.Error(t, err)
}
