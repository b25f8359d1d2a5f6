package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelDebug, FormatJSON)
	logger.SetOutput(&buf)

	logger.WithField("subject", "0xabc").WithError(errors.New("boom")).Warn("append failed")

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry.Level)
	assert.Equal(t, "append failed", entry.Message)
	assert.Equal(t, "0xabc", entry.Fields["subject"])
	assert.Equal(t, "boom", entry.Fields["error"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelWarn, FormatText)
	logger.SetOutput(&buf)

	logger.Info("hidden")
	logger.Debug("hidden")
	logger.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "warn: shown")
}

func TestLogger_ChildrenDoNotLeakFields(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(LevelInfo, FormatText)
	parent.SetOutput(&buf)

	_ = parent.WithField("request_id", "r-1")
	parent.Info("plain")

	assert.NotContains(t, buf.String(), "request_id")
}

func TestLogger_TextSortsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelInfo, FormatText)
	logger.SetOutput(&buf)

	logger.WithFields(map[string]interface{}{"b": 2, "a": 1}).Info("msg")

	line := buf.String()
	assert.Less(t, strings.Index(line, "a=1"), strings.Index(line, "b=2"))
}

func TestFromContext(t *testing.T) {
	logger := NewLogger(LevelInfo, FormatJSON).WithComponent("tax")
	ctx := WithLogger(context.Background(), logger)

	assert.Same(t, logger, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestParseLogLevel(t *testing.T) {
	level, err := ParseLogLevel("WARNING")
	require.NoError(t, err)
	assert.Equal(t, LevelWarn, level)

	_, err = ParseLogLevel("verbose")
	assert.Error(t, err)

	format, err := ParseLogFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, format)
}
