package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"golang.org/x/exp/slog"
	"gotest.tools/v3/assert"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, ParseLevel(in), want, "level %q", in)
	}
}

func TestComponentLoggerAddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: "debug", Format: "json"})

	Component(logger, "house", "heat_pump").Warn("cop below one")

	line := map[string]interface{}{}
	assert.NilError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, line["location"], "house")
	assert.Equal(t, line["component"], "heat_pump")
	assert.Equal(t, line["level"], "WARN")
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: "info"})
	logger.Debug("hidden")
	logger.Info("shown")
	assert.Assert(t, !strings.Contains(buf.String(), "hidden"))
	assert.Assert(t, strings.Contains(buf.String(), "shown"))
}
