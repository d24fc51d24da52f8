package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf})

	log.Info("Checking out gh-pages", zap.String("branch", "gh-pages"))
	log.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "INFO\tChecking out gh-pages")
	assert.Contains(t, out, `"branch": "gh-pages"`)
	assert.NotContains(t, out, "hidden", "debug entries need --verbose")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestNew_Verbose(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Verbose: true, Output: &buf})

	log.Debug("git -C /repo status --porcelain")
	assert.Contains(t, buf.String(), "DEBUG\tgit -C /repo status --porcelain")
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{JSON: true, Output: &buf})

	log.Info("Pushing website", zap.String("remote", "origin"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "Pushing website", entry["msg"])
	assert.Equal(t, "origin", entry["remote"])
	assert.NotEmpty(t, entry["timestamp"])
}
