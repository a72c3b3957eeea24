package debug

import (
	"bytes"
	"log"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// saveAndRestoreState saves and restores logger state around a test.
func saveAndRestoreState(t *testing.T) func() {
	t.Helper()
	originalDebugEnv := os.Getenv("DEBUG")
	originalLogLevelEnv := os.Getenv("LOG_LEVEL")

	mu.Lock()
	originalEnabled := isEnabled
	originalLevel := currentLevel
	mu.Unlock()

	return func() {
		os.Setenv("DEBUG", originalDebugEnv)
		os.Setenv("LOG_LEVEL", originalLogLevelEnv)
		mu.Lock()
		isEnabled = originalEnabled
		currentLevel = originalLevel
		mu.Unlock()
	}
}

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	original := logger
	logger = log.New(&buf, "", 0)
	t.Cleanup(func() { logger = original })
	return &buf
}

func TestLevelConstants(t *testing.T) {
	assert.Equal(t, LogLevel(0), LevelDebug)
	assert.Equal(t, LogLevel(1), LevelInfo)
	assert.Equal(t, LogLevel(2), LevelWarning)
	assert.Equal(t, LogLevel(3), LevelError)
}

func TestParseLevel(t *testing.T) {
	level, ok := ParseLevel("warning")
	assert.True(t, ok)
	assert.Equal(t, LevelWarning, level)

	_, ok = ParseLevel("verbose")
	assert.False(t, ok)
}

func TestLevelFiltering(t *testing.T) {
	restore := saveAndRestoreState(t)
	defer restore()

	buf := captureOutput(t)
	SetEnabled(true)
	SetLogLevel(LevelWarning)

	Debug("hidden debug")
	Info("hidden info")
	Warning("visible warning")
	Error("visible error")

	output := buf.String()
	assert.NotContains(t, output, "hidden debug")
	assert.NotContains(t, output, "hidden info")
	assert.Contains(t, output, "visible warning")
	assert.Contains(t, output, "visible error")
}

func TestLogWithFields(t *testing.T) {
	restore := saveAndRestoreState(t)
	defer restore()

	buf := captureOutput(t)
	SetEnabled(true)
	SetLogLevel(LevelDebug)

	Log("task claimed", map[string]interface{}{"agent_id": 7})

	output := buf.String()
	assert.Contains(t, output, "task claimed")
	assert.Contains(t, output, "agent_id=7")
}

func TestDisabledProducesNoOutput(t *testing.T) {
	restore := saveAndRestoreState(t)
	defer restore()

	buf := captureOutput(t)
	SetEnabled(false)

	Error("should not appear")
	assert.Empty(t, strings.TrimSpace(buf.String()))
}

func TestReinitializeReadsEnvironment(t *testing.T) {
	restore := saveAndRestoreState(t)
	defer restore()

	os.Setenv("DEBUG", "1")
	os.Setenv("LOG_LEVEL", "error")
	Reinitialize()

	assert.True(t, IsDebugEnabled())
	mu.RLock()
	defer mu.RUnlock()
	assert.Equal(t, LevelError, currentLevel)
}
