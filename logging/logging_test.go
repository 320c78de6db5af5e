package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingWriter struct{}

func (fw *failingWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

func TestConsoleOutput(t *testing.T) {
	var console bytes.Buffer
	SetOutput(&console)
	t.Cleanup(func() { SetOutput(os.Stderr) })

	require.NoError(t, Init("WARN", "text", false, ""))

	slog.Info("hidden")
	slog.Warn("Bridge busy", "attempts", 3)

	assert.NotContains(t, console.String(), "hidden")
	assert.Contains(t, console.String(), "Bridge busy")
	assert.Contains(t, console.String(), "attempts=3")
}

func TestFileLogging(t *testing.T) {
	SetOutput(nil)
	t.Cleanup(func() { SetOutput(os.Stderr) })
	logFile := filepath.Join(t.TempDir(), "test.log")

	require.NoError(t, Init("INFO", "json", true, logFile))
	slog.Info("Sample", "celsius", 25.0)
	require.NoError(t, Close())

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"msg":"Sample"`)
	assert.Contains(t, string(content), `"celsius":25`)
}

func TestReinitSwitchesFile(t *testing.T) {
	SetOutput(nil)
	t.Cleanup(func() { SetOutput(os.Stderr) })
	dir := t.TempDir()
	first := filepath.Join(dir, "first.log")
	second := filepath.Join(dir, "second.log")

	require.NoError(t, Init("INFO", "text", true, first))
	slog.Info("one")
	require.NoError(t, Init("INFO", "text", true, second))
	slog.Info("two")
	require.NoError(t, Close())

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(a), "one") && !strings.Contains(string(a), "two"))
	assert.Contains(t, string(b), "two")
}

func TestInit_BadFile(t *testing.T) {
	err := Init("INFO", "text", true, filepath.Join(t.TempDir(), "missing", "x.log"))
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("Error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestErrorPropagation(t *testing.T) {
	w := &teeWriter{target: &failingWriter{}}
	n, err := w.Write([]byte("x"))
	assert.Equal(t, 1, n)
	assert.Error(t, err)
}
