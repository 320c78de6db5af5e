// Package logging sets up the process wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// teeWriter writes to a console target and, when configured, appends the
// same output to a log file.
type teeWriter struct {
	mu     sync.Mutex
	target io.Writer
	file   *os.File
}

func (w *teeWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	if w.target != nil {
		if _, err := w.target.Write(p); err != nil {
			firstErr = err
		}
	}
	if w.file != nil {
		if _, err := w.file.Write(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return len(p), firstErr
}

var (
	mu     sync.Mutex
	writer = &teeWriter{target: os.Stderr}
)

// ParseLevel maps DEBUG, INFO, WARN and ERROR to slog levels. Anything
// else is INFO.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init installs a new default logger. It may be called again after a
// config reload; a previously opened log file is closed first.
func Init(levelStr, formatStr string, logToFile bool, logFilePath string) error {
	mu.Lock()
	defer mu.Unlock()

	var file *os.File
	if logToFile {
		f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return err
		}
		file = f
	}

	writer.mu.Lock()
	if writer.file != nil {
		writer.file.Close()
	}
	writer.file = file
	writer.mu.Unlock()

	opts := &slog.HandlerOptions{
		Level: ParseLevel(levelStr),
	}

	var handler slog.Handler
	if strings.ToLower(formatStr) == "json" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// SetOutput replaces the console target. A nil target leaves only the log
// file, if any.
func SetOutput(newTarget io.Writer) {
	writer.mu.Lock()
	defer writer.mu.Unlock()
	writer.target = newTarget
}

// Close closes the log file.
func Close() error {
	writer.mu.Lock()
	defer writer.mu.Unlock()
	if writer.file == nil {
		return nil
	}
	err := writer.file.Close()
	writer.file = nil
	return err
}
