package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation settings of the log file.
const (
	maxSizeMB  = 10
	maxBackups = 3
	maxAgeDays = 28
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New creates a text logger writing to w at the given level ("debug",
// "info", "warn" or "error"). When file is not empty the output is also
// appended to that file, which is rotated by size. The returned closer
// releases the file.
func New(w io.Writer, level, file string) (*slog.Logger, io.Closer, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var closer io.Closer = nopCloser{}
	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return nil, nil, fmt.Errorf("cannot create log directory: %w", err)
		}
		lj := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   true,
		}
		w = io.MultiWriter(w, lj)
		closer = lj
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
	return logger, closer, nil
}
