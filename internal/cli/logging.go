package cli

import (
	"fmt"
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/arloliu/cwkeyer/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newLogger builds the process logger from the config's log section, with the
// global flags taking precedence. The returned closer releases a log file.
func newLogger(opts *RootOptions, lc config.Log, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	if opts.LogLevel != "" {
		lc.Level = opts.LogLevel
	}
	if opts.LogFile != "" {
		lc.File = opts.LogFile
	}

	level, err := lc.SlogLevel()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", lc.Level, err)
	}

	var w io.Writer = stderr
	var closer io.Closer = nopCloser{}
	if lc.File != "" {
		lj := &lumberjack.Logger{
			Filename:   lc.File,
			MaxSize:    lc.MaxSizeMB,
			MaxBackups: lc.MaxBackups,
			MaxAge:     lc.MaxAgeDays,
		}
		w, closer = lj, lj
	}

	hopts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if lc.Format == "json" {
		h = slog.NewJSONHandler(w, hopts)
	} else {
		h = slog.NewTextHandler(w, hopts)
	}

	return slog.New(h), closer, nil
}

// loadConfig reads path, or returns the defaults when path is empty.
func loadConfig(path string) (config.Keyer, error) {
	if path == "" {
		return config.Default(), nil
	}

	return config.Load(path)
}
