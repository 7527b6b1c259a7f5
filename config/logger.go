// SPDX-License-Identifier: EPL-2.0

package config

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ik5/audengine/audio"
)

// LevelNone disables logging.
const LevelNone = slog.Level(100)

// ParseLevel accepts "none", "error", "warn", "info" and "debug".
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return LevelNone, nil
	case "error":
		return slog.LevelError, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	}
	return slog.LevelInfo, audio.Errorf(audio.OutOfRange, "parse log level", "unexpected log level %q", s)
}

// NewLogger builds a logger writing text to w. Level "none" discards
// everything.
func NewLogger(w io.Writer, level string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if lvl == LevelNone {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), nil
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// ConfigureLogger sets the default slog logger. With an empty logFile it
// writes text to stdout; otherwise JSON to the file, which the caller
// closes:
//
//	f, err := config.ConfigureLogger(cfg.LogLevel, cfg.LogFile)
//	if err != nil {
//		return err
//	}
//	if f != nil {
//		defer f.Close()
//	}
func ConfigureLogger(level, logFile string) (*os.File, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if lvl == LevelNone {
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
		return nil, nil
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if logFile == "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, opts)))
		return nil, nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, audio.E(audio.IoError, "configure logger", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(f, opts)))
	return f, nil
}
