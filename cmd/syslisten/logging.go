// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"io"
	"log/slog"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation policy of the log file.
const (
	logMaxSizeMB  = 10
	logMaxBackups = 3
	logMaxAgeDays = 28
)

// parseLevel maps a level name to a [slog.Level]. Unknown names map to info.
func parseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogger returns a JSON logger writing to console and, unless filename
// is empty, to a rotating file. The returned function releases the file.
func newLogger(console io.Writer, filename, level string) (*slog.Logger, func() error) {
	closer := func() error { return nil }
	out := console
	if filename != "" {
		file := &lumberjack.Logger{
			Filename:   filename,
			MaxSize:    logMaxSizeMB,
			MaxBackups: logMaxBackups,
			MaxAge:     logMaxAgeDays,
		}
		closer = file.Close
		out = io.MultiWriter(console, file)
	}
	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: parseLevel(level)})
	return slog.New(handler), closer
}
