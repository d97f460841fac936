// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"io"
	"log/slog"
)

// NewLogger creates the process logger. When w is a terminal it uses
// slog.TextHandler for human-readable output; when piped or redirected
// (CI, device farms, scripts) it uses slog.JSONHandler.
//
// Callers scope the logger with With():
//
//	logger := console.NewLogger(os.Stderr, slog.LevelInfo).With(
//	    "device", cfg.Device.Address,
//	)
func NewLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	var handler slog.Handler
	options := &slog.HandlerOptions{Level: level}
	if isTerminal(w) {
		handler = slog.NewTextHandler(w, options)
	} else {
		handler = slog.NewJSONHandler(w, options)
	}
	return slog.New(handler)
}
