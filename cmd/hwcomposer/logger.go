// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/bureau-foundation/hwcomposer/lib/config"
)

// newLogger writes to stderr: text when it is a terminal or the format
// asks for it, JSON otherwise.
func newLogger(cfg *config.Config) *slog.Logger {
	options := &slog.HandlerOptions{Level: cfg.LogLevel()}
	text := cfg.Log.Format == "text" ||
		(cfg.Log.Format == "auto" && term.IsTerminal(int(os.Stderr.Fd())))

	var handler slog.Handler
	if text {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}
