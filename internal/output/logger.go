// SPDX-License-Identifier: Apache-2.0

// Package output renders the result of a Waypoint operation for a
// terminal: colored tables and summary lines in the default mode,
// structured JSON when --json is set, plus the structured logger used
// for warnings and progress messages across every command.
package output

import "github.com/pterm/pterm"

// Logger is the event sink passed to pkg/roll operations as their
// warning callback, and used directly by cmd for progress messages.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type termLogger struct {
	logger pterm.Logger
}

type noopLogger struct{}

// NewLogger returns a Logger that writes through pterm's default
// structured logger.
func NewLogger() Logger {
	return &termLogger{logger: pterm.DefaultLogger}
}

// NewNoopLogger returns a Logger that discards everything, for use in
// --quiet mode and in tests.
func NewNoopLogger() Logger {
	return &noopLogger{}
}

func (l *termLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, l.logger.Args(args...))
}

func (l *termLogger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, l.logger.Args(args...))
}

func (l *termLogger) Error(msg string, args ...any) {
	l.logger.Error(msg, l.logger.Args(args...))
}

func (l *noopLogger) Info(msg string, args ...any)  {}
func (l *noopLogger) Warn(msg string, args ...any)  {}
func (l *noopLogger) Error(msg string, args ...any) {}
