/*
 * arachne-fileset: immutable, content-addressed filesets
 * Copyright © 2026 arachne-fileset contributors
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

// Package env declares the logging facade the core treats as an
// external collaborator. The core never chooses a logging backend for
// the caller; it only ever calls through this interface.
package env

import (
	"io"
	"log"
)

// Logger is the minimal sink the core reports degraded operations
// through: transient filesystem misses during a directory walk, merge
// conflicts during commit, divergent entries during a merge.
type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
}

type stdLogger struct {
	*log.Logger
}

func (s stdLogger) Debugf(format string, args ...any) {
	s.Logger.Printf("DEBUG "+format, args...)
}

func (s stdLogger) Warnf(format string, args ...any) {
	s.Logger.Printf("WARN "+format, args...)
}

// NewStdLogger wraps the standard library's log.Logger as a Logger.
// This is the only logging backend the core ships with; nothing in the
// retrieval pack's teacher repo reaches for a structured logging
// library either, so none is introduced here.
func NewStdLogger(w io.Writer) Logger {
	return stdLogger{log.New(w, "", log.LstdFlags)}
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Warnf(string, ...any)  {}

// Nop discards everything. It's the default when a caller constructs a
// Fileset without supplying a Logger; Commit logs through the
// committed fileset's Logger.
var Nop Logger = nopLogger{}
