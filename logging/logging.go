// Package logging provides the thin, process-global logger used across
// petitboot: plain stdlib log.Logger, with Debugf gated by an environment
// variable so discovery runs can be made verbose without a flag threaded
// through every call site.
package logging

import (
	"fmt"
	"log"
	"os"
)

var debug = os.Getenv("PETITBOOT_DEBUG") != ""

var std = log.New(os.Stderr, "", log.Ltime)

// SetOutput redirects the logger, used by tests to capture output.
func SetOutput(w *log.Logger) {
	std = w
}

// Noticef logs an always-on informational message.
func Noticef(format string, v ...interface{}) {
	std.Output(2, fmt.Sprintf(format, v...))
}

// Debugf logs only when PETITBOOT_DEBUG is set.
func Debugf(format string, v ...interface{}) {
	if !debug {
		return
	}
	std.Output(2, "DEBUG: "+fmt.Sprintf(format, v...))
}

// MockDebug is used by tests to force debug logging on or off, returning a
// restore function.
func MockDebug(on bool) (restore func()) {
	old := debug
	debug = on
	return func() { debug = old }
}
