// Package util provides shared logging and traffic accounting.
package util

import (
	"fmt"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

// Leveled logging functions backed by the pterm default logger.
// All output goes to stderr by default (pterm's default).

func LogDebug(format string, args ...interface{}) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogSuccess(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogWarning(format string, args ...interface{}) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...interface{}) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...))
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// DebugEnabled reports whether debug output is currently shown.
func DebugEnabled() bool {
	return pterm.DefaultLogger.Level <= pterm.LogLevelDebug
}

// Scoped prefixes every message with "[scope] ". It is used by packages that
// log on behalf of one session or one room.
type Scoped string

func (s Scoped) Debug(format string, args ...interface{}) {
	LogDebug("[%s] %s", string(s), fmt.Sprintf(format, args...))
}

func (s Scoped) Info(format string, args ...interface{}) {
	LogInfo("[%s] %s", string(s), fmt.Sprintf(format, args...))
}

func (s Scoped) Warning(format string, args ...interface{}) {
	LogWarning("[%s] %s", string(s), fmt.Sprintf(format, args...))
}

func (s Scoped) Error(format string, args ...interface{}) {
	LogError("[%s] %s", string(s), fmt.Sprintf(format, args...))
}
