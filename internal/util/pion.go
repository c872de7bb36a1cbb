package util

import (
	"fmt"

	"github.com/pion/logging"
)

// PionLoggerFactory routes pion's internal logs into the pterm logger.
// pion is noisy at info level, so everything below warnings is demoted to
// debug and only shows with --debug.
type PionLoggerFactory struct{}

var _ logging.LoggerFactory = PionLoggerFactory{}

// NewLogger implements logging.LoggerFactory.
func (PionLoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return pionLogger{scope: Scoped("pion/" + scope)}
}

type pionLogger struct {
	scope Scoped
}

func (l pionLogger) Trace(msg string)                          {}
func (l pionLogger) Tracef(format string, args ...interface{}) {}

func (l pionLogger) Debug(msg string) { l.scope.Debug("%s", msg) }
func (l pionLogger) Debugf(format string, args ...interface{}) {
	l.scope.Debug("%s", fmt.Sprintf(format, args...))
}

func (l pionLogger) Info(msg string) { l.scope.Debug("%s", msg) }
func (l pionLogger) Infof(format string, args ...interface{}) {
	l.scope.Debug("%s", fmt.Sprintf(format, args...))
}

func (l pionLogger) Warn(msg string) { l.scope.Warning("%s", msg) }
func (l pionLogger) Warnf(format string, args ...interface{}) {
	l.scope.Warning("%s", fmt.Sprintf(format, args...))
}

func (l pionLogger) Error(msg string) { l.scope.Error("%s", msg) }
func (l pionLogger) Errorf(format string, args ...interface{}) {
	l.scope.Error("%s", fmt.Sprintf(format, args...))
}
