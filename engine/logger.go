package engine

import (
	"fmt"

	"github.com/charmbracelet/log"
)

/*------------------------------------------------------------------
 *
 * Purpose:	Real eventLogger backed by charmbracelet/log, and a
 *		recording fake for tests.
 *
 *------------------------------------------------------------------*/

// CharmLogger adapts a *log.Logger to the eventLogger interface.
type CharmLogger struct {
	L *log.Logger
}

// NewCharmLogger wraps l as an eventLogger.
func NewCharmLogger(l *log.Logger) *CharmLogger {
	return &CharmLogger{L: l}
}

func (c *CharmLogger) Debugf(format string, args ...any) { c.L.Debugf(format, args...) }
func (c *CharmLogger) Infof(format string, args ...any)  { c.L.Infof(format, args...) }
func (c *CharmLogger) Warnf(format string, args ...any)  { c.L.Warnf(format, args...) }

// RecordedLine is one captured log call, for test assertions.
type RecordedLine struct {
	Level string
	Line  string
}

// RecordingLogger is a fake eventLogger that captures calls instead of
// writing anywhere, so tests can assert on warnings/notices without a
// real logger dependency.
type RecordingLogger struct {
	Lines []RecordedLine
}

func (r *RecordingLogger) Debugf(format string, args ...any) {
	r.Lines = append(r.Lines, RecordedLine{Level: "debug", Line: fmt.Sprintf(format, args...)})
}

func (r *RecordingLogger) Infof(format string, args ...any) {
	r.Lines = append(r.Lines, RecordedLine{Level: "info", Line: fmt.Sprintf(format, args...)})
}

func (r *RecordingLogger) Warnf(format string, args ...any) {
	r.Lines = append(r.Lines, RecordedLine{Level: "warn", Line: fmt.Sprintf(format, args...)})
}
