// Package hotlog is the deliberately unstructured, printf-style logger
// used on the kill/restart hot path of the supervision tree. It stays
// a thin, low-ceremony wrapper, kept deliberately separate from
// internal/logger's structured ports.Logger so the two styles don't
// get blended back together by accident.
package hotlog

import (
	"os"

	"github.com/sirupsen/logrus"
)

var hot = newHotLogger()

func newHotLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
		DisableColors:    false,
	})
	l.SetLevel(logrus.DebugLevel)
	return l
}

// Killf logs a terse line on a Kill transition. format/args are
// printf-style, not structured fields, by design.
func Killf(format string, args ...interface{}) {
	hot.Debugf("kill: "+format, args...)
}

// Restartf logs a terse line on a supervisor-driven restart.
func Restartf(format string, args ...interface{}) {
	hot.Debugf("restart: "+format, args...)
}

// Faultf logs a terse line when a node observes Faulted.
func Faultf(format string, args ...interface{}) {
	hot.Debugf("fault: "+format, args...)
}

// SetLevel allows callers (tests, the façade) to silence or enable hot
// path logging; it never errors.
func SetLevel(level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return
	}
	hot.SetLevel(parsed)
}
