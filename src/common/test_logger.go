package common

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
)

// TestLogLevel is the default log level used in tests.
const TestLogLevel = logrus.InfoLevel

// testWriter forwards every log line to t.Log, so output only shows for
// failed or verbose tests.
type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(bytes.TrimRight(p, "\n")))
	return len(p), nil
}

// NewTestLogger returns a logrus Logger which writes to t.Log at the given
// level.
func NewTestLogger(t testing.TB, level logrus.Level) *logrus.Logger {
	logger := logrus.New()
	logger.Out = testWriter{t: t}
	logger.Level = level
	return logger
}

// NewTestEntry is a shorthand for a prefixed entry of NewTestLogger.
func NewTestEntry(t testing.TB, level logrus.Level) *logrus.Entry {
	return NewTestLogger(t, level).WithField("prefix", t.Name())
}
