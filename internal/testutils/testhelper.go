package testutils

import (
	"io"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
)

// NewTestLogger returns a debug-level logger that only prints under go test -v.
// Output goes to stderr rather than t.Log because dispatch goroutines may still log
// after the test has returned.
func NewTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if testing.Verbose() {
		logger.SetOutput(os.Stderr)
	} else {
		logger.SetOutput(io.Discard)
	}
	return logger
}
