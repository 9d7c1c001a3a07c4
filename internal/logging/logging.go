package logging

import (
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var setup sync.Once

// Init configures the standard logger once. The level is taken from the
// HOARD_LOG environment variable ("debug", "info", "warn", "error") and
// defaults to warn so normal runs stay quiet.
func Init() {
	setup.Do(func() {
		logrus.SetOutput(os.Stderr)
		logrus.SetFormatter(&logrus.TextFormatter{
			DisableTimestamp: true,
		})

		level := logrus.WarnLevel
		if s := strings.TrimSpace(os.Getenv("HOARD_LOG")); s != "" {
			if l, err := logrus.ParseLevel(s); err == nil {
				level = l
			}
		}
		logrus.SetLevel(level)
	})
}

// For returns a field-scoped entry for the given subsystem.
func For(subsystem string) *logrus.Entry {
	Init()
	return logrus.WithField("sys", subsystem)
}
