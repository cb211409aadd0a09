package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a JSON logger at the given level name; unknown names fall
// back to info.
func New(level string) *logrus.Logger {
	log := &logrus.Logger{
		Out:       os.Stdout,
		Formatter: new(logrus.JSONFormatter),
		Level:     logrus.InfoLevel,
	}

	if parsed, err := logrus.ParseLevel(level); err == nil {
		log.Level = parsed
	}

	return log
}
