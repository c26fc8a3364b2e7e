package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the application logger. Production gets JSON output
// for log shipping, everything else keeps the readable text format.
func NewLogger(logLevel, environment string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetLevel(parseLevel(logLevel))

	if strings.EqualFold(environment, "production") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func parseLevel(logLevel string) logrus.Level {
	level, err := logrus.ParseLevel(strings.ToLower(logLevel))
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
