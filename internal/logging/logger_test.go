package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otellog "go.opentelemetry.io/otel/log"
)

func TestNewLoggerLevels(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, NewLogger("debug", "development").GetLevel())
	assert.Equal(t, logrus.WarnLevel, NewLogger("WARN", "development").GetLevel())
	assert.Equal(t, logrus.InfoLevel, NewLogger("bogus", "development").GetLevel())
}

func TestNewLoggerFormatters(t *testing.T) {
	prod := NewLogger("info", "production")
	_, isJSON := prod.Formatter.(*logrus.JSONFormatter)
	assert.True(t, isJSON)

	dev := NewLogger("info", "development")
	_, isText := dev.Formatter.(*logrus.TextFormatter)
	assert.True(t, isText)
}

func TestOTLPLoggerDisabled(t *testing.T) {
	logger := logrus.New()
	otlp, err := NewOTLPLogger(OTLPConfig{Enabled: false}, logger)
	require.NoError(t, err)
	assert.Empty(t, logger.Hooks)

	assert.NoError(t, otlp.Shutdown(t.Context()))
}

func TestConvertLevelToSeverity(t *testing.T) {
	tests := map[logrus.Level]otellog.Severity{
		logrus.DebugLevel: otellog.SeverityDebug,
		logrus.InfoLevel:  otellog.SeverityInfo,
		logrus.WarnLevel:  otellog.SeverityWarn,
		logrus.ErrorLevel: otellog.SeverityError,
		logrus.FatalLevel: otellog.SeverityFatal,
	}
	for level, want := range tests {
		assert.Equal(t, want, convertLevelToSeverity(level), "level %s", level)
	}
}
