package logging

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// OTLPLogger ships logrus entries to an OTLP collector alongside the
// regular stdout output.
type OTLPLogger struct {
	provider *sdklog.LoggerProvider
	shutdown func(context.Context) error
}

// OTLPConfig holds configuration for OpenTelemetry logging
type OTLPConfig struct {
	Enabled        bool
	Endpoint       string
	ServiceName    string
	ServiceVersion string
}

// NewOTLPLogger creates the OTLP log pipeline and attaches it to the
// given logrus logger. When disabled the logger is left untouched.
func NewOTLPLogger(config OTLPConfig, logger *logrus.Logger) (*OTLPLogger, error) {
	if !config.Enabled {
		return &OTLPLogger{
			shutdown: func(ctx context.Context) error { return nil },
		}, nil
	}

	ctx := context.Background()

	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = "localhost:4318"
	}

	exporter, err := otlploghttp.New(ctx,
		otlploghttp.WithEndpoint(endpoint),
		otlploghttp.WithURLPath("/v1/logs"),
		otlploghttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
		sdklog.WithResource(res),
	)

	logger.AddHook(NewOTLPHook(provider.Logger(config.ServiceName)))

	return &OTLPLogger{
		provider: provider,
		shutdown: provider.Shutdown,
	}, nil
}

// Shutdown flushes buffered records and stops the pipeline.
func (l *OTLPLogger) Shutdown(ctx context.Context) error {
	if l.shutdown != nil {
		return l.shutdown(ctx)
	}
	return nil
}

// OTLPHook implements logrus.Hook and forwards entries as OTLP records.
type OTLPHook struct {
	logger otellog.Logger
}

// NewOTLPHook creates a new OTLPHook
func NewOTLPHook(logger otellog.Logger) *OTLPHook {
	return &OTLPHook{logger: logger}
}

// Levels implements logrus.Hook.Levels
func (h *OTLPHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook.Fire
func (h *OTLPHook) Fire(entry *logrus.Entry) error {
	attrs := make([]otellog.KeyValue, 0, len(entry.Data))
	for key, value := range entry.Data {
		if err, ok := value.(error); ok {
			attrs = append(attrs, otellog.String(key, err.Error()))
			continue
		}
		attrs = append(attrs, otellog.String(key, fmt.Sprintf("%v", value)))
	}

	record := otellog.Record{}
	record.SetTimestamp(entry.Time)
	record.SetObservedTimestamp(time.Now())
	record.SetSeverity(convertLevelToSeverity(entry.Level))
	record.SetBody(otellog.StringValue(entry.Message))
	record.AddAttributes(attrs...)

	ctx := entry.Context
	if ctx == nil {
		ctx = context.Background()
	}
	h.logger.Emit(ctx, record)

	return nil
}

// convertLevelToSeverity converts logrus.Level to otellog.Severity
func convertLevelToSeverity(level logrus.Level) otellog.Severity {
	switch level {
	case logrus.TraceLevel, logrus.DebugLevel:
		return otellog.SeverityDebug
	case logrus.InfoLevel:
		return otellog.SeverityInfo
	case logrus.WarnLevel:
		return otellog.SeverityWarn
	case logrus.ErrorLevel:
		return otellog.SeverityError
	case logrus.FatalLevel, logrus.PanicLevel:
		return otellog.SeverityFatal
	default:
		return otellog.SeverityInfo
	}
}
