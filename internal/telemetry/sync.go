package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/adpulse/adpulse-go/internal/models"
)

// SyncTracer provides spans for series loads, the slow path that talks
// to the upstream insights API.
type SyncTracer struct {
	tracer trace.Tracer
}

// NewSyncTracer creates a new instance of SyncTracer.
func NewSyncTracer() *SyncTracer {
	return &SyncTracer{tracer: otel.Tracer("adpulse/sync")}
}

// StartSeriesLoad starts a span covering one full series load.
func (st *SyncTracer) StartSeriesLoad(ctx context.Context, req models.SeriesRequest) (context.Context, trace.Span) {
	ctx, span := st.tracer.Start(ctx, "series_load",
		trace.WithAttributes(
			attribute.String("account_id", req.AccountID),
			attribute.String("ad_id", req.AdID),
			attribute.String("range_start", req.DateRange.Start.Format("2006-01-02")),
			attribute.String("range_end", req.DateRange.End.Format("2006-01-02")),
			attribute.Int("range_days", req.DateRange.Days()),
		),
	)
	return ctx, span
}

// RecordPlan attaches the chosen update strategy to the load span.
func (st *SyncTracer) RecordPlan(span trace.Span, strategy string, estimatedCalls int, staleness float64) {
	span.SetAttributes(
		attribute.String("plan.strategy", strategy),
		attribute.Int("plan.estimated_calls", estimatedCalls),
		attribute.Float64("plan.staleness", staleness),
	)
}

// EndSeriesLoad finalizes the load span with the session outcome.
func (st *SyncTracer) EndSeriesLoad(span trace.Span, session *models.RetrievalSession, points int, err error) {
	defer span.End()

	span.SetAttributes(attribute.Int("points", points))
	if session != nil {
		span.SetAttributes(
			attribute.String("session_id", session.ID),
			attribute.String("session_status", string(session.Status)),
		)
	}

	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case session != nil && session.Status == models.SessionFailed:
		span.SetStatus(codes.Error, session.FailureReason)
	default:
		span.SetStatus(codes.Ok, "")
	}
}
