package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/adpulse/adpulse-go/internal/analyzer"
	"github.com/adpulse/adpulse-go/internal/models"
	"github.com/adpulse/adpulse-go/internal/ratelimit"
	"github.com/adpulse/adpulse-go/pkg/insights"
)

// InsightsAPI is the upstream surface the orchestrator paginates.
type InsightsAPI interface {
	FetchPage(ctx context.Context, req *insights.PageRequest) (*insights.InsightsPage, error)
	PageSize() int
}

// SessionStore persists retrieval sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.RetrievalSession) error
	UpdateSession(ctx context.Context, session *models.RetrievalSession) error
}

// TimelineStore persists merged timeline points.
type TimelineStore interface {
	UpsertPoints(ctx context.Context, points []models.TimelinePoint) error
	GetTimeline(ctx context.Context, accountID, adID string, dateRange models.DateRange) ([]models.TimelinePoint, error)
	GetAccountTimeline(ctx context.Context, accountID string, dateRange models.DateRange) ([]models.TimelinePoint, error)
}

// GapStore persists delivery gap analysis results.
type GapStore interface {
	ReplaceGaps(ctx context.Context, adID string, dateRange models.DateRange, gaps []models.GapRecord) error
}

// AnomalyStore persists detector output.
type AnomalyStore interface {
	InsertAnomalies(ctx context.Context, anomalies []models.AnomalyRecord) error
}

// Notifier receives newly detected anomalies. Dispatch is fire-and-forget.
type Notifier interface {
	NotifyAnomalies(ctx context.Context, anomalies []models.AnomalyRecord)
}

// inflight is one active fetch for a (account, range) key. Later callers
// for the same key attach to it instead of starting a duplicate.
type inflight struct {
	done    chan struct{}
	session *models.RetrievalSession
	points  []models.TimelinePoint
	err     error
}

// Orchestrator drives retrieval sessions: it paginates the upstream API
// under budget control, merges pages into the durable timeline and runs
// the analyzers over the merged result.
type Orchestrator struct {
	client    InsightsAPI
	budget    *ratelimit.BudgetTracker
	sessions  SessionStore
	timeline  TimelineStore
	gaps      GapStore
	anomalies AnomalyStore
	delivery  *analyzer.DeliveryAnalyzer
	detector  *analyzer.AnomalyDetector
	notifier  Notifier
	logger    *logrus.Logger
	now       func() time.Time

	mu      sync.Mutex
	pending map[string]*inflight
}

// New creates an orchestrator. notifier may be nil.
func New(client InsightsAPI, budget *ratelimit.BudgetTracker, sessions SessionStore, timeline TimelineStore, gaps GapStore, anomalies AnomalyStore, delivery *analyzer.DeliveryAnalyzer, detector *analyzer.AnomalyDetector, notifier Notifier, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		client:    client,
		budget:    budget,
		sessions:  sessions,
		timeline:  timeline,
		gaps:      gaps,
		anomalies: anomalies,
		delivery:  delivery,
		detector:  detector,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
		pending:   make(map[string]*inflight),
	}
}

// SetClock overrides the time source for tests.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// Execute runs a retrieval session over the planned date parts. At most one
// fetch is active per (account, range) key; concurrent calls for the same
// key attach to the in-flight session and share its result.
//
// A failed session is not returned as an error: the caller inspects the
// session status. The error return covers persistence failures only.
func (o *Orchestrator) Execute(ctx context.Context, req models.SeriesRequest, parts []models.DateRange) ([]models.TimelinePoint, *models.RetrievalSession, error) {
	key := req.Key()

	o.mu.Lock()
	if fl, ok := o.pending[key]; ok {
		o.mu.Unlock()
		<-fl.done
		return fl.points, fl.session, fl.err
	}
	fl := &inflight{done: make(chan struct{})}
	o.pending[key] = fl
	o.mu.Unlock()

	// The fetch outlives the caller: an abandoned request must still
	// populate the cache for the next one.
	fetchCtx := context.WithoutCancel(ctx)
	fl.points, fl.session, fl.err = o.run(fetchCtx, req, parts)

	o.mu.Lock()
	delete(o.pending, key)
	o.mu.Unlock()
	close(fl.done)

	return fl.points, fl.session, fl.err
}

func (o *Orchestrator) run(ctx context.Context, req models.SeriesRequest, parts []models.DateRange) ([]models.TimelinePoint, *models.RetrievalSession, error) {
	now := o.now()
	session := &models.RetrievalSession{
		ID:        uuid.New().String(),
		AccountID: req.AccountID,
		DateRange: req.DateRange,
		Status:    models.SessionPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.sessions.CreateSession(ctx, session); err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	// First reservation gates the pending->fetching transition. Denial is
	// recoverable: the session stays pending and the caller retries later.
	if ok, retryAfter := o.budget.Reserve(req.AccountID, 1); !ok {
		o.logger.WithFields(logrus.Fields{
			"account_id":  req.AccountID,
			"session_id":  session.ID,
			"retry_after": retryAfter.String(),
		}).Info("Budget denied, session stays pending")
		points, _ := o.readMerged(ctx, req)
		return points, session, nil
	}

	session.Status = models.SessionFetching
	if err := o.persist(ctx, session); err != nil {
		return nil, nil, err
	}

	reserved := true
	for _, part := range parts {
		if done := o.fetchPart(ctx, req, part, session, &reserved); done {
			break
		}
	}

	merged, err := o.readMerged(ctx, req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read merged timeline: %w", err)
	}
	merged = enrichComparisons(merged)

	anomalies := o.analyze(ctx, req, session, merged)

	if session.Status == models.SessionFetching {
		session.Status = models.SessionCompleted
	}
	if err := o.persist(ctx, session); err != nil {
		return nil, nil, err
	}

	if o.notifier != nil && len(anomalies) > 0 {
		go o.notifier.NotifyAnomalies(context.WithoutCancel(ctx), anomalies)
	}

	o.logger.WithFields(logrus.Fields{
		"session_id":      session.ID,
		"status":          string(session.Status),
		"pages_retrieved": session.PagesRetrieved,
		"total_items":     session.TotalItems,
	}).Info("Retrieval session finished")

	return merged, session, nil
}

// readMerged reads back the durable timeline for the request, scoped to the
// requested ad when one is set.
func (o *Orchestrator) readMerged(ctx context.Context, req models.SeriesRequest) ([]models.TimelinePoint, error) {
	if req.AdID != "" {
		return o.timeline.GetTimeline(ctx, req.AccountID, req.AdID, req.DateRange)
	}
	return o.timeline.GetAccountTimeline(ctx, req.AccountID, req.DateRange)
}

// fetchPart paginates one planned date part. Returns true when the session
// reached a terminal state and remaining parts must be skipped.
func (o *Orchestrator) fetchPart(ctx context.Context, req models.SeriesRequest, part models.DateRange, session *models.RetrievalSession, reserved *bool) bool {
	cursor := ""
	page := 1

	for {
		if !*reserved {
			if ok, _ := o.budget.Reserve(req.AccountID, 1); !ok {
				o.fail(ctx, session, fmt.Sprintf("%s mid-fetch", ErrQuotaExceeded))
				return true
			}
		}
		*reserved = false

		resp, err := o.client.FetchPage(ctx, &insights.PageRequest{
			AccountID: req.AccountID,
			AdID:      req.AdID,
			Since:     part.Start,
			Until:     part.End,
			Cursor:    cursor,
			Page:      page,
		})
		if err != nil {
			o.recordFetchError(req.AccountID, err)
			o.fail(ctx, session, fetchFailureReason(err))
			return true
		}
		o.budget.Record(req.AccountID, ratelimit.OutcomeSuccess)

		points, err := o.convertPage(req, part, page, resp)
		if err != nil {
			// The malformed page is rejected; pages merged before it stay.
			o.fail(ctx, session, err.Error())
			return true
		}

		if err := o.timeline.UpsertPoints(ctx, points); err != nil {
			o.fail(ctx, session, fmt.Sprintf("failed to merge page %d: %v", page, err))
			return true
		}

		session.PagesRetrieved++
		session.TotalItems += len(resp.Rows)
		if page == 1 {
			session.TotalPages += resp.Paging.TotalPages
		}
		if err := o.persist(ctx, session); err != nil {
			o.logger.WithField("session_id", session.ID).WithError(err).Warn("Failed to persist session progress")
		}

		if resp.Paging.NextCursor == "" && resp.Paging.Page >= resp.Paging.TotalPages {
			return false
		}
		cursor = resp.Paging.NextCursor
		page++
	}
}

func (o *Orchestrator) recordFetchError(accountID string, err error) {
	if errors.Is(err, insights.ErrRateLimited) {
		o.budget.Record(accountID, ratelimit.OutcomeRateLimited)
		return
	}
	o.budget.Record(accountID, ratelimit.OutcomeFailure)
}

func fetchFailureReason(err error) string {
	var rateErr *insights.RateLimitError
	if errors.As(err, &rateErr) {
		return fmt.Sprintf("upstream rate limited, retry after %s", rateErr.RetryAfter)
	}
	var apiErr *insights.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("upstream error (%d): %s", apiErr.StatusCode, apiErr.Message)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "upstream timeout"
	}
	return fmt.Sprintf("upstream request failed: %v", err)
}

// convertPage validates raw rows into timeline points. Any invalid row
// rejects the whole page.
func (o *Orchestrator) convertPage(req models.SeriesRequest, part models.DateRange, page int, resp *insights.InsightsPage) ([]models.TimelinePoint, error) {
	now := o.now()
	seen := make(map[string]bool, len(resp.Rows))
	points := make([]models.TimelinePoint, 0, len(resp.Rows))

	for _, row := range resp.Rows {
		day, err := time.ParseInLocation("2006-01-02", row.Date, time.UTC)
		if err != nil {
			return nil, &MalformedPageError{Page: page, Reason: fmt.Sprintf("unparseable date %q for ad %s", row.Date, row.AdID)}
		}
		if !part.Contains(day) {
			return nil, &MalformedPageError{Page: page, Reason: fmt.Sprintf("date %s outside requested range for ad %s", row.Date, row.AdID)}
		}
		if row.AdID == "" {
			return nil, &MalformedPageError{Page: page, Reason: "row missing ad id"}
		}
		rowKey := row.AdID + ":" + row.Date
		if seen[rowKey] {
			return nil, &MalformedPageError{Page: page, Reason: fmt.Sprintf("duplicate row for ad %s on %s", row.AdID, row.Date)}
		}
		seen[rowKey] = true

		accountID := row.AccountID
		if accountID == "" {
			accountID = req.AccountID
		}
		points = append(points, models.TimelinePoint{
			AdID:              row.AdID,
			AccountID:         accountID,
			Date:              day,
			HasDelivery:       row.Impressions > 0 || row.Spend.IsPositive(),
			DeliveryIntensity: analyzer.DeliveryIntensityFor(row.Impressions),
			Metrics:           deriveMetrics(row),
			FetchedAt:         now,
		})
	}

	return points, nil
}

func (o *Orchestrator) fail(ctx context.Context, session *models.RetrievalSession, reason string) {
	session.Status = models.SessionFailed
	session.FailureReason = reason
	if err := o.persist(ctx, session); err != nil {
		o.logger.WithField("session_id", session.ID).WithError(err).Error("Failed to persist failed session")
	}
	o.logger.WithFields(logrus.Fields{
		"session_id": session.ID,
		"account_id": session.AccountID,
		"reason":     reason,
	}).Warn("Retrieval session failed, partial progress retained")
}

func (o *Orchestrator) persist(ctx context.Context, session *models.RetrievalSession) error {
	session.UpdatedAt = o.now()
	if err := o.sessions.UpdateSession(ctx, session); err != nil {
		return fmt.Errorf("failed to update session %s: %w", session.ID, err)
	}
	return nil
}
