package insights

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrRateLimited is returned when the upstream API rejects a call for
// quota reasons. Callers should back off rather than retry immediately.
var ErrRateLimited = errors.New("insights API rate limited")

// RateLimitError carries the upstream's suggested retry delay.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("insights API rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// APIError represents a non-rate-limit upstream failure (4xx/5xx).
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("insights API error (%d): %s", e.StatusCode, e.Message)
}

// InsightRow is one per-ad-per-day metric row as returned by the API.
// Values arrive loosely typed and are validated at the orchestrator
// boundary before entering the engine.
type InsightRow struct {
	AdID        string          `json:"ad_id"`
	AccountID   string          `json:"account_id"`
	Date        string          `json:"date_start"`
	Impressions int64           `json:"impressions"`
	Clicks      int64           `json:"clicks"`
	Spend       decimal.Decimal `json:"spend"`
	Reach       int64           `json:"reach"`
	Frequency   float64         `json:"frequency"`
	Conversions int64           `json:"conversions"`
}

// Paging carries the upstream pagination cursor state.
type Paging struct {
	Page       int    `json:"page"`
	TotalPages int    `json:"total_pages"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// InsightsPage is one page of the paginated insights response.
type InsightsPage struct {
	Rows   []InsightRow `json:"data"`
	Paging Paging       `json:"paging"`
}

// PageRequest describes a single page fetch.
type PageRequest struct {
	AccountID string
	AdID      string
	Since     time.Time
	Until     time.Time
	Fields    []string
	Cursor    string
	Page      int
}

// ErrorResponse is the upstream error envelope.
type ErrorResponse struct {
	Error struct {
		Message   string `json:"message"`
		Code      int    `json:"code"`
		Transient bool   `json:"is_transient"`
	} `json:"error"`
}
