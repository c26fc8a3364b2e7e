package models

import (
	"time"
)

// SessionStatus represents the lifecycle state of a retrieval session.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionFetching  SessionStatus = "fetching"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// DeliveryPattern classifies how consistently an ad delivered over a range.
type DeliveryPattern string

const (
	PatternContinuous   DeliveryPattern = "continuous"
	PatternIntermittent DeliveryPattern = "intermittent"
	PatternSparse       DeliveryPattern = "sparse"
	PatternNone         DeliveryPattern = "none"
)

// DeliveryAnalysis is derived from a session's timeline and recomputed
// whenever the timeline changes.
type DeliveryAnalysis struct {
	TotalRequestedDays int             `json:"total_requested_days"`
	ActualDeliveryDays int             `json:"actual_delivery_days"`
	DeliveryRatio      float64         `json:"delivery_ratio"`
	DeliveryPattern    DeliveryPattern `json:"delivery_pattern"`
	FirstDeliveryDate  *time.Time      `json:"first_delivery_date,omitempty"`
	LastDeliveryDate   *time.Time      `json:"last_delivery_date,omitempty"`
}

// RetrievalSession tracks one paginated fetch of insights for an
// (account, date range). Terminal on completed or failed.
type RetrievalSession struct {
	ID               string            `json:"id" db:"id"`
	AccountID        string            `json:"account_id" db:"account_id"`
	DateRange        DateRange         `json:"date_range"`
	Status           SessionStatus     `json:"status" db:"status"`
	PagesRetrieved   int               `json:"pages_retrieved" db:"pages_retrieved"`
	TotalPages       int               `json:"total_pages" db:"total_pages"`
	TotalItems       int               `json:"total_items" db:"total_items"`
	DeliveryAnalysis *DeliveryAnalysis `json:"delivery_analysis,omitempty"`
	FailureReason    string            `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt        time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at" db:"updated_at"`
}

// IsTerminal reports whether the session can no longer change state.
func (s *RetrievalSession) IsTerminal() bool {
	return s.Status == SessionCompleted || s.Status == SessionFailed
}
