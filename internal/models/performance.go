package models

import (
	"time"
)

// CacheStatsSummary aggregates cache effectiveness for one day.
type CacheStatsSummary struct {
	HitRate       float64          `json:"hit_rate"`
	APICallsSaved int64            `json:"api_calls_saved"`
	StorageUsage  map[string]int64 `json:"storage_usage"`
}

// ResponseTimeMetrics holds response-time aggregates in milliseconds.
type ResponseTimeMetrics struct {
	AvgResponseTime   float64 `json:"avg_response_time_ms"`
	CacheResponseTime float64 `json:"cache_response_time_ms"`
	APIResponseTime   float64 `json:"api_response_time_ms"`
	P95               float64 `json:"p95_ms"`
	P99               float64 `json:"p99_ms"`
}

// APIUsageStats counts upstream calls for one day.
type APIUsageStats struct {
	TotalCalls      int64 `json:"total_calls"`
	SuccessfulCalls int64 `json:"successful_calls"`
	FailedCalls     int64 `json:"failed_calls"`
	RateLimitHits   int64 `json:"rate_limit_hits"`
}

// DataQualityStats scores the synchronized data set.
type DataQualityStats struct {
	CompletenessScore    float64 `json:"completeness_score"`
	AnomalyDetectionRate float64 `json:"anomaly_detection_rate"`
	FalsePositiveRate    float64 `json:"false_positive_rate"`
}

// PerformanceSnapshot is the daily per-account engine telemetry record.
// One row per (account_id, stat_date), overwritten within the day.
type PerformanceSnapshot struct {
	StatDate    time.Time           `json:"stat_date" db:"stat_date"`
	AccountID   string              `json:"account_id" db:"account_id"`
	CacheStats  CacheStatsSummary   `json:"cache_stats"`
	Performance ResponseTimeMetrics `json:"performance_metrics"`
	APIUsage    APIUsageStats       `json:"api_usage"`
	DataQuality DataQualityStats    `json:"data_quality"`
	GeneratedAt time.Time           `json:"generated_at" db:"generated_at"`
}
