package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDateRangeDays(t *testing.T) {
	r := NewDateRange(day(2024, 6, 1), day(2024, 6, 30))
	assert.Equal(t, 30, r.Days())

	single := NewDateRange(day(2024, 6, 1), day(2024, 6, 1))
	assert.Equal(t, 1, single.Days())

	inverted := NewDateRange(day(2024, 6, 30), day(2024, 6, 1))
	assert.Equal(t, 0, inverted.Days())
}

func TestDateRangeTruncatesToMidnightUTC(t *testing.T) {
	r := NewDateRange(
		time.Date(2024, 6, 1, 15, 30, 0, 0, time.UTC),
		time.Date(2024, 6, 2, 23, 59, 59, 0, time.UTC),
	)
	assert.Equal(t, day(2024, 6, 1), r.Start)
	assert.Equal(t, day(2024, 6, 2), r.End)
}

func TestDateRangeContains(t *testing.T) {
	r := NewDateRange(day(2024, 6, 10), day(2024, 6, 20))
	assert.True(t, r.Contains(day(2024, 6, 10)))
	assert.True(t, r.Contains(day(2024, 6, 20)))
	assert.True(t, r.Contains(time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)))
	assert.False(t, r.Contains(day(2024, 6, 9)))
	assert.False(t, r.Contains(day(2024, 6, 21)))
}

func TestDateRangeIncludesRecent(t *testing.T) {
	now := time.Date(2024, 6, 20, 10, 0, 0, 0, time.UTC)

	assert.True(t, NewDateRange(day(2024, 6, 1), day(2024, 6, 20)).IncludesRecent(now))
	assert.True(t, NewDateRange(day(2024, 6, 1), day(2024, 6, 19)).IncludesRecent(now))
	assert.False(t, NewDateRange(day(2024, 6, 1), day(2024, 6, 18)).IncludesRecent(now))
}

func TestSeriesRequestKey(t *testing.T) {
	r := NewDateRange(day(2024, 6, 1), day(2024, 6, 30))

	account := SeriesRequest{AccountID: "act_1", DateRange: r}
	assert.Equal(t, "insights:act_1:2024-06-01_2024-06-30", account.Key())

	ad := SeriesRequest{AccountID: "act_1", AdID: "ad_9", DateRange: r}
	assert.Equal(t, "insights:act_1:ad_9:2024-06-01_2024-06-30", ad.Key())
}

func TestCacheEntryExpired(t *testing.T) {
	written := time.Date(2024, 6, 20, 10, 0, 0, 0, time.UTC)
	entry := CacheEntry{TTLSeconds: 300, WrittenAt: written}

	assert.False(t, entry.Expired(written.Add(5*time.Minute)))
	assert.True(t, entry.Expired(written.Add(5*time.Minute+time.Second)))
}
