package insights_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/adpulse/adpulse-go/pkg/insights"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *insights.Client {
	return insights.NewClient(&insights.ClientConfig{
		ServiceURL:  url,
		AccessToken: "test-token",
		Timeout:     5,
		PageSize:    25,
	})
}

func TestFetchPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/accounts/act_123/insights", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "2024-06-01", r.URL.Query().Get("since"))
		assert.Equal(t, "2024-06-30", r.URL.Query().Get("until"))

		page := insights.InsightsPage{
			Rows: []insights.InsightRow{
				{AdID: "ad_1", AccountID: "act_123", Date: "2024-06-01", Impressions: 1200, Clicks: 30},
			},
			Paging: insights.Paging{Page: 1, TotalPages: 3, NextCursor: "cursor-2"},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(page))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	page, err := client.FetchPage(context.Background(), &insights.PageRequest{
		AccountID: "act_123",
		Since:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Until:     time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Len(t, page.Rows, 1)
	assert.Equal(t, "ad_1", page.Rows[0].AdID)
	assert.Equal(t, 3, page.Paging.TotalPages)
	assert.Equal(t, "cursor-2", page.Paging.NextCursor)
}

func TestFetchPageRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.FetchPage(context.Background(), &insights.PageRequest{
		AccountID: "act_123",
		Since:     time.Now().AddDate(0, 0, -7),
		Until:     time.Now(),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, insights.ErrRateLimited))

	var rateErr *insights.RateLimitError
	require.True(t, errors.As(err, &rateErr))
	assert.Equal(t, 120*time.Second, rateErr.RetryAfter)
}

func TestFetchPageUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"something broke","code":1}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.FetchPage(context.Background(), &insights.PageRequest{
		AccountID: "act_123",
		Since:     time.Now().AddDate(0, 0, -7),
		Until:     time.Now(),
	})
	require.Error(t, err)

	var apiErr *insights.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "something broke", apiErr.Message)
}
