package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adpulse/adpulse-go/internal/middleware"
)

func setupTestRouter(t *testing.T) (*gin.Engine, *middleware.AuthMiddleware) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	auth := middleware.NewAuthMiddleware("test-secret")
	SetupRoutes(router, Dependencies{
		Auth:        auth,
		Admin:       middleware.NewAdminMiddleware("ops-key"),
		TokenExpiry: time.Hour,
	})
	return router, auth
}

func TestHealthDegradedWithoutBackends(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var response HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "degraded", response.Status)
	assert.Contains(t, response.Services["database"], "unhealthy")
	assert.Contains(t, response.Services["redis"], "unhealthy")
}

func TestIssueToken(t *testing.T) {
	router, _ := setupTestRouter(t)

	body := `{"client_id":"dashboard","client_secret":"ops-key"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.NotEmpty(t, response["token"])
	assert.Equal(t, "Bearer", response["token_type"])
	assert.InDelta(t, 3600, response["expires_in"], 0.1)
}

func TestIssueToken_WrongSecret(t *testing.T) {
	router, _ := setupTestRouter(t)

	body := `{"client_id":"dashboard","client_secret":"wrong"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDataRoutesRequireToken(t *testing.T) {
	router, _ := setupTestRouter(t)

	for _, path := range []string{
		"/api/v1/series",
		"/api/v1/sessions/abc",
		"/api/v1/anomalies",
		"/api/v1/gaps",
		"/api/v1/performance",
	} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "path %s", path)
	}
}

func TestSeriesValidation(t *testing.T) {
	router, auth := setupTestRouter(t)
	token, err := auth.GenerateToken("dashboard", time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name  string
		query string
	}{
		{"missing account", "?start=2024-06-01&end=2024-06-30"},
		{"missing dates", "?account_id=act_1"},
		{"bad date", "?account_id=act_1&start=June&end=2024-06-30"},
		{"inverted range", "?account_id=act_1&start=2024-06-30&end=2024-06-01"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/series"+tc.query, nil)
			req.Header.Set("Authorization", "Bearer "+token)
			router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestAdminRoutesRequireKey(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/cache/invalidate", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// With the key the request reaches parameter validation.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/cache/invalidate", nil)
	req.Header.Set("X-API-Key", "ops-key")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBudgetEndpointRequiresAccount(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/budget", nil)
	req.Header.Set("X-API-Key", "ops-key")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
