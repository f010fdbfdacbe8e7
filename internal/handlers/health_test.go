package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jwebster45206/infinite-story/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name             string
		databaseErr      error
		redisErr         error
		expectedStatus   int
		expectedHealth   string
		expectedDatabase string
		expectedRedis    string
	}{
		{
			name:             "all healthy",
			expectedStatus:   http.StatusOK,
			expectedHealth:   "healthy",
			expectedDatabase: "healthy",
			expectedRedis:    "healthy",
		},
		{
			name:             "unhealthy database",
			databaseErr:      errors.New("disk I/O error"),
			expectedStatus:   http.StatusServiceUnavailable,
			expectedHealth:   "degraded",
			expectedDatabase: "unhealthy",
			expectedRedis:    "healthy",
		},
		{
			name:             "unhealthy redis",
			redisErr:         errors.New("connection refused"),
			expectedStatus:   http.StatusServiceUnavailable,
			expectedHealth:   "degraded",
			expectedDatabase: "healthy",
			expectedRedis:    "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := storage.NewMockStorage()
			if tt.databaseErr != nil {
				db.SetPingError(tt.databaseErr)
			}
			sessions := storage.NewMockSessionStore()
			if tt.redisErr != nil {
				sessions.SetPingError(tt.redisErr)
			}

			handler := NewHealthHandler(db, sessions, testLogger())
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var resp HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.expectedHealth, resp.Status)
			assert.Equal(t, "infinite-story", resp.Service)
			assert.Equal(t, tt.expectedDatabase, resp.Components["database"])
			assert.Equal(t, tt.expectedRedis, resp.Components["redis"])
			assert.False(t, resp.Timestamp.IsZero())
		})
	}
}

func TestHealthHandler_MethodNotAllowed(t *testing.T) {
	handler := NewHealthHandler(storage.NewMockStorage(), storage.NewMockSessionStore(), testLogger())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET", rec.Header().Get("Allow"))
}
