package handlers

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/infinite-story/internal/services"
	"github.com/jwebster45206/infinite-story/pkg/story"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeHandler_AcceptFlow(t *testing.T) {
	mux := apiMux(newTestService())
	alice := createSession(t, mux)
	bob := createSession(t, mux)

	rec := do(t, mux, http.MethodPost, "/api/merge/request", MergeRequestBody{SessionID: alice, TargetSessionID: bob})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No story to merge", decode[ErrorResponse](t, rec).Error)

	rec = do(t, mux, http.MethodPost, "/api/story/start", StartRequest{SessionID: alice})
	require.Equal(t, http.StatusOK, rec.Code)
	source := decode[services.SegmentResult](t, rec).Segment

	rec = do(t, mux, http.MethodPost, "/api/merge/request", MergeRequestBody{SessionID: alice, TargetSessionID: bob})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := decode[MergeRequestResponse](t, rec).MergeRequest
	require.NotNil(t, created)
	assert.Equal(t, story.MergePending, created.Status)
	assert.Equal(t, source.ID, created.SourceSegmentID)

	rec = do(t, mux, http.MethodGet, "/api/merge/pending/"+bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decode[PendingMergesResponse](t, rec).Requests
	require.Len(t, pending, 1)
	assert.Equal(t, created.ID, pending[0].ID)

	rec = do(t, mux, http.MethodPost, "/api/merge/accept", MergeDecisionBody{SessionID: bob, RequestID: created.ID.String()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	merged := decode[services.SegmentResult](t, rec)
	assert.True(t, merged.Segment.IsMerged)
	assert.Equal(t, []uuid.UUID{source.ID}, merged.Segment.MergedFrom)
	assert.True(t, strings.HasSuffix(merged.Segment.Content, "... And so the stories became one."))

	rec = do(t, mux, http.MethodPost, "/api/merge/accept", MergeDecisionBody{SessionID: bob, RequestID: created.ID.String()})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, mux, http.MethodGet, "/api/merge/pending/"+bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[PendingMergesResponse](t, rec).Requests)
}

func TestMergeHandler_Reject(t *testing.T) {
	mux := apiMux(newTestService())
	alice := createSession(t, mux)
	bob := createSession(t, mux)
	require.Equal(t, http.StatusOK, do(t, mux, http.MethodPost, "/api/story/start", StartRequest{SessionID: alice}).Code)

	rec := do(t, mux, http.MethodPost, "/api/merge/request", MergeRequestBody{SessionID: alice, TargetSessionID: bob})
	require.Equal(t, http.StatusOK, rec.Code)
	id := decode[MergeRequestResponse](t, rec).MergeRequest.ID.String()

	// Only the target may decide.
	rec = do(t, mux, http.MethodPost, "/api/merge/reject", MergeDecisionBody{SessionID: alice, RequestID: id})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, mux, http.MethodPost, "/api/merge/reject", MergeDecisionBody{SessionID: bob, RequestID: id})
	require.Equal(t, http.StatusOK, rec.Code)
	resolved := decode[MergeRequestResponse](t, rec).MergeRequest
	assert.Equal(t, story.MergeRejected, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	assert.WithinDuration(t, time.Now(), *resolved.ResolvedAt, time.Minute)
}

func TestMergeHandler_BadRequests(t *testing.T) {
	mux := apiMux(newTestService())
	bob := createSession(t, mux)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"request missing target", http.MethodPost, "/api/merge/request", MergeRequestBody{SessionID: bob}, http.StatusBadRequest},
		{"request unknown target", http.MethodPost, "/api/merge/request", MergeRequestBody{SessionID: bob, TargetSessionID: "ghost"}, http.StatusNotFound},
		{"accept missing id", http.MethodPost, "/api/merge/accept", MergeDecisionBody{SessionID: bob}, http.StatusBadRequest},
		{"accept malformed id", http.MethodPost, "/api/merge/accept", MergeDecisionBody{SessionID: bob, RequestID: "42"}, http.StatusBadRequest},
		{"accept unknown id", http.MethodPost, "/api/merge/accept", MergeDecisionBody{SessionID: bob, RequestID: uuid.NewString()}, http.StatusNotFound},
		{"accept unknown session", http.MethodPost, "/api/merge/accept", MergeDecisionBody{SessionID: "ghost", RequestID: uuid.NewString()}, http.StatusNotFound},
		{"pending unknown session", http.MethodGet, "/api/merge/pending/ghost", nil, http.StatusNotFound},
		{"get request", http.MethodGet, "/api/merge/request", nil, http.StatusMethodNotAllowed},
		{"post pending", http.MethodPost, "/api/merge/pending/" + bob, nil, http.StatusMethodNotAllowed},
		{"unknown route", http.MethodPost, "/api/merge/undo", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, mux, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}
