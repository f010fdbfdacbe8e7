package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/jwebster45206/infinite-story/internal/services"
	"github.com/jwebster45206/infinite-story/pkg/narrative"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoryHandler_StartAndContinue(t *testing.T) {
	mux := apiMux(newTestService())
	sid := createSession(t, mux)

	rec := do(t, mux, http.MethodPost, "/api/story/start", StartRequest{SessionID: sid})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	opening := decode[services.SegmentResult](t, rec)
	assert.Equal(t, 0, opening.Segment.SequenceNumber)
	assert.Nil(t, opening.Segment.ParentID)
	assert.Contains(t, opening.Segment.Content, " arrived at ")

	rec = do(t, mux, http.MethodPost, "/api/story/continue", ContinueRequest{
		SessionID:   sid,
		Interaction: &narrative.Interaction{Type: narrative.InteractionKeypress, Key: "D"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	next := decode[services.SegmentResult](t, rec)
	assert.Equal(t, 1, next.Segment.SequenceNumber)
	require.NotNil(t, next.Segment.ParentID)
	assert.Equal(t, opening.Segment.ID, *next.Segment.ParentID)
	assert.Greater(t, next.Context.StoryLength, opening.Context.StoryLength)

	rec = do(t, mux, http.MethodPost, "/api/story/continue", `{"session_id":"`+sid+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[services.SegmentResult](t, rec).Segment.SequenceNumber)

	rec = do(t, mux, http.MethodGet, "/api/interactions/"+sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[services.InteractionHistory](t, rec)
	require.Len(t, history.Interactions, 1)
	assert.Equal(t, "keypress", history.Interactions[0].Type)
	assert.Equal(t, map[string]int{"keypress": 1}, history.Counts)
}

func TestStoryHandler_Read(t *testing.T) {
	mux := apiMux(newTestService())
	sid := createSession(t, mux)

	rec := do(t, mux, http.MethodGet, "/api/story/"+sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(mustField(t, rec.Body.Bytes(), "segments")))

	var contents []string
	rec = do(t, mux, http.MethodPost, "/api/story/start", StartRequest{SessionID: sid})
	require.Equal(t, http.StatusOK, rec.Code)
	contents = append(contents, decode[services.SegmentResult](t, rec).Segment.Content)
	for i := 0; i < 3; i++ {
		rec = do(t, mux, http.MethodPost, "/api/story/continue", ContinueRequest{SessionID: sid})
		require.Equal(t, http.StatusOK, rec.Code)
		contents = append(contents, decode[services.SegmentResult](t, rec).Segment.Content)
	}

	rec = do(t, mux, http.MethodGet, "/api/story/"+sid+"?limit=2&offset=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[services.StoryPage](t, rec)
	require.Len(t, page.Segments, 2)
	assert.Equal(t, 1, page.Segments[0].SequenceNumber)
	require.NotNil(t, page.Context)

	rec = do(t, mux, http.MethodGet, "/api/story/"+sid+"?limit=bogus", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[services.StoryPage](t, rec).Segments, 4)

	rec = do(t, mux, http.MethodGet, "/api/story/"+sid+"/full", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	full := decode[FullStoryResponse](t, rec)
	assert.Equal(t, sid, full.SessionID)
	assert.Equal(t, strings.Join(contents, " "), full.Story)
}

func TestStoryHandler_MoodAndGenre(t *testing.T) {
	mux := apiMux(newTestService())
	sid := createSession(t, mux)

	rec := do(t, mux, http.MethodPost, "/api/story/mood", MoodRequest{SessionID: sid, Mood: "whimsical"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ContextResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, narrative.MoodWhimsical, resp.Context.Mood)

	rec = do(t, mux, http.MethodPost, "/api/story/genre", GenreRequest{SessionID: sid, Genre: "scifi"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, narrative.GenreSciFi, decode[ContextResponse](t, rec).Context.Genre)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		msg    string
	}{
		{"invalid mood", "/api/story/mood", MoodRequest{SessionID: sid, Mood: "not_a_mood"}, http.StatusBadRequest, "Invalid mood"},
		{"invalid genre", "/api/story/genre", GenreRequest{SessionID: sid, Genre: "western"}, http.StatusBadRequest, "Invalid genre"},
		{"missing mood", "/api/story/mood", MoodRequest{SessionID: sid}, http.StatusBadRequest, "Session ID and mood required"},
		{"missing genre", "/api/story/genre", GenreRequest{Genre: "scifi"}, http.StatusBadRequest, "Session ID and genre required"},
		{"no engine", "/api/story/mood", MoodRequest{SessionID: "ghost", Mood: "dark"}, http.StatusNotFound, "No active story"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, mux, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.msg, decode[ErrorResponse](t, rec).Error)
		})
	}
}

func TestStoryHandler_BadRequests(t *testing.T) {
	mux := apiMux(newTestService())

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"start without session", http.MethodPost, "/api/story/start", StartRequest{}, http.StatusBadRequest},
		{"start with malformed body", http.MethodPost, "/api/story/start", "{not json", http.StatusBadRequest},
		{"start unknown session", http.MethodPost, "/api/story/start", StartRequest{SessionID: "ghost"}, http.StatusNotFound},
		{"continue without session", http.MethodPost, "/api/story/continue", ContinueRequest{}, http.StatusBadRequest},
		{"continue unknown session", http.MethodPost, "/api/story/continue", ContinueRequest{SessionID: "ghost"}, http.StatusNotFound},
		{"get start", http.MethodGet, "/api/story/start", nil, http.StatusMethodNotAllowed},
		{"post read", http.MethodPost, "/api/story/some-session", nil, http.StatusMethodNotAllowed},
		{"read unknown session", http.MethodGet, "/api/story/ghost", nil, http.StatusNotFound},
		{"full unknown session", http.MethodGet, "/api/story/ghost/full", nil, http.StatusNotFound},
		{"unknown subpath", http.MethodGet, "/api/story/ghost/partial", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, mux, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}
