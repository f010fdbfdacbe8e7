package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/jwebster45206/infinite-story/internal/services"
	"github.com/jwebster45206/infinite-story/pkg/narrative"
	"github.com/jwebster45206/infinite-story/pkg/storage"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestService(opts ...services.Option) *services.StoryService {
	var seed uint64
	base := []services.Option{
		services.WithEngineFactory(func() *narrative.Engine {
			seed++
			return narrative.New(narrative.WithSeed(seed))
		}),
		services.WithLock(time.Second, 3, time.Millisecond),
	}
	return services.NewStoryService(storage.NewMockStorage(), storage.NewMockSessionStore(), testLogger(), append(base, opts...)...)
}

// apiMux mounts the JSON handlers the way cmd/api does.
func apiMux(svc *services.StoryService) *http.ServeMux {
	logger := testLogger()
	mux := http.NewServeMux()
	mux.Handle("/api/session", NewSessionHandler(svc, logger))
	mux.Handle("/api/session/", NewSessionHandler(svc, logger))
	mux.Handle("/api/story/", NewStoryHandler(svc, logger))
	mux.Handle("/api/users/", NewUsersHandler(svc, logger))
	mux.Handle("/api/merge/", NewMergeHandler(svc, logger))
	mux.Handle("/api/interactions/", NewInteractionsHandler(svc, logger))
	return mux
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if r != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createSession(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/session", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[services.SessionInfo](t, rec).SessionID
}
