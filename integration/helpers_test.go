package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/jwebster45206/infinite-story/internal/handlers"
	"github.com/jwebster45206/infinite-story/internal/metrics"
	"github.com/jwebster45206/infinite-story/internal/services"
	"github.com/jwebster45206/infinite-story/internal/services/events"
	"github.com/jwebster45206/infinite-story/internal/services/queue"
	"github.com/jwebster45206/infinite-story/internal/storage"
	"github.com/jwebster45206/infinite-story/internal/worker"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// stack is a full API server with an embedded worker, backed by
// miniredis and a temporary SQLite database.
type stack struct {
	server *httptest.Server
	queue  *queue.InteractionQueue
}

func newStack(t *testing.T) *stack {
	t.Helper()
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "story.db"), log)
	require.NoError(t, err)
	sessions := storage.NewRedisSessionStore(client, time.Hour, log)

	m := metrics.New()
	broadcaster := events.NewBroadcaster(client, log)
	interactions := queue.NewInteractionQueue(queue.NewClientFromRedis(client, log))

	stories := services.NewStoryService(db, sessions, log,
		services.WithPublisher(broadcaster),
		services.WithMetrics(m),
		services.WithLock(5*time.Second, 0, 0),
	)

	srv := httptest.NewServer(handlers.NewRouter(handlers.RouterConfig{
		Stories:  stories,
		Database: db,
		Sessions: sessions,
		Hub:      broadcaster,
		Queue:    interactions,
		Metrics:  m,
		Logger:   log,
	}))

	w := worker.New(interactions, stories, broadcaster, log, "integration-worker",
		worker.WithMetrics(m),
		worker.WithPollTimeout(time.Second),
	)
	go func() {
		_ = w.Start()
	}()

	// Cleanups run last in, first out.
	t.Cleanup(func() { _ = db.Close() })
	t.Cleanup(func() { _ = sessions.Close() })
	t.Cleanup(srv.Close)
	t.Cleanup(w.Stop)

	return &stack{server: srv, queue: interactions}
}

func (s *stack) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.server.Client().Do(req)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func (s *stack) createSession(t *testing.T) string {
	t.Helper()
	status, body := s.do(t, http.MethodPost, "/api/session", nil)
	require.Equal(t, http.StatusCreated, status, string(body))
	return decode[services.SessionInfo](t, body).SessionID
}

func (s *stack) startStory(t *testing.T, sessionID string) services.SegmentResult {
	t.Helper()
	status, body := s.do(t, http.MethodPost, "/api/story/start", map[string]string{"session_id": sessionID})
	require.Equal(t, http.StatusOK, status, string(body))
	return decode[services.SegmentResult](t, body)
}

func (s *stack) dialWS(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readWSEvent reads frames until one carries the wanted event.
func readWSEvent(t *testing.T, conn *websocket.Conn, event string) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg handlers.WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Event != event {
			continue
		}
		var data map[string]any
		require.NoError(t, json.Unmarshal(msg.Data, &data))
		return data
	}
}

type sseEvent struct {
	name string
	data map[string]any
}

// openSSE connects to a session's event stream and relays parsed events.
func (s *stack) openSSE(t *testing.T, sessionID string) <-chan sseEvent {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.server.URL+"/api/events/"+sessionID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := make(chan sseEvent, 16)
	go func() {
		defer func() {
			_ = resp.Body.Close()
		}()
		defer close(out)
		scanner := bufio.NewScanner(resp.Body)
		var name string
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				var data map[string]any
				if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &data); err == nil {
					out <- sseEvent{name: name, data: data}
				}
			}
		}
	}()

	first := nextSSE(t, out, "connected")
	require.Equal(t, sessionID, first.data["session_id"])
	return out
}

func nextSSE(t *testing.T, events <-chan sseEvent, name string) sseEvent {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "event stream closed while waiting for %s", name)
			if ev.name == name {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", name)
		}
	}
}
