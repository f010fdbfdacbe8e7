package handlers

import (
	"log/slog"
	"net/http"

	"github.com/jwebster45206/infinite-story/internal/metrics"
	"github.com/jwebster45206/infinite-story/internal/middleware"
	"github.com/jwebster45206/infinite-story/internal/services"
)

// RouterConfig holds everything the HTTP surface is built from.
type RouterConfig struct {
	Stories   *services.StoryService
	Database  services.HealthChecker
	Sessions  services.HealthChecker
	Hub       EventHub
	Queue     Enqueuer
	Metrics   *metrics.Metrics
	StaticDir string
	Logger    *slog.Logger
}

// NewRouter mounts every endpoint behind the request logging middleware.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	mux := http.NewServeMux()

	mux.Handle("/api/health", NewHealthHandler(cfg.Database, cfg.Sessions, log))

	sessionHandler := NewSessionHandler(cfg.Stories, log)
	mux.Handle("/api/session", sessionHandler)
	mux.Handle("/api/session/", sessionHandler)

	mux.Handle("/api/story/", NewStoryHandler(cfg.Stories, log))
	mux.Handle("/api/users/", NewUsersHandler(cfg.Stories, log))
	mux.Handle("/api/merge/", NewMergeHandler(cfg.Stories, log))
	mux.Handle("/api/interactions/", NewInteractionsHandler(cfg.Stories, log))
	mux.Handle("/api/events/", NewEventsHandler(cfg.Hub, log))
	mux.Handle("/ws", NewWebSocketHandler(cfg.Stories, cfg.Queue, cfg.Hub, log))
	mux.Handle("/metrics", cfg.Metrics.Handler())

	if cfg.StaticDir != "" {
		mux.Handle("/", NewStaticHandler(cfg.StaticDir, log))
	}

	return middleware.Logger(log, cfg.Metrics, mux)
}
