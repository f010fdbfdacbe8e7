package handlers

import (
	"log/slog"
	"net/http"
	"strings"
)

// StaticHandler serves the web client from dir. Unknown /api paths get a JSON 404
// instead of falling through to the file server.
type StaticHandler struct {
	files  http.Handler
	logger *slog.Logger
}

func NewStaticHandler(dir string, logger *slog.Logger) *StaticHandler {
	return &StaticHandler{
		files:  http.FileServer(http.Dir(dir)),
		logger: logger,
	}
}

func (h *StaticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/api" {
		writeError(w, r, h.logger, http.StatusNotFound, "Not found")
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, r, h.logger, http.MethodGet, http.MethodHead)
		return
	}
	h.files.ServeHTTP(w, r)
}
