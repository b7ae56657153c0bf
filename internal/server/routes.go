package server

import (
	"log/slog"
	"net/http"
)

// Config tunes the router.
type Config struct {
	// AllowedOrigins lists CORS origins; "*" allows any.
	AllowedOrigins []string
	// Metrics is mounted at GET /metrics when non-nil.
	Metrics http.Handler
}

// DefaultConfig allows every origin and serves no metrics.
func DefaultConfig() Config {
	return Config{AllowedOrigins: []string{"*"}}
}

// NewRouter mounts the session API behind recovery, logging and CORS.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	routes := map[string]http.HandlerFunc{
		"GET /health":                 h.Health,
		"POST /uploads":               h.Upload,
		"GET /sessions":               h.ListSessions,
		"POST /sessions":              h.CreateSession,
		"GET /sessions/{id}":          h.GetSession,
		"DELETE /sessions/{id}":       h.DeleteSession,
		"POST /sessions/{id}/split":   h.Split,
		"POST /sessions/{id}/resplit": h.Resplit,
		"POST /sessions/{id}/cancel":  h.Cancel,
		"POST /sessions/{id}/clear":   h.Clear,
	}

	mux := http.NewServeMux()
	for pattern, handler := range routes {
		mux.Handle(pattern, handler)
	}
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	return ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)(mux)
}
