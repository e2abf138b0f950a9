package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lazypower/fungimap/internal/observability"
	"github.com/lazypower/fungimap/internal/store"
	"github.com/lazypower/fungimap/internal/view"
)

// Server is the fungimap HTTP API: render callbacks in, frames and
// relevance out.
type Server struct {
	view    *view.BubbleView
	db      *store.DB // optional, enables session history
	logger  *zap.Logger
	metrics *observability.Collector
	router  chi.Router
	version string
	started time.Time
}

// New creates a Server over v. db and metrics may be nil.
func New(v *view.BubbleView, db *store.DB, version string, logger *zap.Logger, metrics *observability.Collector) *Server {
	s := &Server{
		view:    v,
		db:      db,
		logger:  observability.OrNop(logger),
		metrics: metrics,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/actions", s.handleTrack)
		r.Post("/nodes/{slug}/click", s.handleNodeClick)
		r.Post("/nodes/{slug}/hover", s.handleNodeHover)
		r.Post("/pointer/{phase}", s.handlePointer)

		r.Get("/relevance", s.handleRelevance)
		r.Post("/search", s.handleSearch)

		r.Get("/layout", s.handleLayout)
		r.Post("/layout/refresh", s.handleRefresh)
		r.Post("/layout/tick", s.handleTick)
		r.Post("/viewport", s.handleViewport)

		r.Get("/session", s.handleSession)
	})
	r.Handle("/metrics", s.metrics.Handler())
	r.Get("/*", spaHandler())

	s.router = r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":     "ok",
		"version":    s.version,
		"uptime":     time.Since(s.started).Seconds(),
		"session_id": s.view.Store().SessionID(),
	}
	if s.db != nil {
		body["db"] = s.db.PingContext(r.Context()) == nil
		body["db_path"] = s.db.Path
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
