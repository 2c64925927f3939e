// Package api serves the read-only ops surface over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/okian/workloop/internal/domain/types"
	"github.com/okian/workloop/pkg/logger"
)

// Defaults for the leaderboard endpoint.
const (
	DefaultLimit    = 10
	DefaultMaxLimit = 100
	requestTimeout  = 15 * time.Second
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	StatsProvider
	Leaderboard(ctx context.Context, limit int) ([]types.Entry, error)
	Worker(ctx context.Context, workerID string) (types.WorkerView, error)
}

// Server wires HTTP routes for the ops API.
type Server struct {
	health      *HealthHandler
	stats       *StatsHandler
	leaderboard *LeaderboardHandler
	worker      *WorkerHandler
	logger      logger.Logger
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithMaxLimit caps the leaderboard page size.
func WithMaxLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.leaderboard.maxLimit = n
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates an API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		health:      NewHealthHandler(),
		stats:       NewStatsHandler(deps),
		leaderboard: NewLeaderboardHandler(deps, DefaultMaxLimit),
		worker:      NewWorkerHandler(deps),
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the chi router with every route attached.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(MetricsMiddleware)
	r.Use(s.logRequests)

	r.Get("/healthz", s.health.HandleHealth)
	r.Get("/metrics", s.health.HandleMetrics)
	r.Get("/openapi.yaml", HandleOpenAPI)
	r.Get("/stats", s.stats.HandleStats)
	r.Get("/leaderboard", s.leaderboard.HandleGetLeaderboard)
	r.Get("/workers/{id}", s.worker.HandleGetWorker)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug(r.Context(), "http request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", ww.Status()),
			logger.Duration("duration", time.Since(start)),
			logger.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
