// Package api exposes the rendered dashboard as a JSON HTTP API.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"MacroCanary/internal/model"
	"MacroCanary/internal/pipeline"
	"MacroCanary/internal/store"
)

// Cache is the part of the series store the API drives directly.
type Cache interface {
	RefreshAll(ctx context.Context, inds []model.Indicator) store.Result
	Len() int
	TTL() time.Duration
}

// Options configures the HTTP server.
type Options struct {
	Port            int
	APIKey          string
	CORSAllowOrigin string
	SnapshotBackend string
	Gatherer        prometheus.Gatherer
}

type Server struct {
	pipeline   *pipeline.Pipeline
	cache      Cache
	opts       Options
	started    time.Time
	handler    http.Handler
	httpServer *http.Server
}

func NewServer(p *pipeline.Pipeline, cache Cache, opts Options) *Server {
	s := &Server{
		pipeline: p,
		cache:    cache,
		opts:     opts,
		started:  time.Now(),
	}

	mux := http.NewServeMux()

	// Catalogue routes
	mux.HandleFunc("GET /v1/indicators", s.handleIndicators)
	mux.HandleFunc("GET /v1/categories", s.handleCategories)

	// Dashboard routes
	mux.HandleFunc("GET /v1/charts", s.handleCharts)
	mux.HandleFunc("GET /v1/summary", s.handleSummary)
	mux.HandleFunc("POST /v1/refresh", s.handleRefresh)

	// No auth required
	mux.HandleFunc("GET /health", s.handleHealth)
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.handler = logMiddleware(s.authMiddleware(corsMiddleware(mux, opts.CORSAllowOrigin)))
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      s.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

// Handler returns the fully wrapped router.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Bool("auth", s.opts.APIKey != "").Msg("REST API server started")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// --- middleware ---

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.APIKey == "" || r.URL.Path == "/health" || r.URL.Path == "/metrics" || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || token != s.opts.APIKey {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler, allowOrigin string) http.Handler {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		began := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", time.Since(began)).
			Msg("http request")
	})
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
