package adminapi

import (
	"context"
	"net/http"
	"time"

	banyantask "github.com/banyancomputer/banyan-task"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server exposes read-mostly task inspection next to the worker pool.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	client     *banyantask.Client
}

type Config struct {
	Addr string
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
}

func NewServer(cfg Config, logger *zap.Logger, client *banyantask.Client) *Server {
	srv := &Server{logger: logger, client: client}
	srv.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router(cfg.Gatherer),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

// Router builds the route table. It is exported for tests.
func (s *Server) Router(g prometheus.Gatherer) *mux.Router {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	r := mux.NewRouter()
	r.Use(s.accessLog)

	r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	r.HandleFunc("/tasks", s.handleListTasks).Methods(http.MethodGet)
	r.HandleFunc("/tasks/{id}", s.handleGetTask).Methods(http.MethodGet)
	r.HandleFunc("/tasks/{id}/chain", s.handleChain).Methods(http.MethodGet)
	r.HandleFunc("/tasks/{id}/cancel", s.handleCancel).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{id}/retry", s.handleRetry).Methods(http.MethodPost)
	return r
}

func (s *Server) Start() error {
	s.logger.Info("admin server starting", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("admin server shutting down")
	return s.httpServer.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rt := mux.CurrentRoute(r); rt != nil {
			if tpl, err := rt.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.logger.Debug("http_request",
			zap.String("route", route),
			zap.String("method", r.Method),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
