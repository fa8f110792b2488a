package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// ServerConfig configures the observability HTTP server.
type ServerConfig struct {
	Listen   string // host:port
	Endpoint string // Prometheus text path, default /metrics
	Version  string
	Logger   *slog.Logger
}

// Server exposes the pipeline metrics and a status document.
type Server struct {
	pipeline *Pipeline
	cfg      ServerConfig
	server   *http.Server
}

func NewServer(p *Pipeline, cfg ServerConfig) *Server {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "/metrics"
	}
	return &Server{pipeline: p, cfg: cfg}
}

// Mux returns the routes served by the server.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET "+s.cfg.Endpoint, s.pipeline.Registry.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.cfg.Logger.Info("metrics server started", "addr", "http://"+s.cfg.Listen, "endpoint", s.cfg.Endpoint)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(map[string]any{
		"status":  "ok",
		"version": s.cfg.Version,
		"time":    time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(rw http.ResponseWriter, r *http.Request) {
	snap := s.pipeline.Snapshot()
	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(map[string]any{
		"version":          s.cfg.Version,
		"processed":        snap.Processed,
		"failed":           snap.Failed,
		"enrichment_calls": snap.EnrichmentCalls,
		"fallbacks":        snap.Fallbacks,
		"pending_groups":   s.pipeline.PendingGroups.Value(),
		"started_at":       snap.StartTime.Format(time.RFC3339),
		"uptime_seconds":   int64(snap.Uptime.Seconds()),
	})
}
