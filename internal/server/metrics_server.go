package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ReadinessCheck reports why the process cannot serve evaluations yet, or nil
type ReadinessCheck func() error

// MetricsServer serves Prometheus metrics and health endpoints via HTTP
type MetricsServer struct {
	httpServer *http.Server
	ready      ReadinessCheck
	started    time.Time
	logger     *zap.Logger
}

// MetricsServerConfig holds configuration for the metrics server
type MetricsServerConfig struct {
	Port int
	Path string
}

// NewMetricsServer creates a new metrics server exposing gatherer
func NewMetricsServer(cfg *MetricsServerConfig, gatherer prometheus.Gatherer, ready ReadinessCheck, logger *zap.Logger) *MetricsServer {
	mux := http.NewServeMux()

	ms := &MetricsServer{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		ready:   ready,
		started: time.Now(),
		logger:  logger,
	}

	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}
	mux.Handle(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", ms.healthHandler)
	mux.HandleFunc("/ready", ms.readyHandler)

	return ms
}

// Handler returns the HTTP handler, for serving on a custom listener
func (s *MetricsServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves on the configured port in the background
func (s *MetricsServer) Start() error {
	lis, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.logger.Info("Starting metrics server", zap.String("addr", lis.Addr().String()))

	go func() {
		if err := s.httpServer.Serve(lis); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully stops the metrics server
func (s *MetricsServer) Stop() error {
	s.logger.Info("Stopping metrics server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}
	return nil
}

func (s *MetricsServer) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *MetricsServer) readyHandler(w http.ResponseWriter, _ *http.Request) {
	if s.ready != nil {
		if err := s.ready(); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status": "not_ready",
				"reason": err.Error(),
			})
			return
		}
	}
	writeStatus(w, http.StatusOK, map[string]interface{}{
		"status":    "ready",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func writeStatus(w http.ResponseWriter, code int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
