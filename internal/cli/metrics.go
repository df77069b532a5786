package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricsServer exposes the process's Prometheus metrics at /metrics for the
// duration of a deployment.
type metricsServer struct {
	httpServer *http.Server
	listener   net.Listener
	logger     *slog.Logger
}

// startMetricsServer listens on addr and serves /metrics in the background.
// Use ":0" to pick a free port; Addr reports the one chosen.
func startMetricsServer(addr string, logger *slog.Logger) (*metricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s := &metricsServer{
		httpServer: &http.Server{
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		listener: ln,
		logger:   logger,
	}

	go func() {
		logger.Info("metrics server starting", "addr", s.Addr(), "endpoints", []string{"/metrics"})
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	return s, nil
}

// Addr returns the address the server listens on.
func (s *metricsServer) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the server, waiting for in-flight scrapes until ctx ends.
func (s *metricsServer) Shutdown(ctx context.Context) error {
	s.logger.Debug("metrics server shutting down")
	return s.httpServer.Shutdown(ctx)
}
