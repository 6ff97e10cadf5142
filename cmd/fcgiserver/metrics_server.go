package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// MetricsServer serves /metrics, the side HTTP server the teacher's
// http_server.go folds into its main router; kept separate here since
// the primary listener in this runtime speaks FastCGI, not HTTP.
type MetricsServer struct {
	srv    *http.Server
	logger *logrus.Logger
}

// NewMetricsServer returns nil if addr is empty, so callers can wire it
// in unconditionally and skip starting/stopping a nil server.
func NewMetricsServer(addr string, monitor *Monitor, logger *logrus.Logger) *MetricsServer {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		monitor.Registry,
		promhttp.HandlerOpts{EnableOpenMetrics: true, Registry: monitor.Registry},
	))
	return &MetricsServer{
		srv:    &http.Server{Addr: addr, Handler: mux},
		logger: logger,
	}
}

// Start runs the metrics server in the background.
func (m *MetricsServer) Start() {
	go func() {
		if err := m.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Infof("metrics server: %v", err)
		}
	}()
}

// Shutdown gracefully stops the metrics server, matching the teacher's
// HttpServer.StartServer shutdown-with-timeout shape.
func (m *MetricsServer) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.srv.Shutdown(ctx); err != nil {
		m.logger.Errorf("metrics server shutdown: %v", err)
	}
}
