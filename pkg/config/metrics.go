package config

import (
	"net/http"

	"github.com/marmos91/blobxfer/internal/logger"
	"github.com/marmos91/blobxfer/pkg/metrics"
)

// MetricsResult holds the metrics implementations built from configuration.
// Every field is nil when metrics are disabled.
type MetricsResult struct {
	Transfer metrics.TransferMetrics
	S3       metrics.S3Metrics
	Server   *http.Server
}

// InitializeMetrics enables the metrics registry when configured and builds
// the transfer and S3 metrics plus the HTTP server exposing them. The
// Prometheus implementations must be linked in by importing
// pkg/metrics/prometheus.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{}
	}

	metrics.InitRegistry()
	logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	return &MetricsResult{
		Transfer: metrics.NewTransferMetrics(),
		S3:       metrics.NewS3Metrics(),
		Server:   metrics.NewServer(cfg.Metrics.Port),
	}
}
