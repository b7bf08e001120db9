package config

import (
	"github.com/groboclown/p4ic4idea-sub032/pkg/metrics"
	promMetrics "github.com/groboclown/p4ic4idea-sub032/pkg/metrics/prometheus"
)

// MetricsResult contains the metrics components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// RPCMetrics is handed to connections and the auth counter (never nil)
	RPCMetrics metrics.RPCMetrics
}

// InitializeMetrics creates the metrics components described by cfg.
//
// When metrics are disabled the server is nil and RPCMetrics is a no-op.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			RPCMetrics: metrics.NewNoopRPCMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port: cfg.Metrics.Port,
	})

	return &MetricsResult{
		Server:     server,
		RPCMetrics: promMetrics.NewRPCMetrics(),
	}
}
