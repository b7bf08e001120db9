// Package metrics provides Prometheus metrics for RPC connections.
//
// All metrics are optional. Until InitRegistry is called, constructors hand
// out no-op implementations, so the transport and connection layers can
// record unconditionally.
//
// Usage:
//
//	metrics.InitRegistry()
//	rpcMetrics := prometheus.NewRPCMetrics()
//	conn, err := rpcconn.Dial(ctx, cfg, rpcconn.Options{Metrics: rpcMetrics})
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// registry is written once by InitRegistry and only read afterwards
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the global registry. Subsequent calls are ignored.
//
// Thread safety:
// sync.Once provides the memory barrier that makes the registry visible to
// every later GetRegistry call.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the global registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
