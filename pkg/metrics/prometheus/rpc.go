// Package prometheus holds the Prometheus-backed implementations of the
// interfaces in package metrics.
package prometheus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/groboclown/p4ic4idea-sub032/pkg/metrics"
)

// rpcMetrics is the Prometheus implementation of metrics.RPCMetrics.
type rpcMetrics struct {
	packetsTotal      *prometheus.CounterVec
	packetSize        *prometheus.HistogramVec
	bytesTotal        *prometheus.CounterVec
	largestRecv       prometheus.Gauge
	largest           atomic.Int64
	tuningWarnings    *prometheus.CounterVec
	dialsTotal        *prometheus.CounterVec
	dialDuration      prometheus.Histogram
	activeConnections prometheus.Gauge
	authCount         *prometheus.GaugeVec
}

var (
	shared     *rpcMetrics
	sharedOnce sync.Once
)

// NewRPCMetrics returns the RPC collectors on the global registry. The
// collectors are registered once and shared by every caller.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry
// not called).
func NewRPCMetrics() metrics.RPCMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopRPCMetrics()
	}
	sharedOnce.Do(func() {
		shared = newRPCMetrics(metrics.GetRegistry())
	})
	return shared
}

func newRPCMetrics(reg prometheus.Registerer) *rpcMetrics {
	return &rpcMetrics{
		packetsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "p4rpc_packets_total",
				Help: "Total number of RPC packets by direction",
			},
			[]string{"direction"},
		),
		packetSize: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "p4rpc_packet_size_bytes",
				Help: "Payload size of RPC packets",
				Buckets: []float64{
					64,
					256,
					1024,     // 1KB
					4096,     // 4KB
					16384,    // 16KB
					65536,    // 64KB
					262144,   // 256KB
					1048576,  // 1MB
					10485760, // 10MB
				},
			},
			[]string{"direction"},
		),
		bytesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "p4rpc_stream_bytes_total",
				Help: "Total bytes moved over RPC streams by direction",
			},
			[]string{"direction"},
		),
		largestRecv: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "p4rpc_largest_recv_bytes",
				Help: "Largest single read observed on any RPC stream",
			},
		),
		tuningWarnings: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "p4rpc_socket_tuning_warnings_total",
				Help: "Socket options that failed to apply, by option",
			},
			[]string{"option"},
		),
		dialsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "p4rpc_dials_total",
				Help: "Connection attempts by result",
			},
			[]string{"result"},
		),
		dialDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "p4rpc_dial_duration_seconds",
				Help:    "Time spent establishing RPC connections",
				Buckets: prometheus.DefBuckets,
			},
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "p4rpc_active_connections",
				Help: "Current number of open RPC connections",
			},
		),
		authCount: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "p4rpc_auth_sessions",
				Help: "Login reference count per auth prefix",
			},
			[]string{"prefix"},
		),
	}
}

func (m *rpcMetrics) RecordPacket(direction string, size int) {
	m.packetsTotal.WithLabelValues(direction).Inc()
	m.packetSize.WithLabelValues(direction).Observe(float64(size))
}

func (m *rpcMetrics) RecordBytes(direction string, n int) {
	if n > 0 {
		m.bytesTotal.WithLabelValues(direction).Add(float64(n))
	}
}

// ObserveLargestRecv only ever raises the gauge.
func (m *rpcMetrics) ObserveLargestRecv(n int64) {
	for {
		current := m.largest.Load()
		if n <= current {
			return
		}
		if m.largest.CompareAndSwap(current, n) {
			m.largestRecv.Set(float64(n))
			return
		}
	}
}

func (m *rpcMetrics) RecordTuningWarning(option string) {
	m.tuningWarnings.WithLabelValues(option).Inc()
}

func (m *rpcMetrics) RecordDial(result string, duration time.Duration) {
	m.dialsTotal.WithLabelValues(result).Inc()
	if result != metrics.DialThrottled {
		m.dialDuration.Observe(duration.Seconds())
	}
}

func (m *rpcMetrics) SetActiveConnections(count int64) {
	m.activeConnections.Set(float64(count))
}

func (m *rpcMetrics) SetAuthCount(prefix string, count int64) {
	m.authCount.WithLabelValues(prefix).Set(float64(count))
}
