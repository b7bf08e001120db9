package config

import (
	"strings"
	"time"

	"github.com/groboclown/p4ic4idea-sub032/pkg/rpcconn"
	"github.com/groboclown/p4ic4idea-sub032/pkg/transport"
)

// Defaults for a server at the conventional P4PORT.
const (
	DefaultHost           = "localhost"
	DefaultPort           = 1666
	DefaultConnectTimeout = 30 * time.Second
	DefaultMetricsPort    = 9090
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced with defaults; explicit values are preserved.
// Boolean socket options cannot be told apart from an explicit false, so
// they are only defaulted when the whole tuning section is empty.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyRPCDefaults(&cfg.RPC)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyRPCDefaults(cfg *RPCConfig) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.MaxPacketSize == 0 {
		cfg.MaxPacketSize = rpcconn.DefaultMaxPacketSize
	}
	applyTuningDefaults(&cfg.Tuning)

	if cfg.Properties == nil {
		cfg.Properties = make(map[string]any)
	}
}

func applyTuningDefaults(t *transport.Tuning) {
	if *t == (transport.Tuning{}) {
		*t = transport.DefaultTuning()
		return
	}
	if t.SoTimeout == 0 {
		t.SoTimeout = transport.DefaultSoTimeout
	}
	if t.Performance == (transport.PerformancePreferences{}) {
		t.Performance = transport.DefaultPerformance
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultMetricsPort
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
