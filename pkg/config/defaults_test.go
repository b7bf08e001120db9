package config

import (
	"testing"
	"time"

	"github.com/groboclown/p4ic4idea-sub032/pkg/rpcconn"
	"github.com/groboclown/p4ic4idea-sub032/pkg/transport"
)

func TestApplyDefaults_Empty(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" || cfg.Logging.Format != "text" || cfg.Logging.Output != "stdout" {
		t.Errorf("Unexpected logging defaults: %+v", cfg.Logging)
	}
	if cfg.RPC.Host != DefaultHost || cfg.RPC.Port != DefaultPort {
		t.Errorf("Unexpected address defaults: %s:%d", cfg.RPC.Host, cfg.RPC.Port)
	}
	if cfg.RPC.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("Expected connect timeout %v, got %v", DefaultConnectTimeout, cfg.RPC.ConnectTimeout)
	}
	if cfg.RPC.MaxPacketSize != rpcconn.DefaultMaxPacketSize {
		t.Errorf("Expected max packet size %d, got %d", rpcconn.DefaultMaxPacketSize, cfg.RPC.MaxPacketSize)
	}
	if cfg.RPC.Tuning != transport.DefaultTuning() {
		t.Errorf("Expected default tuning, got %s", cfg.RPC.Tuning)
	}
	if cfg.RPC.Properties == nil {
		t.Error("Expected properties map to be initialized")
	}
	if cfg.Metrics.Enabled {
		t.Error("Expected metrics disabled by default")
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Expected metrics port %d, got %d", DefaultMetricsPort, cfg.Metrics.Port)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{Level: "debug", Format: "json", Output: "stderr"},
		RPC: RPCConfig{
			Host: "p4",
			Port: 2666,
			Tuning: transport.Tuning{
				KeepAlive:       true,
				RecvBufferBytes: 4096,
			},
		},
	}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected normalized level DEBUG, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Output != "stderr" {
		t.Errorf("Explicit logging values overwritten: %+v", cfg.Logging)
	}
	if cfg.RPC.Host != "p4" || cfg.RPC.Port != 2666 {
		t.Errorf("Explicit address overwritten: %s:%d", cfg.RPC.Host, cfg.RPC.Port)
	}

	tuning := cfg.RPC.Tuning
	if tuning.TCPNoDelay {
		t.Error("Partial tuning must not default tcp_no_delay")
	}
	if tuning.RecvBufferBytes != 4096 {
		t.Errorf("Expected recv buffer 4096, got %d", tuning.RecvBufferBytes)
	}
	if tuning.SoTimeout != 30*time.Second {
		t.Errorf("Expected so timeout default, got %v", tuning.SoTimeout)
	}
	if tuning.Performance != transport.DefaultPerformance {
		t.Errorf("Expected default performance prefs, got %+v", tuning.Performance)
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}
