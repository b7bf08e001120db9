// Package transport creates and tunes the TCP (optionally TLS) sockets that
// carry Perforce RPC traffic, and instruments the byte streams on top of
// them.
package transport

import (
	"fmt"
	"time"
)

// PerformancePreferences weights the relative importance of short connect
// time, low latency and high bandwidth. Only the relative order matters.
type PerformancePreferences struct {
	ConnectionTime int `mapstructure:"connection_time" yaml:"connection_time"`
	Latency        int `mapstructure:"latency" yaml:"latency"`
	Bandwidth      int `mapstructure:"bandwidth" yaml:"bandwidth"`
}

// Tuning is the set of socket options applied to every RPC connection.
// A zero buffer size leaves the operating system default in place.
type Tuning struct {
	TCPNoDelay      bool                   `mapstructure:"tcp_no_delay" yaml:"tcp_no_delay"`
	KeepAlive       bool                   `mapstructure:"keep_alive" yaml:"keep_alive"`
	SoTimeout       time.Duration          `mapstructure:"so_timeout" yaml:"so_timeout" validate:"gte=0"`
	RecvBufferBytes int                    `mapstructure:"recv_buffer_bytes" yaml:"recv_buffer_bytes" validate:"gte=0"`
	SendBufferBytes int                    `mapstructure:"send_buffer_bytes" yaml:"send_buffer_bytes" validate:"gte=0"`
	Performance     PerformancePreferences `mapstructure:"performance" yaml:"performance"`
}

// Defaults used by Perforce clients.
const (
	DefaultSoTimeout = 30 * time.Second
)

// DefaultPerformance favours latency, then connection time, and ignores
// bandwidth.
var DefaultPerformance = PerformancePreferences{ConnectionTime: 1, Latency: 2, Bandwidth: 0}

// DefaultTuning returns the tuning used when nothing is configured.
func DefaultTuning() Tuning {
	return Tuning{
		TCPNoDelay:  true,
		KeepAlive:   true,
		SoTimeout:   DefaultSoTimeout,
		Performance: DefaultPerformance,
	}
}

func (t Tuning) String() string {
	return fmt.Sprintf("nodelay=%t keepalive=%t timeout=%s rcvbuf=%d sndbuf=%d perf=%d,%d,%d",
		t.TCPNoDelay, t.KeepAlive, t.SoTimeout, t.RecvBufferBytes, t.SendBufferBytes,
		t.Performance.ConnectionTime, t.Performance.Latency, t.Performance.Bandwidth)
}

// Type-of-service values derived from performance preferences.
const (
	tosDefault    = 0x00
	tosThroughput = 0x08
	tosLowDelay   = 0x10
)

// typeOfService maps preferences to an IP_TOS value. Latency and bandwidth
// each win only when strictly preferred over the other.
func (p PerformancePreferences) typeOfService() int {
	switch {
	case p.Latency > p.Bandwidth && p.Latency >= p.ConnectionTime:
		return tosLowDelay
	case p.Bandwidth > p.Latency && p.Bandwidth >= p.ConnectionTime:
		return tosThroughput
	default:
		return tosDefault
	}
}
