package transport

import (
	"net"
	"sync"
	"time"

	"github.com/groboclown/p4ic4idea-sub032/internal/logger"
)

// Option names reported in TuningWarnings and metrics.
const (
	OptionNoDelay     = "tcp_no_delay"
	OptionPerformance = "performance_preferences"
	OptionReadTimeout = "read_timeout"
	OptionKeepAlive   = "keep_alive"
	OptionRecvBuffer  = "recv_buffer"
	OptionSendBuffer  = "send_buffer"
)

// SocketOptions is the subset of socket controls Configure drives.
type SocketOptions interface {
	SetNoDelay(noDelay bool) error
	SetPerformancePreferences(connectionTime, latency, bandwidth int) error
	SetReadTimeout(timeout time.Duration) error
	SetKeepAlive(keepAlive bool) error
	SetReadBuffer(bytes int) error
	SetWriteBuffer(bytes int) error
}

// Configure applies t to sock in a fixed order: no-delay, performance
// preferences, read timeout, keep-alive, receive buffer, send buffer.
// Timeouts and buffer sizes are only applied when non-zero.
//
// A failing option is logged and returned as a TuningWarning; the
// remaining options are still applied.
func Configure(sock SocketOptions, t Tuning) []TuningWarning {
	var warnings []TuningWarning
	apply := func(option string, err error) {
		if err == nil {
			return
		}
		w := TuningWarning{Option: option, Err: err}
		logger.Warn("Socket tuning: %v", w)
		warnings = append(warnings, w)
	}

	apply(OptionNoDelay, sock.SetNoDelay(t.TCPNoDelay))
	apply(OptionPerformance, sock.SetPerformancePreferences(
		t.Performance.ConnectionTime, t.Performance.Latency, t.Performance.Bandwidth))
	if t.SoTimeout > 0 {
		apply(OptionReadTimeout, sock.SetReadTimeout(t.SoTimeout))
	}
	apply(OptionKeepAlive, sock.SetKeepAlive(t.KeepAlive))
	if t.RecvBufferBytes != 0 {
		apply(OptionRecvBuffer, sock.SetReadBuffer(t.RecvBufferBytes))
	}
	if t.SendBufferBytes != 0 {
		apply(OptionSendBuffer, sock.SetWriteBuffer(t.SendBufferBytes))
	}

	return warnings
}

// TCPSocket adapts a *net.TCPConn to SocketOptions.
//
// The read timeout is not a socket option in Go; it is recorded here and
// applied as a per-read deadline by InstrumentedReader.
type TCPSocket struct {
	conn *net.TCPConn

	mu          sync.Mutex
	readTimeout time.Duration
}

// NewTCPSocket wraps conn.
func NewTCPSocket(conn *net.TCPConn) *TCPSocket {
	return &TCPSocket{conn: conn}
}

func (s *TCPSocket) SetNoDelay(noDelay bool) error {
	return s.conn.SetNoDelay(noDelay)
}

// SetPerformancePreferences sets IP_TOS where the platform supports it.
func (s *TCPSocket) SetPerformancePreferences(connectionTime, latency, bandwidth int) error {
	prefs := PerformancePreferences{ConnectionTime: connectionTime, Latency: latency, Bandwidth: bandwidth}
	tos := prefs.typeOfService()
	if tos == tosDefault {
		return nil
	}
	return setTypeOfService(s.conn, tos)
}

func (s *TCPSocket) SetReadTimeout(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readTimeout = timeout
	return nil
}

// ReadTimeout returns the timeout recorded by SetReadTimeout.
func (s *TCPSocket) ReadTimeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readTimeout
}

func (s *TCPSocket) SetKeepAlive(keepAlive bool) error {
	return s.conn.SetKeepAlive(keepAlive)
}

func (s *TCPSocket) SetReadBuffer(bytes int) error {
	return s.conn.SetReadBuffer(bytes)
}

func (s *TCPSocket) SetWriteBuffer(bytes int) error {
	return s.conn.SetWriteBuffer(bytes)
}

// BufferSizes reports the kernel's receive and send buffer sizes.
func (s *TCPSocket) BufferSizes() (recv, send int, err error) {
	return socketBufferSizes(s.conn)
}
