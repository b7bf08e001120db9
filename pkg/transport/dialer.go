package transport

import (
	"context"
	"crypto/sha1"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/groboclown/p4ic4idea-sub032/internal/logger"
	"github.com/groboclown/p4ic4idea-sub032/internal/ratelimiter"
	"github.com/groboclown/p4ic4idea-sub032/pkg/metrics"
)

// DefaultConnectTimeout bounds the TCP handshake when Dialer.Timeout is zero.
const DefaultConnectTimeout = 30 * time.Second

// Dialer opens tuned connections to Perforce servers.
type Dialer struct {
	// Timeout bounds connect plus TLS handshake. Zero means DefaultConnectTimeout.
	Timeout time.Duration

	// TLSConfig is cloned for secure connections. When nil, certificates
	// are not verified here: Perforce trust is established by comparing
	// the server fingerprint (see Fingerprint) in the session layer.
	TLSConfig *tls.Config

	// Limiter throttles attempts per address. Optional.
	Limiter *ratelimiter.DialLimiter

	// Metrics receives dial results and tuning warnings. Optional.
	Metrics metrics.RPCMetrics
}

// Dial connects to host:port, applies t, and wraps the socket in TLS when
// secure is set. The local side binds an ephemeral port.
//
// Every failure is returned as a *ConnectionError.
func (d *Dialer) Dial(ctx context.Context, host string, port int, t Tuning, secure bool) (net.Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	m := metrics.OrNoop(d.Metrics)

	if err := d.Limiter.Wait(ctx, addr); err != nil {
		m.RecordDial(metrics.DialThrottled, 0)
		return nil, &ConnectionError{Op: "dial", Addr: addr, Err: err}
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	nd := &net.Dialer{
		LocalAddr: &net.TCPAddr{Port: 0},
		Control:   dialControl(t),
		// keep-alive is owned by Configure
		KeepAlive: -1,
	}

	start := time.Now()
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		m.RecordDial(metrics.DialFailure, time.Since(start))
		logger.Debug("Dial failed addr=%s error=%v", addr, err)
		return nil, &ConnectionError{Op: "dial", Addr: addr, Err: err}
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		for _, w := range Configure(NewTCPSocket(tcp), t) {
			m.RecordTuningWarning(w.Option)
		}
	}

	if secure {
		tlsConn, err := d.handshake(ctx, conn, host)
		if err != nil {
			_ = conn.Close()
			m.RecordDial(metrics.DialFailure, time.Since(start))
			return nil, &ConnectionError{Op: "tls handshake", Addr: addr, Err: err}
		}
		conn = tlsConn
	}

	m.RecordDial(metrics.DialSuccess, time.Since(start))
	logger.Debug("Connected addr=%s local=%s secure=%t %s", addr, conn.LocalAddr(), secure, t)
	return conn, nil
}

func (d *Dialer) handshake(ctx context.Context, conn net.Conn, host string) (*tls.Conn, error) {
	var cfg *tls.Config
	if d.TLSConfig != nil {
		cfg = d.TLSConfig.Clone()
	} else {
		cfg = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // fingerprint checked by caller
	}
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}

	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, err
	}
	return tlsConn, nil
}

// ErrNoPeerCertificate is returned by Fingerprint for non-TLS connections or
// peers that presented no certificate.
var ErrNoPeerCertificate = errors.New("no peer certificate")

// Fingerprint returns the SHA-1 fingerprint of the server's leaf
// certificate in the colon-separated upper-case hex form p4 trust prints.
func Fingerprint(conn net.Conn) (string, error) {
	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return "", ErrNoPeerCertificate
	}
	certs := tlsConn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return "", ErrNoPeerCertificate
	}
	return FormatFingerprint(certs[0].Raw), nil
}

// FormatFingerprint hashes a DER certificate.
func FormatFingerprint(der []byte) string {
	sum := sha1.Sum(der)
	encoded := strings.ToUpper(hex.EncodeToString(sum[:]))

	parts := make([]string, 0, len(sum))
	for i := 0; i < len(encoded); i += 2 {
		parts = append(parts, encoded[i:i+2])
	}
	return strings.Join(parts, ":")
}

// SplitAddr parses "host:port" or a P4PORT-style "ssl:host:port" /
// "tcp:host:port". secure reports an ssl prefix.
func SplitAddr(p4port string) (host string, port int, secure bool, err error) {
	s := p4port
	for _, prefix := range []string{"ssl:", "ssl4:", "ssl6:", "tcp:", "tcp4:", "tcp6:"} {
		if rest, ok := strings.CutPrefix(strings.ToLower(s), prefix); ok {
			secure = strings.HasPrefix(prefix, "ssl")
			s = s[len(s)-len(rest):]
			break
		}
	}

	h, p, err := net.SplitHostPort(s)
	if err != nil {
		// bare port means localhost
		if n, convErr := strconv.Atoi(s); convErr == nil {
			return "localhost", n, secure, nil
		}
		return "", 0, false, err
	}
	port, err = strconv.Atoi(p)
	if err != nil {
		return "", 0, false, err
	}
	return h, port, secure, nil
}
