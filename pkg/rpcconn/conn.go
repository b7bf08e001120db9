// Package rpcconn carries Perforce RPC packets over a tuned TCP or TLS
// connection.
//
// A Conn owns the socket and layers, from the wire up:
//
//	net.Conn -> bufio -> InstrumentedReader -> [zlib] -> packet framing
//	net.Conn <- InstrumentedWriter <- bufio <- [zlib] <- packet framing
//
// Byte counters therefore measure wire traffic; packet counters measure
// uncompressed payloads.
package rpcconn

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zlib"

	"github.com/groboclown/p4ic4idea-sub032/internal/logger"
	"github.com/groboclown/p4ic4idea-sub032/internal/protocol/rpc/charset"
	"github.com/groboclown/p4ic4idea-sub032/internal/protocol/rpc/field"
	"github.com/groboclown/p4ic4idea-sub032/internal/protocol/rpc/packet"
	"github.com/groboclown/p4ic4idea-sub032/internal/ratelimiter"
	"github.com/groboclown/p4ic4idea-sub032/pkg/metrics"
	"github.com/groboclown/p4ic4idea-sub032/pkg/transport"
)

// FuncCompress2 is the protocol function that switches a stream to zlib.
const FuncCompress2 = "compress2"

// DefaultMaxPacketSize bounds incoming payloads when Config.MaxPacketSize
// is zero.
const DefaultMaxPacketSize = 64 << 20

const streamBufferSize = 64 << 10

// Config describes one server connection.
type Config struct {
	Host   string
	Port   int
	Secure bool

	Tuning transport.Tuning

	// Charset converts text on non-unicode servers. Empty means ISO-8859-1.
	Charset string

	// Unicode starts the connection in unicode mode. It is normally switched
	// on later with SetUnicode once the server reports it.
	Unicode bool

	// MaxPacketSize bounds incoming payloads. Zero means DefaultMaxPacketSize,
	// negative disables the bound.
	MaxPacketSize int

	// ConnectTimeout bounds connect plus TLS handshake.
	ConnectTimeout time.Duration
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Options carries optional collaborators.
type Options struct {
	Metrics   metrics.RPCMetrics
	Limiter   *ratelimiter.DialLimiter
	TLSConfig *tls.Config
}

var activeConnections atomic.Int64

// Conn is one RPC connection. ReadPacket and WritePacket may be called from
// different goroutines; each direction is serialised separately.
type Conn struct {
	// ID correlates log lines of one connection.
	ID string

	conn      net.Conn
	addr      string
	stats     *transport.StreamStats
	metrics   metrics.RPCMetrics
	maxPacket int

	codecMu sync.RWMutex
	unicode bool
	cs      *charset.Charset

	readMu sync.Mutex
	in     *transport.InstrumentedReader
	src    io.Reader

	writeMu sync.Mutex
	buf     *bufio.Writer
	dst     io.Writer
	zw      *zlib.Writer

	compressed atomic.Bool
	closeOnce  sync.Once
	closeErr   error
}

// Dial connects to the server described by cfg.
func Dial(ctx context.Context, cfg Config, opts Options) (*Conn, error) {
	cs, err := lookupCharset(cfg.Charset)
	if err != nil {
		return nil, err
	}

	d := &transport.Dialer{
		Timeout:   cfg.ConnectTimeout,
		TLSConfig: opts.TLSConfig,
		Limiter:   opts.Limiter,
		Metrics:   opts.Metrics,
	}
	nc, err := d.Dial(ctx, cfg.Host, cfg.Port, cfg.Tuning, cfg.Secure)
	if err != nil {
		return nil, err
	}
	return newConn(nc, cfg, opts, cs), nil
}

// New wraps an established connection, such as one returned by a
// listener. Socket tuning is left to the caller.
func New(nc net.Conn, cfg Config, opts Options) (*Conn, error) {
	cs, err := lookupCharset(cfg.Charset)
	if err != nil {
		return nil, err
	}
	return newConn(nc, cfg, opts, cs), nil
}

func lookupCharset(name string) (*charset.Charset, error) {
	if name == "" {
		return nil, nil
	}
	cs, ok := charset.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown charset %q", name)
	}
	return cs, nil
}

func newConn(nc net.Conn, cfg Config, opts Options, cs *charset.Charset) *Conn {
	m := metrics.OrNoop(opts.Metrics)
	stats := &transport.StreamStats{}

	maxPacket := cfg.MaxPacketSize
	switch {
	case maxPacket == 0:
		maxPacket = DefaultMaxPacketSize
	case maxPacket < 0:
		maxPacket = 0
	}

	in := transport.NewInstrumentedReader(
		bufio.NewReaderSize(nc, streamBufferSize),
		stats,
		transport.WithReadTimeout(nc, cfg.Tuning.SoTimeout),
		transport.WithReaderMetrics(m),
	)
	buf := bufio.NewWriterSize(transport.NewInstrumentedWriter(nc, stats, m), streamBufferSize)

	c := &Conn{
		ID:        uuid.NewString(),
		conn:      nc,
		addr:      nc.RemoteAddr().String(),
		stats:     stats,
		metrics:   m,
		maxPacket: maxPacket,
		unicode:   cfg.Unicode,
		cs:        cs,
		in:        in,
		src:       in,
		buf:       buf,
		dst:       buf,
	}

	m.SetActiveConnections(activeConnections.Add(1))
	logger.Debug("RPC connection open conn=%s remote=%s local=%s", c.ID, c.addr, nc.LocalAddr())
	return c
}

// SetUnicode switches text conversion to UTF-8 (on) or back to the
// configured charset.
func (c *Conn) SetUnicode(on bool) {
	c.codecMu.Lock()
	defer c.codecMu.Unlock()
	c.unicode = on
}

// SetCharset changes the charset used on non-unicode servers.
func (c *Conn) SetCharset(name string) error {
	cs, err := lookupCharset(name)
	if err != nil {
		return err
	}
	c.codecMu.Lock()
	defer c.codecMu.Unlock()
	c.cs = cs
	return nil
}

func (c *Conn) codec(rule field.Rule) packet.Options {
	c.codecMu.RLock()
	defer c.codecMu.RUnlock()
	return packet.Options{Unicode: c.unicode, Charset: c.cs, Rule: rule}
}

// ReadPacket reads and decodes the next packet. rule, when non-nil, is
// consulted for every named field.
//
// Cancelling ctx closes the connection: a packet boundary cannot be
// recovered once a read has been abandoned.
func (c *Conn) ReadPacket(ctx context.Context, rule field.Rule) (*packet.Packet, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		logger.Debug("RPC read cancelled conn=%s", c.ID)
		_ = c.Close()
	})
	defer stop()

	var head [packet.PreambleSize]byte
	if err := c.readPreamble(head[:]); err != nil {
		return nil, c.readErr(ctx, err)
	}
	pre, err := packet.ParsePreamble(head[:])
	if err != nil {
		return nil, err
	}
	if err := pre.Check(c.maxPacket); err != nil {
		logger.Warn("Rejected packet preamble conn=%s remote=%s: %v", c.ID, c.addr, err)
		return nil, err
	}

	size := pre.PayloadSize()
	payload := payloads.get(size)
	defer payloads.put(payload)

	if _, err := io.ReadFull(c.src, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, c.readErr(ctx, err)
	}

	p, err := packet.Decode(payload, c.codec(rule))
	if err != nil {
		logger.Debug("Packet decode failed conn=%s size=%d: %v", c.ID, size, err)
		return nil, err
	}

	c.stats.RecordPacketRecv(size)
	c.metrics.RecordPacket(metrics.DirectionRecv, size)
	logger.Debug("Received packet conn=%s func=%s size=%d", c.ID, p.Func, size)
	return p, nil
}

// readPreamble fills buf, counting every read that came up short.
func (c *Conn) readPreamble(buf []byte) error {
	for got := 0; got < len(buf); {
		n, err := c.src.Read(buf[got:])
		got += n
		if got == len(buf) {
			return nil
		}
		if err != nil {
			if got > 0 && errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		c.stats.RecordIncompleteRead()
	}
	return nil
}

func (c *Conn) readErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = errors.Join(ctxErr, err)
	}
	return &transport.ConnectionError{Op: "read", Addr: c.addr, Err: err}
}

// WritePacket encodes p and flushes it to the server.
func (c *Conn) WritePacket(p *packet.Packet) error {
	frame, err := packet.Encode(p, c.codec(nil))
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.dst.Write(frame); err != nil {
		return c.writeErr(err)
	}
	if c.zw != nil {
		if err := c.zw.Flush(); err != nil {
			return c.writeErr(err)
		}
	}
	if err := c.buf.Flush(); err != nil {
		return c.writeErr(err)
	}

	c.stats.RecordPacketSent(len(frame))
	c.metrics.RecordPacket(metrics.DirectionSend, len(frame))
	logger.Debug("Sent packet conn=%s func=%s size=%d", c.ID, p.Func, len(frame))
	return nil
}

func (c *Conn) writeErr(err error) error {
	return &transport.ConnectionError{Op: "write", Addr: c.addr, Err: err}
}

// EnableCompression asks the server for a compressed stream by sending
// compress2 uncompressed, then compresses both directions. Calling it
// again is a no-op.
func (c *Conn) EnableCompression() error {
	if c.compressed.Load() {
		return nil
	}
	if err := c.WritePacket(packet.New(FuncCompress2)); err != nil {
		return err
	}
	c.StartCompression()
	return nil
}

// StartCompression switches both directions to zlib without telling the
// peer. It is the receiving side's answer to compress2. It waits for any
// in-flight ReadPacket to finish.
func (c *Conn) StartCompression() {
	if !c.compressed.CompareAndSwap(false, true) {
		return
	}

	c.writeMu.Lock()
	c.zw = zlib.NewWriter(c.buf)
	c.dst = c.zw
	c.writeMu.Unlock()

	c.readMu.Lock()
	c.src = &inflater{src: c.in}
	c.readMu.Unlock()

	logger.Debug("RPC compression enabled conn=%s", c.ID)
}

// Compressed reports whether the stream is compressed.
func (c *Conn) Compressed() bool {
	return c.compressed.Load()
}

// inflater defers reading the zlib header until the peer's first
// compressed byte arrives.
type inflater struct {
	src io.Reader
	zr  io.ReadCloser
}

func (f *inflater) Read(p []byte) (int, error) {
	if f.zr == nil {
		zr, err := zlib.NewReader(f.src)
		if err != nil {
			return 0, err
		}
		f.zr = zr
	}
	return f.zr.Read(p)
}

// Close closes the socket. Reads blocked in ReadPacket fail with a
// *transport.ConnectionError.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
		c.metrics.SetActiveConnections(activeConnections.Add(-1))

		s := c.stats.Snapshot()
		logger.Debug("RPC connection closed conn=%s remote=%s sent=%d recv=%d packets_sent=%d packets_recv=%d",
			c.ID, c.addr, s.TotalBytesSent, s.TotalBytesRecv, s.PacketsSent, s.PacketsRecv)
	})
	return c.closeErr
}

// Stats returns the connection's live counters.
func (c *Conn) Stats() *transport.StreamStats {
	return c.stats
}

// LocalAddr returns the local network address.
func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the server's network address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Fingerprint returns the server certificate fingerprint of a secure
// connection.
func (c *Conn) Fingerprint() (string, error) {
	return transport.Fingerprint(c.conn)
}

func (c *Conn) tcp() (*net.TCPConn, error) {
	nc := c.conn
	if t, ok := nc.(*tls.Conn); ok {
		nc = t.NetConn()
	}
	tcp, ok := nc.(*net.TCPConn)
	if !ok {
		return nil, transport.ErrNotSupported
	}
	return tcp, nil
}

// SystemRecvBufferSize reports the kernel receive buffer size in effect.
func (c *Conn) SystemRecvBufferSize() (int, error) {
	tcp, err := c.tcp()
	if err != nil {
		return 0, err
	}
	recv, _, err := transport.NewTCPSocket(tcp).BufferSizes()
	return recv, err
}

// SystemSendBufferSize reports the kernel send buffer size in effect.
func (c *Conn) SystemSendBufferSize() (int, error) {
	tcp, err := c.tcp()
	if err != nil {
		return 0, err
	}
	_, send, err := transport.NewTCPSocket(tcp).BufferSizes()
	return send, err
}
