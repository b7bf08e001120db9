package transport

import (
	"errors"
	"io"
	"time"

	"github.com/groboclown/p4ic4idea-sub032/pkg/metrics"
)

// ErrNotSupported is returned by optional operations the wrapped stream
// does not provide.
var ErrNotSupported = errors.New("operation not supported by underlying stream")

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// ReaderOption configures an InstrumentedReader.
type ReaderOption func(*InstrumentedReader)

// WithReadTimeout bounds every read with a deadline of timeout on d,
// typically the net.Conn underneath any buffering. A zero timeout disables
// the bound.
func WithReadTimeout(d readDeadliner, timeout time.Duration) ReaderOption {
	return func(r *InstrumentedReader) {
		r.deadliner = d
		r.timeout = timeout
	}
}

// WithReaderMetrics reports received bytes to m.
func WithReaderMetrics(m metrics.RPCMetrics) ReaderOption {
	return func(r *InstrumentedReader) {
		r.metrics = metrics.OrNoop(m)
	}
}

// InstrumentedReader forwards reads to an underlying stream and records
// their sizes in a StreamStats.
//
// Go readers have no mark/reset; Peek (available when the underlying stream
// is buffered) is the way to look ahead without consuming.
type InstrumentedReader struct {
	r       io.Reader
	stats   *StreamStats
	metrics metrics.RPCMetrics

	deadliner readDeadliner
	timeout   time.Duration
}

// NewInstrumentedReader wraps r. A nil r is a programming error and panics;
// a nil stats gets a fresh StreamStats.
func NewInstrumentedReader(r io.Reader, stats *StreamStats, opts ...ReaderOption) *InstrumentedReader {
	if r == nil {
		panic("transport: nil reader passed to NewInstrumentedReader")
	}
	if stats == nil {
		stats = &StreamStats{}
	}

	ir := &InstrumentedReader{r: r, stats: stats, metrics: metrics.NewNoopRPCMetrics()}
	for _, opt := range opts {
		opt(ir)
	}
	return ir
}

// Stats returns the shared counters.
func (r *InstrumentedReader) Stats() *StreamStats {
	return r.stats
}

func (r *InstrumentedReader) armDeadline() error {
	if r.deadliner == nil || r.timeout <= 0 {
		return nil
	}
	return r.deadliner.SetReadDeadline(time.Now().Add(r.timeout))
}

func (r *InstrumentedReader) record(n int) {
	r.stats.RecordRecv(n)
	r.metrics.RecordBytes(metrics.DirectionRecv, n)
	r.metrics.ObserveLargestRecv(r.stats.LargestRecv())
}

// Read delegates to the underlying stream. A timeout surfaces as the
// underlying net.Error with Timeout() true.
func (r *InstrumentedReader) Read(p []byte) (int, error) {
	if err := r.armDeadline(); err != nil {
		return 0, err
	}
	n, err := r.r.Read(p)
	if n > 0 || err == nil {
		r.record(n)
	}
	return n, err
}

// ReadByte reads a single byte.
func (r *InstrumentedReader) ReadByte() (byte, error) {
	if err := r.armDeadline(); err != nil {
		return 0, err
	}

	if br, ok := r.r.(io.ByteReader); ok {
		b, err := br.ReadByte()
		if err == nil {
			r.record(1)
		}
		return b, err
	}

	var buf [1]byte
	n, err := io.ReadFull(r.r, buf[:])
	if n == 1 {
		r.record(1)
		return buf[0], nil
	}
	return 0, err
}

// Skip discards up to n bytes without counting them as received data.
func (r *InstrumentedReader) Skip(n int64) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	if err := r.armDeadline(); err != nil {
		return 0, err
	}
	if d, ok := r.r.(interface{ Discard(int) (int, error) }); ok {
		skipped, err := d.Discard(int(n))
		return int64(skipped), err
	}
	return io.CopyN(io.Discard, r.r, n)
}

// Buffered returns the bytes readable without blocking, or 0 when the
// underlying stream cannot tell.
func (r *InstrumentedReader) Buffered() int {
	if b, ok := r.r.(interface{ Buffered() int }); ok {
		return b.Buffered()
	}
	return 0
}

// Peek returns the next n bytes without consuming them.
func (r *InstrumentedReader) Peek(n int) ([]byte, error) {
	p, ok := r.r.(interface{ Peek(int) ([]byte, error) })
	if !ok {
		return nil, ErrNotSupported
	}
	if err := r.armDeadline(); err != nil {
		return nil, err
	}
	return p.Peek(n)
}

// PeekSupported reports whether Peek can succeed.
func (r *InstrumentedReader) PeekSupported() bool {
	_, ok := r.r.(interface{ Peek(int) ([]byte, error) })
	return ok
}

// Close closes the underlying stream when it is an io.Closer.
func (r *InstrumentedReader) Close() error {
	if c, ok := r.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
