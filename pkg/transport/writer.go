package transport

import (
	"io"

	"github.com/groboclown/p4ic4idea-sub032/pkg/metrics"
)

// InstrumentedWriter is the send-side twin of InstrumentedReader.
type InstrumentedWriter struct {
	w       io.Writer
	stats   *StreamStats
	metrics metrics.RPCMetrics
}

// NewInstrumentedWriter wraps w. A nil w panics; nil stats and metrics are
// replaced by fresh counters and a no-op sink.
func NewInstrumentedWriter(w io.Writer, stats *StreamStats, m metrics.RPCMetrics) *InstrumentedWriter {
	if w == nil {
		panic("transport: nil writer passed to NewInstrumentedWriter")
	}
	if stats == nil {
		stats = &StreamStats{}
	}
	return &InstrumentedWriter{w: w, stats: stats, metrics: metrics.OrNoop(m)}
}

func (w *InstrumentedWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	if n > 0 {
		w.stats.RecordSend(n)
		w.metrics.RecordBytes(metrics.DirectionSend, n)
	}
	return n, err
}

// Flush flushes the underlying writer if it buffers.
func (w *InstrumentedWriter) Flush() error {
	if f, ok := w.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Close flushes and closes the underlying writer where supported.
func (w *InstrumentedWriter) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}
	if c, ok := w.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Stats returns the shared counters.
func (w *InstrumentedWriter) Stats() *StreamStats {
	return w.stats
}
