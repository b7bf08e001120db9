package charset

import (
	"fmt"
	"io"
)

// endsComplete reports whether the final character of buf is whole. It
// only considers the trailing lookback window; earlier malformations are
// left for the decoder to report.
func endsComplete(buf []byte) bool {
	if len(buf) == 0 {
		return true
	}

	limit := len(buf) - maxLookback
	if limit < 0 {
		limit = 0
	}

	for i := len(buf) - 1; i >= limit; i-- {
		switch Classify(buf[i]) {
		case ByteSingle:
			return i == len(buf)-1
		case ByteStart:
			return len(buf)-1-i >= LeadLength(buf[i])
		case ByteMulti:
			continue
		default:
			return false
		}
	}
	return false
}

// SplitComplete separates buf into a prefix made of whole characters and a
// tail holding an incomplete trailing sequence. When buf already ends on a
// character boundary the tail is empty and complete is buf itself.
func SplitComplete(buf []byte) (complete, tail []byte, err error) {
	if endsComplete(buf) {
		return buf, nil, nil
	}

	cut, err := FindSafeBoundary(buf)
	if err != nil {
		return nil, nil, err
	}
	return buf[:cut], buf[cut:], nil
}

// ChunkWriter forwards UTF-8 data to an underlying writer without ever
// splitting a character across two downstream writes.
type ChunkWriter struct {
	w       io.Writer
	pending []byte
}

// NewChunkWriter returns a ChunkWriter writing to w.
func NewChunkWriter(w io.Writer) *ChunkWriter {
	return &ChunkWriter{w: w}
}

// Write accepts p in full. Any incomplete trailing sequence is retained and
// prepended to the next call.
func (c *ChunkWriter) Write(p []byte) (int, error) {
	data := p
	if len(c.pending) > 0 {
		data = append(c.pending, p...)
	}

	complete, tail, err := SplitComplete(data)
	if err != nil {
		return 0, err
	}

	if len(complete) > 0 {
		if _, err := c.w.Write(complete); err != nil {
			return 0, fmt.Errorf("write utf-8 chunk: %w", err)
		}
	}

	c.pending = append(c.pending[:0:0], tail...)
	return len(p), nil
}

// Pending returns the number of held-back bytes.
func (c *ChunkWriter) Pending() int {
	return len(c.pending)
}

// Close fails with a CorruptionError if the stream ended mid-character, and
// closes the underlying writer when it is an io.Closer.
func (c *ChunkWriter) Close() error {
	var err error
	if n := len(c.pending); n > 0 {
		err = &CorruptionError{Offset: -n, Reason: fmt.Sprintf("stream ended with %d byte(s) of an incomplete sequence", n)}
	}

	if closer, ok := c.w.(io.Closer); ok {
		if cerr := closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
