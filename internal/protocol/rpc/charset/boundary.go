// Package charset handles the text side of RPC decoding: resolving the
// server's P4CHARSET names to encodings, sniffing whether bytes plausibly
// belong to an encoding, and keeping multi-byte UTF-8 sequences whole when a
// stream is read in arbitrary chunks.
package charset

import (
	"errors"
	"fmt"
)

// ByteClass identifies the role of a single byte within a UTF-8 stream.
type ByteClass int

const (
	// ByteSingle is a 7-bit ASCII byte (0xxxxxxx).
	ByteSingle ByteClass = iota

	// ByteStart leads a 2, 3 or 4 byte sequence.
	ByteStart

	// ByteMulti is a continuation byte (10xxxxxx).
	ByteMulti

	// ByteUnknown can never appear in valid UTF-8 (11111xxx).
	ByteUnknown
)

func (c ByteClass) String() string {
	switch c {
	case ByteSingle:
		return "SINGLE"
	case ByteStart:
		return "START"
	case ByteMulti:
		return "MULTI"
	default:
		return "UNKNOWN"
	}
}

// maxLookback is the longest UTF-8 sequence; a safe cut is always found
// within this many bytes of the end of a well-formed buffer.
const maxLookback = 4

// ErrCorruptUTF8 is the sentinel wrapped by every CorruptionError.
var ErrCorruptUTF8 = errors.New("corrupt utf-8 stream")

// CorruptionError reports where a boundary scan gave up.
type CorruptionError struct {
	Offset int
	Reason string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corrupt utf-8 at offset %d: %s", e.Offset, e.Reason)
}

func (e *CorruptionError) Unwrap() error {
	return ErrCorruptUTF8
}

// LeadLength returns how many continuation bytes follow lead byte b:
// 1, 2 or 3 for 2, 3 and 4 byte sequences, 0 when b is not a lead byte.
func LeadLength(b byte) int {
	switch {
	case b&0xE0 == 0xC0:
		return 1
	case b&0xF0 == 0xE0:
		return 2
	case b&0xF8 == 0xF0:
		return 3
	default:
		return 0
	}
}

// Classify returns the class of b.
func Classify(b byte) ByteClass {
	if b&0x80 == 0 {
		return ByteSingle
	}
	if b&0xC0 == 0x80 {
		return ByteMulti
	}
	if LeadLength(b) > 0 {
		return ByteStart
	}
	return ByteUnknown
}

// FindSafeBoundary returns the index at which buf must be cut so that the
// bytes from that index onwards, an incomplete trailing sequence, can be
// held back until more data arrives.
//
// The caller has already established that buf does not end on a complete
// character; an ASCII byte inside the lookback window therefore means the
// stream is corrupt. An empty buffer has nothing to hold back and yields 0.
func FindSafeBoundary(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	limit := len(buf) - maxLookback
	if limit < 0 {
		limit = 0
	}

	for i := len(buf) - 1; i >= limit; i-- {
		switch Classify(buf[i]) {
		case ByteStart:
			return i, nil
		case ByteMulti:
			continue
		case ByteSingle:
			return 0, &CorruptionError{Offset: i, Reason: "ascii byte inside incomplete sequence"}
		default:
			return 0, &CorruptionError{Offset: i, Reason: fmt.Sprintf("invalid lead byte 0x%02x", buf[i])}
		}
	}

	return 0, &CorruptionError{Offset: limit, Reason: "no lead byte within lookback"}
}
