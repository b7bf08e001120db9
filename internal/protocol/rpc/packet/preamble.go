// Package packet implements Perforce RPC packet framing.
//
// Every packet on the wire is a 5 byte preamble followed by a payload:
//
//	+----------+------+------+------+------+==========+
//	| checksum | len0 | len1 | len2 | len3 | payload  |
//	+----------+------+------+------+------+==========+
//
// The payload length is little-endian and the checksum is the XOR of the
// four length bytes. The payload is a sequence of fields:
//
//	name NUL | len4 (little-endian) | value | NUL
//
// The "func" field names the remote function and conventionally comes last.
package packet

import "fmt"

const (
	// PreambleSize is the fixed length of the packet header.
	PreambleSize = 5

	// Int4Size is the width of every length field.
	Int4Size = 4

	// MaxPayloadSize is the largest payload length the preamble can encode.
	MaxPayloadSize = 0x7FFFFFFF
)

// EncodeInt4 writes v as 4 little-endian bytes.
func EncodeInt4(v int) [Int4Size]byte {
	return [Int4Size]byte{
		byte(v),
		byte(v >> 8),
		byte(v >> 16),
		byte(v >> 24),
	}
}

// DecodeInt4 reads 4 little-endian bytes. Any other length is a protocol
// error.
func DecodeInt4(b []byte) (int, error) {
	if len(b) != Int4Size {
		return 0, protocolErr("decode int4", 0, fmt.Sprintf("need %d bytes, have %d", Int4Size, len(b)))
	}
	return int(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24), nil
}

// Preamble is the packet header.
type Preamble struct {
	Checksum byte
	Length   [Int4Size]byte
}

// NewPreamble builds the header for a payload of n bytes.
func NewPreamble(n int) Preamble {
	length := EncodeInt4(n)
	return Preamble{
		Checksum: checksum(length),
		Length:   length,
	}
}

// ParsePreamble reads a header from the first PreambleSize bytes of b.
// The checksum is not verified; see Valid.
func ParsePreamble(b []byte) (Preamble, error) {
	if len(b) < PreambleSize {
		return Preamble{}, protocolErr("parse preamble", len(b), fmt.Sprintf("short preamble: %d bytes", len(b)))
	}
	var p Preamble
	p.Checksum = b[0]
	copy(p.Length[:], b[1:PreambleSize])
	return p, nil
}

func checksum(length [Int4Size]byte) byte {
	return length[0] ^ length[1] ^ length[2] ^ length[3]
}

// Valid reports whether the checksum matches the length bytes.
func (p Preamble) Valid() bool {
	return p.Checksum == checksum(p.Length)
}

// PayloadSize returns the encoded payload length.
func (p Preamble) PayloadSize() int {
	n, _ := DecodeInt4(p.Length[:])
	return n
}

// Bytes returns the wire form.
func (p Preamble) Bytes() []byte {
	return []byte{p.Checksum, p.Length[0], p.Length[1], p.Length[2], p.Length[3]}
}

// Check validates the checksum and bounds the payload size by max (0 means
// no bound beyond MaxPayloadSize).
func (p Preamble) Check(max int) error {
	if !p.Valid() {
		return protocolErr("check preamble", 0, fmt.Sprintf("bad checksum 0x%02x", p.Checksum))
	}
	size := p.PayloadSize()
	if size > MaxPayloadSize {
		return protocolErr("check preamble", 1, fmt.Sprintf("payload size %d overflows", size))
	}
	if max > 0 && size > max {
		return protocolErr("check preamble", 1, fmt.Sprintf("payload size %d exceeds limit %d", size, max))
	}
	return nil
}
