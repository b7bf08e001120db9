package charset

import (
	"bytes"
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Byte Classification Tests
// ============================================================================

func TestClassifyByte(t *testing.T) {
	tests := []struct {
		b    byte
		want ByteClass
		lead int
	}{
		{0x00, ByteSingle, 0},
		{'a', ByteSingle, 0},
		{0x7F, ByteSingle, 0},
		{0x80, ByteMulti, 0},
		{0xBF, ByteMulti, 0},
		{0xC2, ByteStart, 1},
		{0xDF, ByteStart, 1},
		{0xE4, ByteStart, 2},
		{0xEF, ByteStart, 2},
		{0xF0, ByteStart, 3},
		{0xF7, ByteStart, 3},
		{0xF8, ByteUnknown, 0},
		{0xFF, ByteUnknown, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.b), "byte 0x%02x", tt.b)
		assert.Equal(t, tt.lead, LeadLength(tt.b), "byte 0x%02x", tt.b)
	}
}

// ============================================================================
// FindSafeBoundary Tests
// ============================================================================

func TestFindSafeBoundary(t *testing.T) {
	t.Run("HoldsBackPartialSequence", func(t *testing.T) {
		cut, err := FindSafeBoundary([]byte{'a', 'b', 0xE4, 0xB8})
		require.NoError(t, err)
		assert.Equal(t, 2, cut)

		cut, err = FindSafeBoundary([]byte{'a', 0xE4})
		require.NoError(t, err)
		assert.Equal(t, 1, cut)
	})

	t.Run("FourByteSequence", func(t *testing.T) {
		// U+1F600 is F0 9F 98 80; drop the last byte
		cut, err := FindSafeBoundary([]byte{'x', 0xF0, 0x9F, 0x98})
		require.NoError(t, err)
		assert.Equal(t, 1, cut)
	})

	t.Run("AllSingleIsCorrupt", func(t *testing.T) {
		_, err := FindSafeBoundary([]byte("abcd"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrCorruptUTF8))

		var ce *CorruptionError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, 3, ce.Offset)
	})

	t.Run("NoLeadWithinLookback", func(t *testing.T) {
		_, err := FindSafeBoundary([]byte{'a', 0x80, 0x80, 0x80, 0x80})
		assert.ErrorIs(t, err, ErrCorruptUTF8)
	})

	t.Run("ShortBufferOfContinuations", func(t *testing.T) {
		_, err := FindSafeBoundary([]byte{0xB8, 0xAD})
		assert.ErrorIs(t, err, ErrCorruptUTF8)
	})

	t.Run("InvalidLead", func(t *testing.T) {
		_, err := FindSafeBoundary([]byte{'a', 0xFF, 0x80})
		assert.ErrorIs(t, err, ErrCorruptUTF8)
	})

	t.Run("EmptyBuffer", func(t *testing.T) {
		cut, err := FindSafeBoundary(nil)
		require.NoError(t, err)
		assert.Equal(t, 0, cut)
	})
}

func TestBoundaryRoundTrip(t *testing.T) {
	full := []byte{'a', 0xE4, 0xB8, 0xAD}

	for _, heldBack := range []int{1, 2} {
		first := full[:len(full)-heldBack]
		rest := full[len(full)-heldBack:]

		cut, err := FindSafeBoundary(first)
		require.NoError(t, err)

		decoded := string(first[:cut])
		next := append(append([]byte{}, first[cut:]...), rest...)
		require.True(t, utf8.Valid(next))
		decoded += string(next)

		assert.Equal(t, "a中", decoded)
	}
}

// ============================================================================
// SplitComplete / ChunkWriter Tests
// ============================================================================

func TestSplitComplete(t *testing.T) {
	t.Run("CompleteBufferUnchanged", func(t *testing.T) {
		buf := []byte("a中")
		complete, tail, err := SplitComplete(buf)
		require.NoError(t, err)
		assert.Equal(t, buf, complete)
		assert.Empty(t, tail)
	})

	t.Run("AsciiOnly", func(t *testing.T) {
		complete, tail, err := SplitComplete([]byte("abcd"))
		require.NoError(t, err)
		assert.Equal(t, []byte("abcd"), complete)
		assert.Empty(t, tail)
	})

	t.Run("IncompleteTail", func(t *testing.T) {
		complete, tail, err := SplitComplete([]byte{'a', 0xE4, 0xB8})
		require.NoError(t, err)
		assert.Equal(t, []byte{'a'}, complete)
		assert.Equal(t, []byte{0xE4, 0xB8}, tail)
	})

	t.Run("DanglingContinuations", func(t *testing.T) {
		_, _, err := SplitComplete([]byte{'a', 0x80, 0x80, 0x80, 0x80})
		assert.ErrorIs(t, err, ErrCorruptUTF8)
	})
}

func TestChunkWriter(t *testing.T) {
	text := []byte("Perforce 中文 データ 😀 done")

	t.Run("EveryChunkSize", func(t *testing.T) {
		for size := 1; size <= len(text); size++ {
			var out bytes.Buffer
			var writes [][]byte
			w := NewChunkWriter(writerFunc(func(p []byte) (int, error) {
				writes = append(writes, append([]byte{}, p...))
				return out.Write(p)
			}))

			for off := 0; off < len(text); off += size {
				end := min(off+size, len(text))
				n, err := w.Write(text[off:end])
				require.NoError(t, err)
				require.Equal(t, end-off, n)
			}
			require.NoError(t, w.Close())

			assert.Equal(t, string(text), out.String(), "chunk size %d", size)
			for _, chunk := range writes {
				assert.True(t, utf8.Valid(chunk), "chunk size %d wrote split rune %x", size, chunk)
			}
		}
	})

	t.Run("CloseWithPendingTail", func(t *testing.T) {
		w := NewChunkWriter(&bytes.Buffer{})
		_, err := w.Write([]byte{'a', 0xE4})
		require.NoError(t, err)
		assert.Equal(t, 1, w.Pending())
		assert.ErrorIs(t, w.Close(), ErrCorruptUTF8)
	})
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

// ============================================================================
// Lookup Tests
// ============================================================================

func TestLookup(t *testing.T) {
	t.Run("CanonicalNames", func(t *testing.T) {
		for _, name := range Names() {
			cs, ok := Lookup(name)
			require.True(t, ok, name)
			assert.Equal(t, name, cs.Name)
		}
	})

	t.Run("AliasesShareInstance", func(t *testing.T) {
		canonical, ok := Lookup(P4ShiftJIS)
		require.True(t, ok)
		for _, alias := range []string{"shiftjis", "SHIFTJIS", "x-p4-shiftjis", "p4shiftjis"} {
			cs, ok := Lookup(alias)
			require.True(t, ok, alias)
			assert.Same(t, canonical, cs, alias)
		}
	})

	t.Run("IANAFallback", func(t *testing.T) {
		cs, ok := Lookup("windows-1250")
		require.True(t, ok)
		again, ok := Lookup("Windows-1250")
		require.True(t, ok)
		assert.Same(t, cs, again)
	})

	t.Run("Unknown", func(t *testing.T) {
		_, ok := Lookup("no-such-charset")
		assert.False(t, ok)
		_, ok = Lookup("")
		assert.False(t, ok)
	})
}

func TestCharsetCodec(t *testing.T) {
	t.Run("ShiftJISRoundTrip", func(t *testing.T) {
		cs := MustLookup("shiftjis")
		wire, err := cs.Encode("あ")
		require.NoError(t, err)
		assert.Equal(t, []byte{0x82, 0xA0}, wire)

		text, err := cs.Decode(wire)
		require.NoError(t, err)
		assert.Equal(t, "あ", text)
	})

	t.Run("Latin1", func(t *testing.T) {
		cs := MustLookup(ISO8859_1)
		text, err := cs.Decode([]byte{0x63, 0x61, 0x66, 0xE9})
		require.NoError(t, err)
		assert.Equal(t, "café", text)

		_, err = cs.Encode("中")
		assert.Error(t, err)
	})

	t.Run("UTF8Passthrough", func(t *testing.T) {
		cs := MustLookup(UTF8)
		assert.True(t, cs.IsUTF8())
		text, err := cs.Decode([]byte("中"))
		require.NoError(t, err)
		assert.Equal(t, "中", text)
	})

	t.Run("StreamingWriter", func(t *testing.T) {
		cs := MustLookup("shiftjis")
		var out bytes.Buffer
		w := cs.NewWriter(&out)
		for _, b := range []byte{0x82, 0xA0, 0x82, 0xA2} {
			_, err := w.Write([]byte{b})
			require.NoError(t, err)
		}
		require.NoError(t, w.Close())
		assert.Equal(t, "あい", out.String())
	})
}

// ============================================================================
// Infer Tests
// ============================================================================

func TestInfer(t *testing.T) {
	t.Run("NilCandidateIsProbablyTrue", func(t *testing.T) {
		assert.True(t, Infer([]byte{0xFF, 0xFE}, 2, nil))
	})

	t.Run("UTF8", func(t *testing.T) {
		cs := MustLookup(UTF8)
		assert.True(t, Infer([]byte("中文"), 6, cs))
		assert.False(t, Infer([]byte{0xC3, 0x28}, 2, cs))
		// only the prefix is inspected
		assert.True(t, Infer([]byte{'o', 'k', 0xC3, 0x28}, 2, cs))
	})

	t.Run("LengthIsClamped", func(t *testing.T) {
		cs := MustLookup(UTF8)
		assert.True(t, Infer([]byte("ok"), 100, cs))
		assert.True(t, Infer([]byte("ok"), -1, cs))
	})

	t.Run("ShiftJIS", func(t *testing.T) {
		cs := MustLookup(P4ShiftJIS)
		assert.True(t, Infer([]byte{0x82, 0xA0}, 2, cs))
		assert.False(t, Infer([]byte{'a', 0x82}, 2, cs))
	})

	t.Run("UTF16OddLength", func(t *testing.T) {
		cs := MustLookup(UTF16LE)
		assert.True(t, Infer([]byte{'a', 0x00}, 2, cs))
		assert.False(t, Infer([]byte{'a', 0x00, 'b'}, 3, cs))
	})

	t.Run("SingleByteAcceptsAnything", func(t *testing.T) {
		cs := MustLookup(ISO8859_1)
		assert.True(t, Infer([]byte{0x00, 0x80, 0xFF}, 3, cs))
	})
}
