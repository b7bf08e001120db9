package packet

import (
	"bytes"
	"fmt"

	"github.com/groboclown/p4ic4idea-sub032/internal/protocol/rpc/charset"
	"github.com/groboclown/p4ic4idea-sub032/internal/protocol/rpc/field"
)

// Value holds a field value either as decoded text or as raw bytes.
type Value struct {
	Text   string
	Bytes  []byte
	Binary bool
}

// TextValue wraps a string.
func TextValue(s string) Value {
	return Value{Text: s}
}

// BinaryValue wraps raw bytes that must not be charset-converted.
func BinaryValue(b []byte) Value {
	return Value{Bytes: b, Binary: true}
}

// String returns the text, or the raw bytes reinterpreted as a string.
func (v Value) String() string {
	if v.Binary {
		return string(v.Bytes)
	}
	return v.Text
}

// Len is the number of wire bytes when written as UTF-8 or raw.
func (v Value) Len() int {
	if v.Binary {
		return len(v.Bytes)
	}
	return len(v.Text)
}

// Field is a single name/value pair. Named is false only for the field with
// an empty name, which the server uses for unnamed positional data.
type Field struct {
	Name  string
	Named bool
	Value Value
}

// Text builds a named text field.
func Text(name, value string) Field {
	return Field{Name: name, Named: name != "", Value: TextValue(value)}
}

// Binary builds a named binary field.
func Binary(name string, value []byte) Field {
	return Field{Name: name, Named: name != "", Value: BinaryValue(value)}
}

// Options control how text values are converted.
type Options struct {
	// Unicode is set once the server reports unicode mode; text then
	// travels as UTF-8 whatever Charset says.
	Unicode bool

	// Charset is used for text on non-unicode servers. Nil means ISO-8859-1.
	Charset *charset.Charset

	// Rule optionally forces named fields to stay binary.
	Rule field.Rule
}

// TextCharset returns the charset text fields are converted with.
func (o Options) TextCharset() *charset.Charset {
	if o.Unicode {
		return charset.MustLookup(charset.UTF8)
	}
	if o.Charset != nil {
		return o.Charset
	}
	return charset.MustLookup(charset.ISO8859_1)
}

// MarshalField appends the wire form of f to buf. Text values are encoded
// with cs; names are written as given.
func MarshalField(buf *bytes.Buffer, f Field, cs *charset.Charset) error {
	var value []byte
	switch {
	case f.Value.Binary:
		value = f.Value.Bytes
	case cs == nil:
		value = []byte(f.Value.Text)
	default:
		encoded, err := cs.Encode(f.Value.Text)
		if err != nil {
			return &ProtocolError{Op: "marshal field", Offset: buf.Len(), Reason: "encode " + f.Name, Err: err}
		}
		value = encoded
	}

	if len(value) > MaxPayloadSize {
		return protocolErr("marshal field", buf.Len(), fmt.Sprintf("value of %s too large: %d bytes", f.Name, len(value)))
	}

	buf.WriteString(f.Name)
	buf.WriteByte(0)
	length := EncodeInt4(len(value))
	buf.Write(length[:])
	buf.Write(value)
	buf.WriteByte(0)
	return nil
}

// RetrieveField decodes the field at the start of buf and returns it with
// the number of bytes consumed. offset is only used in error reports.
func RetrieveField(buf []byte, offset int, opts Options) (Field, int, error) {
	nul := bytes.IndexByte(buf, 0)
	if nul < 0 {
		return Field{}, 0, protocolErr("retrieve field", offset, "unterminated field name")
	}

	var f Field
	if nul > 0 {
		f.Named = true
		name, err := decodeName(buf[:nul], opts)
		if err != nil {
			return Field{}, 0, &ProtocolError{Op: "retrieve field", Offset: offset, Reason: "decode name", Err: err}
		}
		f.Name = name
	}

	pos := nul + 1
	if len(buf)-pos < Int4Size {
		return Field{}, 0, protocolErr("retrieve field", offset+pos, "insufficient bytes for value length")
	}
	valLen, _ := DecodeInt4(buf[pos : pos+Int4Size])
	pos += Int4Size

	if valLen < 0 || len(buf)-pos < valLen+1 {
		return Field{}, 0, protocolErr("retrieve field", offset+pos, fmt.Sprintf("insufficient bytes for %d byte value of %q", valLen, f.Name))
	}
	raw := buf[pos : pos+valLen]
	pos += valLen
	if buf[pos] != 0 {
		return Field{}, 0, protocolErr("retrieve field", offset+pos, fmt.Sprintf("missing value terminator for %q", f.Name))
	}
	pos++

	skip := false
	if opts.Rule != nil && f.Named {
		opts.Rule.Update(f.Name)
		skip = opts.Rule.SkipConversion()
	}

	if !skip && field.ClassifyNamed(f.Name, f.Named) == field.KindText {
		text, err := opts.TextCharset().Decode(raw)
		if err != nil {
			return Field{}, 0, &ProtocolError{Op: "retrieve field", Offset: offset, Reason: "decode " + f.Name, Err: err}
		}
		f.Value = TextValue(text)
	} else {
		f.Value = BinaryValue(append([]byte(nil), raw...))
	}

	return f, pos, nil
}

func decodeName(b []byte, opts Options) (string, error) {
	return opts.TextCharset().Decode(b)
}
