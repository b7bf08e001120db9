package packet

import (
	"bytes"
	"strconv"
	"strings"
)

// Reserved field names.
const (
	FieldFunc  = "func"
	FieldFunc2 = "func2"
)

// Packet is one RPC message: the function it invokes and its arguments.
type Packet struct {
	// Func is the remote function name carried in the "func" field.
	Func string

	// Fields lists the fields in wire order, including func.
	Fields []Field

	// Results maps field names to values. Repeated names are stored with a
	// numeric suffix (name, name0, name1...); func2 keeps its first value.
	Results map[string]Value

	// Unnamed is the value of the field with an empty name, if any.
	Unnamed *Value

	// Size is the payload length in bytes.
	Size int
}

// New builds an outgoing packet. The func field is appended when encoded.
func New(funcName string, args ...Field) *Packet {
	return &Packet{Func: funcName, Fields: args}
}

// Get returns the value of a result field.
func (p *Packet) Get(name string) (Value, bool) {
	v, ok := p.Results[name]
	return v, ok
}

// String returns a result field as text, "" when absent.
func (p *Packet) String(name string) string {
	return p.Results[name].String()
}

// Strings flattens the results to text, suitable as template arguments.
func (p *Packet) Strings() map[string]string {
	out := make(map[string]string, len(p.Results))
	for k, v := range p.Results {
		out[k] = v.String()
	}
	return out
}

// Encode returns the full wire form of p: preamble followed by payload.
// Fields are written in order and the func field last.
func Encode(p *Packet, opts Options) ([]byte, error) {
	cs := opts.TextCharset()

	var payload bytes.Buffer
	for _, f := range p.Fields {
		if f.Named && f.Name == FieldFunc {
			continue
		}
		if err := MarshalField(&payload, f, cs); err != nil {
			return nil, err
		}
	}
	if err := MarshalField(&payload, Text(FieldFunc, p.Func), cs); err != nil {
		return nil, err
	}

	if payload.Len() > MaxPayloadSize {
		return nil, protocolErr("encode", 0, "payload too large")
	}

	out := make([]byte, 0, PreambleSize+payload.Len())
	out = append(out, NewPreamble(payload.Len()).Bytes()...)
	out = append(out, payload.Bytes()...)
	return out, nil
}

// Decode parses a payload (without its preamble).
func Decode(payload []byte, opts Options) (*Packet, error) {
	p := &Packet{
		Results: make(map[string]Value),
		Size:    len(payload),
	}

	for pos := 0; pos < len(payload); {
		f, n, err := RetrieveField(payload[pos:], pos, opts)
		if err != nil {
			return nil, err
		}
		pos += n

		p.Fields = append(p.Fields, f)
		p.store(f)
	}

	if fn, ok := p.Results[FieldFunc]; ok {
		p.Func = fn.String()
	}
	return p, nil
}

func (p *Packet) store(f Field) {
	if !f.Named {
		v := f.Value
		p.Unnamed = &v
		return
	}

	if strings.EqualFold(f.Name, FieldFunc2) {
		if _, exists := p.Results[f.Name]; !exists {
			p.Results[f.Name] = f.Value
		}
		return
	}

	if _, exists := p.Results[f.Name]; !exists {
		p.Results[f.Name] = f.Value
		return
	}
	for i := 0; ; i++ {
		key := f.Name + strconv.Itoa(i)
		if _, exists := p.Results[key]; !exists {
			p.Results[key] = f.Value
			return
		}
	}
}

// DecodeFrame parses a complete frame (preamble plus payload) as captured
// from the wire. maxPayload bounds the declared size; 0 disables the bound.
func DecodeFrame(frame []byte, opts Options, maxPayload int) (*Packet, error) {
	pre, err := ParsePreamble(frame)
	if err != nil {
		return nil, err
	}
	if err := pre.Check(maxPayload); err != nil {
		return nil, err
	}

	size := pre.PayloadSize()
	if len(frame)-PreambleSize < size {
		return nil, protocolErr("decode frame", PreambleSize, "truncated payload: want "+strconv.Itoa(size)+" bytes, have "+strconv.Itoa(len(frame)-PreambleSize))
	}
	return Decode(frame[PreambleSize:PreambleSize+size], opts)
}
