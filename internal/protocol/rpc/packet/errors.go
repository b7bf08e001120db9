package packet

import (
	"errors"
	"fmt"
)

// ErrProtocol is wrapped by every ProtocolError.
var ErrProtocol = errors.New("rpc protocol error")

// ProtocolError reports malformed framing or field encoding in a packet.
type ProtocolError struct {
	Op     string
	Offset int
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("rpc %s: %s (offset %d)", e.Op, e.Reason, e.Offset)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrProtocol, e.Err}
	}
	return []error{ErrProtocol}
}

func protocolErr(op string, offset int, reason string) error {
	return &ProtocolError{Op: op, Offset: offset, Reason: reason}
}
