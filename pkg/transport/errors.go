package transport

import (
	"errors"
	"fmt"
)

// ErrConnection is wrapped by every ConnectionError.
var ErrConnection = errors.New("rpc connection error")

// ConnectionError reports a failure to establish or use a connection.
type ConnectionError struct {
	Op   string
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() []error {
	return []error{ErrConnection, e.Err}
}

// TuningWarning describes a socket option that could not be applied. It is
// informational: the connection remains usable.
type TuningWarning struct {
	Option string
	Err    error
}

func (w TuningWarning) Error() string {
	return fmt.Sprintf("socket option %s not applied: %v", w.Option, w.Err)
}

func (w TuningWarning) Unwrap() error {
	return w.Err
}
