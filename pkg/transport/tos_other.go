//go:build !unix

package transport

import (
	"errors"
	"net"
	"syscall"
)

var errUnsupported = errors.New("not supported on this platform")

// Type of service is not settable portably; treat it as applied.
func setTypeOfService(conn *net.TCPConn, tos int) error {
	return nil
}

func socketBufferSizes(conn *net.TCPConn) (recv, send int, err error) {
	return 0, 0, errUnsupported
}

func dialControl(t Tuning) func(network, address string, c syscall.RawConn) error {
	return nil
}
