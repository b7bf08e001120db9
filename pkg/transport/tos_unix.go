//go:build unix

package transport

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

func setTypeOfService(conn *net.TCPConn, tos int) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	ipv6 := false
	if addr, ok := conn.LocalAddr().(*net.TCPAddr); ok && addr.IP.To4() == nil {
		ipv6 = true
	}

	var sockErr error
	err = raw.Control(func(fd uintptr) {
		if ipv6 {
			sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_TCLASS, tos)
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TOS, tos)
	})
	if err != nil {
		return err
	}
	return sockErr
}

func socketBufferSizes(conn *net.TCPConn) (recv, send int, err error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, 0, err
	}

	var recvErr, sendErr error
	err = raw.Control(func(fd uintptr) {
		recv, recvErr = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF)
		send, sendErr = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF)
	})
	if err != nil {
		return 0, 0, err
	}
	if recvErr != nil {
		return 0, 0, recvErr
	}
	return recv, send, sendErr
}

// dialControl sets buffer sizes before connect so the kernel can size the
// TCP window from the first segment.
func dialControl(t Tuning) func(network, address string, c syscall.RawConn) error {
	if t.RecvBufferBytes == 0 && t.SendBufferBytes == 0 {
		return nil
	}
	return func(network, address string, c syscall.RawConn) error {
		return c.Control(func(fd uintptr) {
			// failures surface again, and are reported, in Configure
			if t.RecvBufferBytes != 0 {
				_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, t.RecvBufferBytes)
			}
			if t.SendBufferBytes != 0 {
				_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, t.SendBufferBytes)
			}
		})
	}
}
