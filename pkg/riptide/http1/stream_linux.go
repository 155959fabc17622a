//go:build linux
// +build linux

package http1

import (
	"net"
	"syscall"
)

// TCP_CORK - hold partial frames until uncorked or 200ms elapse.
// Not exported by the syscall package on all kernels we target.
const tcpCork = 3

// setTCPCork toggles TCP_CORK on the connection's socket.
func setTCPCork(conn *net.TCPConn, enabled bool) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	v := 0
	if enabled {
		v = 1
	}
	var serr error
	err = raw.Control(func(fd uintptr) {
		serr = syscall.SetsockoptInt(int(fd), syscall.IPPROTO_TCP, tcpCork, v)
	})
	if err != nil {
		return err
	}
	return serr
}
