//go:build !linux
// +build !linux

package http1

import "net"

// setTCPCork is a no-op on platforms without TCP_CORK.
func setTCPCork(conn *net.TCPConn, enabled bool) error {
	return nil
}
