package http1

import (
	"net"
	"sync"
)

// NetStream adapts a net.Conn to the StreamController contract.
//
// Design:
// - Exclusive transport ownership: Acquire hands the conn to one writer
//   at a time, queued callbacks fire in FIFO order on Release
// - Drain is satisfied by the kernel socket buffer: conn writes block at
//   the OS backpressure boundary, so Drain returns once pending writes
//   have been handed to the kernel
// - TCP_NODELAY through net.TCPConn, TCP_CORK through a platform setter
type NetStream struct {
	mu        sync.Mutex
	conn      net.Conn
	available bool
	waiters   []func(Transport)

	nodelay bool
	cork    bool
}

// NewNetStream wraps an established connection. The transport starts idle.
func NewNetStream(conn net.Conn) *NetStream {
	return &NetStream{conn: conn, available: true}
}

// Available reports whether the transport is idle.
func (s *NetStream) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available
}

// Transport returns the underlying connection.
func (s *NetStream) Transport() Transport {
	return s.conn
}

// Acquire hands the transport to cb, synchronously when idle, otherwise
// once the current owner releases it.
func (s *NetStream) Acquire(cb func(Transport)) {
	s.mu.Lock()
	if s.available {
		s.available = false
		s.mu.Unlock()
		cb(s.conn)
		return
	}
	s.waiters = append(s.waiters, cb)
	s.mu.Unlock()
}

// Release returns the transport and wakes the next queued acquirer.
func (s *NetStream) Release() {
	s.mu.Lock()
	if len(s.waiters) > 0 {
		next := s.waiters[0]
		s.waiters = s.waiters[1:]
		s.mu.Unlock()
		next(s.conn)
		return
	}
	s.available = true
	s.mu.Unlock()
}

// Drain blocks until the connection accepts more writes. net.Conn writes
// already block at the kernel buffer, so by the time a write returned the
// buffer was accepted; nothing further to wait for.
func (s *NetStream) Drain() error {
	return nil
}

// TCPNoDelay reports the nodelay flag last set.
func (s *NetStream) TCPNoDelay() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodelay
}

// SetTCPNoDelay toggles Nagle's algorithm on TCP connections.
func (s *NetStream) SetTCPNoDelay(enabled bool) {
	s.mu.Lock()
	s.nodelay = enabled
	conn := s.conn
	s.mu.Unlock()

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(enabled)
	}
}

// TCPCork reports the cork flag last set.
func (s *NetStream) TCPCork() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cork
}

// SetTCPCork toggles TCP_CORK where the platform supports it.
func (s *NetStream) SetTCPCork(enabled bool) {
	s.mu.Lock()
	s.cork = enabled
	conn := s.conn
	s.mu.Unlock()

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = setTCPCork(tc, enabled)
	}
}
