package http1

import (
	"bytes"
	"sync"
)

// mockSink records everything a body parser feeds it.
type mockSink struct {
	mu   sync.Mutex
	data bytes.Buffer
	eof  bool
	exc  error
}

func (s *mockSink) FeedData(p []byte, size int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Write(p[:size])
	return nil
}

func (s *mockSink) FeedEOF() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eof = true
	return nil
}

func (s *mockSink) SetException(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exc = err
}

func (s *mockSink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.data.Bytes()...)
}

func (s *mockSink) EOF() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eof
}

func (s *mockSink) Exception() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exc
}

// mockTransport records transport writes.
type mockTransport struct {
	mu   sync.Mutex
	data bytes.Buffer
}

func (t *mockTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data.Write(p)
}

func (t *mockTransport) Bytes() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.data.Bytes()...)
}

// mockStream implements StreamController over a mockTransport with an
// acquire queue and drain counting.
type mockStream struct {
	mu        sync.Mutex
	transport *mockTransport
	available bool
	waiters   []func(Transport)

	drainCalls   int
	releaseCalls int
	nodelay      bool
	cork         bool
}

func newMockStream() *mockStream {
	return &mockStream{transport: &mockTransport{}, available: true}
}

// newBusyMockStream starts with the transport held, so acquirers queue.
func newBusyMockStream() *mockStream {
	return &mockStream{transport: &mockTransport{}, available: false}
}

func (s *mockStream) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available
}

func (s *mockStream) Transport() Transport {
	return s.transport
}

func (s *mockStream) Acquire(cb func(Transport)) {
	s.mu.Lock()
	if s.available {
		s.available = false
		s.mu.Unlock()
		cb(s.transport)
		return
	}
	s.waiters = append(s.waiters, cb)
	s.mu.Unlock()
}

func (s *mockStream) Release() {
	s.mu.Lock()
	s.releaseCalls++
	if len(s.waiters) > 0 {
		next := s.waiters[0]
		s.waiters = s.waiters[1:]
		s.mu.Unlock()
		next(s.transport)
		return
	}
	s.available = true
	s.mu.Unlock()
}

func (s *mockStream) Drain() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drainCalls = s.drainCalls + 1
	return nil
}

func (s *mockStream) TCPNoDelay() bool           { return s.nodelay }
func (s *mockStream) SetTCPNoDelay(enabled bool) { s.nodelay = enabled }
func (s *mockStream) TCPCork() bool              { return s.cork }
func (s *mockStream) SetTCPCork(enabled bool)    { s.cork = enabled }

func (s *mockStream) Written() []byte {
	return s.transport.Bytes()
}

func (s *mockStream) DrainCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drainCalls
}

func (s *mockStream) ReleaseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseCalls
}

// headerLines builds the parser input: raw lines without CRLFs, followed
// by the empty terminator line.
func headerLines(lines ...string) [][]byte {
	out := make([][]byte, 0, len(lines)+1)
	for _, l := range lines {
		out = append(out, []byte(l))
	}
	return append(out, []byte{})
}

// splitHeaderBlock splits a wire-format message into parser lines and the
// remaining body bytes.
func splitHeaderBlock(raw []byte) ([][]byte, []byte) {
	end := bytes.Index(raw, []byte("\r\n\r\n"))
	if end < 0 {
		return nil, nil
	}
	head := raw[:end]
	body := raw[end+4:]

	var lines [][]byte
	for _, l := range bytes.Split(head, []byte("\r\n")) {
		lines = append(lines, l)
	}
	return append(lines, []byte{}), body
}
