package http1

import (
	"bytes"
	"strconv"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/valyala/bytebufferpool"
)

// Transport writes bytes to the peer. Satisfied by net.Conn and io.Writer.
type Transport interface {
	Write(p []byte) (n int, err error)
}

// StreamController serialises exclusive transport access between writers
// and carries the connection's drain and TCP knobs.
type StreamController interface {
	// Available reports whether the transport is idle
	Available() bool

	// Transport returns the underlying transport
	Transport() Transport

	// Acquire hands the transport to cb, immediately when idle or once
	// the current owner releases it
	Acquire(cb func(Transport))

	// Release returns the transport, waking the next acquirer
	Release()

	// Drain blocks until the transport's write buffer is below its
	// backpressure threshold
	Drain() error

	TCPNoDelay() bool
	SetTCPNoDelay(enabled bool)
	TCPCork() bool
	SetTCPCork(enabled bool)
}

// PayloadSink receives decoded body bytes from a body parser.
type PayloadSink interface {
	FeedData(p []byte, size int) error
	FeedEOF() error
	SetException(err error)
}

// PayloadWriter is the outbound stream abstraction for one message. It
// owns the transport for the message lifetime and applies, in order:
// compression, content-length truncation, and chunk framing.
//
// Design:
// - Writes before the transport is attached buffer into a pooled buffer
//   flushed at attach time
// - Write, WriteEOF and Drain are the only operations that block, at the
//   drain and transport-acquisition boundaries
// - After WriteEOF the writer is poisoned and the transport released
type PayloadWriter struct {
	mu sync.Mutex

	stream    StreamController
	transport Transport

	length       int64 // advertised content length remaining, -1 unknown
	chunked      bool
	outputLength int64
	bufferSize   int

	compressor compressCloser
	compressed bytes.Buffer

	buffer      *bytebufferpool.ByteBuffer
	drainWaiter chan struct{}
	closed      bool
	writeErr    error
}

// compressCloser is the common surface of the flate, gzip and brotli
// writers.
type compressCloser interface {
	Write(p []byte) (int, error)
	Close() error
}

// NewPayloadWriter creates a writer bound to the stream. The transport is
// adopted immediately when the stream is idle, otherwise the writer queues
// for it and buffers early writes.
func NewPayloadWriter(stream StreamController) *PayloadWriter {
	w := &PayloadWriter{
		stream: stream,
		length: -1,
		buffer: bytebufferpool.Get(),
	}
	stream.Acquire(w.SetTransport)
	return w
}

// SetTransport attaches the transport, flushes any buffered bytes to it,
// and unblocks a drain parked on the attach waiter.
func (w *PayloadWriter) SetTransport(t Transport) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.transport = t
	if w.buffer != nil && w.buffer.Len() > 0 {
		if _, err := t.Write(w.buffer.B); err != nil && w.writeErr == nil {
			w.writeErr = err
		}
		w.buffer.Reset()
	}

	if w.drainWaiter != nil {
		close(w.drainWaiter)
		w.drainWaiter = nil
	}
}

// SetLength sets the advertised content length. Cumulative payload past
// the length is silently dropped.
func (w *PayloadWriter) SetLength(n int64) {
	w.mu.Lock()
	w.length = n
	w.mu.Unlock()
}

// EnableChunking turns on chunked transfer framing.
func (w *PayloadWriter) EnableChunking() {
	w.mu.Lock()
	w.chunked = true
	w.mu.Unlock()
}

// Chunked reports whether chunked framing is enabled.
func (w *PayloadWriter) Chunked() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chunked
}

// EnableCompression turns on content compression. Deflate is a raw
// deflate stream, gzip carries the gzip container, br is brotli.
func (w *PayloadWriter) EnableCompression(coding Compression) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch coding {
	case CompressionGzip:
		w.compressor = gzip.NewWriter(&w.compressed)
	case CompressionBrotli:
		w.compressor = brotli.NewWriter(&w.compressed)
	default:
		fw, _ := flate.NewWriter(&w.compressed, flate.DefaultCompression)
		w.compressor = fw
	}
}

// OutputLength returns the number of framed bytes emitted so far,
// including headers and chunk framing.
func (w *PayloadWriter) OutputLength() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.outputLength
}

// TCPNoDelay reads the stream's nodelay flag.
func (w *PayloadWriter) TCPNoDelay() bool { return w.stream.TCPNoDelay() }

// SetTCPNoDelay sets the stream's nodelay flag.
func (w *PayloadWriter) SetTCPNoDelay(v bool) { w.stream.SetTCPNoDelay(v) }

// TCPCork reads the stream's cork flag.
func (w *PayloadWriter) TCPCork() bool { return w.stream.TCPCork() }

// SetTCPCork sets the stream's cork flag.
func (w *PayloadWriter) SetTCPCork(v bool) { w.stream.SetTCPCork(v) }

// bufferData appends already-framed bytes to the pending buffer without
// touching the transport. Used for the header block so headers ride out
// with the first body write.
func (w *PayloadWriter) bufferData(chunk []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.bufferDataLocked(chunk)
}

func (w *PayloadWriter) bufferDataLocked(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	w.bufferSize += len(chunk)
	w.outputLength += int64(len(chunk))
	w.buffer.Write(chunk)
}

// writeLocked sends framed bytes: straight to the transport when attached
// (pending buffer first), otherwise into the pending buffer.
func (w *PayloadWriter) writeLocked(chunk []byte) {
	w.bufferSize += len(chunk)
	w.outputLength += int64(len(chunk))

	if w.transport != nil {
		if w.buffer.Len() > 0 {
			w.buffer.Write(chunk)
			w.flushBufferLocked()
		} else if _, err := w.transport.Write(chunk); err != nil && w.writeErr == nil {
			w.writeErr = err
		}
	} else {
		w.buffer.Write(chunk)
	}
}

func (w *PayloadWriter) flushBufferLocked() {
	if w.buffer.Len() == 0 {
		return
	}
	if _, err := w.transport.Write(w.buffer.B); err != nil && w.writeErr == nil {
		w.writeErr = err
	}
	w.buffer.Reset()
}

// compressLocked runs chunk through the compressor and returns whatever
// output the compressor produced, which may be empty.
func (w *PayloadWriter) compressLocked(chunk []byte) []byte {
	if len(chunk) > 0 {
		w.compressor.Write(chunk) //nolint:errcheck // writes to a bytes.Buffer
	}
	out := append([]byte(nil), w.compressed.Bytes()...)
	w.compressed.Reset()
	return out
}

// frameChunk wraps data in chunked transfer framing:
// hex-size CRLF data CRLF.
func frameChunk(chunk []byte) []byte {
	framed := make([]byte, 0, len(chunk)+16)
	framed = strconv.AppendUint(framed, uint64(len(chunk)), 16)
	framed = append(framed, crlfBytes...)
	framed = append(framed, chunk...)
	framed = append(framed, crlfBytes...)
	return framed
}

// Write emits one body chunk. When the pending buffer passes the write
// threshold and drain is requested, Write blocks until the stream drains.
func (w *PayloadWriter) Write(chunk []byte, drain bool) error {
	w.mu.Lock()

	if w.closed {
		w.mu.Unlock()
		return ErrWriterClosed
	}

	if w.compressor != nil {
		chunk = w.compressLocked(chunk)
		if len(chunk) == 0 {
			err := w.writeErr
			w.mu.Unlock()
			return err
		}
	}

	if w.length >= 0 {
		chunkLen := int64(len(chunk))
		if w.length >= chunkLen {
			w.length -= chunkLen
		} else {
			chunk = chunk[:w.length]
			w.length = 0
			if len(chunk) == 0 {
				err := w.writeErr
				w.mu.Unlock()
				return err
			}
		}
	}

	if w.chunked {
		chunk = frameChunk(chunk)
	}

	if len(chunk) > 0 {
		w.writeLocked(chunk)
		recordBytesWritten(len(chunk))

		if w.bufferSize > writeThreshold && drain {
			w.bufferSize = 0
			return w.drainUnlock()
		}
	}

	err := w.writeErr
	w.mu.Unlock()
	return err
}

// WriteEOF flushes the compressor tail, terminates chunked framing,
// drains, and releases the transport back to the stream. The writer is
// poisoned afterwards.
func (w *PayloadWriter) WriteEOF(chunk []byte) error {
	w.mu.Lock()

	if w.closed {
		w.mu.Unlock()
		return ErrWriterClosed
	}

	if w.compressor != nil {
		if len(chunk) > 0 {
			w.compressor.Write(chunk) //nolint:errcheck
		}
		w.compressor.Close() //nolint:errcheck
		chunk = append([]byte(nil), w.compressed.Bytes()...)
		w.compressed.Reset()
	}

	if w.length >= 0 {
		if int64(len(chunk)) > w.length {
			chunk = chunk[:w.length]
		}
		w.length -= int64(len(chunk))
	}

	if w.chunked {
		if len(chunk) > 0 {
			chunk = append(frameChunk(chunk), chunkedEOFBytes...)
		} else {
			chunk = chunkedEOFBytes
		}
	}

	w.bufferDataLocked(chunk)
	recordBytesWritten(len(chunk))

	if err := w.drainUnlock(); err != nil {
		return err
	}

	w.mu.Lock()
	w.transport = nil
	w.closed = true
	err := w.writeErr
	if w.buffer != nil {
		bytebufferpool.Put(w.buffer)
		w.buffer = nil
	}
	w.mu.Unlock()

	w.stream.Release()
	return err
}

// Drain flushes pending bytes and yields until the stream's write buffer
// is below its threshold. With no transport attached yet, Drain parks on
// a one-shot waiter completed by SetTransport.
func (w *PayloadWriter) Drain() error {
	w.mu.Lock()
	return w.drainUnlock()
}

// drainUnlock requires w.mu held; it releases the lock around the
// blocking edges.
func (w *PayloadWriter) drainUnlock() error {
	if w.transport != nil {
		w.flushBufferLocked()
		err := w.writeErr
		w.mu.Unlock()
		if err != nil {
			return err
		}
		return w.stream.Drain()
	}

	if w.buffer != nil && w.buffer.Len() > 0 {
		if w.drainWaiter == nil {
			w.drainWaiter = make(chan struct{})
		}
		waiter := w.drainWaiter
		w.mu.Unlock()
		<-waiter
		w.mu.Lock()
		err := w.writeErr
		w.mu.Unlock()
		return err
	}

	err := w.writeErr
	w.mu.Unlock()
	return err
}
