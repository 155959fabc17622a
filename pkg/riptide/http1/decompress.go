package http1

import (
	"io"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

// DecompressBuffer wraps a payload sink with a streaming inflate of the
// message's content coding. Decoded bytes are forwarded to the wrapped
// sink; compressed framing never reaches it.
//
// Design:
// - gzip uses the gzip container, deflate is a raw deflate stream, br is
//   a brotli stream
// - The pull-style decoders run in a dedicated goroutine over an internal
//   feed buffer; FeedData blocks until the decoder has consumed the fed
//   bytes, so behavior is synchronous from the caller's side
// - A truncated stream surfaces as ContentEncodingError from FeedEOF,
//   corrupt input as ContentEncodingError from FeedData
// - Bytes trailing a well-formed stream end are discarded
type DecompressBuffer struct {
	out    PayloadSink
	coding Compression

	mu   sync.Mutex
	cond *sync.Cond

	input    []byte // compressed bytes awaiting the decoder
	closed   bool   // FeedEOF seen, no more input
	waiting  bool   // decoder parked awaiting input
	finished bool   // decoder goroutine exited
	size     int64  // total compressed bytes fed

	decodeErr error
	cleanEOF  bool // decoder observed a well-formed stream end
	done      chan struct{}
}

// NewDecompressBuffer creates the inflate adapter in front of out.
func NewDecompressBuffer(out PayloadSink, coding Compression) *DecompressBuffer {
	d := &DecompressBuffer{
		out:    out,
		coding: coding,
		done:   make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

// FeedData inflates one buffer of compressed bytes, forwarding any decoded
// output to the wrapped sink. Returns ContentEncodingError on inflate
// failure.
func (d *DecompressBuffer) FeedData(chunk []byte, size int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.decodeErr != nil {
		return d.decodeErr
	}

	d.size += int64(size)
	d.input = append(d.input, chunk[:size]...)
	d.cond.Broadcast()

	// wait until the decoder has drained the fed bytes and is parked
	// again, so decoded output has reached the sink
	for !(len(d.input) == 0 && d.waiting) && d.decodeErr == nil && !d.finished {
		d.cond.Wait()
	}
	return d.decodeErr
}

// FeedEOF flushes the decoder. A stream that saw input but never reached
// a clean end marker is reported as ContentEncodingError. The EOF is then
// forwarded to the wrapped sink.
func (d *DecompressBuffer) FeedEOF() error {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()

	<-d.done

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.size > 0 && !d.cleanEOF {
		if d.decodeErr != nil {
			return d.decodeErr
		}
		return &ContentEncodingError{Coding: d.coding.String()}
	}
	return d.out.FeedEOF()
}

// SetException forwards the failure to the wrapped sink.
func (d *DecompressBuffer) SetException(err error) {
	d.out.SetException(err)
}

// run is the decoder goroutine. It pulls compressed bytes from the feed
// buffer, pushes decoded output to the sink, and records how the stream
// ended.
func (d *DecompressBuffer) run() {
	src := &decompressSource{d: d}

	var dec io.Reader
	switch d.coding {
	case CompressionGzip:
		gz, err := gzip.NewReader(src)
		if err != nil {
			d.finish(&ContentEncodingError{Coding: d.coding.String()}, false)
			return
		}
		gz.Multistream(false)
		dec = gz
	case CompressionBrotli:
		dec = brotli.NewReader(src)
	default:
		dec = flate.NewReader(src)
	}

	buf := make([]byte, 4096)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			if ferr := d.out.FeedData(buf[:n], n); ferr != nil {
				d.finish(ferr, false)
				return
			}
		}
		if err == io.EOF {
			d.markCleanEOF()
			d.discardTrailing(src, buf)
			d.finish(nil, true)
			return
		}
		if err != nil {
			d.finish(&ContentEncodingError{Coding: d.coding.String()}, false)
			return
		}
	}
}

func (d *DecompressBuffer) markCleanEOF() {
	d.mu.Lock()
	d.cleanEOF = true
	d.mu.Unlock()
}

// discardTrailing consumes input past the stream end until FeedEOF closes
// the feed, so late FeedData calls do not wedge.
func (d *DecompressBuffer) discardTrailing(src *decompressSource, buf []byte) {
	for {
		if _, err := src.Read(buf); err != nil {
			return
		}
	}
}

func (d *DecompressBuffer) finish(err error, clean bool) {
	d.mu.Lock()
	if err != nil && d.decodeErr == nil {
		d.decodeErr = err
	}
	d.cleanEOF = d.cleanEOF || clean
	d.finished = true
	d.cond.Broadcast()
	d.mu.Unlock()
	close(d.done)
}

// decompressSource adapts the feed buffer to the io.Reader the pull
// decoders expect.
type decompressSource struct {
	d *DecompressBuffer
}

func (s *decompressSource) Read(p []byte) (int, error) {
	d := s.d
	d.mu.Lock()
	defer d.mu.Unlock()

	for len(d.input) == 0 && !d.closed {
		d.waiting = true
		d.cond.Broadcast()
		d.cond.Wait()
	}
	d.waiting = false

	if len(d.input) > 0 {
		n := copy(p, d.input)
		d.input = d.input[n:]
		return n, nil
	}
	return 0, io.EOF
}
