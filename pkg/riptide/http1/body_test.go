package http1

import (
	"bytes"
	"errors"
	"testing"
)

func int64Ptr(v int64) *int64 { return &v }

// feedAll feeds every slice in order, failing on error, and returns the
// result of the last feed.
func feedAll(t *testing.T, p *BodyParser, slices ...[]byte) (bool, []byte) {
	t.Helper()
	var done bool
	var tail []byte
	for _, s := range slices {
		var err error
		done, tail, err = p.FeedData(s)
		if err != nil {
			t.Fatalf("FeedData error: %v", err)
		}
	}
	return done, tail
}

// TestBodyParser_FixedLengthExact tests a body delivered in one buffer
func TestBodyParser_FixedLengthExact(t *testing.T) {
	sink := &mockSink{}
	p, err := NewBodyParser(sink, BodyParserConfig{Length: int64Ptr(5)})
	if err != nil {
		t.Fatalf("NewBodyParser: %v", err)
	}

	done, tail, err := p.FeedData([]byte("hello"))
	if err != nil {
		t.Fatalf("FeedData error: %v", err)
	}
	if !done {
		t.Error("done = false, want true")
	}
	if len(tail) != 0 {
		t.Errorf("tail = %q, want empty", tail)
	}
	if string(sink.Bytes()) != "hello" {
		t.Errorf("sink = %q, want hello", sink.Bytes())
	}
	if !sink.EOF() {
		t.Error("sink EOF not signalled")
	}
}

// TestBodyParser_FixedLengthLeftover tests that bytes past the declared
// length are returned to the caller
func TestBodyParser_FixedLengthLeftover(t *testing.T) {
	sink := &mockSink{}
	p, err := NewBodyParser(sink, BodyParserConfig{Length: int64Ptr(3)})
	if err != nil {
		t.Fatalf("NewBodyParser: %v", err)
	}

	done, tail, err := p.FeedData([]byte("helloGET"))
	if err != nil {
		t.Fatalf("FeedData error: %v", err)
	}
	if !done {
		t.Error("done = false, want true")
	}
	if string(tail) != "loGET" {
		t.Errorf("tail = %q, want loGET", tail)
	}
	if string(sink.Bytes()) != "hel" {
		t.Errorf("sink = %q, want hel", sink.Bytes())
	}
}

// TestBodyParser_FixedLengthSplit tests fixed-length framing across feeds
func TestBodyParser_FixedLengthSplit(t *testing.T) {
	sink := &mockSink{}
	p, err := NewBodyParser(sink, BodyParserConfig{Length: int64Ptr(10)})
	if err != nil {
		t.Fatalf("NewBodyParser: %v", err)
	}

	done, _ := feedAll(t, p, []byte("hell"), []byte("o wor"), []byte("ld"))
	if !done {
		t.Error("done = false, want true")
	}
	if string(sink.Bytes()) != "hello worl" {
		t.Errorf("sink = %q, want %q", sink.Bytes(), "hello worl")
	}
}

// TestBodyParser_FixedLengthZero tests that a zero length completes at
// construction
func TestBodyParser_FixedLengthZero(t *testing.T) {
	sink := &mockSink{}
	p, err := NewBodyParser(sink, BodyParserConfig{Length: int64Ptr(0)})
	if err != nil {
		t.Fatalf("NewBodyParser: %v", err)
	}
	if !p.Done() {
		t.Error("Done = false, want true")
	}
	if !sink.EOF() {
		t.Error("sink EOF not signalled")
	}
}

// TestBodyParser_ChunkedSimple tests a whole chunked body in one buffer
func TestBodyParser_ChunkedSimple(t *testing.T) {
	sink := &mockSink{}
	p, err := NewBodyParser(sink, BodyParserConfig{Chunked: true})
	if err != nil {
		t.Fatalf("NewBodyParser: %v", err)
	}

	done, tail, err := p.FeedData([]byte("5\r\nhello\r\n0\r\n\r\n"))
	if err != nil {
		t.Fatalf("FeedData error: %v", err)
	}
	if !done {
		t.Error("done = false, want true")
	}
	if len(tail) != 0 {
		t.Errorf("tail = %q, want empty", tail)
	}
	if string(sink.Bytes()) != "hello" {
		t.Errorf("sink = %q, want hello", sink.Bytes())
	}
	if !sink.EOF() {
		t.Error("sink EOF not signalled")
	}
}

// TestBodyParser_ChunkedSplitFeeds tests the body split across three
// awkwardly sliced buffers
func TestBodyParser_ChunkedSplitFeeds(t *testing.T) {
	sink := &mockSink{}
	p, err := NewBodyParser(sink, BodyParserConfig{Chunked: true})
	if err != nil {
		t.Fatalf("NewBodyParser: %v", err)
	}

	done, tail := feedAll(t, p,
		[]byte("5\r\nhel"),
		[]byte("lo\r\n0"),
		[]byte("\r\n\r\n"))
	if !done {
		t.Error("done = false, want true")
	}
	if len(tail) != 0 {
		t.Errorf("tail = %q, want empty", tail)
	}
	if string(sink.Bytes()) != "hello" {
		t.Errorf("sink = %q, want hello", sink.Bytes())
	}
}

// TestBodyParser_ChunkedExtension tests chunk-extension stripping
func TestBodyParser_ChunkedExtension(t *testing.T) {
	sink := &mockSink{}
	p, err := NewBodyParser(sink, BodyParserConfig{Chunked: true})
	if err != nil {
		t.Fatalf("NewBodyParser: %v", err)
	}

	done, _, err := p.FeedData([]byte("5;name=value\r\nhello\r\n0\r\n\r\n"))
	if err != nil {
		t.Fatalf("FeedData error: %v", err)
	}
	if !done {
		t.Error("done = false, want true")
	}
	if string(sink.Bytes()) != "hello" {
		t.Errorf("sink = %q, want hello", sink.Bytes())
	}
}

// TestBodyParser_ChunkedZeroWithExtension tests that a 0-size with an
// extension still enters trailer mode
func TestBodyParser_ChunkedZeroWithExtension(t *testing.T) {
	sink := &mockSink{}
	p, err := NewBodyParser(sink, BodyParserConfig{Chunked: true})
	if err != nil {
		t.Fatalf("NewBodyParser: %v", err)
	}

	done, _, err := p.FeedData([]byte("5\r\nhello\r\n0;done=1\r\n\r\n"))
	if err != nil {
		t.Fatalf("FeedData error: %v", err)
	}
	if !done {
		t.Error("done = false, want true")
	}
	if string(sink.Bytes()) != "hello" {
		t.Errorf("sink = %q, want hello", sink.Bytes())
	}
}

// TestBodyParser_ChunkedByteAtATime tests the slicing-invariance law at
// its finest granularity
func TestBodyParser_ChunkedByteAtATime(t *testing.T) {
	body := []byte("4\r\nWiki\r\n5\r\npedia\r\nE\r\n in\r\n\r\nchunks.\r\n0\r\n\r\n")
	want := "Wikipedia in\r\n\r\nchunks."

	sink := &mockSink{}
	p, err := NewBodyParser(sink, BodyParserConfig{Chunked: true})
	if err != nil {
		t.Fatalf("NewBodyParser: %v", err)
	}

	var done bool
	for _, b := range body {
		done, _, err = p.FeedData([]byte{b})
		if err != nil {
			t.Fatalf("FeedData error: %v", err)
		}
	}
	if !done {
		t.Error("done = false, want true")
	}
	if string(sink.Bytes()) != want {
		t.Errorf("sink = %q, want %q", sink.Bytes(), want)
	}
}

// TestBodyParser_ChunkedSlicingInvariance compares several slicings of
// the same stream against the single-buffer result
func TestBodyParser_ChunkedSlicingInvariance(t *testing.T) {
	body := []byte("6\r\nfoobar\r\n3;ext=1\r\nbaz\r\n0\r\n\r\n")

	decode := func(sizes []int) string {
		sink := &mockSink{}
		p, err := NewBodyParser(sink, BodyParserConfig{Chunked: true})
		if err != nil {
			t.Fatalf("NewBodyParser: %v", err)
		}
		rest := body
		for _, n := range sizes {
			if n > len(rest) {
				n = len(rest)
			}
			if _, _, err := p.FeedData(rest[:n]); err != nil {
				t.Fatalf("FeedData error: %v", err)
			}
			rest = rest[n:]
		}
		if len(rest) > 0 {
			if _, _, err := p.FeedData(rest); err != nil {
				t.Fatalf("FeedData error: %v", err)
			}
		}
		return string(sink.Bytes())
	}

	want := decode([]int{len(body)})
	slicings := [][]int{
		{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
		{2, 3, 5, 7},
		{4, 4, 4, 4, 4},
		{10, 1, 10},
	}
	for i, s := range slicings {
		if got := decode(s); got != want {
			t.Errorf("slicing %d: got %q, want %q", i, got, want)
		}
	}
}

// TestBodyParser_ChunkedCRLFInSeparateBuffer tests the CRLF after chunk
// data arriving on its own
func TestBodyParser_ChunkedCRLFInSeparateBuffer(t *testing.T) {
	sink := &mockSink{}
	p, err := NewBodyParser(sink, BodyParserConfig{Chunked: true})
	if err != nil {
		t.Fatalf("NewBodyParser: %v", err)
	}

	done, _ := feedAll(t, p,
		[]byte("5\r\nhello"),
		[]byte("\r\n"),
		[]byte("0\r\n\r\n"))
	if !done {
		t.Error("done = false, want true")
	}
	if string(sink.Bytes()) != "hello" {
		t.Errorf("sink = %q, want hello", sink.Bytes())
	}
}

// TestBodyParser_ChunkedLeftover tests pipelined bytes after the body
func TestBodyParser_ChunkedLeftover(t *testing.T) {
	sink := &mockSink{}
	p, err := NewBodyParser(sink, BodyParserConfig{Chunked: true})
	if err != nil {
		t.Fatalf("NewBodyParser: %v", err)
	}

	done, tail, err := p.FeedData([]byte("3\r\nabc\r\n0\r\n\r\nGET /next"))
	if err != nil {
		t.Fatalf("FeedData error: %v", err)
	}
	if !done {
		t.Error("done = false, want true")
	}
	if string(tail) != "GET /next" {
		t.Errorf("tail = %q, want %q", tail, "GET /next")
	}
}

// TestBodyParser_ChunkedBadSize tests the framing error path: the error
// is raised and the sink is poisoned
func TestBodyParser_ChunkedBadSize(t *testing.T) {
	sink := &mockSink{}
	p, err := NewBodyParser(sink, BodyParserConfig{Chunked: true})
	if err != nil {
		t.Fatalf("NewBodyParser: %v", err)
	}

	_, _, err = p.FeedData([]byte("xyz\r\ndata\r\n"))
	if !errors.Is(err, ErrTransferEncoding) {
		t.Fatalf("error = %v, want TransferEncodingError", err)
	}
	if !errors.Is(sink.Exception(), ErrTransferEncoding) {
		t.Error("sink exception not set")
	}
}

// TestBodyParser_ReadUntilEOF tests read-to-EOF framing
func TestBodyParser_ReadUntilEOF(t *testing.T) {
	sink := &mockSink{}
	p, err := NewBodyParser(sink, BodyParserConfig{ReadUntilEOF: true, StatusCode: 200})
	if err != nil {
		t.Fatalf("NewBodyParser: %v", err)
	}

	done, _ := feedAll(t, p, []byte("stream"), []byte("ed"))
	if done {
		t.Error("done = true before FeedEOF")
	}
	if sink.EOF() {
		t.Error("sink EOF before FeedEOF")
	}

	if err := p.FeedEOF(); err != nil {
		t.Fatalf("FeedEOF error: %v", err)
	}
	if !sink.EOF() {
		t.Error("sink EOF not forwarded")
	}
	if string(sink.Bytes()) != "streamed" {
		t.Errorf("sink = %q, want streamed", sink.Bytes())
	}
}

// TestBodyParser_No204ReadUntilEOF tests that 204 suppresses read-to-EOF
func TestBodyParser_No204ReadUntilEOF(t *testing.T) {
	sink := &mockSink{}
	p, err := NewBodyParser(sink, BodyParserConfig{ReadUntilEOF: true, StatusCode: 204})
	if err != nil {
		t.Fatalf("NewBodyParser: %v", err)
	}
	if !p.Done() {
		t.Error("204 body parser should be done immediately")
	}
}

// TestBodyParser_SkipBody tests the no-body construction path
func TestBodyParser_SkipBody(t *testing.T) {
	sink := &mockSink{}
	p, err := NewBodyParser(sink, BodyParserConfig{SkipBody: true, Length: int64Ptr(100)})
	if err != nil {
		t.Fatalf("NewBodyParser: %v", err)
	}
	if !p.Done() {
		t.Error("Done = false, want true")
	}
	if !sink.EOF() {
		t.Error("sink EOF not signalled")
	}
}

// TestBodyParser_POSTWithoutFraming tests the warned empty-body path for
// requests that should have carried framing headers
func TestBodyParser_POSTWithoutFraming(t *testing.T) {
	sink := &mockSink{}
	p, err := NewBodyParser(sink, BodyParserConfig{Method: "POST"})
	if err != nil {
		t.Fatalf("NewBodyParser: %v", err)
	}
	if !p.Done() {
		t.Error("Done = false, want true")
	}
	if !sink.EOF() {
		t.Error("sink EOF not signalled")
	}
}

// TestBodyParser_TrailersDiscarded tests that trailer fields never reach
// the sink
func TestBodyParser_TrailersDiscarded(t *testing.T) {
	sink := &mockSink{}
	p, err := NewBodyParser(sink, BodyParserConfig{Chunked: true})
	if err != nil {
		t.Fatalf("NewBodyParser: %v", err)
	}

	done, _ := feedAll(t, p, []byte("5\r\nhello\r\n0\r\nExpires: never\r\n\r\n"))
	if !done {
		t.Error("done = false, want true")
	}
	if string(sink.Bytes()) != "hello" {
		t.Errorf("sink = %q, want hello", sink.Bytes())
	}
	if !sink.EOF() {
		t.Error("sink EOF not signalled")
	}
	if bytes.Contains(sink.Bytes(), []byte("Expires")) {
		t.Error("trailer bytes leaked into the sink")
	}
}
