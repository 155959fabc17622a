package http1

import (
	"bytes"

	"github.com/sirupsen/logrus"
)

// Body framing modes
type framing uint8

const (
	framingNone framing = iota
	framingLength
	framingChunked
	framingUntilEOF
)

// Chunked decoder states
type chunkState uint8

const (
	chunkStateSize chunkState = iota
	chunkStateData
	chunkStateDataCRLF
	chunkStateTrailers
)

// BodyParserConfig selects the framing mode for one message body.
type BodyParserConfig struct {
	// Length is the Content-Length value, nil when the header is absent
	Length *int64

	// Chunked is set when Transfer-Encoding contains "chunked"
	Chunked bool

	// Compression selects a content decoding applied before the sink
	Compression Compression

	// StatusCode of the response being read, 0 for requests
	StatusCode int

	// Method of the request being read, "" for responses
	Method string

	// ReadUntilEOF permits read-to-EOF framing when no other hints exist
	ReadUntilEOF bool

	// SkipBody suppresses the body entirely (HEAD responses, 304, ...)
	SkipBody bool
}

// BodyParser is an incremental body framing decoder. It consumes raw
// transport bytes through FeedData and forwards decoded body bytes to a
// payload sink, holding undecodable carry bytes between calls.
//
// Design:
// - One parser per message body, discarded once done
// - Byte-exact under any input slicing, down to one byte per feed
// - Chunk extensions stripped, trailer section discarded
// - Framing errors poison the sink before being returned
type BodyParser struct {
	payload PayloadSink

	framing    framing
	length     uint64
	chunkState chunkState
	chunkSize  uint64
	tail       []byte
	done       bool
}

// NewBodyParser selects the framing mode from the message hints and wires
// the sink, wrapping it in a DecompressBuffer when a content coding is set.
//
// Framing priority: no body expected, chunked, fixed length, read-to-EOF.
// A request carrying a body with no framing headers is logged and treated
// as empty.
func NewBodyParser(payload PayloadSink, cfg BodyParserConfig) (*BodyParser, error) {
	p := &BodyParser{chunkState: chunkStateSize}

	if !cfg.SkipBody && cfg.Compression != CompressionNone {
		payload = NewDecompressBuffer(payload, cfg.Compression)
	}
	p.payload = payload

	switch {
	case cfg.SkipBody:
		p.framing = framingNone
		p.done = true
		if err := payload.FeedEOF(); err != nil {
			return nil, err
		}

	case cfg.Chunked:
		p.framing = framingChunked

	case cfg.Length != nil:
		p.framing = framingLength
		p.length = uint64(*cfg.Length)
		if p.length == 0 {
			p.done = true
			if err := payload.FeedEOF(); err != nil {
				return nil, err
			}
		}

	case cfg.ReadUntilEOF && cfg.StatusCode != 204:
		p.framing = framingUntilEOF

	case cfg.Method == "PUT" || cfg.Method == "POST":
		logrus.Warning("http1: Content-Length or Transfer-Encoding header is required")
		p.framing = framingNone
		p.done = true
		if err := payload.FeedEOF(); err != nil {
			return nil, err
		}

	default:
		p.framing = framingNone
		p.done = true
	}

	return p, nil
}

// Done reports whether the body is complete.
func (p *BodyParser) Done() bool {
	return p.done
}

// FeedEOF signals end of transport input. Only read-to-EOF framing treats
// this as end of body.
func (p *BodyParser) FeedEOF() error {
	if p.framing == framingUntilEOF {
		return p.payload.FeedEOF()
	}
	return nil
}

// FeedData decodes one buffer of transport bytes.
//
// Returns done=true with the leftover bytes that belong to the next
// message once the body is complete. Before that it returns (false, nil)
// and parks any unparseable carry bytes internally.
func (p *BodyParser) FeedData(chunk []byte) (bool, []byte, error) {
	switch p.framing {
	case framingLength:
		required := p.length
		chunkLen := uint64(len(chunk))

		if required >= chunkLen {
			p.length = required - chunkLen
			if err := p.payload.FeedData(chunk, len(chunk)); err != nil {
				return false, nil, err
			}
			if p.length == 0 {
				p.done = true
				if err := p.payload.FeedEOF(); err != nil {
					return false, nil, err
				}
				return true, []byte{}, nil
			}
		} else {
			p.length = 0
			if err := p.payload.FeedData(chunk[:required], int(required)); err != nil {
				return false, nil, err
			}
			p.done = true
			if err := p.payload.FeedEOF(); err != nil {
				return false, nil, err
			}
			return true, chunk[required:], nil
		}

	case framingChunked:
		if len(p.tail) > 0 {
			chunk = append(p.tail, chunk...)
			p.tail = nil
		}

		for len(chunk) > 0 {
			// read next chunk size line
			if p.chunkState == chunkStateSize {
				pos := bytes.Index(chunk, crlfBytes)
				if pos < 0 {
					p.setTail(chunk)
					return false, nil, nil
				}

				size := chunk[:pos]
				// a chunk-extension begins at ';' and is discarded
				if i := bytes.IndexByte(size, chunkedExtSep); i >= 0 {
					size = size[:i]
				}

				n, ok := parseHexUint(size)
				if !ok {
					exc := &TransferEncodingError{Size: string(chunk[:pos])}
					p.payload.SetException(exc)
					return false, nil, exc
				}

				chunk = chunk[pos+2:]
				if n == 0 { // eof marker
					p.chunkState = chunkStateTrailers
				} else {
					p.chunkState = chunkStateData
					p.chunkSize = n
				}
			}

			// read chunk data and feed the sink
			if p.chunkState == chunkStateData {
				required := p.chunkSize
				chunkLen := uint64(len(chunk))

				if required >= chunkLen {
					p.chunkSize = required - chunkLen
					if p.chunkSize == 0 {
						p.chunkState = chunkStateDataCRLF
					}
					if err := p.payload.FeedData(chunk, len(chunk)); err != nil {
						return false, nil, err
					}
					return false, nil, nil
				}

				p.chunkSize = 0
				if err := p.payload.FeedData(chunk[:required], int(required)); err != nil {
					return false, nil, err
				}
				chunk = chunk[required:]
				p.chunkState = chunkStateDataCRLF
			}

			// toss the CRLF at the end of the chunk
			if p.chunkState == chunkStateDataCRLF {
				if len(chunk) >= 2 && chunk[0] == '\r' && chunk[1] == '\n' {
					chunk = chunk[2:]
					p.chunkState = chunkStateSize
				} else {
					p.setTail(chunk)
					return false, nil, nil
				}
			}

			// read and discard the trailer section up to its CRLF terminator
			if p.chunkState == chunkStateTrailers {
				pos := bytes.Index(chunk, crlfBytes)
				if pos < 0 {
					p.setTail(chunk)
					return false, nil, nil
				}
				p.done = true
				if err := p.payload.FeedEOF(); err != nil {
					return false, nil, err
				}
				return true, chunk[pos+2:], nil
			}
		}

	case framingUntilEOF:
		if err := p.payload.FeedData(chunk, len(chunk)); err != nil {
			return false, nil, err
		}
	}

	return false, nil, nil
}

// setTail parks bytes that could not be parsed yet. The bytes are copied:
// the caller owns its buffer.
func (p *BodyParser) setTail(chunk []byte) {
	p.tail = append(p.tail[:0], chunk...)
}

// parseHexUint parses a chunk size field. Strict hex, no sign or
// surrounding whitespace.
func parseHexUint(b []byte) (uint64, bool) {
	if len(b) == 0 {
		return 0, false
	}
	var n uint64
	for _, c := range b {
		var d uint64
		switch {
		case c >= '0' && c <= '9':
			d = uint64(c - '0')
		case c >= 'a' && c <= 'f':
			d = uint64(c-'a') + 10
		case c >= 'A' && c <= 'F':
			d = uint64(c-'A') + 10
		default:
			return 0, false
		}
		if n > (1<<63)/8 {
			return 0, false
		}
		n = n<<4 | d
	}
	return n, true
}
