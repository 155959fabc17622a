package http1

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
)

// Compression identifies the content coding of a message body.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionDeflate
	CompressionBrotli
)

// String returns the coding token as it appears in Content-Encoding.
func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionDeflate:
		return "deflate"
	case CompressionBrotli:
		return "br"
	default:
		return ""
	}
}

// RequestRecord is the structured result of parsing a request header block.
type RequestRecord struct {
	Method      string
	Path        string
	Version     HTTPVersion
	Headers     *HeaderMap
	RawHeaders  []RawHeader
	ShouldClose bool
	Compression Compression
	Upgrade     bool
	Chunked     bool
}

// ResponseRecord is the structured result of parsing a response header block.
type ResponseRecord struct {
	Version     HTTPVersion
	StatusCode  int
	Reason      string
	Headers     *HeaderMap
	RawHeaders  []RawHeader
	ShouldClose bool
	Compression Compression
	Upgrade     bool
	Chunked     bool
}

// ParserConfig bounds header parsing.
type ParserConfig struct {
	// MaxLineSize limits a single header line
	MaxLineSize int

	// MaxHeaders limits the number of header fields per message
	MaxHeaders int

	// MaxFieldSize limits one header field including continuations
	MaxFieldSize int
}

// DefaultParserConfig returns the default parser limits.
func DefaultParserConfig() ParserConfig {
	return ParserConfig{
		MaxLineSize:  DefaultMaxLineSize,
		MaxHeaders:   DefaultMaxHeaders,
		MaxFieldSize: DefaultMaxFieldSize,
	}
}

// methodRE matches a request method after upper-casing.
// The $-_ range covers $ through _ in ASCII order.
var methodRE = regexp.MustCompile(`^[A-Z0-9$-_.]+$`)

// versionRE matches a response protocol field.
var versionRE = regexp.MustCompile(`^HTTP/(\d+)\.(\d+)`)

// headerParser consumes pre-split header lines and produces a multi-valued
// header map plus derived connection flags. It is the shared base for the
// request and response parsers.
//
// Input is an ordered line sequence with CRLFs stripped: element 0 is the
// first (request or status) line, the sequence is terminated by an empty
// line sentinel.
type headerParser struct {
	cfg ParserConfig
}

// headerBlock carries the parsed header section and the flags derived
// from it. closeConn is tri-state: nil means the headers did not decide.
type headerBlock struct {
	headers    *HeaderMap
	rawHeaders []RawHeader
	closeConn  *bool
	encoding   Compression
	upgrade    bool
	chunked    bool
}

// parseHeaderBlock parses the header lines starting at index 1.
//
// Line continuations are joined with a CRLF separator. Header names are
// upper-cased byte-wise; names containing delimiter or control bytes are
// rejected. Values keep their bytes as-is (Go strings carry arbitrary
// bytes, so nothing is lost on the way through).
func (p *headerParser) parseHeaderBlock(lines [][]byte) (headerBlock, error) {
	blk := headerBlock{headers: NewHeaderMap()}

	idx := 1
	line := lines[idx]

	for len(line) > 0 {
		headerLength := len(line)
		if headerLength > p.cfg.MaxLineSize {
			return blk, &LineTooLongError{Field: "header line", Limit: p.cfg.MaxLineSize}
		}

		colon := bytes.IndexByte(line, ':')
		if colon < 0 {
			return blk, &InvalidHeaderError{Header: string(line)}
		}

		bname := upperName(bytes.Trim(line[:colon], " \t"))
		for _, b := range bname {
			if hdrDelimTable[b] {
				return blk, &InvalidHeaderError{Header: string(bname)}
			}
		}
		bvalue := line[colon+1:]

		// next line
		idx++
		line = lines[idx]

		// consume continuation lines (SP or HT prefixed)
		if len(line) > 0 && (line[0] == ' ' || line[0] == '\t') {
			parts := [][]byte{bvalue}
			for len(line) > 0 && (line[0] == ' ' || line[0] == '\t') {
				headerLength += len(line)
				if headerLength > p.cfg.MaxFieldSize {
					return blk, &LineTooLongError{Field: string(bname), Limit: p.cfg.MaxFieldSize}
				}
				parts = append(parts, line)

				idx++
				line = lines[idx]
			}
			bvalue = bytes.Join(parts, crlfBytes)
		} else if headerLength > p.cfg.MaxFieldSize {
			return blk, &LineTooLongError{Field: string(bname), Limit: p.cfg.MaxFieldSize}
		}

		bvalue = bytes.TrimSpace(bvalue)

		if blk.headers.Len() >= p.cfg.MaxHeaders {
			return blk, ErrTooManyHeaders
		}
		blk.headers.Add(string(bname), string(bvalue))
		blk.rawHeaders = append(blk.rawHeaders, RawHeader{Name: bname, Value: bvalue})
	}

	// keep-alive
	if conn := blk.headers.Get(hdrConnection); conn != "" {
		switch strings.ToLower(conn) {
		case "close":
			blk.closeConn = boolPtr(true)
		case "keep-alive":
			blk.closeConn = boolPtr(false)
		case "upgrade":
			blk.upgrade = true
		}
	}

	// content encoding
	if enc := blk.headers.Get(hdrContentEncoding); enc != "" {
		switch strings.ToLower(enc) {
		case "gzip":
			blk.encoding = CompressionGzip
		case "deflate":
			blk.encoding = CompressionDeflate
		}
	}

	// chunking
	if te := blk.headers.Get(hdrTransferEncoding); te != "" {
		if strings.Contains(strings.ToLower(te), "chunked") {
			blk.chunked = true
		}
	}

	return blk, nil
}

// RequestParser decodes a request header block into a RequestRecord.
// Parsers are one-shot per message and carry no state between calls.
type RequestParser struct {
	headerParser
}

// NewRequestParser creates a request parser with the given limits.
func NewRequestParser(cfg ParserConfig) *RequestParser {
	return &RequestParser{headerParser{cfg: cfg}}
}

// ParseMessage parses the request line and header block.
// Returns BadStatusLine for any malformed first line.
func (p *RequestParser) ParseMessage(lines [][]byte) (*RequestRecord, error) {
	line := string(lines[0])

	fields := splitWhitespace(line, 2)
	if len(fields) != 3 {
		recordParseError("request")
		return nil, &BadStatusLineError{Line: line}
	}
	method, path, proto := fields[0], fields[1], fields[2]

	method = strings.ToUpper(method)
	if !methodRE.MatchString(method) {
		recordParseError("request")
		return nil, &BadStatusLineError{Line: method}
	}

	version, ok := parseRequestVersion(proto)
	if !ok {
		recordParseError("request")
		return nil, &BadStatusLineError{Line: proto}
	}

	blk, err := p.parseHeaderBlock(lines)
	if err != nil {
		recordParseError("request")
		return nil, err
	}

	shouldClose := false
	if blk.closeConn != nil {
		shouldClose = *blk.closeConn
	} else if version.LessEq(Version10) {
		// HTTP/1.0 closes unless asked to keep alive
		shouldClose = true
	}

	recordMessageParsed("request")
	return &RequestRecord{
		Method:      method,
		Path:        path,
		Version:     version,
		Headers:     blk.headers,
		RawHeaders:  blk.rawHeaders,
		ShouldClose: shouldClose,
		Compression: blk.encoding,
		Upgrade:     blk.upgrade,
		Chunked:     blk.chunked,
	}, nil
}

// ResponseParser decodes a response header block into a ResponseRecord.
type ResponseParser struct {
	headerParser
}

// NewResponseParser creates a response parser with the given limits.
func NewResponseParser(cfg ParserConfig) *ResponseParser {
	return &ResponseParser{headerParser{cfg: cfg}}
}

// ParseMessage parses the status line and header block.
// The status code must be a decimal integer in [100, 999].
func (p *ResponseParser) ParseMessage(lines [][]byte) (*ResponseRecord, error) {
	line := string(lines[0])

	fields := splitWhitespace(line, 1)
	if len(fields) != 2 {
		recordParseError("response")
		return nil, &BadStatusLineError{Line: line}
	}
	proto, rest := fields[0], fields[1]

	var status, reason string
	if sub := splitWhitespace(rest, 1); len(sub) == 2 {
		status, reason = sub[0], sub[1]
	} else {
		status = rest
	}

	m := versionRE.FindStringSubmatch(proto)
	if m == nil {
		recordParseError("response")
		return nil, &BadStatusLineError{Line: line}
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	if major > 9 || minor > 9 {
		recordParseError("response")
		return nil, &BadStatusLineError{Line: line}
	}
	version := HTTPVersion{major, minor}

	code, err := strconv.Atoi(status)
	if err != nil || code < 100 || code > 999 {
		recordParseError("response")
		return nil, &BadStatusLineError{Line: line}
	}

	blk, err := p.parseHeaderBlock(lines)
	if err != nil {
		recordParseError("response")
		return nil, err
	}

	shouldClose := false
	if blk.closeConn != nil {
		shouldClose = *blk.closeConn
	} else {
		shouldClose = version.LessEq(Version10)
	}

	recordMessageParsed("response")
	return &ResponseRecord{
		Version:     version,
		StatusCode:  code,
		Reason:      strings.TrimSpace(reason),
		Headers:     blk.headers,
		RawHeaders:  blk.rawHeaders,
		ShouldClose: shouldClose,
		Compression: blk.encoding,
		Upgrade:     blk.upgrade,
		Chunked:     blk.chunked,
	}, nil
}

// parseRequestVersion decodes "HTTP/M.N" from a request line.
// Versions produced here always have single-digit components.
func parseRequestVersion(proto string) (HTTPVersion, bool) {
	if !strings.HasPrefix(proto, "HTTP/") {
		return HTTPVersion{}, false
	}
	rest := proto[len("HTTP/"):]
	dot := strings.IndexByte(rest, '.')
	if dot < 0 {
		return HTTPVersion{}, false
	}
	major, err1 := strconv.Atoi(rest[:dot])
	minor, err2 := strconv.Atoi(rest[dot+1:])
	if err1 != nil || err2 != nil || major < 0 || minor < 0 || major > 9 || minor > 9 {
		return HTTPVersion{}, false
	}
	return HTTPVersion{major, minor}, true
}

// upperName returns an upper-cased copy of a header name.
func upperName(b []byte) []byte {
	out := make([]byte, len(b))
	for i := 0; i < len(b); i++ {
		out[i] = toUpper(b[i])
	}
	return out
}

// splitWhitespace splits s on runs of whitespace into at most maxsplit+1
// fields; the final field keeps its interior whitespace. Leading and
// trailing whitespace is discarded.
func splitWhitespace(s string, maxsplit int) []string {
	var fields []string
	i := 0
	for {
		for i < len(s) && isSpace(s[i]) {
			i++
		}
		if i >= len(s) {
			return fields
		}
		if len(fields) == maxsplit {
			fields = append(fields, strings.TrimRight(s[i:], " \t\r\n\v\f"))
			return fields
		}
		start := i
		for i < len(s) && !isSpace(s[i]) {
			i++
		}
		fields = append(fields, s[start:i])
	}
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\r', '\n', '\v', '\f':
		return true
	}
	return false
}

func boolPtr(v bool) *bool { return &v }
