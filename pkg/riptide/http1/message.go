package http1

import (
	"bytes"
	"strconv"
	"strings"
	"time"
)

// messageKind tags the two message-writer variants.
type messageKind uint8

const (
	kindRequest messageKind = iota
	kindResponse
)

// messageWriter centralises connection, keep-alive, upgrade and chunking
// decisions for an outbound message and renders the header block. The
// Request/Response variants differ only in their first-line fields,
// autochunk policy and default headers, dispatched on the kind tag.
type messageWriter struct {
	*PayloadWriter

	kind    messageKind
	version HTTPVersion

	closing       bool
	keepalive     *bool
	headers       *HeaderMap
	headersSent   bool
	upgrade       bool // Connection: upgrade
	websocket     bool // Upgrade: websocket
	hasChunkedHdr bool // explicit Transfer-Encoding: chunked
	contentLength int64 // -1 until a Content-Length header is added

	hopHeaders map[string]bool // upper-cased names stripped from output

	// request fields
	method string
	path   string

	// response fields
	status int
	reason string
}

func newMessageWriter(stream StreamController, kind messageKind, version HTTPVersion, closing bool) messageWriter {
	return messageWriter{
		PayloadWriter: NewPayloadWriter(stream),
		kind:          kind,
		version:       version,
		closing:       closing,
		headers:       NewHeaderMap(),
		contentLength: -1,
	}
}

// Version returns the message protocol version.
func (m *messageWriter) Version() HTTPVersion {
	return m.version
}

// BodyLength returns the framed bytes emitted so far.
func (m *messageWriter) BodyLength() int64 {
	return m.OutputLength()
}

// IsHeadersSent reports whether the header block was already emitted.
func (m *messageWriter) IsHeadersSent() bool {
	return m.headersSent
}

// ForceClose marks the connection for closing regardless of headers.
func (m *messageWriter) ForceClose() {
	m.closing = true
	m.keepalive = boolPtr(false)
}

// KeepAlive reports whether the connection survives this message.
// An explicit keep-alive decision wins; otherwise the protocol version
// decides: below HTTP/1.0 never, HTTP/1.0 only with a keep-alive header,
// HTTP/1.1 unless closing.
func (m *messageWriter) KeepAlive() bool {
	if m.keepalive != nil {
		return *m.keepalive
	}
	if m.version.Less(Version10) {
		return false
	}
	if m.version == Version10 {
		return m.headers.Get(hdrConnection) == "keep-alive"
	}
	return !m.closing
}

// AddHeader analyses and stores one outbound header. Content-Length sets
// the payload length, Transfer-Encoding detects explicit chunking,
// Connection folds into the keep-alive/upgrade state instead of the map,
// and hop-by-hop headers are dropped.
func (m *messageWriter) AddHeader(name, value string) error {
	if m.headersSent {
		return ErrHeadersSent
	}
	if !isPrintableASCII(name) {
		return &InvalidHeaderError{Header: name}
	}
	value = strings.TrimSpace(value)

	if strEqualFold(name, hdrContentLength) {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n < 0 {
			return &InvalidHeaderError{Header: name + ": " + value}
		}
		m.contentLength = n
		m.SetLength(n)
	}

	if strEqualFold(name, hdrTransferEncoding) {
		m.hasChunkedHdr = strings.ToLower(value) == "chunked"
	}

	switch {
	case strEqualFold(name, hdrConnection):
		val := strings.ToLower(value)
		switch {
		case strings.Contains(val, "upgrade"):
			m.upgrade = true
		case strings.Contains(val, "close"):
			m.keepalive = boolPtr(false)
		case strings.Contains(val, "keep-alive"):
			m.keepalive = boolPtr(true)
		}

	case strEqualFold(name, hdrUpgrade):
		if strings.Contains(strings.ToLower(value), "websocket") {
			m.websocket = true
		}
		m.headers.Set(name, value)

	case !m.isHopHeader(name):
		m.headers.Add(name, value)
	}

	return nil
}

// AddHeaders adds a batch of headers.
func (m *messageWriter) AddHeaders(headers ...[2]string) error {
	for _, h := range headers {
		if err := m.AddHeader(h[0], h[1]); err != nil {
			return err
		}
	}
	return nil
}

// SetHopHeaders configures the header names stripped from outbound
// messages. Matching is case-insensitive.
func (m *messageWriter) SetHopHeaders(names ...string) {
	m.hopHeaders = make(map[string]bool, len(names))
	for _, n := range names {
		m.hopHeaders[strings.ToUpper(n)] = true
	}
}

func (m *messageWriter) isHopHeader(name string) bool {
	if len(m.hopHeaders) == 0 {
		return false
	}
	return m.hopHeaders[strings.ToUpper(name)]
}

// SendHeaders freezes the header map, decides autochunking, injects the
// default Connection/Date/Server headers, and buffers the status line and
// header block ahead of the first body write. It must run exactly once.
func (m *messageWriter) SendHeaders() error {
	if m.headersSent {
		return ErrHeadersSent
	}
	m.headersSent = true

	if !m.Chunked() && m.autochunked() {
		m.EnableChunking()
	}
	if m.hasChunkedHdr {
		m.EnableChunking()
	}
	if m.Chunked() {
		m.headers.Set(hdrTransferEncoding, "chunked")
	}

	m.addDefaultHeaders()

	var buf bytes.Buffer
	buf.Write(m.statusLine())
	m.headers.VisitAll(func(name, value string) bool {
		buf.WriteString(name)
		buf.Write(colonSpace)
		buf.WriteString(value)
		buf.Write(crlfBytes)
		return true
	})
	buf.Write(crlfBytes)

	m.bufferData(buf.Bytes())
	return nil
}

// statusLine renders the first line for the message variant.
func (m *messageWriter) statusLine() []byte {
	if m.kind == kindRequest {
		line := make([]byte, 0, len(m.method)+len(m.path)+16)
		line = append(line, m.method...)
		line = append(line, ' ')
		line = append(line, m.path...)
		line = append(line, ' ')
		line = append(line, m.version.String()...)
		line = append(line, crlfBytes...)
		return line
	}

	if m.version == Version11 && m.reason == reasonPhrase(m.status) {
		if fast := fastStatusLine(m.status); fast != nil {
			return fast
		}
	}
	line := make([]byte, 0, len(m.reason)+16)
	line = append(line, m.version.String()...)
	line = append(line, ' ')
	line = strconv.AppendInt(line, int64(m.status), 10)
	line = append(line, ' ')
	line = append(line, m.reason...)
	line = append(line, crlfBytes...)
	return line
}

// autochunked decides whether chunked framing is advertised when no
// Content-Length is known. Responses additionally refuse for bodyless
// statuses 204 and 304.
func (m *messageWriter) autochunked() bool {
	if m.contentLength >= 0 || m.version.Less(Version11) {
		return false
	}
	if m.kind == kindResponse {
		return m.status != 204 && m.status != 304
	}
	return true
}

// addDefaultHeaders injects the Connection header implied by the
// upgrade/keep-alive state; responses also default Date and Server.
func (m *messageWriter) addDefaultHeaders() {
	keepingAlive := !m.closing
	if m.keepalive != nil {
		keepingAlive = *m.keepalive
	}

	if m.upgrade {
		m.headers.Set(hdrConnection, "Upgrade")
	} else if keepingAlive {
		if m.version == Version10 {
			m.headers.Set(hdrConnection, "keep-alive")
		}
	} else if m.version == Version11 {
		m.headers.Set(hdrConnection, "close")
	}

	if m.kind == kindResponse {
		m.headers.SetDefault(hdrDate, formatHTTPDate(time.Now()))
		m.headers.SetDefault(hdrServer, serverSoftware)
	}
}

// RequestWriter builds and emits an outbound HTTP request.
type RequestWriter struct {
	messageWriter
}

// NewRequestWriter creates a request writer. Versions below HTTP/1.0
// always close the connection.
func NewRequestWriter(stream StreamController, method, path string, version HTTPVersion, closing bool) *RequestWriter {
	if version.Less(Version10) {
		closing = true
	}
	m := newMessageWriter(stream, kindRequest, version, closing)
	m.method = method
	m.path = path
	return &RequestWriter{m}
}

// Method returns the request method.
func (r *RequestWriter) Method() string { return r.method }

// Path returns the request target.
func (r *RequestWriter) Path() string { return r.path }

// ResponseWriter builds and emits an outbound HTTP response.
type ResponseWriter struct {
	messageWriter
}

// NewResponseWriter creates a response writer. An empty reason gets the
// default phrase for the status code.
func NewResponseWriter(stream StreamController, status int, version HTTPVersion, closing bool, reason string) *ResponseWriter {
	if reason == "" {
		reason = reasonPhrase(status)
	}
	m := newMessageWriter(stream, kindResponse, version, closing)
	m.status = status
	m.reason = reason
	return &ResponseWriter{m}
}

// Status returns the response status code.
func (r *ResponseWriter) Status() int { return r.status }

// Reason returns the response reason phrase.
func (r *ResponseWriter) Reason() string { return r.reason }

// isPrintableASCII reports whether s contains only printable ASCII bytes.
func isPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7E {
			return false
		}
	}
	return true
}
