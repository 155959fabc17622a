// Package http1 implements the HTTP/1.x wire codec: header-block and body
// parsers for inbound messages and payload writers for outbound messages.
package http1

// Parser limits (per RFC 7230 recommendations and security best practices)
const (
	// DefaultMaxLineSize is the maximum size of a single header line
	DefaultMaxLineSize = 8190

	// DefaultMaxHeaders is the maximum number of header fields per message
	DefaultMaxHeaders = 32768

	// DefaultMaxFieldSize is the maximum accumulated size of one header
	// field including its continuation lines
	DefaultMaxFieldSize = 8190
)

// Protocol constants
var (
	crlfBytes        = []byte("\r\n")
	colonSpace       = []byte(": ")
	chunkedEOFBytes  = []byte("0\r\n\r\n")
	httpPrefixBytes  = []byte("HTTP/")
	chunkedExtSep    = byte(';')
)

// Canonical header names used by the codec
const (
	hdrConnection       = "Connection"
	hdrContentEncoding  = "Content-Encoding"
	hdrContentLength    = "Content-Length"
	hdrTransferEncoding = "Transfer-Encoding"
	hdrUpgrade          = "Upgrade"
	hdrDate             = "Date"
	hdrServer           = "Server"
)

// serverSoftware identifies this codec in outbound Server headers.
const serverSoftware = "riptide/" + codecVersion

const codecVersion = "0.1.0"

// hdrDelimTable marks the bytes forbidden in header field names:
// the RFC 7230 delimiter and control set
// \x00-\x1F \x7F ( ) < > @ , ; : [ ] = { } SP HT \ "
var hdrDelimTable [256]bool

func init() {
	for b := 0; b < 0x20; b++ {
		hdrDelimTable[b] = true
	}
	hdrDelimTable[0x7F] = true
	for _, b := range []byte("()<>@,;:[]={} \t\\\"") {
		hdrDelimTable[b] = true
	}
}

// writeThreshold is the pending-buffer size above which a draining write
// yields to the stream.
const writeThreshold = 64 * 1024

// Pre-compiled HTTP/1.1 status lines for common status codes.
// Covers the vast majority of responses with zero allocations.
var (
	status100Bytes = []byte("HTTP/1.1 100 Continue\r\n")
	status101Bytes = []byte("HTTP/1.1 101 Switching Protocols\r\n")
	status200Bytes = []byte("HTTP/1.1 200 OK\r\n")
	status201Bytes = []byte("HTTP/1.1 201 Created\r\n")
	status204Bytes = []byte("HTTP/1.1 204 No Content\r\n")
	status206Bytes = []byte("HTTP/1.1 206 Partial Content\r\n")
	status301Bytes = []byte("HTTP/1.1 301 Moved Permanently\r\n")
	status302Bytes = []byte("HTTP/1.1 302 Found\r\n")
	status304Bytes = []byte("HTTP/1.1 304 Not Modified\r\n")
	status400Bytes = []byte("HTTP/1.1 400 Bad Request\r\n")
	status401Bytes = []byte("HTTP/1.1 401 Unauthorized\r\n")
	status403Bytes = []byte("HTTP/1.1 403 Forbidden\r\n")
	status404Bytes = []byte("HTTP/1.1 404 Not Found\r\n")
	status500Bytes = []byte("HTTP/1.1 500 Internal Server Error\r\n")
	status502Bytes = []byte("HTTP/1.1 502 Bad Gateway\r\n")
	status503Bytes = []byte("HTTP/1.1 503 Service Unavailable\r\n")
)
