package http1

import "sync"

// Parser pools. Parsers carry only their limits, so pooling them is cheap
// and keeps hot connection loops allocation-free.
var (
	requestParserPool = sync.Pool{
		New: func() interface{} {
			return NewRequestParser(DefaultParserConfig())
		},
	}

	responseParserPool = sync.Pool{
		New: func() interface{} {
			return NewResponseParser(DefaultParserConfig())
		},
	}
)

// GetRequestParser returns a pooled request parser with default limits.
func GetRequestParser() *RequestParser {
	return requestParserPool.Get().(*RequestParser)
}

// PutRequestParser returns a parser to the pool.
func PutRequestParser(p *RequestParser) {
	p.cfg = DefaultParserConfig()
	requestParserPool.Put(p)
}

// GetResponseParser returns a pooled response parser with default limits.
func GetResponseParser() *ResponseParser {
	return responseParserPool.Get().(*ResponseParser)
}

// PutResponseParser returns a parser to the pool.
func PutResponseParser(p *ResponseParser) {
	p.cfg = DefaultParserConfig()
	responseParserPool.Put(p)
}
