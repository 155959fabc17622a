//go:build prometheus
// +build prometheus

package http1

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the codec, enabled with the prometheus build tag.
var (
	messagesParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riptide",
			Subsystem: "http1",
			Name:      "messages_parsed_total",
			Help:      "Total number of successfully parsed header blocks",
		},
		[]string{"kind"},
	)

	parseErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riptide",
			Subsystem: "http1",
			Name:      "parse_errors_total",
			Help:      "Total number of header block parse failures",
		},
		[]string{"kind"},
	)

	bytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "riptide",
			Subsystem: "http1",
			Name:      "bytes_written_total",
			Help:      "Total framed payload bytes handed to transports",
		},
	)
)

func recordMessageParsed(kind string) {
	messagesParsed.WithLabelValues(kind).Inc()
}

func recordParseError(kind string) {
	parseErrors.WithLabelValues(kind).Inc()
}

func recordBytesWritten(n int) {
	bytesWritten.Add(float64(n))
}
