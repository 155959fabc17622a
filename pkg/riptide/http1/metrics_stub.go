//go:build !prometheus
// +build !prometheus

package http1

// Metrics are compiled out without the prometheus build tag.

func recordMessageParsed(kind string) {}

func recordParseError(kind string) {}

func recordBytesWritten(n int) {}
