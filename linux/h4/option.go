//go:build linux
// +build linux

package h4

import "github.com/rigado/h4hal"

// Option configures a Protocol.
type Option func(*Protocol)

// OptLogger sets the logger.
func OptLogger(l h4hal.Logger) Option {
	return func(p *Protocol) {
		p.logger = l
	}
}

// OptReadBufferSize sets how many bytes a single OnDataReady may read.
// Values below 1 keep the default.
func OptReadBufferSize(n int) Option {
	return func(p *Protocol) {
		if n > 0 {
			p.buf = make([]byte, n)
		}
	}
}

// OptErrorHandler is called once with the first fatal error, on the
// goroutine that hit it.
func OptErrorHandler(f func(error)) Option {
	return func(p *Protocol) {
		p.errorHandler = f
	}
}
