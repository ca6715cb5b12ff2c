package elf

import (
	"github.com/go-kit/log"
)

type options struct {
	logger     log.Logger
	scanWindow uint64
	minStrings int
	demangle   bool
}

func defaultOptions() *options {
	return &options{
		logger:     log.NewNopLogger(),
		scanWindow: DefaultStringScanWindow,
		minStrings: DefaultMinScanStrings,
		demangle:   true,
	}
}

type Option func(*options)

// WithLogger routes load diagnostics (anomalies, reconstruction) to logger.
func WithLogger(logger log.Logger) Option {
	return func(opts *options) {
		if logger != nil {
			opts.logger = logger
		}
	}
}

// WithStringScanWindow bounds how many trailing bytes of each loadable
// segment are scanned for a string table during reconstruction.
func WithStringScanWindow(window uint64) Option {
	return func(opts *options) {
		if window > 0 {
			opts.scanWindow = window
		}
	}
}

// WithMinScanStrings sets how many strings a scanned run must hold before
// it is accepted as a string table.
func WithMinScanStrings(count int) Option {
	return func(opts *options) {
		if count > 0 {
			opts.minStrings = count
		}
	}
}

func WithDemangle(enabled bool) Option {
	return func(opts *options) {
		opts.demangle = enabled
	}
}
