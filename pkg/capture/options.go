package capture

import (
	"time"

	"github.com/bft-labs/hwv/internal/ports"
)

// Option configures optional behavior of a Recorder.
type Option func(*options)

// options holds the optional configuration for a Recorder instance.
type options struct {
	logger    ports.Logger
	observers []ports.SessionObserver
	source    ports.CaptureSource
	sink      ports.StorageSink
	pacing    *time.Duration
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithObserver registers a session observer. Observers are called in
// registration order, synchronously from the capture session.
func WithObserver(observer Observer) Option {
	return func(o *options) {
		o.observers = append(o.observers, observer)
	}
}

// WithSource replaces the simulated microphone.
func WithSource(source Source) Option {
	return func(o *options) {
		o.source = source
	}
}

// WithSink replaces the emulated flash.
func WithSink(sink Sink) Option {
	return func(o *options) {
		o.sink = sink
	}
}

// WithSourcePacing sets the delay between blocks produced by the simulated
// microphone. Zero produces blocks as fast as the pool allows. The default
// is real time. It has no effect together with WithSource.
func WithSourcePacing(d time.Duration) Option {
	return func(o *options) {
		o.pacing = &d
	}
}
