package server

import (
	"log/slog"

	"github.com/getmockd/superserver/pkg/logging"
)

// Option configures a server.
type Option func(*options)

type options struct {
	log *slog.Logger
	rec Recorder
}

func newOptions(opts []Option) options {
	o := options{log: logging.Nop(), rec: NopRecorder{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the operational logger. A nil logger discards output.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithRecorder sets the metrics recorder. A nil recorder discards events.
func WithRecorder(rec Recorder) Option {
	return func(o *options) {
		if rec != nil {
			o.rec = rec
		}
	}
}
