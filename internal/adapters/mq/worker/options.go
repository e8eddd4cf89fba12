package worker

import (
	"github.com/okian/podium/pkg/logger"
)

type options struct {
	name   string
	logger logger.Logger
}

// Option applies a configuration option to an InMemoryWorker.
type Option func(*options)

// WithName sets the worker's name for logs and metrics.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
