package bootstrap

import (
	"github.com/flowmatic/conductor/common/config"
	"github.com/flowmatic/conductor/common/logger"
)

// Option configures the bootstrap process
type Option func(*options)

type options struct {
	skipDB        bool
	skipRedis     bool
	skipQueue     bool
	skipCache     bool
	skipTelemetry bool
	customLogger  *logger.Logger
	customConfig  *config.Config
}

func defaultOptions() *options {
	return &options{}
}

// WithoutDB skips database initialization
func WithoutDB() Option {
	return func(o *options) {
		o.skipDB = true
	}
}

// WithoutRedis skips Redis initialization
func WithoutRedis() Option {
	return func(o *options) {
		o.skipRedis = true
	}
}

// WithoutQueue skips queue initialization
func WithoutQueue() Option {
	return func(o *options) {
		o.skipQueue = true
	}
}

// WithoutCache skips cache initialization
func WithoutCache() Option {
	return func(o *options) {
		o.skipCache = true
	}
}

// WithoutTelemetry skips the pprof listener
func WithoutTelemetry() Option {
	return func(o *options) {
		o.skipTelemetry = true
	}
}

// WithLogger supplies a pre-built logger (tests)
func WithLogger(l *logger.Logger) Option {
	return func(o *options) {
		o.customLogger = l
	}
}

// WithConfig supplies a pre-built config (tests)
func WithConfig(c *config.Config) Option {
	return func(o *options) {
		o.customConfig = c
	}
}
