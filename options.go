package memcli

import (
	"time"

	"go.uber.org/zap"
)

const (
	defaultDialTimeout  = 5 * time.Second
	defaultReadTimeout  = 200 * time.Millisecond
	defaultWriteTimeout = 5 * time.Second
)

type ClientOption func(*clientOptions)

type clientOptions struct {
	// dialTimeout is the timeout for dialing a connection to the memcached server
	// instance. Default is 5 seconds.
	dialTimeout time.Duration

	// readTimeout is the idle timeout of every read from the connection. The
	// reply is framed by the protocol, so the timeout only ends a read that
	// would otherwise wait forever. Default is 200 milliseconds.
	readTimeout time.Duration

	// writeTimeout is the timeout for writing to the connection.
	// Default is 5 seconds.
	writeTimeout time.Duration

	logger *zap.Logger
}

func newClientOptions() *clientOptions {
	return &clientOptions{
		dialTimeout:  defaultDialTimeout,
		readTimeout:  defaultReadTimeout,
		writeTimeout: defaultWriteTimeout,
		logger:       zap.NewNop(),
	}
}

// WithDialTimeout sets the dial timeout for the client.
// Default is 5 seconds.
func WithDialTimeout(timeout time.Duration) ClientOption {
	return func(o *clientOptions) {
		if timeout <= 0 {
			timeout = defaultDialTimeout
		}

		o.dialTimeout = timeout
	}
}

// WithReadTimeout sets the read idle timeout for the client.
// Default is 200 milliseconds.
func WithReadTimeout(timeout time.Duration) ClientOption {
	return func(o *clientOptions) {
		if timeout <= 0 {
			timeout = defaultReadTimeout
		}

		o.readTimeout = timeout
	}
}

func WithWriteTimeout(timeout time.Duration) ClientOption {
	return func(o *clientOptions) {
		if timeout <= 0 {
			timeout = defaultWriteTimeout
		}

		o.writeTimeout = timeout
	}
}

// WithLogger sets the logger the client reports request and reply traffic to.
// A nil logger keeps the default no-op logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(o *clientOptions) {
		if logger == nil {
			return
		}

		o.logger = logger
	}
}
