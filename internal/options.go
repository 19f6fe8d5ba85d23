package internal

import (
	"time"

	"go.uber.org/zap"
)

// RequestOptions control the behavior of a single request.
type RequestOptions struct {
	// Timeout bounds the whole physical exchange. 0 means no timeout.
	// Enforcement is a transport responsibility; the engine only maps the
	// resulting deadline error onto the TIMED_OUT state.
	Timeout time.Duration

	// MaxRetries bounds retry attempts made by error handlers that choose
	// to consult it. Redirects are counted separately.
	MaxRetries int

	// MaxRedirects bounds how many redirects a request will follow.
	MaxRedirects int

	// Priority orders queued requests; lower values run sooner.
	Priority uint
}

// DefaultRequestOptions returns the options new requests start with.
func DefaultRequestOptions() RequestOptions {
	return RequestOptions{
		Timeout:      10 * time.Second,
		MaxRetries:   1,
		MaxRedirects: 5,
	}
}

// TransportOptions configure a Transport instance and every request it
// creates.
type TransportOptions struct {
	// UserAgent is injected into requests lacking one.
	UserAgent string

	// ConnectTimeout bounds connection establishment in concrete
	// transports. 0 leaves it to the transport.
	ConnectTimeout time.Duration

	// Executor runs asynchronous requests. ExecuteAsync fails with an
	// internal error when nil.
	Executor Executor

	// ErrorHandler decides retry/redirect behavior. No retries happen
	// when nil.
	ErrorHandler ErrorHandler

	// Logger receives lifecycle diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger
}

func (o *TransportOptions) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// DefaultTransportOptions returns transport options with the standard user
// agent and no executor or error handler bound.
func DefaultTransportOptions() TransportOptions {
	return TransportOptions{UserAgent: DefaultUserAgent}
}
