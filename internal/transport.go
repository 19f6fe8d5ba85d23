package internal

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/frameloop/httpcore/status"
)

// Version of the transport layer, reported in the default user agent.
const Version = "0.9.0"

// DefaultUserAgent identifies this library on the wire.
const DefaultUserAgent = "frameloop-httpcore/" + Version

// Credential is the seam into the authorization layer. Implementations
// typically add an Authorization header to the request.
type Credential interface {
	// AuthorizeRequest mutates the request before it is sent.
	AuthorizeRequest(r *Request) error

	// Refresh renews the credential, e.g. after a 401.
	Refresh() error

	// RefreshAsync renews the credential without blocking and delivers
	// the outcome on done.
	RefreshAsync(done func(error))
}

// SendFunc performs the physical exchange for a request. Implementations
// must either set the HTTP code on the response state (when a response start
// line was received) or record a transport error, never leave both unset.
type SendFunc func(req *Request, resp *Response)

// Transport is the factory and executor seam through which requests reach
// the network. A single Transport is safe for concurrent use by many
// requests; concrete implementations supply the send hook and own any
// per-exchange resource pooling.
type Transport struct {
	id       string
	opts     TransportOptions
	reqOpts  RequestOptions
	scribe   Scribe
	send     SendFunc
	shutdown atomic.Bool
}

// NewTransport builds a transport around a physical send hook.
func NewTransport(opts TransportOptions, send SendFunc) *Transport {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	return &Transport{
		id:      "Unidentified",
		opts:    opts,
		reqOpts: DefaultRequestOptions(),
		send:    send,
	}
}

// NewRequest creates a request bound to this transport, or nil if the
// transport has been shut down.
func (t *Transport) NewRequest(method string) *Request {
	if t.shutdown.Load() {
		return nil
	}
	return newRequest(method, t, t.send)
}

// Shutdown stops the transport from issuing new requests. In-flight
// requests are unaffected.
func (t *Transport) Shutdown() { t.shutdown.Store(true) }

func (t *Transport) ID() string      { return t.id }
func (t *Transport) SetID(id string) { t.id = id }

// UserAgent returns the value injected into requests lacking one.
func (t *Transport) UserAgent() string { return t.opts.UserAgent }

// Options exposes the transport-wide options.
func (t *Transport) Options() *TransportOptions { return &t.opts }

// DefaultRequestOptions returns the options copied onto new requests.
func (t *Transport) DefaultRequestOptions() RequestOptions { return t.reqOpts }

// SetDefaultRequestOptions replaces the options copied onto new requests.
func (t *Transport) SetDefaultRequestOptions(opts RequestOptions) {
	t.reqOpts = opts
}

// Scribe returns the bound diagnostic observer, nil when none.
func (t *Transport) Scribe() Scribe { return t.scribe }

// SetScribe binds a diagnostic observer. The transport does not own it.
func (t *Transport) SetScribe(s Scribe) { t.scribe = s }

func (t *Transport) logger() *zap.Logger { return t.opts.logger() }

// TransportFactory instantiates transports for a given configuration.
type TransportFactory interface {
	// ID names the kind of transport produced.
	ID() string

	// NewTransport builds a transport using the supplied options.
	NewTransport(opts TransportOptions) *Transport
}

// LayerConfig holds process-wide defaults for the transport layer: the
// factory, error handler and executor that transports inherit unless
// overridden.
type LayerConfig struct {
	mu           sync.Mutex
	factory      TransportFactory
	opts         TransportOptions
	errorHandler ErrorHandler
}

// NewLayerConfig returns a configuration with the default error handler
// installed and no factory or executor.
func NewLayerConfig() *LayerConfig {
	c := &LayerConfig{}
	c.SetDefaultErrorHandler(NewDefaultErrorHandler())
	return c
}

// SetDefaultErrorHandler replaces the error handler new transports inherit.
func (c *LayerConfig) SetDefaultErrorHandler(h ErrorHandler) {
	c.mu.Lock()
	c.errorHandler = h
	c.opts.ErrorHandler = h
	c.mu.Unlock()
}

// SetDefaultExecutor replaces the executor new transports inherit.
func (c *LayerConfig) SetDefaultExecutor(e Executor) {
	c.mu.Lock()
	c.opts.Executor = e
	c.mu.Unlock()
}

// SetDefaultTransportFactory installs the factory used by
// NewDefaultTransport.
func (c *LayerConfig) SetDefaultTransportFactory(f TransportFactory) {
	c.mu.Lock()
	c.factory = f
	c.mu.Unlock()
}

// DefaultOptions returns a copy of the options new transports inherit.
func (c *LayerConfig) DefaultOptions() TransportOptions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}

// NewDefaultTransport instantiates a transport from the default factory.
func (c *LayerConfig) NewDefaultTransport() (*Transport, error) {
	c.mu.Lock()
	factory := c.factory
	opts := c.opts
	c.mu.Unlock()
	if factory == nil {
		return nil, status.Internalf(
			"SetDefaultTransportFactory has not been called")
	}
	return factory.NewTransport(opts), nil
}
