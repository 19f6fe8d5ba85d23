package internal

import (
	"net/url"
	"sync"

	"github.com/sony/gobreaker"
)

// BreakerErrorHandler wraps another ErrorHandler and gates transport-error
// retries through a per-host circuit breaker: once a host has failed often
// enough to trip its breaker, further transport errors to it are not
// retried until the breaker half-opens. HTTP errors and redirects pass
// through to the wrapped handler untouched.
type BreakerErrorHandler struct {
	ErrorHandler

	settings gobreaker.Settings

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerErrorHandler wraps inner with per-host circuit breaking.
// settings.Name is used as a prefix for the per-host breaker names.
func NewBreakerErrorHandler(
	inner ErrorHandler, settings gobreaker.Settings) *BreakerErrorHandler {
	return &BreakerErrorHandler{
		ErrorHandler: inner,
		settings:     settings,
		breakers:     map[string]*gobreaker.CircuitBreaker{},
	}
}

func (b *BreakerErrorHandler) breakerFor(host string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.breakers[host]
	if !ok {
		settings := b.settings
		settings.Name = settings.Name + host
		cb = gobreaker.NewCircuitBreaker(settings)
		b.breakers[host] = cb
	}
	return cb
}

func requestHost(request *Request) string {
	if u, err := url.Parse(request.URL()); err == nil {
		return u.Host
	}
	return request.URL()
}

func (b *BreakerErrorHandler) HandleTransportError(
	numRetries int, request *Request) bool {
	cb := b.breakerFor(requestHost(request))
	// Record the failure; an open breaker vetoes the retry outright.
	_, err := cb.Execute(func() (interface{}, error) {
		return nil, request.State().TransportError()
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return false
	}
	return b.ErrorHandler.HandleTransportError(numRetries, request)
}

func (b *BreakerErrorHandler) HandleTransportErrorAsync(
	numRetries int, request *Request, done func(bool)) {
	done(b.HandleTransportError(numRetries, request))
}
