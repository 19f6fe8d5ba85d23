package internal

import (
	"net/http"

	"go.uber.org/zap"
)

// ErrorHandler decides whether a failed attempt should be retried and
// performs any request mutation the retry needs (e.g. rewriting the URL for
// a redirect). It is consulted by the execution engine after each physical
// attempt that did not produce a 2xx/304, with three distinct entry points
// for the three distinct failure kinds.
//
// The async variants have identical semantics but deliver the decision via
// callback, supporting non-blocking credential refresh.
type ErrorHandler interface {
	HandleTransportError(numRetries int, request *Request) bool
	HandleHTTPError(numRetries int, request *Request) bool
	HandleRedirect(numRedirects int, request *Request) bool

	HandleTransportErrorAsync(numRetries int, request *Request, done func(bool))
	HandleHTTPErrorAsync(numRetries int, request *Request, done func(bool))
	HandleRedirectAsync(numRedirects int, request *Request, done func(bool))
}

// HTTPCodeHandler overrides retry behavior for one specific HTTP code.
type HTTPCodeHandler func(numRetriesSoFar int, request *Request) bool

// DefaultErrorHandler implements the standard policy:
//
//   - transport errors are not retried
//   - HTTP 401 is retried once via credential refresh
//   - redirects (except 300) are followed up to the request's MaxRedirects
//
// Other HTTP codes, including 503, have no default retry behavior; that is a
// deliberate simplification. Callers wanting richer behavior register a
// per-code handler, which supersedes all of the above for its code.
//
// Register handlers before sharing the instance across goroutines.
type DefaultErrorHandler struct {
	codeHandlers map[int]HTTPCodeHandler
	logger       *zap.Logger
}

func NewDefaultErrorHandler() *DefaultErrorHandler {
	return &DefaultErrorHandler{
		codeHandlers: map[int]HTTPCodeHandler{},
		logger:       zap.NewNop(),
	}
}

// SetLogger replaces the handler's diagnostic logger.
func (h *DefaultErrorHandler) SetLogger(logger *zap.Logger) {
	if logger != nil {
		h.logger = logger
	}
}

// log tolerates the zero-value handler, which has no logger bound.
func (h *DefaultErrorHandler) log() *zap.Logger {
	if h.logger == nil {
		return zap.NewNop()
	}
	return h.logger
}

// RegisterHTTPCodeHandler binds fn to an HTTP code, superseding the default
// behavior for that code. At most one handler per code; nil removes the
// override.
func (h *DefaultErrorHandler) RegisterHTTPCodeHandler(code int, fn HTTPCodeHandler) {
	if fn == nil {
		delete(h.codeHandlers, code)
		return
	}
	if h.codeHandlers == nil {
		h.codeHandlers = map[int]HTTPCodeHandler{}
	}
	h.codeHandlers[code] = fn
}

func (h *DefaultErrorHandler) HandleTransportError(int, *Request) bool {
	return false
}

func (h *DefaultErrorHandler) HandleHTTPError(numRetries int, request *Request) bool {
	httpCode := request.Response().HTTPCode()
	if fn, ok := h.codeHandlers[httpCode]; ok {
		h.log().Debug("using overridden error handler",
			zap.Int("http_code", httpCode))
		return fn(numRetries, request)
	}
	if httpCode != http.StatusUnauthorized {
		h.log().Debug("no configured error handler",
			zap.Int("http_code", httpCode))
		return false
	}
	if numRetries > 0 {
		// Only try unauthorized once.
		h.log().Debug("already retried a 401")
		return false
	}
	credential := request.Credential()
	if credential == nil {
		h.log().Debug("no credential provided where one was expected")
		return false
	}
	if err := credential.Refresh(); err != nil {
		h.log().Error("failed refreshing credential", zap.Error(err))
		return false
	}
	return h.reauthorize(request)
}

// reauthorize resets the request for reuse and authorizes it with the
// freshly refreshed credential.
func (h *DefaultErrorHandler) reauthorize(request *Request) bool {
	if err := request.PrepareToReuse(); err != nil {
		return false
	}
	if err := request.Credential().AuthorizeRequest(request); err != nil {
		h.log().Error("failed reauthorizing request", zap.Error(err))
		return false
	}
	return true
}

func (h *DefaultErrorHandler) HandleRedirect(numRedirects int, request *Request) bool {
	httpCode := request.Response().HTTPCode()
	if fn, ok := h.codeHandlers[httpCode]; ok {
		h.log().Debug("using overridden redirect handler",
			zap.Int("http_code", httpCode))
		return fn(numRedirects, request)
	}
	if !isRedirectCode(httpCode) || httpCode == http.StatusMultipleChoices {
		return false
	}
	if err := request.PrepareRedirect(numRedirects); err != nil {
		request.State().SetTransportError(err)
		return false
	}
	return true
}

func (h *DefaultErrorHandler) HandleTransportErrorAsync(
	numRetries int, request *Request, done func(bool)) {
	done(h.HandleTransportError(numRetries, request))
}

func (h *DefaultErrorHandler) HandleHTTPErrorAsync(
	numRetries int, request *Request, done func(bool)) {
	httpCode := request.Response().HTTPCode()
	_, overridden := h.codeHandlers[httpCode]
	credential := request.Credential()
	if overridden || httpCode != http.StatusUnauthorized ||
		numRetries > 0 || credential == nil {
		done(h.HandleHTTPError(numRetries, request))
		return
	}
	credential.RefreshAsync(func(err error) {
		if err != nil {
			h.log().Error("failed refreshing credential", zap.Error(err))
			done(false)
			return
		}
		done(h.reauthorize(request))
	})
}

func (h *DefaultErrorHandler) HandleRedirectAsync(
	numRedirects int, request *Request, done func(bool)) {
	done(h.HandleRedirect(numRedirects, request))
}
