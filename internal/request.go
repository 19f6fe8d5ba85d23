package internal

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/net/http/httpguts"

	"github.com/frameloop/httpcore/status"
)

// Request describes a single logical HTTP exchange. Requests are created by
// a Transport, configured (URL, headers, content), then executed. The method
// is a free-form string so non-standard verbs pass through untouched.
//
// A Request is not safe for concurrent mutation; its shared lifecycle state
// is. Reusing a request requires Clear() first.
type Request struct {
	method     string
	url        string
	headers    HeaderMap
	opts       RequestOptions
	transport  *Transport
	credential Credential
	response   *Response

	getBody       func() (io.ReadCloser, error)
	contentLength int64
	hasContent    bool
	replayable    bool

	doExecute SendFunc
	busy      bool
}

func newRequest(method string, transport *Transport, send SendFunc) *Request {
	return &Request{
		method:    method,
		opts:      transport.DefaultRequestOptions(),
		transport: transport,
		response:  newResponse(transport.logger()),
		doExecute: send,
	}
}

func (r *Request) Method() string          { return r.method }
func (r *Request) SetMethod(method string) { r.method = method }
func (r *Request) URL() string             { return r.url }
func (r *Request) SetURL(u string)         { r.url = u }

// Options returns the mutable per-request options.
func (r *Request) Options() *RequestOptions { return &r.opts }

// Transport returns the transport that created this request.
func (r *Request) Transport() *Transport { return r.transport }

// Response returns the response owned by this request.
func (r *Request) Response() *Response { return r.response }

// State exposes the lifecycle state shared with the response.
func (r *Request) State() *RequestState { return r.response.State() }

// Credential returns the bound authorization credential, nil when none.
func (r *Request) Credential() Credential { return r.credential }

// SetCredential binds a credential. The request does not own it.
func (r *Request) SetCredential(c Credential) { r.credential = c }

// HasContent reports whether a content source is attached.
func (r *Request) HasContent() bool { return r.hasContent }

// ContentLength returns the known body length, -1 when unknown.
func (r *Request) ContentLength() int64 {
	if !r.hasContent {
		return -1
	}
	return r.contentLength
}

// Replayable reports whether the content source can produce a fresh reader
// more than once. One-shot io.ReadCloser bodies are not replayable.
func (r *Request) Replayable() bool { return r.replayable }

// ContentReader returns a fresh reader over the request body, or nil when
// the request carries no content. One-shot sources (io.ReadCloser) can only
// be obtained once.
func (r *Request) ContentReader() (io.ReadCloser, error) {
	if r.getBody == nil {
		return nil, nil
	}
	return r.getBody()
}

// SetContent attaches the request body. Buffer-backed sources snapshot their
// bytes so the body can be replayed on retries and redirects; a bare
// io.ReadCloser can be sent only once.
func (r *Request) SetContent(body interface{}) error {
	r.contentLength = -1
	r.replayable = true
	switch b := body.(type) {
	case nil:
		r.clearContent()
		return nil
	case io.ReadCloser:
		r.replayable = false
		var once atomic.Bool
		r.getBody = func() (io.ReadCloser, error) {
			if once.CompareAndSwap(false, true) {
				return b, nil
			}
			return nil, http.ErrBodyReadAfterClose
		}
	case *bytes.Buffer:
		buf := b.Bytes()
		r.contentLength = int64(len(buf))
		r.getBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(buf)), nil
		}
	case *bytes.Reader:
		snapshot := *b
		r.contentLength = int64(b.Len())
		r.getBody = func() (io.ReadCloser, error) {
			rd := snapshot
			return io.NopCloser(&rd), nil
		}
	case *strings.Reader:
		snapshot := *b
		r.contentLength = int64(b.Len())
		r.getBody = func() (io.ReadCloser, error) {
			rd := snapshot
			return io.NopCloser(&rd), nil
		}
	case string:
		r.contentLength = int64(len(b))
		r.getBody = func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(b)), nil
		}
	case []byte:
		r.contentLength = int64(len(b))
		r.getBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(b)), nil
		}
	default:
		return fmt.Errorf("unsupported content type: %T", body)
	}
	r.hasContent = true
	return nil
}

func (r *Request) clearContent() {
	r.getBody = nil
	r.contentLength = -1
	r.hasContent = false
	r.replayable = false
}

// AddHeader sets a request header, replacing any existing value for the
// name (case-insensitive). Invalid names or values are dropped with a log
// entry rather than corrupting the wire format.
func (r *Request) AddHeader(name, value string) {
	if !httpguts.ValidHeaderFieldName(name) ||
		!httpguts.ValidHeaderFieldValue(value) {
		r.transport.logger().Warn("dropping invalid header",
			zap.String("name", name))
		return
	}
	r.headers.Set(name, value)
}

// RemoveHeader deletes the named header if present.
func (r *Request) RemoveHeader(name string) { r.headers.Del(name) }

// FindHeaderValue returns the header value and whether it is present.
func (r *Request) FindHeaderValue(name string) (string, bool) {
	return r.headers.Get(name)
}

// Headers exposes the ordered request header collection.
func (r *Request) Headers() *HeaderMap { return &r.headers }

// setCallback registers the completion callback. At most one callback may
// ever be registered per execution; violating that is a caller bug.
func (r *Request) setCallback(callback Callback) {
	if r.State().HasNotifyCallback() {
		panic("httpcore: request already has a notify callback")
	}
	r.State().SetNotifyCallback(r, callback)
}

// WillNotExecute finalizes the request with err without attempting a send,
// used when a precondition fails before the transport is engaged. The
// request must be unsent.
func (r *Request) WillNotExecute(err error) {
	state := r.State()
	if code := state.Code(); code != Unsent {
		panic("httpcore: WillNotExecute on a request that is " + code.String())
	}
	state.SetTransportError(err)
	state.AutoTransitionAndNotifyIfDone()
}

// Execute performs the exchange synchronously: authorization, builtin
// headers, dispatch, and the retry loop driven by the transport's error
// handler. It always leaves the response in a well-defined terminal state
// and returns the overall status.
func (r *Request) Execute() error {
	if code := r.State().Code(); code != Queued && code != Unsent {
		panic("httpcore: must call Clear() before reusing a request")
	}
	p := newProcessor(r)
	p.executeSync()
	return p.finalStatus
}

// ExecuteAsync runs the same flow as Execute on the transport's executor and
// invokes callback exactly once when the request reaches a terminal state.
// With no executor configured the request fails immediately with an internal
// error (callback still fires).
func (r *Request) ExecuteAsync(callback Callback) {
	if code := r.State().Code(); code != Unsent {
		panic("httpcore: must call Clear() before reusing a request")
	}
	if callback != nil {
		r.setCallback(callback)
	}
	p := newProcessor(r)
	p.executeAsync()
}

// Clear aborts any waiter on the current state and resets the request to an
// empty, reusable condition.
func (r *Request) Clear() {
	state := r.State()
	state.SetTransportError(status.Abortedf("Cleared request"))
	state.AutoTransitionAndNotifyIfDone()
	if state.HasNotifyCallback() {
		panic("httpcore: notify callback survived Clear")
	}
	r.response.Clear()
	state.Reset()
	r.credential = nil
	r.url = ""
	r.clearContent()
	r.headers.Clear()
}

// PrepareToReuse resets the response and lifecycle so the same request
// object can be sent again, stripping headers that must not leak across
// attempts (Authorization and conditional-request headers).
func (r *Request) PrepareToReuse() error {
	state := r.State()
	if err := r.response.ClearBody(); err != nil {
		r.transport.logger().Error("could not clear response writer",
			zap.Error(err))
		return err
	}
	state.SetTransportError(nil)
	state.SetHTTPCode(0)
	if state.Done() {
		// The completion callback has already fired and detached, so a
		// full reset is safe and restores a fresh wait channel.
		state.Reset()
	} else {
		state.TransitionAndNotifyIfDone(Unsent)
	}
	r.response.ClearHeaders()

	for _, name := range []string{
		HeaderAuthorization, "If-None-Match", "If-Modified-Since",
	} {
		r.RemoveHeader(name)
	}
	return nil
}

// PrepareRedirect rewrites the request to follow the redirect recorded in
// its response. On 303 the method downgrades to GET and the body is dropped
// per HTTP semantics. The Location value is resolved against the current
// URL, so relative references work.
func (r *Request) PrepareRedirect(numRedirects int) error {
	if numRedirects >= r.opts.MaxRedirects {
		return status.OutOfRangef(fmt.Sprintf(
			"Exceeded max_redirects=%d", r.opts.MaxRedirects))
	}
	location, ok := r.response.FindHeaderValue(HeaderLocation)
	if !ok {
		return status.Unknownf(fmt.Sprintf(
			"Received HTTP %d redirect but not Location Header",
			r.response.HTTPCode()))
	}
	resolved, err := resolveURL(r.url, location)
	if err != nil {
		return status.Unknownf("Could not resolve redirect URL: " + err.Error())
	}
	r.transport.logger().Debug("redirecting", zap.String("url", resolved))

	if r.response.HTTPCode() == http.StatusSeeOther {
		// RFC 2616 10.3.4: the redirected request must be a GET.
		r.method = http.MethodGet
		if r.hasContent {
			r.RemoveHeader(HeaderContentType)
			r.RemoveHeader(HeaderContentLength)
			r.clearContent()
		}
	}

	if err := r.PrepareToReuse(); err != nil {
		return err
	}
	// Reauthorize only when the network location has not changed.
	if r.credential != nil && sameOrigin(r.url, resolved) {
		if err := r.credential.AuthorizeRequest(r); err != nil {
			return err
		}
	}
	r.url = resolved
	return nil
}

// addBuiltinHeaders injects User-Agent, Host and the content framing headers
// when the caller has not set them explicitly.
func (r *Request) addBuiltinHeaders() {
	if _, ok := r.FindHeaderValue(HeaderUserAgent); !ok {
		r.AddHeader(HeaderUserAgent, r.transport.UserAgent())
	}
	if _, ok := r.FindHeaderValue(HeaderHost); !ok {
		if u, err := url.Parse(r.url); err == nil && u.Host != "" {
			r.AddHeader(HeaderHost, u.Host)
		}
	}
	if r.hasContent {
		if r.contentLength >= 0 {
			if _, ok := r.FindHeaderValue(HeaderContentLength); !ok {
				r.AddHeader(HeaderContentLength,
					strconv.FormatInt(r.contentLength, 10))
			}
		} else if _, ok := r.FindHeaderValue(HeaderTransferEncoding); !ok {
			r.AddHeader(HeaderTransferEncoding, "chunked")
		}
	}
}

// retireTo moves this request's configuration, response and callback onto
// target, leaving this request empty. Used when converting a standalone
// request into a batch part.
func (r *Request) retireTo(target *Request) {
	if r.busy {
		panic("httpcore: cannot retire a request that is executing")
	}
	target.opts = r.opts
	target.credential = r.credential
	target.getBody, r.getBody = r.getBody, nil
	target.contentLength, target.hasContent = r.contentLength, r.hasContent
	target.replayable = r.replayable
	r.clearContent()
	target.headers, r.headers = r.headers, HeaderMap{}
	target.response, r.response = r.response, newResponse(r.transport.logger())
	target.url, r.url = r.url, ""
	target.State().rebind(target)
}

func resolveURL(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u, err := b.Parse(ref)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func sameOrigin(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	return errA == nil && errB == nil &&
		ua.Scheme == ub.Scheme && ua.Host == ub.Host
}

// processor drives the execute workflow for one request: prepare once, then
// attempt and consult the error handler until done or told to give up.
type processor struct {
	request      *Request
	state        *RequestState
	scribe       Scribe
	logger       *zap.Logger
	numRedirects int
	numRetries   int
	retry        bool
	finalStatus  error
}

func newProcessor(r *Request) *processor {
	return &processor{
		request: r,
		state:   r.State(),
		scribe:  r.transport.Scribe(),
		logger:  r.transport.logger(),
	}
}

func (p *processor) executeSync() {
	p.prepare()
	for p.retry {
		p.attempt()
	}
	p.cleanup()
}

func (p *processor) executeAsync() {
	p.prepare()
	p.queueAsync()
}

// queueAsync posts the retry loop onto the transport's executor. The
// executor boundary is the only asynchrony point; the loop inside the work
// unit is identical to the synchronous path.
func (p *processor) queueAsync() {
	if !p.retry {
		// Preparation already failed; finalize without queuing.
		p.cleanup()
		return
	}
	executor := p.request.transport.Options().Executor
	var err error
	if executor == nil {
		err = status.Internalf("No default executor configured")
	} else {
		p.state.TransitionAndNotifyIfDone(Queued)
		if !executor.TryAdd(func() {
			for p.retry {
				p.attempt()
			}
			p.cleanup()
		}) {
			err = status.Internalf("Executor queue is full")
		}
	}
	if err != nil {
		p.state.SetTransportError(err)
		p.retry = false
		p.cleanup()
	}
}

// prepare authorizes the request and injects builtin headers. It runs once;
// retries do not repeat it.
func (p *processor) prepare() {
	if cred := p.request.credential; cred != nil {
		if err := cred.AuthorizeRequest(p.request); err != nil {
			p.logger.Error("failed authorizing request",
				zap.String("url", p.request.url), zap.Error(err))
			p.state.SetTransportError(err)
			p.retry = false
			return
		}
	}
	p.retry = true
	p.request.busy = true
	p.request.addBuiltinHeaders()
}

func (p *processor) attempt() {
	p.state.TransitionAndNotifyIfDone(Pending)
	if p.scribe != nil {
		p.scribe.AboutToSendRequest(p.request)
	}
	p.logger.Debug("dispatching",
		zap.String("transport", p.request.transport.ID()),
		zap.String("method", p.request.method),
		zap.String("url", p.request.url))
	p.request.doExecute(p.request, p.request.response)
	p.postExecute()
}

func (p *processor) postExecute() {
	p.processResponse()
	if p.request.response.OK() {
		p.retry = false
	} else {
		p.handleError()
	}
	if p.retry {
		p.logger.Debug("retrying",
			zap.Int("http_code", p.request.response.HTTPCode()))
	}
}

// processResponse builds the readable body view and notifies the scribe.
func (p *processor) processResponse() {
	response := p.request.response
	response.finalizeBody()
	if p.scribe != nil {
		if response.HTTPCode() != 0 {
			p.scribe.ReceivedResponseForRequest(p.request)
		} else {
			p.scribe.RequestFailedWithTransportError(
				p.request, response.TransportError())
		}
	}
}

// handleError routes the failure to the right error handler decision:
// redirect, transport error, or HTTP error. A true result loops again.
func (p *processor) handleError() {
	handler := p.request.transport.Options().ErrorHandler
	if handler == nil {
		p.retry = false
		return
	}
	response := p.request.response
	switch {
	case isRedirectCode(response.HTTPCode()):
		p.retry = handler.HandleRedirect(p.numRedirects, p.request)
		if p.retry {
			p.numRedirects++
		}
	case response.TransportError() != nil:
		p.retry = handler.HandleTransportError(p.numRetries, p.request)
		if p.retry {
			p.numRetries++
		}
	default:
		p.retry = handler.HandleHTTPError(p.numRetries, p.request)
		p.numRetries++
	}
}

// cleanup finalizes the lifecycle exactly once per execution.
func (p *processor) cleanup() {
	p.request.busy = false
	p.finalStatus = p.state.AutoTransitionAndNotifyIfDone()
}

// isRedirectCode reports whether the code is a standard redirect
// (300..307 except 304).
func isRedirectCode(httpCode int) bool {
	return httpCode >= 300 && httpCode <= 307 && httpCode != 304
}
