package internal

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// BodyWriter is the byte sink a response body accumulates into during
// execution. A fresh readable view over the accumulated bytes is produced
// once the exchange finishes.
type BodyWriter interface {
	io.Writer

	// Clear discards everything written so far, e.g. before a retry.
	Clear() error

	// NewReader returns a reader over the accumulated bytes.
	NewReader() io.Reader
}

// memoryBody is the default in-memory BodyWriter.
type memoryBody struct {
	buf bytes.Buffer
}

func (b *memoryBody) Write(p []byte) (int, error) { return b.buf.Write(p) }

func (b *memoryBody) Clear() error {
	b.buf.Reset()
	return nil
}

func (b *memoryBody) NewReader() io.Reader {
	return bytes.NewReader(b.buf.Bytes())
}

// Response owns the request state and collects the wire response. Response
// headers may repeat, unlike request headers.
type Response struct {
	state   *RequestState
	writer  BodyWriter
	reader  io.Reader
	headers http.Header
}

func newResponse(logger *zap.Logger) *Response {
	return &Response{
		state:   newRequestState(logger),
		writer:  &memoryBody{},
		headers: http.Header{},
	}
}

// State exposes the shared request lifecycle state.
func (r *Response) State() *RequestState { return r.state }

// HTTPCode returns the parsed HTTP status code, 0 until a response start
// line was received.
func (r *Response) HTTPCode() int { return r.state.HTTPCode() }

// TransportError reports whether bytes could be exchanged at all.
func (r *Response) TransportError() error { return r.state.TransportError() }

// Done reports whether the exchange has finished.
func (r *Response) Done() bool { return r.state.Done() }

// OK reports whether the exchange has not failed so far. While the request
// is pending only codes below 300 (or 304) count as ok; once completed the
// response is ok iff the code is 2xx or 304.
func (r *Response) OK() bool { return r.state.OK() }

// Status returns the overall status of the exchange.
func (r *Response) Status() error { return r.state.Status() }

// WaitUntilDone blocks until the exchange finishes or timeout elapses.
// A timeout <= 0 waits forever.
func (r *Response) WaitUntilDone(timeout time.Duration) bool {
	return r.state.WaitUntilDone(timeout)
}

// BodyWriter returns the sink the transport writes the wire body into.
func (r *Response) BodyWriter() BodyWriter { return r.writer }

// SetBodyWriter replaces the body sink, e.g. to stream to disk.
func (r *Response) SetBodyWriter(w BodyWriter) { r.writer = w }

// BodyReader returns the readable view over the response body. It is nil
// until the exchange completes.
func (r *Response) BodyReader() io.Reader { return r.reader }

// finalizeBody builds the readable view over the accumulated body.
func (r *Response) finalizeBody() { r.reader = r.writer.NewReader() }

// GetBodyString reads the whole response body. The view is rebuilt
// afterwards to be friendly to subsequent reads.
func (r *Response) GetBodyString() (string, error) {
	if r.reader == nil {
		return "", nil
	}
	data, err := io.ReadAll(r.reader)
	r.finalizeBody()
	return string(data), err
}

// AddHeader records a response header. Repeats are allowed.
func (r *Response) AddHeader(name, value string) { r.headers.Add(name, value) }

// FindHeaderValue returns the first value of the named header.
func (r *Response) FindHeaderValue(name string) (string, bool) {
	values := r.headers.Values(name)
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// Headers exposes the multi-valued response header collection.
func (r *Response) Headers() http.Header { return r.headers }

// ClearHeaders drops all response headers.
func (r *Response) ClearHeaders() {
	for k := range r.headers {
		delete(r.headers, k)
	}
}

// ClearBody discards the accumulated body and its readable view.
func (r *Response) ClearBody() error {
	r.reader = nil
	return r.writer.Clear()
}

// Clear resets the response for reuse: body, view and headers.
func (r *Response) Clear() error {
	r.ClearHeaders()
	return r.ClearBody()
}
