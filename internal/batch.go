package internal

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dchest/uniuri"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/frameloop/httpcore/status"
)

// DefaultBatchURL is where batches go unless the caller says otherwise.
const DefaultBatchURL = "https://www.googleapis.com/batch"

// RequestBatch merges many logical requests into a single physical
// multipart/mixed POST and demultiplexes the server's multipart response
// back into the individual responses. Parts are correlated through opaque
// generated Content-ID tokens held in an id table, so the correlation never
// depends on object identity.
//
// Each logical request runs through the same lifecycle state machine as a
// standalone request once its part resolves, so per-request callbacks still
// fire exactly once.
type RequestBatch struct {
	transport   *Transport
	httpRequest *Request
	boundary    string
	requests    []*Request
	partIDs     map[*Request]string
	processing  error
	logger      *zap.Logger
}

// NewRequestBatch creates a batch posting to the default batch endpoint.
func NewRequestBatch(transport *Transport) *RequestBatch {
	return NewRequestBatchWithURL(transport, DefaultBatchURL)
}

// NewRequestBatchWithURL creates a batch posting to batchURL.
func NewRequestBatchWithURL(transport *Transport, batchURL string) *RequestBatch {
	aggregate := transport.NewRequest("POST")
	if aggregate == nil {
		// The transport was shut down. Keep the batch usable so that
		// executing it aborts every part instead of panicking here.
		aggregate = newRequest("POST", transport,
			func(_ *Request, resp *Response) {
				resp.State().SetTransportError(
					status.Abortedf("Transport is shut down"))
			})
	}
	aggregate.SetURL(batchURL)
	return &RequestBatch{
		transport:   transport,
		httpRequest: aggregate,
		boundary:    uniuri.New(),
		partIDs:     map[*Request]string{},
		logger:      transport.logger(),
	}
}

// NewRequest creates a logical request inside this batch. The returned
// request is a specification for the multipart encoding; attempting to
// execute it directly fails with an internal error.
func (b *RequestBatch) NewRequest(method string, callback Callback) *Request {
	request := newRequest(method, b.transport, func(req *Request, _ *Response) {
		req.State().SetTransportError(status.Internalf(
			"Elements in batch requests should not be executed individually"))
	})
	if callback != nil {
		request.setCallback(callback)
	}
	b.requests = append(b.requests, request)
	b.partIDs[request] = uuid.NewString()
	return request
}

// AddFromGenericRequest retires a standalone request into this batch,
// moving its configuration, response and callback onto a new logical part.
// The original request must not be reused afterwards.
func (b *RequestBatch) AddFromGenericRequest(
	original *Request, callback Callback) *Request {
	part := b.NewRequest(original.Method(), nil)
	original.retireTo(part)
	if callback != nil {
		part.setCallback(callback)
	}
	return part
}

// RemoveRequest takes a logical request out of the batch, finalizing it as
// aborted so any callback and waiters are released.
func (b *RequestBatch) RemoveRequest(request *Request) error {
	for i, candidate := range b.requests {
		if candidate == request {
			request.WillNotExecute(status.Abortedf("Removing from batch"))
			b.requests = append(b.requests[:i], b.requests[i+1:]...)
			delete(b.partIDs, request)
			return nil
		}
	}
	return status.InvalidArgumentf("Request not in batch")
}

// Requests returns the logical requests in insertion order.
func (b *RequestBatch) Requests() []*Request { return b.requests }

// HTTPRequest exposes the physical aggregate request.
func (b *RequestBatch) HTTPRequest() *Request { return b.httpRequest }

// ProcessingStatus reports whether the server's response could be
// demultiplexed. It is distinct from, and does not override, the physical
// HTTP status of the aggregate request.
func (b *RequestBatch) ProcessingStatus() error { return b.processing }

// Clear aborts and drops every logical request so the batch can be refilled.
func (b *RequestBatch) Clear() {
	for _, request := range b.requests {
		request.Clear()
	}
	b.requests = nil
	b.partIDs = map[*Request]string{}
}

// Execute synchronously sends the batch and demultiplexes the response.
// The returned error is the batch processing status.
func (b *RequestBatch) Execute() error {
	b.prepareFinalHTTPRequest()
	if scribe := b.transport.Scribe(); scribe != nil {
		scribe.AboutToSendBatch(b)
	}
	b.httpRequest.Execute()
	b.processHTTPResponse(nil)
	return b.processing
}

// ExecuteAsync sends the batch on the transport's executor. The callback is
// invoked with the physical aggregate request after all logical requests
// have been finalized.
func (b *RequestBatch) ExecuteAsync(callback Callback) {
	b.prepareFinalHTTPRequest()
	if scribe := b.transport.Scribe(); scribe != nil {
		scribe.AboutToSendBatch(b)
	}
	b.httpRequest.ExecuteAsync(func(*Request) {
		b.processHTTPResponse(callback)
	})
}

// prepareFinalHTTPRequest encodes the logical requests into the physical
// multipart body. Batch bypasses the per-part Execute flow, so each part
// with a credential is authorized here; a part that fails authorization is
// excluded from the payload and carries its failure in its own state.
func (b *RequestBatch) prepareFinalHTTPRequest() {
	var body bytes.Buffer
	for _, part := range b.requests {
		if credential := part.Credential(); credential != nil {
			if err := credential.AuthorizeRequest(part); err != nil {
				b.logger.Error("failed to authorize batched request",
					zap.Error(err))
				// Don't send this part; responses are reconciled
				// through Content-ID, not cardinality.
				part.State().SetTransportError(err)
				continue
			}
		}
		fmt.Fprintf(&body, "--%s%s", b.boundary, CRLF)
		body.WriteString("Content-Type: application/http" + CRLF)
		body.WriteString("Content-Transfer-Encoding: binary" + CRLF)
		fmt.Fprintf(&body, "Content-ID: <%s>%s", b.partIDs[part], CRLFCRLF)
		if err := WriteRequest(part, &body); err != nil {
			b.logger.Error("failed to encode batched request",
				zap.Error(err))
			part.State().SetTransportError(
				status.Internalf("Could not encode batch part: "+err.Error()))
		}
	}
	fmt.Fprintf(&body, "--%s--%s", b.boundary, CRLF)

	b.httpRequest.AddHeader(HeaderContentType,
		fmt.Sprintf("multipart/mixed; boundary=%q", b.boundary))
	b.httpRequest.SetContent(body.Bytes())
}

// processHTTPResponse demultiplexes the aggregate response, notifies the
// scribe and finally the caller's callback.
func (b *RequestBatch) processHTTPResponse(callback Callback) {
	defer func() {
		if scribe := b.transport.Scribe(); scribe != nil {
			response := b.httpRequest.Response()
			if response.HTTPCode() != 0 {
				scribe.ReceivedBatchResponse(b)
			} else {
				scribe.BatchFailedWithTransportError(
					b, response.TransportError())
			}
		}
		if callback != nil {
			callback(b.httpRequest)
		}
	}()

	response := b.httpRequest.Response()
	if err := response.TransportError(); err != nil {
		// The physical exchange itself failed; no parts are expected.
		b.processing = err
		b.logger.Error("could not send batch request", zap.Error(err))
		b.failRemainingParts(err)
		return
	}

	contentType, _ := response.FindHeaderValue(HeaderContentType)
	boundary, ok := boundaryParam(contentType)
	if !ok {
		b.processing = status.Unknownf(
			"Expected multipart content type: " + contentType)
		b.failRemainingParts(b.processing)
		return
	}
	body, err := response.GetBodyString()
	if err != nil {
		b.processing = status.Unknownf(
			"Could not read batch response: " + err.Error())
		b.failRemainingParts(b.processing)
		return
	}
	b.processing = b.resolveResponses(boundary, body)
	if b.processing != nil {
		b.logger.Error("responses from server were not as expected",
			zap.Error(b.processing))
	}
}

// failRemainingParts finalizes every part that has not already reached a
// terminal state, keeping a part's own earlier error when it has one.
func (b *RequestBatch) failRemainingParts(err error) {
	for _, part := range b.requests {
		state := part.State()
		if state.Done() {
			continue
		}
		if state.TransportError() == nil {
			state.SetTransportError(err)
		}
		state.AutoTransitionAndNotifyIfDone()
	}
}

func boundaryParam(contentType string) (string, bool) {
	const marker = "boundary="
	pos := strings.Index(contentType, marker)
	if pos < 0 {
		return "", false
	}
	boundary := contentType[pos+len(marker):]
	if n := strings.IndexByte(boundary, ';'); n >= 0 {
		boundary = boundary[:n]
	}
	boundary = strings.TrimSpace(boundary)
	boundary = strings.Trim(boundary, `"`)
	return boundary, boundary != ""
}

// resolveResponses splits the multipart body and correlates each part back
// to its logical request through the Content-ID token. Requests left
// unresolved are finalized with an error. The returned error is the first
// problem encountered, or nil when everything reconciled.
func (b *RequestBatch) resolveResponses(boundary, whole string) error {
	marker := CRLF + "--" + boundary + CRLF
	lastMarker := CRLF + "--" + boundary + "--" + CRLF

	var firstErr error
	record := func(err error) {
		b.logger.Debug("batch reconciliation problem", zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}

	var transportErr error
	if !strings.HasPrefix(whole, marker[len(CRLF):]) {
		transportErr = status.Unknownf(
			"Response does not begin with boundary marker")
		record(transportErr)
	}

	// Collect the parts we expect to be in this response: those that were
	// actually sent. Anything that already failed (authorization, or the
	// malformed body above) is finalized now.
	expected := map[string]*Request{}
	for _, part := range b.requests {
		state := part.State()
		if transportErr != nil && state.TransportError() == nil {
			state.SetTransportError(transportErr)
		}
		if state.TransportError() != nil {
			state.AutoTransitionAndNotifyIfDone()
			continue
		}
		expected[b.partIDs[part]] = part
	}

	offset := len(marker) - len(CRLF)
	for processingLast := false; transportErr == nil && !processingLast; {
		block, next, last := nextMultipartBlock(whole, offset, marker, lastMarker)
		if next < 0 {
			record(status.Unknownf(
				"Missing closing multipart boundary marker."))
			break
		}
		offset, processingLast = next, last

		part, payload, err := extractPartResponse(block, expected)
		if err != nil {
			record(err)
			continue
		}
		if err := ReadResponse(strings.NewReader(payload), part.Response()); err != nil {
			part.State().SetTransportError(status.Unknownf(
				"Malformed batch part response: " + err.Error()))
		}
		part.Response().finalizeBody()
		part.State().AutoTransitionAndNotifyIfDone()
	}

	if len(expected) > 0 {
		missing := status.Unknownf(
			"Never received response for batched request")
		for _, part := range expected {
			state := part.State()
			state.SetTransportError(missing)
			state.AutoTransitionAndNotifyIfDone()
		}
		// Keep the earlier error since it might be the cause.
		record(missing)
	}
	return firstErr
}

// nextMultipartBlock returns the block starting at offset, the offset just
// past its trailing boundary marker (-1 when no marker follows), and whether
// that marker was the closing one.
func nextMultipartBlock(
	whole string, offset int, marker, lastMarker string) (string, int, bool) {
	end := strings.Index(whole[offset:], marker)
	if end >= 0 {
		end += offset
		return whole[offset:end], end + len(marker), false
	}
	end = strings.Index(whole[offset:], lastMarker)
	if end < 0 {
		return "", -1, true
	}
	end += offset
	return whole[offset:end], end + len(lastMarker), true
}

// extractPartResponse validates one multipart block and resolves it to the
// logical request it answers, removing that request from expected so each
// id resolves at most once. The returned payload is the raw HTTP response
// message inside the part.
func extractPartResponse(
	block string, expected map[string]*Request) (*Request, string, error) {
	sep := strings.Index(block, CRLFCRLF)
	if sep < 0 {
		return nil, "", status.Unknownf(
			"Missing response part separator for batched message.")
	}
	metadata := strings.ToLower(block[:sep+len(CRLF)])
	payload := block[sep+len(CRLFCRLF):]

	if !strings.Contains(metadata, "content-type: application/http\r\n") {
		return nil, "", status.Unknownf(
			"Missing or wrong batch part content-type")
	}
	const idPrefix = "content-id: <response-"
	idOffset := strings.Index(metadata, idPrefix)
	if idOffset < 0 {
		return nil, "", status.Unknownf("Missing batch part content-id")
	}
	idEnd := strings.IndexByte(metadata[idOffset+len(idPrefix):], '>')
	if idEnd < 0 {
		return nil, "", status.Unknownf(
			"content-id batch part was not as expected")
	}
	id := metadata[idOffset+len(idPrefix) : idOffset+len(idPrefix)+idEnd]
	part, ok := expected[id]
	if !ok {
		return nil, "", status.Unknownf(
			"Got unexpected content-id in batch response")
	}
	delete(expected, id)
	return part, payload, nil
}
