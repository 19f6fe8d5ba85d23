package internal

import (
	"io"
	"net/url"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// Scribe observes request/response traffic for diagnostics. Implementations
// must never affect the exchange: calls are fire-and-forget and any internal
// failure stays inside the scribe.
type Scribe interface {
	AboutToSendRequest(request *Request)
	ReceivedResponseForRequest(request *Request)
	RequestFailedWithTransportError(request *Request, err error)

	AboutToSendBatch(batch *RequestBatch)
	ReceivedBatchResponse(batch *RequestBatch)
	BatchFailedWithTransportError(batch *RequestBatch, err error)
}

const (
	censoredValue = "CENSORED"
	elidedValue   = "ELIDED"
)

var sensitiveParams = []string{"access_token", "refresh_token", "client_secret"}

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Censor decides what a scribe may record. The zero policy scrubs
// Authorization headers, sensitive query parameters and well known secret
// fields inside JSON bodies, and truncates payloads to MaxSnippetLen.
type Censor struct {
	// MaxSnippetLen caps recorded payloads. 0 means no cap.
	MaxSnippetLen int
}

// NewCensor returns a censor with a modest default payload cap.
func NewCensor() *Censor { return &Censor{MaxSnippetLen: 4096} }

// CensorURL strips sensitive query parameter values from raw. The second
// result reports whether anything was censored.
func (c *Censor) CensorURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return raw, false
	}
	query := u.Query()
	censored := false
	for _, param := range sensitiveParams {
		if query.Has(param) {
			query.Set(param, censoredValue)
			censored = true
		}
	}
	if !censored {
		return raw, false
	}
	u.RawQuery = query.Encode()
	return u.String(), true
}

// CensorRequestHeader scrubs header values that carry secrets.
func (c *Censor) CensorRequestHeader(name, value string) (string, bool) {
	if strings.EqualFold(name, HeaderAuthorization) {
		return censoredValue, true
	}
	return value, false
}

// CensorBody scrubs well known secret fields from JSON payloads and
// truncates the result to MaxSnippetLen. The second result reports whether
// any field was censored (truncation alone does not count).
func (c *Censor) CensorBody(body string) (string, bool) {
	censored := false
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, "{") {
		var fields map[string]interface{}
		if err := jsonAPI.UnmarshalFromString(trimmed, &fields); err == nil {
			for _, param := range sensitiveParams {
				if _, ok := fields[param]; ok {
					fields[param] = censoredValue
					censored = true
				}
			}
			if censored {
				if encoded, err := jsonAPI.MarshalToString(fields); err == nil {
					body = encoded
				}
			}
		}
	}
	if c.MaxSnippetLen > 0 && len(body) > c.MaxSnippetLen {
		body = body[:c.MaxSnippetLen]
	}
	return body, censored
}

// CensorRequestContent reads and scrubs the request body. One-shot bodies
// are never consumed here, the transport still has to send them; those are
// reported as elided instead.
func (c *Censor) CensorRequestContent(request *Request) (string, bool) {
	if !request.HasContent() {
		return "", false
	}
	if !request.Replayable() {
		return elidedValue, false
	}
	reader, err := request.ContentReader()
	if err != nil || reader == nil {
		return "", false
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", false
	}
	return c.CensorBody(string(data))
}

// CensorResponseBody reads and scrubs the response body, leaving the
// response's readable view intact for the caller.
func (c *Censor) CensorResponseBody(response *Response) (string, bool) {
	body, err := response.GetBodyString()
	if err != nil {
		return "", false
	}
	return c.CensorBody(body)
}
