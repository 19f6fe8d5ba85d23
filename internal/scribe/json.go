// Package scribe records request/response traffic as a JSON transcript for
// debugging. Entries are censored before they are written; recording
// failures are logged and never surface into the exchange.
package scribe

import (
	"io"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/frameloop/httpcore/internal"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

type entry struct {
	Time     time.Time `json:"time"`
	Event    string    `json:"event"`
	Method   string    `json:"method,omitempty"`
	URL      string    `json:"url,omitempty"`
	HTTPCode int       `json:"http_code,omitempty"`
	Error    string    `json:"error,omitempty"`
	Body     string    `json:"body,omitempty"`
	Censored bool      `json:"censored,omitempty"`
	Parts    int       `json:"parts,omitempty"`
}

// JSONScribe writes one JSON object per line for every observed event.
type JSONScribe struct {
	mu     sync.Mutex
	out    io.Writer
	censor *internal.Censor
	logger *zap.Logger
	now    func() time.Time
}

// NewJSONScribe records to out using censor. A nil censor gets the default
// policy; a nil logger a no-op one.
func NewJSONScribe(out io.Writer, censor *internal.Censor, logger *zap.Logger) *JSONScribe {
	if censor == nil {
		censor = internal.NewCensor()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONScribe{out: out, censor: censor, logger: logger, now: time.Now}
}

func (s *JSONScribe) emit(e entry) {
	e.Time = s.now()
	data, err := jsonAPI.Marshal(e)
	if err != nil {
		s.logger.Warn("could not encode transcript entry", zap.Error(err))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.out.Write(append(data, '\n')); err != nil {
		s.logger.Warn("could not write transcript entry", zap.Error(err))
	}
}

func (s *JSONScribe) requestEntry(event string, request *internal.Request) entry {
	url, censoredURL := s.censor.CensorURL(request.URL())
	return entry{
		Event:    event,
		Method:   request.Method(),
		URL:      url,
		Censored: censoredURL,
	}
}

func (s *JSONScribe) AboutToSendRequest(request *internal.Request) {
	e := s.requestEntry("send", request)
	body, censored := s.censor.CensorRequestContent(request)
	e.Body, e.Censored = body, e.Censored || censored
	s.emit(e)
}

func (s *JSONScribe) ReceivedResponseForRequest(request *internal.Request) {
	e := s.requestEntry("receive", request)
	e.HTTPCode = request.Response().HTTPCode()
	body, censored := s.censor.CensorResponseBody(request.Response())
	e.Body, e.Censored = body, e.Censored || censored
	s.emit(e)
}

func (s *JSONScribe) RequestFailedWithTransportError(
	request *internal.Request, err error) {
	e := s.requestEntry("transport_error", request)
	if err != nil {
		e.Error = err.Error()
	}
	s.emit(e)
}

func (s *JSONScribe) AboutToSendBatch(batch *internal.RequestBatch) {
	e := s.requestEntry("batch_send", batch.HTTPRequest())
	e.Parts = len(batch.Requests())
	s.emit(e)
}

func (s *JSONScribe) ReceivedBatchResponse(batch *internal.RequestBatch) {
	e := s.requestEntry("batch_receive", batch.HTTPRequest())
	e.HTTPCode = batch.HTTPRequest().Response().HTTPCode()
	e.Parts = len(batch.Requests())
	s.emit(e)
}

func (s *JSONScribe) BatchFailedWithTransportError(
	batch *internal.RequestBatch, err error) {
	e := s.requestEntry("batch_transport_error", batch.HTTPRequest())
	if err != nil {
		e.Error = err.Error()
	}
	s.emit(e)
}
