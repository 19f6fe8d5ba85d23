package internal

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/frameloop/httpcore/status"
)

// StateCode denotes where a request is in its lifecycle.
type StateCode int

const (
	Unsent StateCode = iota
	Queued
	Pending
	Completed
	CouldNotSend
	TimedOut
	Cancelled
	Aborted
)

var stateNames = [...]string{
	Unsent:       "UNSENT",
	Queued:       "QUEUED",
	Pending:      "PENDING",
	Completed:    "COMPLETED",
	CouldNotSend: "COULD_NOT_SEND",
	TimedOut:     "TIMED_OUT",
	Cancelled:    "CANCELLED",
	Aborted:      "ABORTED",
}

func (c StateCode) String() string {
	if int(c) < len(stateNames) {
		return stateNames[c]
	}
	return "INVALID"
}

// Done reports whether the code is terminal. Terminal codes never transition
// into anything else.
func (c StateCode) Done() bool {
	return c == Completed || c == CouldNotSend || c == TimedOut ||
		c == Cancelled || c == Aborted
}

// Callback is invoked exactly once when a request first reaches a terminal
// state. The request passed is the one owning the state.
type Callback func(*Request)

// RequestState tracks a single request/response lifecycle. It is shared
// between a Request and its Response and is safe for concurrent use.
//
// The done channel is closed exactly once, on the first transition into a
// terminal code, strictly after the notify callback has returned. Waiters in
// WaitUntilDone therefore observe every side effect of the callback.
type RequestState struct {
	mu           sync.Mutex
	code         StateCode
	transportErr error
	httpCode     int
	request      *Request
	callback     Callback
	done         chan struct{}
	logger       *zap.Logger
}

func newRequestState(logger *zap.Logger) *RequestState {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestState{done: make(chan struct{}), logger: logger}
}

// Code returns the current lifecycle code.
func (s *RequestState) Code() StateCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

// HTTPCode returns the parsed HTTP response code, 0 until a response start
// line has been seen.
func (s *RequestState) HTTPCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.httpCode
}

// SetHTTPCode records the HTTP response code. Only transports and the batch
// codec should call this.
func (s *RequestState) SetHTTPCode(code int) {
	s.mu.Lock()
	s.httpCode = code
	s.mu.Unlock()
}

// TransportError returns the transport-level error, nil when bytes could be
// exchanged (independent of the HTTP response code).
func (s *RequestState) TransportError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transportErr
}

// SetTransportError records whether the physical exchange itself failed.
func (s *RequestState) SetTransportError(err error) {
	s.mu.Lock()
	s.transportErr = err
	s.mu.Unlock()
}

// SetNotifyCallback binds the completion callback together with the request
// it should be invoked with. At most one callback may be bound at a time.
func (s *RequestState) SetNotifyCallback(request *Request, callback Callback) {
	s.mu.Lock()
	s.request = request
	s.callback = callback
	s.mu.Unlock()
}

// HasNotifyCallback reports whether a completion callback is still pending.
func (s *RequestState) HasNotifyCallback() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callback != nil
}

// callbackRef is used when retiring a request into a batch part.
func (s *RequestState) callbackRef() Callback {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callback
}

// rebind repoints the callback's request argument, used when the state moves
// to a different owning request.
func (s *RequestState) rebind(request *Request) {
	s.mu.Lock()
	if s.callback != nil {
		s.request = request
	}
	s.mu.Unlock()
}

// TransitionAndNotifyIfDone moves the lifecycle to code. If this is the first
// transition into a terminal code the bound callback fires (and is cleared so
// it can never fire again), then all blocked waiters are released. Further
// calls with the same or a different terminal code are tolerated and keep the
// first terminal code.
func (s *RequestState) TransitionAndNotifyIfDone(code StateCode) {
	var (
		callback Callback
		request  *Request
		nowDone  bool
	)
	s.mu.Lock()
	if !s.code.Done() {
		nowDone = code.Done()
		if nowDone {
			callback = s.callback
			request = s.request
			s.callback = nil
			s.request = nil
		}
		s.logger.Debug("state transition",
			zap.Stringer("from", s.code), zap.Stringer("to", code))
		s.code = code
	}
	done := s.done
	s.mu.Unlock()

	if nowDone {
		// The callback must run to completion before any waiter is
		// released so that composed objects can rely on its effects.
		if callback != nil {
			callback(request)
		}
		close(done)
	}
}

// AutoTransitionAndNotifyIfDone derives the next lifecycle code purely from
// the recorded transport error and HTTP code, performs the transition, and
// returns the overall status of the exchange.
func (s *RequestState) AutoTransitionAndNotifyIfDone() error {
	var code StateCode
	s.mu.Lock()
	switch {
	case s.transportErr != nil:
		switch status.CodeOf(s.transportErr) {
		case status.DeadlineExceeded:
			code = TimedOut
		case status.Aborted:
			code = Aborted
		case status.Cancelled:
			code = Cancelled
		default:
			code = CouldNotSend
		}
	case s.httpCode == 0:
		// Nothing has happened yet; stay unsent.
		s.mu.Unlock()
		return nil
	case s.httpCode < 200:
		code = Pending // provisional 1xx response
	default:
		code = Completed // including redirects and error codes
	}
	// Grab the status now because a completion callback may repurpose the
	// state as soon as we transition.
	overall := determineStatus(s.transportErr, s.httpCode, code)
	s.mu.Unlock()

	s.TransitionAndNotifyIfDone(code)
	return overall
}

func determineStatus(transportErr error, httpCode int, code StateCode) error {
	switch code {
	case Unsent, Queued:
		return nil
	case Pending:
		// Support error handlers inspecting status while the request is
		// still officially in flight.
		if httpCode >= 200 {
			return status.FromHTTP(httpCode, "")
		}
		return transportErr
	case Completed:
		return status.FromHTTP(httpCode, "")
	case CouldNotSend:
		return transportErr
	case TimedOut:
		return status.DeadlineExceededf("Request timed out")
	case Aborted:
		return status.Abortedf("Aborted Request")
	case Cancelled:
		return status.Cancelledf("Cancelled Request")
	}
	return status.Internalf("INTERNAL ERROR") // not reached
}

// Done reports whether the request has completely finished executing.
func (s *RequestState) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code.Done()
}

// OK reports whether no error has been encountered so far.
func (s *RequestState) OK() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.code {
	case Unsent, Queued:
		return true
	case Pending:
		return s.transportErr == nil &&
			(s.httpCode < 300 || s.httpCode == 304)
	case Completed:
		return (s.httpCode >= 200 && s.httpCode < 300) || s.httpCode == 304
	}
	return false
}

// Status returns the overall status for the request as of now.
func (s *RequestState) Status() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return determineStatus(s.transportErr, s.httpCode, s.code)
}

// WaitUntilDone blocks until the request reaches a terminal state or the
// timeout elapses. A timeout <= 0 waits forever. Returns true if the request
// is done. Safe to call from any number of goroutines.
func (s *RequestState) WaitUntilDone(timeout time.Duration) bool {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if timeout <= 0 {
		<-done
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
}

// Reset returns the state to its initial UNSENT condition with a fresh wait
// channel. The owning request must have detached any callback first.
func (s *RequestState) Reset() {
	s.mu.Lock()
	if s.request != nil || s.callback != nil {
		s.mu.Unlock()
		panic("httpcore: cannot reset state with a pending notify callback")
	}
	if s.code.Done() {
		s.done = make(chan struct{})
	}
	s.code = Unsent
	s.httpCode = 0
	s.transportErr = nil
	s.mu.Unlock()
}
