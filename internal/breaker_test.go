package internal

import (
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"

	"github.com/frameloop/httpcore/status"
)

// alwaysRetryHandler retries every transport error, so tests can observe the
// breaker's veto.
type alwaysRetryHandler struct {
	*DefaultErrorHandler
}

func (alwaysRetryHandler) HandleTransportError(int, *Request) bool { return true }

func newAlwaysRetryHandler() alwaysRetryHandler {
	return alwaysRetryHandler{DefaultErrorHandler: NewDefaultErrorHandler()}
}

func TestBreakerDelegatesWhileClosed(t *testing.T) {
	handler := NewBreakerErrorHandler(newAlwaysRetryHandler(), gobreaker.Settings{
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	transport, _ := newFakeTransport()
	request := transport.NewRequest("GET")
	request.SetURL("http://flaky.example.com/")
	request.State().SetTransportError(status.Unavailablef("refused"))

	require.True(t, handler.HandleTransportError(0, request))
	require.True(t, handler.HandleTransportError(1, request))
}

func TestBreakerVetoesRetryWhenOpen(t *testing.T) {
	handler := NewBreakerErrorHandler(newAlwaysRetryHandler(), gobreaker.Settings{
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	})
	transport, _ := newFakeTransport()
	request := transport.NewRequest("GET")
	request.SetURL("http://down.example.com/")
	request.State().SetTransportError(status.Unavailablef("refused"))

	require.True(t, handler.HandleTransportError(0, request))
	// Second consecutive failure trips the breaker for this host; the
	// recorded failure still counts but the retry is allowed through
	// because the breaker only rejects once it is open.
	handler.HandleTransportError(1, request)
	require.False(t, handler.HandleTransportError(2, request))
}

func TestBreakerIsPerHost(t *testing.T) {
	handler := NewBreakerErrorHandler(newAlwaysRetryHandler(), gobreaker.Settings{
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
	})
	transport, _ := newFakeTransport()

	down := transport.NewRequest("GET")
	down.SetURL("http://down.example.com/")
	down.State().SetTransportError(status.Unavailablef("refused"))
	handler.HandleTransportError(0, down)
	require.False(t, handler.HandleTransportError(1, down))

	healthy := transport.NewRequest("GET")
	healthy.SetURL("http://healthy.example.com/")
	healthy.State().SetTransportError(status.Unavailablef("blip"))
	require.True(t, handler.HandleTransportError(0, healthy))
}

func TestBreakerPassesThroughHTTPErrors(t *testing.T) {
	handler := NewBreakerErrorHandler(
		NewDefaultErrorHandler(), gobreaker.Settings{})
	transport, _ := newFakeTransport()
	request := transport.NewRequest("GET")
	request.SetURL("http://example.com/")
	request.State().SetHTTPCode(500)

	require.False(t, handler.HandleHTTPError(0, request))
	require.False(t, handler.HandleRedirect(0, request))
}
