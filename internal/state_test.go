package internal

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/frameloop/httpcore/status"
)

func TestStateCodeDone(t *testing.T) {
	done := []StateCode{Completed, CouldNotSend, TimedOut, Cancelled, Aborted}
	notDone := []StateCode{Unsent, Queued, Pending}
	for _, code := range done {
		require.True(t, code.Done(), code.String())
	}
	for _, code := range notDone {
		require.False(t, code.Done(), code.String())
	}
}

func TestTransitionKeepsFirstTerminalCode(t *testing.T) {
	state := newRequestState(nil)
	state.TransitionAndNotifyIfDone(Pending)
	require.Equal(t, Pending, state.Code())

	state.TransitionAndNotifyIfDone(Cancelled)
	require.Equal(t, Cancelled, state.Code())

	// Terminal codes stick; later transitions are tolerated but ignored.
	state.TransitionAndNotifyIfDone(Completed)
	require.Equal(t, Cancelled, state.Code())
	state.TransitionAndNotifyIfDone(Pending)
	require.Equal(t, Cancelled, state.Code())
}

func TestCallbackFiresExactlyOnce(t *testing.T) {
	state := newRequestState(nil)
	var fired int32
	state.SetNotifyCallback(nil, func(*Request) {
		atomic.AddInt32(&fired, 1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state.TransitionAndNotifyIfDone(Completed)
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, atomic.LoadInt32(&fired))
	require.False(t, state.HasNotifyCallback())
}

func TestCallbackRunsBeforeWaitersRelease(t *testing.T) {
	state := newRequestState(nil)
	var sideEffect int32
	state.SetNotifyCallback(nil, func(*Request) {
		time.Sleep(10 * time.Millisecond)
		atomic.StoreInt32(&sideEffect, 1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.True(t, state.WaitUntilDone(0))
			require.EqualValues(t, 1, atomic.LoadInt32(&sideEffect))
		}()
	}
	time.Sleep(5 * time.Millisecond)
	state.TransitionAndNotifyIfDone(Completed)
	wg.Wait()
}

func TestWaitUntilDoneTimeout(t *testing.T) {
	state := newRequestState(nil)
	require.False(t, state.WaitUntilDone(5*time.Millisecond))

	state.TransitionAndNotifyIfDone(Aborted)
	require.True(t, state.WaitUntilDone(5*time.Millisecond))
	require.True(t, state.WaitUntilDone(0))
}

func TestAutoTransition(t *testing.T) {
	cases := []struct {
		name         string
		transportErr error
		httpCode     int
		want         StateCode
		wantStatus   status.Code
	}{
		{"Timeout", status.DeadlineExceededf("slow"), 0, TimedOut, status.DeadlineExceeded},
		{"Aborted", status.Abortedf("stop"), 0, Aborted, status.Aborted},
		{"Cancelled", status.Cancelledf("cancel"), 0, Cancelled, status.Cancelled},
		{"SendFailure", status.Unavailablef("refused"), 0, CouldNotSend, status.Unavailable},
		{"Success", nil, 200, Completed, status.OK},
		{"Provisional", nil, 100, Pending, status.OK},
		{"ServerError", nil, 500, Completed, status.Internal},
		{"NotFound", nil, 404, Completed, status.NotFound},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			state := newRequestState(nil)
			state.SetTransportError(c.transportErr)
			state.SetHTTPCode(c.httpCode)
			overall := state.AutoTransitionAndNotifyIfDone()
			require.Equal(t, c.want, state.Code())
			require.Equal(t, c.wantStatus, status.CodeOf(overall))
		})
	}
}

func TestAutoTransitionNothingHappenedYet(t *testing.T) {
	state := newRequestState(nil)
	require.NoError(t, state.AutoTransitionAndNotifyIfDone())
	require.Equal(t, Unsent, state.Code())
}

func TestOK(t *testing.T) {
	state := newRequestState(nil)
	require.True(t, state.OK())

	state.SetHTTPCode(401)
	state.TransitionAndNotifyIfDone(Pending)
	require.False(t, state.OK())

	state = newRequestState(nil)
	state.SetHTTPCode(304)
	state.TransitionAndNotifyIfDone(Completed)
	require.True(t, state.OK())

	state = newRequestState(nil)
	state.SetHTTPCode(500)
	state.TransitionAndNotifyIfDone(Completed)
	require.False(t, state.OK())
}

func TestResetAfterTerminal(t *testing.T) {
	state := newRequestState(nil)
	state.SetHTTPCode(200)
	state.TransitionAndNotifyIfDone(Completed)
	state.Reset()

	require.Equal(t, Unsent, state.Code())
	require.Zero(t, state.HTTPCode())
	require.NoError(t, state.TransportError())
	// The wait channel must be fresh, not the already-closed one.
	require.False(t, state.WaitUntilDone(time.Millisecond))
}

func TestResetPanicsWithPendingCallback(t *testing.T) {
	state := newRequestState(nil)
	state.SetNotifyCallback(nil, func(*Request) {})
	require.Panics(t, func() { state.Reset() })
}
