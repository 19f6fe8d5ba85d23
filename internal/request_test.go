package internal

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/frameloop/httpcore/status"
)

func TestExecuteSimpleGet(t *testing.T) {
	transport, wire := newFakeTransport(wireStep{
		httpCode: 200,
		headers:  map[string]string{"Content-Type": "text/plain"},
		body:     "hello",
	})
	request := transport.NewRequest("GET")
	request.SetURL("http://example.com/path")

	require.NoError(t, request.Execute())

	response := request.Response()
	require.Equal(t, Completed, response.State().Code())
	require.True(t, response.OK())
	require.Equal(t, 200, response.HTTPCode())
	body, err := response.GetBodyString()
	require.NoError(t, err)
	require.Equal(t, "hello", body)
	value, ok := response.FindHeaderValue("content-type")
	require.True(t, ok)
	require.Equal(t, "text/plain", value)

	require.Equal(t, 1, wire.calls)
	sent := wire.headersSent[0]
	require.Equal(t, "example.com", sent[HeaderHost])
	require.Equal(t, DefaultUserAgent, sent[HeaderUserAgent])
	_, hasLength := sent[HeaderContentLength]
	require.False(t, hasLength)
	_, hasEncoding := sent[HeaderTransferEncoding]
	require.False(t, hasEncoding)
}

func TestExecuteHTTPErrorStatus(t *testing.T) {
	transport, _ := newFakeTransport(wireStep{httpCode: 404})
	request := transport.NewRequest("GET")
	request.SetURL("http://example.com/missing")

	err := request.Execute()
	require.Equal(t, status.NotFound, status.CodeOf(err))
	require.Equal(t, Completed, request.State().Code())
	require.False(t, request.Response().OK())
}

func TestExecuteTransportFailure(t *testing.T) {
	transport, wire := newFakeTransport(wireStep{
		err: status.Unavailablef("connection refused"),
	})
	request := transport.NewRequest("GET")
	request.SetURL("http://example.com/")

	err := request.Execute()
	require.Equal(t, status.Unavailable, status.CodeOf(err))
	require.Equal(t, CouldNotSend, request.State().Code())
	require.Equal(t, 1, wire.calls) // transport errors are not retried
}

func TestExecuteTimeoutBecomesTimedOut(t *testing.T) {
	transport, _ := newFakeTransport(wireStep{
		err: status.DeadlineExceededf("deadline exceeded"),
	})
	request := transport.NewRequest("GET")
	request.SetURL("http://example.com/slow")

	err := request.Execute()
	require.Equal(t, status.DeadlineExceeded, status.CodeOf(err))
	require.Equal(t, TimedOut, request.State().Code())
}

func TestContentFramingHeaders(t *testing.T) {
	t.Run("KnownLength", func(t *testing.T) {
		transport, wire := newFakeTransport(wireStep{httpCode: 200})
		request := transport.NewRequest("POST")
		request.SetURL("http://example.com/upload")
		require.NoError(t, request.SetContent("payload"))
		require.NoError(t, request.Execute())

		sent := wire.headersSent[0]
		require.Equal(t, "7", sent[HeaderContentLength])
		_, chunked := sent[HeaderTransferEncoding]
		require.False(t, chunked)
		require.Equal(t, "payload", wire.bodiesSent[0])
	})

	t.Run("UnknownLength", func(t *testing.T) {
		transport, wire := newFakeTransport(wireStep{httpCode: 200})
		request := transport.NewRequest("POST")
		request.SetURL("http://example.com/upload")
		require.NoError(t, request.SetContent(
			io.NopCloser(strings.NewReader("stream"))))
		require.NoError(t, request.Execute())

		sent := wire.headersSent[0]
		require.Equal(t, "chunked", sent[HeaderTransferEncoding])
		_, hasLength := sent[HeaderContentLength]
		require.False(t, hasLength)
		require.Equal(t, "stream", wire.bodiesSent[0])
	})
}

func TestSetContentSources(t *testing.T) {
	transport, _ := newFakeTransport()
	request := transport.NewRequest("POST")

	t.Run("BufferIsReplayable", func(t *testing.T) {
		require.NoError(t, request.SetContent(bytes.NewBufferString("abc")))
		require.EqualValues(t, 3, request.ContentLength())
		for i := 0; i < 2; i++ {
			reader, err := request.ContentReader()
			require.NoError(t, err)
			data, _ := io.ReadAll(reader)
			require.Equal(t, "abc", string(data))
			reader.Close()
		}
	})

	t.Run("ReadCloserIsOneShot", func(t *testing.T) {
		require.NoError(t, request.SetContent(
			io.NopCloser(strings.NewReader("once"))))
		require.EqualValues(t, -1, request.ContentLength())
		reader, err := request.ContentReader()
		require.NoError(t, err)
		reader.Close()
		_, err = request.ContentReader()
		require.Error(t, err)
	})

	t.Run("Nil", func(t *testing.T) {
		require.NoError(t, request.SetContent(nil))
		require.False(t, request.HasContent())
		reader, err := request.ContentReader()
		require.NoError(t, err)
		require.Nil(t, reader)
	})

	t.Run("Unsupported", func(t *testing.T) {
		require.Error(t, request.SetContent(42))
	})
}

func TestAddHeaderRejectsInvalid(t *testing.T) {
	transport, _ := newFakeTransport()
	request := transport.NewRequest("GET")
	request.AddHeader("X-Ok", "fine")
	request.AddHeader("Bad Name", "value")
	request.AddHeader("X-Bad-Value", "line\r\nbreak")

	require.Equal(t, 1, request.Headers().Len())
	_, ok := request.FindHeaderValue("X-Ok")
	require.True(t, ok)
}

func TestExecutePanicsOnReuseWithoutClear(t *testing.T) {
	transport, _ := newFakeTransport(wireStep{httpCode: 200})
	request := transport.NewRequest("GET")
	request.SetURL("http://example.com/")
	require.NoError(t, request.Execute())

	require.Panics(t, func() { request.Execute() })
}

func TestClearMakesRequestReusable(t *testing.T) {
	transport, _ := newFakeTransport(
		wireStep{httpCode: 200}, wireStep{httpCode: 201})
	request := transport.NewRequest("GET")
	request.SetURL("http://example.com/a")
	require.NoError(t, request.Execute())

	request.Clear()
	require.Equal(t, Unsent, request.State().Code())
	require.Equal(t, "", request.URL())
	require.Zero(t, request.Headers().Len())

	request.SetURL("http://example.com/b")
	require.NoError(t, request.Execute())
	require.Equal(t, 201, request.Response().HTTPCode())
}

func TestClearReleasesWaiters(t *testing.T) {
	transport, _ := newFakeTransport()
	request := transport.NewRequest("GET")
	started := make(chan struct{})
	released := make(chan struct{})
	go func() {
		close(started)
		request.State().WaitUntilDone(0)
		close(released)
	}()
	<-started
	time.Sleep(5 * time.Millisecond)
	request.Clear()
	<-released
}

func TestWillNotExecute(t *testing.T) {
	transport, _ := newFakeTransport()
	request := transport.NewRequest("GET")
	request.WillNotExecute(status.Abortedf("precondition failed"))
	require.Equal(t, Aborted, request.State().Code())
	require.True(t, request.Response().Done())

	require.Panics(t, func() {
		request.WillNotExecute(status.Abortedf("again"))
	})
}

func TestExecuteAsyncInline(t *testing.T) {
	transport, _ := newFakeTransport(wireStep{httpCode: 200, body: "ok"})
	transport.Options().Executor = InlineExecutor{}
	request := transport.NewRequest("GET")
	request.SetURL("http://example.com/")

	var notified *Request
	request.ExecuteAsync(func(r *Request) { notified = r })

	require.Same(t, request, notified)
	require.Equal(t, Completed, request.State().Code())
	require.False(t, request.State().HasNotifyCallback())
}

func TestExecuteAsyncWithoutExecutor(t *testing.T) {
	transport, _ := newFakeTransport(wireStep{httpCode: 200})
	request := transport.NewRequest("GET")
	request.SetURL("http://example.com/")

	called := false
	request.ExecuteAsync(func(r *Request) { called = true })

	require.True(t, called)
	require.Equal(t, CouldNotSend, request.State().Code())
	require.Equal(t, status.Internal, status.CodeOf(request.State().Status()))
}

func TestExecuteAsyncOnPool(t *testing.T) {
	pool := NewPoolExecutor(2, 8)
	defer pool.Shutdown()

	transport, _ := newFakeTransport(wireStep{httpCode: 200, body: "pooled"})
	transport.Options().Executor = pool
	request := transport.NewRequest("GET")
	request.SetURL("http://example.com/")

	done := make(chan *Request, 1)
	request.ExecuteAsync(func(r *Request) { done <- r })

	require.True(t, request.Response().WaitUntilDone(0))
	require.Same(t, request, <-done)
	require.Equal(t, 200, request.Response().HTTPCode())
}

func TestExecuteAsyncQueueFull(t *testing.T) {
	pool := NewPoolExecutor(1, 1)
	block := make(chan struct{})
	running := make(chan struct{})
	require.True(t, pool.TryAdd(func() { close(running); <-block }))
	<-running
	// Worker occupied; this one fills the queue.
	require.True(t, pool.TryAdd(func() {}))

	transport, _ := newFakeTransport(wireStep{httpCode: 200})
	transport.Options().Executor = pool
	request := transport.NewRequest("GET")
	request.SetURL("http://example.com/")

	request.ExecuteAsync(nil)
	require.True(t, request.Response().WaitUntilDone(0))
	require.Equal(t, CouldNotSend, request.State().Code())
	require.Equal(t, status.Internal, status.CodeOf(request.State().Status()))

	close(block)
	pool.Shutdown()
}

func TestAuthorizationFailureNeverSends(t *testing.T) {
	transport, wire := newFakeTransport(wireStep{httpCode: 200})
	request := transport.NewRequest("GET")
	request.SetURL("http://example.com/")
	request.SetCredential(&fakeCredential{
		authorizeErr: status.PermissionDeniedf("no token"),
	})

	err := request.Execute()
	require.Equal(t, status.PermissionDenied, status.CodeOf(err))
	require.Equal(t, CouldNotSend, request.State().Code())
	require.Zero(t, wire.calls)
}

func TestPrepareToReuseStripsSensitiveHeaders(t *testing.T) {
	transport, _ := newFakeTransport(wireStep{httpCode: 200})
	request := transport.NewRequest("GET")
	request.SetURL("http://example.com/")
	request.AddHeader(HeaderAuthorization, "Bearer secret")
	request.AddHeader("If-None-Match", `"etag"`)
	request.AddHeader("If-Modified-Since", "yesterday")
	request.AddHeader("X-Keep", "1")
	require.NoError(t, request.Execute())

	require.NoError(t, request.PrepareToReuse())
	require.Equal(t, Unsent, request.State().Code())
	require.Zero(t, request.Response().HTTPCode())
	for _, name := range []string{
		HeaderAuthorization, "If-None-Match", "If-Modified-Since",
	} {
		_, ok := request.FindHeaderValue(name)
		require.False(t, ok, name)
	}
	_, ok := request.FindHeaderValue("X-Keep")
	require.True(t, ok)
}
