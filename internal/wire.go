package internal

import (
	"bufio"
	"errors"
	"io"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/frameloop/httpcore/status"
)

// Canonical line and record delimiters used throughout the HTTP framing and
// the multipart batch codec.
const (
	CRLF     = "\r\n"
	CRLFCRLF = "\r\n\r\n"
)

// WriteRequestPreamble encodes the request start line and headers, ending
// with the blank separator line. The message body is not written.
//
//	GET http://example.com/x HTTP/1.1\r\n
//	Host: example.com\r\n
//	\r\n
func WriteRequestPreamble(r *Request, w io.Writer) error {
	header := bufio.NewWriter(w)

	header.WriteString(r.Method())
	header.WriteByte(' ')
	header.WriteString(r.URL())
	header.WriteString(" HTTP/1.1")
	header.WriteString(CRLF)

	r.Headers().Each(func(name, value string) {
		header.WriteString(name)
		header.WriteString(": ")
		header.WriteString(value)
		header.WriteString(CRLF)
	})
	header.WriteString(CRLF)
	return header.Flush()
}

// WriteRequest encodes the whole request: preamble plus body, if any.
func WriteRequest(r *Request, w io.Writer) error {
	body, err := r.ContentReader()
	if err != nil {
		return err
	}
	if body != nil {
		defer body.Close() // request body is always closed
	}
	if err := WriteRequestPreamble(r, w); err != nil {
		return err
	}
	if body != nil {
		if _, err := io.Copy(w, body); err != nil {
			return err
		}
	}
	return nil
}

// ReadResponse decodes a raw HTTP response stream into resp: status line,
// headers, then body. The HTTP code is recorded on the response state; the
// body goes through the response's BodyWriter. When a Content-Length header
// is present only that many body bytes are consumed, so the reader may be a
// reused connection.
func ReadResponse(rd io.Reader, resp *Response) error {
	tp := textproto.NewReader(bufio.NewReader(rd))

	line, err := tp.ReadLine()
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	proto, rest, ok := strings.Cut(line, " ")
	if !ok || !strings.HasPrefix(proto, "HTTP/") {
		return errors.New("malformed HTTP response")
	}
	codeText, _, _ := strings.Cut(strings.TrimLeft(rest, " "), " ")
	httpCode, err := strconv.Atoi(codeText)
	if err != nil || len(codeText) != 3 || httpCode < 0 {
		return errors.New("malformed HTTP status code " + codeText)
	}
	resp.State().SetHTTPCode(httpCode)

	mimeHeader, err := tp.ReadMIMEHeader()
	if err != nil && err != io.EOF {
		return err
	}
	contentLength := int64(-1)
	for name, values := range mimeHeader {
		for _, value := range values {
			resp.AddHeader(name, value)
		}
	}
	if v, ok := resp.FindHeaderValue(HeaderContentLength); ok {
		if n, err := strconv.ParseInt(textproto.TrimString(v), 10, 64); err == nil {
			contentLength = n
		}
	}

	var body io.Reader = tp.R
	if contentLength >= 0 {
		body = io.LimitReader(tp.R, contentLength)
	}
	if _, err := io.Copy(resp.BodyWriter(), body); err != nil {
		return err
	}
	return nil
}

// MapTransportError normalizes a transport-level failure into a canonical
// status error so the state machine can classify it. Timeouts become
// DeadlineExceeded; anything already carrying a status code passes through.
func MapTransportError(err error) error {
	if err == nil {
		return nil
	}
	var se *status.Error
	if errors.As(err, &se) {
		return err
	}
	type timeouter interface{ Timeout() bool }
	var t timeouter
	if errors.As(err, &t) && t.Timeout() {
		return status.DeadlineExceededf(err.Error())
	}
	return status.Unavailablef(err.Error())
}
