package status

import "fmt"

type httpPair struct {
	code Code
	text string
}

// httpTable maps well known HTTP response codes onto canonical codes. This is
// more of a suggestion than a definitive mapping; codes outside the table
// collapse into Unknown.
var httpTable = map[int]httpPair{
	400: {InvalidArgument, "Bad Request"},
	401: {PermissionDenied, "Unauthorized"},
	402: {Unknown, "Payment Required"},
	403: {PermissionDenied, "Forbidden"},
	404: {NotFound, "Not Found"},
	405: {Unimplemented, "Method Not Allowed"},
	408: {DeadlineExceeded, "Request Timeout"},
	409: {FailedPrecondition, "Conflict"},
	410: {NotFound, "Gone"},
	411: {InvalidArgument, "Length Required"},
	412: {FailedPrecondition, "Precondition Failed"},
	413: {InvalidArgument, "Request Entity Too Large"},
	414: {InvalidArgument, "Request URI Too Long"},
	415: {InvalidArgument, "Unsupported Media Type"},
	416: {OutOfRange, "Requested Range Not Satisfiable"},
	500: {Internal, "Internal Server Error"},
	501: {Unimplemented, "Not Implemented"},
	502: {Internal, "Bad Gateway"},
	503: {Unavailable, "Unavailable"},
	504: {DeadlineExceeded, "Gateway Timeout"},
	505: {Unimplemented, "HTTP Version Not Supported"},
	507: {ResourceExhausted, "Insufficient Storage"},
	509: {ResourceExhausted, "Bandwidth Limit Exceeded"},
}

// FromHTTP converts an HTTP response code into an error. 2xx responses
// produce nil. The message is the standard reason phrase unless msg is
// non-empty.
func FromHTTP(httpCode int, msg string) error {
	code, text := Unknown, "Unknown"
	if pair, ok := httpTable[httpCode]; ok {
		code, text = pair.code, pair.text
	} else if httpCode >= 200 && httpCode < 300 {
		return nil
	}
	if msg == "" {
		msg = fmt.Sprintf("Http(%d) %s", httpCode, text)
	}
	return New(code, msg)
}

// HTTPText reports the short reason phrase used by FromHTTP.
func HTTPText(httpCode int) string {
	if pair, ok := httpTable[httpCode]; ok {
		return pair.text
	}
	if httpCode >= 200 && httpCode < 300 {
		return "OK"
	}
	return "Unknown"
}
