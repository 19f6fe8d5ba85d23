// Package status carries the canonical error codes used throughout the
// transport layer. A nil error is "ok"; everything else wraps a Code plus a
// human readable message so callers can branch on the class of failure
// without string matching.
package status

import (
	"errors"
	"fmt"
)

// Code classifies an error independently of the message text.
type Code int

const (
	OK Code = iota
	Cancelled
	Unknown
	InvalidArgument
	DeadlineExceeded
	NotFound
	AlreadyExists
	PermissionDenied
	ResourceExhausted
	FailedPrecondition
	Aborted
	OutOfRange
	Unimplemented
	Internal
	Unavailable
)

var codeNames = map[Code]string{
	OK:                 "ok",
	Cancelled:          "cancelled",
	Unknown:            "unknown",
	InvalidArgument:    "invalid argument",
	DeadlineExceeded:   "deadline exceeded",
	NotFound:           "not found",
	AlreadyExists:      "already exists",
	PermissionDenied:   "permission denied",
	ResourceExhausted:  "resource exhausted",
	FailedPrecondition: "failed precondition",
	Aborted:            "aborted",
	OutOfRange:         "out of range",
	Unimplemented:      "unimplemented",
	Internal:           "internal",
	Unavailable:        "unavailable",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Error is the concrete error type produced by this package.
type Error struct {
	code Code
	msg  string
}

func (e *Error) Error() string { return e.code.String() + ": " + e.msg }

// Code reports the classification of the error.
func (e *Error) Code() Code { return e.code }

// New builds an error with an explicit code. Returns nil for OK.
func New(code Code, msg string) error {
	if code == OK {
		return nil
	}
	return &Error{code: code, msg: msg}
}

func Newf(code Code, format string, args ...interface{}) error {
	return New(code, fmt.Sprintf(format, args...))
}

func Cancelledf(msg string) error        { return New(Cancelled, msg) }
func Unknownf(msg string) error          { return New(Unknown, msg) }
func InvalidArgumentf(msg string) error  { return New(InvalidArgument, msg) }
func DeadlineExceededf(msg string) error { return New(DeadlineExceeded, msg) }
func NotFoundf(msg string) error         { return New(NotFound, msg) }
func PermissionDeniedf(msg string) error { return New(PermissionDenied, msg) }
func Abortedf(msg string) error          { return New(Aborted, msg) }
func OutOfRangef(msg string) error       { return New(OutOfRange, msg) }
func Unimplementedf(msg string) error    { return New(Unimplemented, msg) }
func Internalf(msg string) error         { return New(Internal, msg) }
func Unavailablef(msg string) error      { return New(Unavailable, msg) }

// CodeOf extracts the Code from err. A nil error is OK and an error that did
// not come out of this package is Unknown.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.code
	}
	return Unknown
}

// IsOK is shorthand for CodeOf(err) == OK.
func IsOK(err error) bool { return err == nil }
