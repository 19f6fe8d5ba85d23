package httpcore

import (
	"github.com/frameloop/httpcore/internal"
)

type StateCode = internal.StateCode

const (
	Unsent       = internal.Unsent
	Queued       = internal.Queued
	Pending      = internal.Pending
	Completed    = internal.Completed
	CouldNotSend = internal.CouldNotSend
	TimedOut     = internal.TimedOut
	Cancelled    = internal.Cancelled
	Aborted      = internal.Aborted
)

type Callback = internal.Callback
type RequestState = internal.RequestState
type Request = internal.Request
type Response = internal.Response
type BodyWriter = internal.BodyWriter
type HeaderMap = internal.HeaderMap

type RequestOptions = internal.RequestOptions
type RequestBatch = internal.RequestBatch

var DefaultRequestOptions = internal.DefaultRequestOptions
var NewRequestBatch = internal.NewRequestBatch
var NewRequestBatchWithURL = internal.NewRequestBatchWithURL
