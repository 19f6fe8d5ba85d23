package httpcore

import (
	"github.com/frameloop/httpcore/internal"
)

type ErrorHandler = internal.ErrorHandler
type HTTPCodeHandler = internal.HTTPCodeHandler
type DefaultErrorHandler = internal.DefaultErrorHandler
type BreakerErrorHandler = internal.BreakerErrorHandler

type Executor = internal.Executor
type InlineExecutor = internal.InlineExecutor
type PoolExecutor = internal.PoolExecutor

var NewDefaultErrorHandler = internal.NewDefaultErrorHandler
var NewBreakerErrorHandler = internal.NewBreakerErrorHandler
var NewPoolExecutor = internal.NewPoolExecutor
