package httpcore

import (
	"github.com/frameloop/httpcore/internal"
	"github.com/frameloop/httpcore/internal/scribe"
)

type Scribe = internal.Scribe
type Censor = internal.Censor
type JSONScribe = scribe.JSONScribe

var NewCensor = internal.NewCensor
var NewJSONScribe = scribe.NewJSONScribe
