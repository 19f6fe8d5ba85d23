package httpcore

import (
	"github.com/frameloop/httpcore/internal"
	"github.com/frameloop/httpcore/internal/nettransport"
)

const Version = internal.Version
const DefaultUserAgent = internal.DefaultUserAgent

type Credential = internal.Credential
type SendFunc = internal.SendFunc
type Transport = internal.Transport
type TransportOptions = internal.TransportOptions
type TransportFactory = internal.TransportFactory
type LayerConfig = internal.LayerConfig

type NetTransportFactory = nettransport.Factory

var NewTransport = internal.NewTransport
var NewLayerConfig = internal.NewLayerConfig
var DefaultTransportOptions = internal.DefaultTransportOptions
