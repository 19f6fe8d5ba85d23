// Package nettransport is a minimal concrete transport speaking HTTP/1.1
// over net.Conn. It exists to exercise the engine end to end: no proxies,
// no HTTP/2, no chunked responses. Responses without a Content-Length are
// read to EOF and their connection is not reused.
package nettransport

import (
	"crypto/tls"
	"net"
	"net/url"
	"time"

	"github.com/frameloop/httpcore/internal"
	"github.com/frameloop/httpcore/status"
)

var schemePorts = map[string]string{"http": "80", "https": "443"}

// Factory builds net.Conn-backed transports.
type Factory struct {
	// TLSConfig is used for https requests. nil means defaults.
	TLSConfig *tls.Config

	// MaxConn and MaxIdle bound the per-host connection pool. Zero
	// values pick modest defaults.
	MaxConn uint
	MaxIdle uint
}

func (f *Factory) ID() string { return "net" }

func (f *Factory) NewTransport(opts internal.TransportOptions) *internal.Transport {
	maxConn, maxIdle := f.MaxConn, f.MaxIdle
	if maxConn == 0 {
		maxConn = 100
	}
	if maxIdle == 0 {
		maxIdle = 20
	}
	nt := &netTransport{
		tlsConfig:      f.TLSConfig,
		connectTimeout: opts.ConnectTimeout,
		conns:          newGroup(maxIdle, maxConn),
	}
	t := internal.NewTransport(opts, nt.send)
	t.SetID(f.ID())
	return t
}

type netTransport struct {
	tlsConfig      *tls.Config
	connectTimeout time.Duration
	conns          *group
}

func (t *netTransport) send(req *internal.Request, resp *internal.Response) {
	state := resp.State()
	u, err := url.Parse(req.URL())
	if err != nil {
		state.SetTransportError(status.InvalidArgumentf(
			"bad request URL: " + err.Error()))
		return
	}
	port, ok := schemePorts[u.Scheme]
	if !ok {
		state.SetTransportError(status.InvalidArgumentf(
			"unsupported scheme: " + u.Scheme))
		return
	}
	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), port)
	}

	pool := t.conns.poolFor(addr, func() (net.Conn, error) {
		return t.dial(u.Scheme, addr)
	})
	conn, err := pool.Acquire()
	if err != nil {
		state.SetTransportError(internal.MapTransportError(err))
		return
	}

	if timeout := req.Options().Timeout; timeout > 0 {
		conn.SetDeadline(time.Now().Add(timeout))
	}

	if err := internal.WriteRequest(req, conn); err != nil {
		pool.Release(conn, false)
		state.SetTransportError(internal.MapTransportError(err))
		return
	}
	if err := internal.ReadResponse(conn, resp); err != nil {
		pool.Release(conn, false)
		if state.HTTPCode() == 0 {
			state.SetTransportError(internal.MapTransportError(err))
		} else {
			state.SetTransportError(status.Unknownf(
				"malformed response: " + err.Error()))
		}
		return
	}
	// Reuse only when the body length was delimited and the server did
	// not ask to tear the connection down.
	_, hasLength := resp.FindHeaderValue(internal.HeaderContentLength)
	connection, _ := resp.FindHeaderValue("Connection")
	reusable := hasLength && connection != "close"
	if reusable {
		conn.SetDeadline(time.Time{})
	}
	pool.Release(conn, reusable)
}

func (t *netTransport) dial(scheme, addr string) (net.Conn, error) {
	timeout := t.connectTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	if scheme != "https" {
		return conn, nil
	}
	cfg := t.tlsConfig
	if cfg == nil {
		cfg = &tls.Config{}
	}
	if cfg.ServerName == "" {
		cfg = cfg.Clone()
		host, _, splitErr := net.SplitHostPort(addr)
		if splitErr != nil {
			host = addr
		}
		cfg.ServerName = host
	}
	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.Handshake(); err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}
