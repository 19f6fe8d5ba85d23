package nettransport

import (
	"net"
	"sync"
	"time"
)

// connPool bounds concurrent connections to one address with tickets and
// keeps a small free list of idle connections for reuse. Acquire blocks
// while maxConn connections are outstanding.
type connPool struct {
	mu         sync.Mutex
	connTicket chan struct{}
	idleTicket chan struct{}
	idle       []net.Conn

	dial func() (net.Conn, error)
}

func newConnPool(maxIdle, maxConn uint, dial func() (net.Conn, error)) *connPool {
	return &connPool{
		connTicket: make(chan struct{}, maxConn),
		idleTicket: make(chan struct{}, maxIdle),
		dial:       dial,
	}
}

func (p *connPool) Acquire() (net.Conn, error) {
	p.connTicket <- struct{}{}
	for {
		select {
		case <-p.idleTicket:
			p.mu.Lock()
			c := p.idle[0]
			p.idle = p.idle[1:]
			p.mu.Unlock()
			if alive(c) {
				return c, nil
			}
			// The server hung up while the connection sat idle.
			c.Close()
		default:
			c, err := p.dial()
			if err != nil {
				<-p.connTicket
			}
			return c, err
		}
	}
}

// alive checks an idle connection with an immediate-deadline read. A live
// keep-alive connection has nothing to send and the read times out; EOF or
// stray bytes mean the connection cannot carry another exchange.
func alive(c net.Conn) bool {
	if err := c.SetReadDeadline(time.Now()); err != nil {
		return false
	}
	var one [1]byte
	_, err := c.Read(one[:])
	if nErr, ok := err.(net.Error); ok && nErr.Timeout() {
		return c.SetReadDeadline(time.Time{}) == nil
	}
	return false
}

// Release returns a reusable connection to the free list, or closes it when
// the free list is full or reuse is not safe.
func (p *connPool) Release(c net.Conn, reusable bool) {
	defer func() { <-p.connTicket }()
	if !reusable {
		c.Close()
		return
	}
	select {
	case p.idleTicket <- struct{}{}:
		p.mu.Lock()
		p.idle = append(p.idle, c)
		p.mu.Unlock()
	default:
		c.Close()
	}
}

// group shards pools by address.
type group struct {
	mu               sync.Mutex
	pools            map[string]*connPool
	maxIdle, maxConn uint
}

func newGroup(maxIdle, maxConn uint) *group {
	return &group{
		pools:   map[string]*connPool{},
		maxIdle: maxIdle,
		maxConn: maxConn,
	}
}

func (g *group) poolFor(addr string, dial func() (net.Conn, error)) *connPool {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.pools[addr]
	if !ok {
		p = newConnPool(g.maxIdle, g.maxConn, dial)
		g.pools[addr] = p
	}
	return p
}
