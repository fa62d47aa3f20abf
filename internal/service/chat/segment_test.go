package chat

import (
	"errors"
	"net"
	"net/netip"
	"os"
	"sync"
	"time"
)

// segment is an in-memory broadcast domain. Datagrams sent to the broadcast
// address reach every conn bound to the destination port, the sender included,
// like a real broadcast does.
type segment struct {
	broadcast netip.Addr

	mu    sync.Mutex
	conns map[netip.AddrPort]*memConn
}

type datagram struct {
	from    netip.AddrPort
	payload []byte
}

func newSegment(broadcast string) *segment {
	return &segment{
		broadcast: netip.MustParseAddr(broadcast),
		conns:     make(map[netip.AddrPort]*memConn),
	}
}

func (s *segment) listen(ip string, port int) *memConn {
	addr := netip.AddrPortFrom(netip.MustParseAddr(ip), uint16(port))
	c := &memConn{
		seg:     s,
		addr:    addr,
		inbox:   make(chan datagram, 64),
		closed:  make(chan struct{}),
		changed: make(chan struct{}),
	}
	s.mu.Lock()
	s.conns[addr] = c
	s.mu.Unlock()
	return c
}

// inject delivers a datagram with an arbitrary source address.
func (s *segment) inject(from string, to netip.AddrPort, payload []byte) {
	s.route(netip.MustParseAddrPort(from), to, payload)
}

func (s *segment) route(from, to netip.AddrPort, payload []byte) {
	s.mu.Lock()
	var targets []*memConn
	for addr, c := range s.conns {
		if addr.Port() != to.Port() {
			continue
		}
		if to.Addr() == s.broadcast || to.Addr() == addr.Addr() {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	for _, c := range targets {
		p := append([]byte(nil), payload...)
		select {
		case c.inbox <- datagram{from: from, payload: p}:
		default:
		}
	}
}

type memConn struct {
	seg  *segment
	addr netip.AddrPort

	inbox     chan datagram
	closed    chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	deadline time.Time
	changed  chan struct{}
	writeErr error
}

func (c *memConn) ReadFrom(p []byte) (int, net.Addr, error) {
	for {
		c.mu.Lock()
		deadline := c.deadline
		changed := c.changed
		c.mu.Unlock()

		select {
		case <-c.closed:
			return 0, nil, net.ErrClosed
		default:
		}

		var timeout <-chan time.Time
		var timer *time.Timer
		if !deadline.IsZero() {
			d := time.Until(deadline)
			if d <= 0 {
				return 0, nil, os.ErrDeadlineExceeded
			}
			timer = time.NewTimer(d)
			timeout = timer.C
		}

		select {
		case dg := <-c.inbox:
			if timer != nil {
				timer.Stop()
			}
			n := copy(p, dg.payload)
			return n, net.UDPAddrFromAddrPort(dg.from), nil
		case <-c.closed:
			if timer != nil {
				timer.Stop()
			}
			return 0, nil, net.ErrClosed
		case <-changed:
			if timer != nil {
				timer.Stop()
			}
		case <-timeout:
			return 0, nil, os.ErrDeadlineExceeded
		}
	}
}

func (c *memConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	select {
	case <-c.closed:
		return 0, net.ErrClosed
	default:
	}

	c.mu.Lock()
	werr := c.writeErr
	c.mu.Unlock()
	if werr != nil {
		return 0, werr
	}

	ua, ok := addr.(*net.UDPAddr)
	if !ok {
		return 0, errors.New("memconn: not a udp address")
	}
	c.seg.route(c.addr, ua.AddrPort(), p)
	return len(p), nil
}

func (c *memConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.seg.mu.Lock()
		delete(c.seg.conns, c.addr)
		c.seg.mu.Unlock()
	})
	return nil
}

func (c *memConn) LocalAddr() net.Addr { return net.UDPAddrFromAddrPort(c.addr) }

func (c *memConn) SetDeadline(t time.Time) error { return c.SetReadDeadline(t) }

func (c *memConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadline = t
	close(c.changed)
	c.changed = make(chan struct{})
	return nil
}

func (c *memConn) SetWriteDeadline(time.Time) error { return nil }

func (c *memConn) failWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}
