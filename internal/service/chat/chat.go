// Package chat runs the UDP broadcast transport: one socket, one receive
// goroutine and a synchronous Send, with every envelope sealed by the
// envelope package.
package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"groupchat/internal/cryptographic/kdf"
	"groupchat/internal/model"
	"groupchat/internal/protocol/envelope"
	"groupchat/internal/utils/log"

	"go.uber.org/zap"
)

const (
	DefaultPort = 29999

	maxDatagram = 65507

	// consecutive non-timeout read errors tolerated before the socket is
	// considered dead
	maxReadErrors = 32
)

type State int32

const (
	StateCreated State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type (
	Config struct {
		Nickname    string
		LocalIP     netip.Addr
		BroadcastIP netip.Addr
		Port        int
		// Password may be empty or blank, envelope.DefaultPassword is used then.
		Password []byte
	}

	Transport struct {
		conn        net.PacketConn
		local       netip.Addr
		dest        *net.UDPAddr
		nickname    string
		password    []byte
		defaultPass bool

		ctx    context.Context
		cancel context.CancelFunc

		// Send holds mu for reading while it writes, Start and Stop hold it
		// for writing while they change state.
		mu       sync.RWMutex
		state    atomic.Int32
		sink     Sink
		done     chan struct{}
		stopOnce sync.Once
		closeErr error
		err      error
	}
)

func (c Config) Validate() error {
	if err := model.ValidateSender(c.Nickname); err != nil {
		return fmt.Errorf("%w: nickname: %v", ErrInvalidConfig, err)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range 1-65535", ErrInvalidConfig, c.Port)
	}
	if !c.LocalIP.Is4() {
		return fmt.Errorf("%w: local address %v is not IPv4", ErrInvalidConfig, c.LocalIP)
	}
	if !c.BroadcastIP.Is4() {
		return fmt.Errorf("%w: broadcast address %v is not IPv4", ErrInvalidConfig, c.BroadcastIP)
	}
	return nil
}

// Listen binds the UDP port on all IPv4 interfaces. If another process holds
// the port it fails with ErrPortUnavailable; there is no retry.
func Listen(cfg Config) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: cfg.Port})
	if err != nil {
		if isAddrInUse(err) {
			return nil, fmt.Errorf("%w: udp port %d: %v", ErrPortUnavailable, cfg.Port, err)
		}
		return nil, fmt.Errorf("chat: listen udp port %d: %w", cfg.Port, err)
	}

	t, err := NewTransport(conn, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return t, nil
}

// NewTransport wraps an already bound packet connection. The transport owns
// conn from here on and closes it in Stop.
func NewTransport(conn net.PacketConn, cfg Config) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	password := make([]byte, len(cfg.Password))
	copy(password, cfg.Password)
	// a blank password protects nothing, fall back to the public one
	if len(bytes.TrimSpace(password)) == 0 {
		kdf.Wipe(password)
		password = []byte(envelope.DefaultPassword)
	}
	defaultPass := envelope.IsDefault(password)

	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		conn:        conn,
		local:       cfg.LocalIP,
		dest:        net.UDPAddrFromAddrPort(netip.AddrPortFrom(cfg.BroadcastIP, uint16(cfg.Port))),
		nickname:    cfg.Nickname,
		password:    password,
		defaultPass: defaultPass,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	t.state.Store(int32(StateCreated))
	return t, nil
}

// Start binds the port and starts receiving in one step.
func Start(cfg Config, sink Sink) (*Transport, error) {
	t, err := Listen(cfg)
	if err != nil {
		return nil, err
	}
	if err := t.Start(sink); err != nil {
		t.Stop()
		return nil, err
	}
	return t, nil
}

// Start moves the transport to running and launches the receive loop. The
// Info events announcing the session are delivered by the receive loop, so
// Start returns without waiting for the sink.
func (t *Transport) Start(sink Sink) error {
	if sink == nil {
		return fmt.Errorf("%w: nil sink", ErrInvalidConfig)
	}

	t.mu.Lock()
	switch t.State() {
	case StateCreated:
	case StateRunning:
		t.mu.Unlock()
		return nil
	default:
		t.mu.Unlock()
		return ErrStopped
	}
	t.sink = sink
	t.state.Store(int32(StateRunning))
	t.mu.Unlock()

	// unblock a pending ReadFrom without closing the socket under it
	go func() {
		<-t.ctx.Done()
		_ = t.conn.SetReadDeadline(time.Now())
	}()
	go t.receiveLoop()

	log.Info("chat transport started",
		zap.Stringer("local", t.local),
		zap.Stringer("broadcast", t.dest),
		zap.Bool("default_password", t.defaultPass))
	return nil
}

// Stop cancels the receive loop, waits for it to exit and closes the socket.
// It is safe to call more than once, on a transport that was never started
// and on a nil *Transport.
func (t *Transport) Stop() error {
	if t == nil {
		return nil
	}
	t.stopOnce.Do(func() {
		t.cancel()

		t.mu.Lock()
		started := t.State() == StateRunning
		t.state.Store(int32(StateStopping))
		t.mu.Unlock()

		if started {
			<-t.done
		} else {
			close(t.done)
		}

		t.closeErr = t.conn.Close()
		t.state.Store(int32(StateStopped))
		log.Info("chat transport stopped")
	})
	return t.closeErr
}

// Send broadcasts text as one datagram. The local echo is delivered to the
// sink before the write. Empty or blank text is ignored.
func (t *Transport) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	switch t.State() {
	case StateCreated:
		return ErrNotStarted
	case StateRunning:
	default:
		return ErrStopped
	}
	if t.ctx.Err() != nil {
		return ErrStopped
	}

	msg := model.ChatMessage{Sender: t.nickname, Body: text}
	data, err := model.Serialize(msg)
	if err != nil {
		return &SendError{Err: err}
	}

	t.sink.Deliver(t.ctx, model.Event{Message: msg, Origin: model.OriginLocal, At: time.Now()})

	env, err := envelope.Seal(data, t.password)
	kdf.Wipe(data)
	if err != nil {
		return &SendError{Err: err}
	}
	if len(env) > maxDatagram {
		return &SendError{Err: fmt.Errorf("message too large: %d bytes", len(env))}
	}

	if err := ctx.Err(); err != nil {
		return &SendError{Err: err}
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := t.conn.SetWriteDeadline(deadline); err != nil {
			return &SendError{Err: err}
		}
		defer t.conn.SetWriteDeadline(time.Time{})
	}

	if _, err := t.conn.WriteTo(env, t.dest); err != nil {
		log.Warn("broadcast failed", zap.Stringer("to", t.dest), zap.Error(err))
		return &SendError{Err: err}
	}
	return nil
}

func (t *Transport) State() State { return State(t.state.Load()) }

// Done is closed once the receive loop has exited, either after Stop or
// because the socket failed.
func (t *Transport) Done() <-chan struct{} { return t.done }

// Err returns why the receive loop ended on its own, or nil.
func (t *Transport) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

func (t *Transport) LocalAddr() net.Addr { return t.conn.LocalAddr() }

// Encrypted reports whether a user supplied password protects the traffic.
func (t *Transport) Encrypted() bool { return !t.defaultPass }

func (t *Transport) receiveLoop() {
	defer close(t.done)

	// announced from here so that Start never waits on the sink
	t.info(fmt.Sprintf("listening on %v, local %v, broadcast %v", t.conn.LocalAddr(), t.local, t.dest))
	if t.defaultPass {
		t.info("no password set: messages are NOT confidential, anyone on the network can read them")
	}

	buf := make([]byte, maxDatagram)
	failures := 0
	for {
		n, addr, err := t.conn.ReadFrom(buf)
		if err != nil {
			if t.ctx.Err() != nil {
				return
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			failures++
			if errors.Is(err, net.ErrClosed) || failures >= maxReadErrors {
				t.err = fmt.Errorf("%w: %v", ErrSocketClosed, err)
				log.Error("receive loop terminated", zap.Error(err))
				t.info("connection lost: " + err.Error())
				return
			}
			log.Warn("receive failed", zap.Error(err))
			continue
		}
		failures = 0

		from, ok := addrPort(addr)
		if !ok {
			log.Debug("drop datagram: unknown source", zap.Int("size", n))
			continue
		}
		if from.Addr() == t.local {
			continue
		}

		t.handleDatagram(from, buf[:n])
	}
}

func (t *Transport) handleDatagram(from netip.AddrPort, payload []byte) {
	plain, err := envelope.Open(payload, t.password)
	if err != nil {
		log.Debug("drop datagram", zap.Stringer("from", from), zap.Int("size", len(payload)), zap.Error(err))
		return
	}

	msg, err := model.Deserialize(plain)
	kdf.Wipe(plain)
	if err != nil {
		log.Debug("drop message", zap.Stringer("from", from), zap.Error(err))
		return
	}

	t.sink.Deliver(t.ctx, model.Event{Message: msg, Origin: model.OriginRemote, From: from, At: time.Now()})
}

func (t *Transport) info(text string) {
	t.sink.Deliver(t.ctx, model.Event{
		Message: model.ChatMessage{Sender: "info", Body: text},
		Origin:  model.OriginInfo,
		At:      time.Now(),
	})
}

func addrPort(addr net.Addr) (netip.AddrPort, bool) {
	if ua, ok := addr.(*net.UDPAddr); ok {
		ap := ua.AddrPort()
		return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), ap.IsValid()
	}
	if addr == nil {
		return netip.AddrPort{}, false
	}
	ap, err := netip.ParseAddrPort(addr.String())
	if err != nil {
		return netip.AddrPort{}, false
	}
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), true
}
