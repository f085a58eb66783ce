package mock

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/driver/wsdriver"
	"github.com/vovakirdan/roomchat/internal/proto"
	"github.com/vovakirdan/roomchat/internal/utils"
)

// ErrClosed is returned by a loopback connection after Close.
var ErrClosed = errors.New("connection closed")

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithOpenDelay postpones every successful dial, like a socket that opens asynchronously.
func WithOpenDelay(d time.Duration) TransportOption {
	return func(t *Transport) { t.openDelay = d }
}

// WithDialError makes every dial fail with err.
func WithDialError(err error) TransportOption {
	return func(t *Transport) { t.dialErr = err }
}

// WithRejectedKinds answers triggers of the given kinds with an error frame.
func WithRejectedKinds(kinds ...core.EventKind) TransportOption {
	return func(t *Transport) {
		for _, k := range kinds {
			t.rejected[k] = true
		}
	}
}

// WithoutAcks makes the transport fan events out but never acknowledge them.
func WithoutAcks() TransportOption {
	return func(t *Transport) { t.silent = true }
}

// Transport is an in-process stand-in for the chat server. Every connection dialed from it
// shares one broadcast domain: a trigger is echoed as an event to all open connections and
// then acknowledged to its sender.
type Transport struct {
	openDelay time.Duration
	dialErr   error
	rejected  map[core.EventKind]bool
	silent    bool
	ids       *utils.SequenceIDs

	mu       sync.Mutex
	conns    []*LoopConn
	received []proto.Inbound
}

// NewTransport constructs a Transport.
func NewTransport(opts ...TransportOption) *Transport {
	t := &Transport{
		rejected: make(map[core.EventKind]bool),
		ids:      &utils.SequenceIDs{Prefix: "evt"},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Dial satisfies wsdriver.Dialer.
func (t *Transport) Dial(ctx context.Context, _ string, _ http.Header) (wsdriver.Conn, error) {
	if t.dialErr != nil {
		return nil, t.dialErr
	}
	if t.openDelay > 0 {
		timer := time.NewTimer(t.openDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c := &LoopConn{t: t, inbox: make(chan []byte, 64), closed: make(chan struct{})}
	t.mu.Lock()
	t.conns = append(t.conns, c)
	t.mu.Unlock()
	return c, nil
}

// Received returns every frame written by clients, in order.
func (t *Transport) Received() []proto.Inbound {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]proto.Inbound(nil), t.received...)
}

// Open returns the number of connections not yet closed.
func (t *Transport) Open() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// Push sends frame to every open connection.
func (t *Transport) Push(frame proto.Outbound) {
	for _, c := range t.snapshot() {
		c.send(frame)
	}
}

func (t *Transport) snapshot() []*LoopConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*LoopConn(nil), t.conns...)
}

func (t *Transport) remove(c *LoopConn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, other := range t.conns {
		if other == c {
			t.conns = append(t.conns[:i:i], t.conns[i+1:]...)
			return
		}
	}
}

func (t *Transport) handle(c *LoopConn, data []byte) {
	var in proto.Inbound
	if err := proto.Unmarshal(data, &in); err != nil {
		c.send(proto.ErrorFrame("", core.ErrBadRequest))
		return
	}
	t.mu.Lock()
	t.received = append(t.received, in)
	t.mu.Unlock()

	switch in.Type {
	case proto.InboundTypeHello:
		var hello proto.HelloData
		if err := proto.Unmarshal(in.Data, &hello); err != nil || hello.User.ID == "" {
			c.send(proto.ErrorFrame(in.ID, core.ErrUnauthorized))
			return
		}
		welcome, _ := proto.NewOutbound(proto.OutboundTypeWelcome, in.ID, hello.User)
		c.send(welcome)
	case proto.InboundTypeTrigger:
		e, err := proto.DecodeEventData(in.Data)
		if err != nil {
			c.send(proto.ErrorFrame(in.ID, err))
			return
		}
		if t.rejected[e.Kind()] {
			c.send(proto.ErrorFrame(in.ID, rejection(e.Kind())))
			return
		}
		ts := e.Meta().TS
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		frame, err := proto.EventFrame(core.Stamp(e, t.ids.NewID(), ts))
		if err != nil {
			c.send(proto.ErrorFrame(in.ID, err))
			return
		}
		t.Push(frame)
		if !t.silent {
			c.send(proto.Outbound{Type: proto.OutboundTypeAck, ID: in.ID})
		}
	case proto.InboundTypeBye:
		c.send(proto.Outbound{Type: proto.OutboundTypeAck, ID: in.ID})
	default:
		c.send(proto.ErrorFrame(in.ID, core.ErrBadRequest))
	}
}

func rejection(k core.EventKind) error {
	switch k {
	case core.EventEnterRoom:
		return ErrCannotEnterRoom
	case core.EventLeaveRoom:
		return ErrCannotLeaveRoom
	default:
		return ErrCannotSendMessage
	}
}

// LoopConn is one client end of a Transport.
type LoopConn struct {
	t         *Transport
	inbox     chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

var _ wsdriver.Conn = (*LoopConn)(nil)

// Read returns the next frame addressed to this connection.
func (c *LoopConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.inbox:
		return data, nil
	case <-c.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Write hands a client frame to the transport, which replies synchronously.
func (c *LoopConn) Write(ctx context.Context, data []byte) error {
	select {
	case <-c.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	c.t.handle(c, data)
	return nil
}

// Close detaches the connection from the transport.
func (c *LoopConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.t.remove(c)
	})
	return nil
}

func (c *LoopConn) send(frame proto.Outbound) {
	data, err := proto.Marshal(frame)
	if err != nil {
		return
	}
	select {
	case c.inbox <- data:
	case <-c.closed:
	}
}
