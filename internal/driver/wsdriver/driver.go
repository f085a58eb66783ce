// Package wsdriver is a core.Driver that talks to a roomchat server over WebSocket.
//
// Connect performs the hello/welcome handshake and starts a read loop. Events are
// delivered to listeners from that loop in arrival order; a trigger resolves when the
// server acknowledges it, which happens after the server has fanned the event out.
// Listeners must not call Trigger synchronously.
package wsdriver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/proto"
	"github.com/vovakirdan/roomchat/internal/utils"
)

// Option customizes drivers produced by New.
type Option func(*options)

type options struct {
	token  string
	header http.Header
	dial   Dialer
	ids    utils.IDGenerator
	log    *zerolog.Logger
}

// WithToken sends token in the hello frame.
func WithToken(token string) Option {
	return func(o *options) { o.token = token }
}

// WithHeader adds HTTP headers to the upgrade request.
func WithHeader(h http.Header) Option {
	return func(o *options) { o.header = h.Clone() }
}

// WithDialer replaces the network dialer.
func WithDialer(d Dialer) Option {
	return func(o *options) { o.dial = d }
}

// WithIDGenerator sets the generator for request ids.
func WithIDGenerator(g utils.IDGenerator) Option {
	return func(o *options) { o.ids = g }
}

// WithLogger sets the driver logger.
func WithLogger(l *zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// New returns a factory of drivers connecting to url.
func New(url string, opts ...Option) core.DriverFactory {
	nop := zerolog.Nop()
	o := options{dial: Dial, ids: utils.UUIDGenerator{}, log: &nop}
	for _, opt := range opts {
		opt(&o)
	}
	return func(user core.User) core.Driver {
		return &Driver{url: url, user: user, opts: o}
	}
}

type session struct {
	conn    Conn
	cancel  context.CancelFunc
	done    chan struct{}
	writeMu sync.Mutex
}

// Driver is a WebSocket-backed core.Driver bound to one user.
type Driver struct {
	url  string
	user core.User
	opts options

	connectMu sync.Mutex

	mu        sync.Mutex
	sess      *session
	bound     core.User
	pending   map[string]chan error
	listeners []core.Listener
}

var _ core.Driver = (*Driver)(nil)

// User returns the identity the server bound at welcome, or the declared user before that.
func (d *Driver) User() core.User {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bound.ID != "" {
		return d.bound
	}
	return d.user
}

// Bound returns the identity the server assigned at welcome. It is zero before Connect.
func (d *Driver) Bound() core.User {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bound
}

// Connect dials the server and completes the handshake. Concurrent calls share one session.
func (d *Driver) Connect(ctx context.Context) error {
	d.connectMu.Lock()
	defer d.connectMu.Unlock()

	d.mu.Lock()
	connected := d.sess != nil
	d.mu.Unlock()
	if connected {
		return nil
	}

	conn, err := d.opts.dial(ctx, d.url, d.opts.header)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrCannotConnect, err)
	}

	bound, err := d.handshake(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("%w: %w", core.ErrCannotConnect, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s := &session{conn: conn, cancel: cancel, done: make(chan struct{})}

	d.mu.Lock()
	d.sess = s
	d.bound = bound
	d.pending = make(map[string]chan error)
	d.mu.Unlock()

	go d.readLoop(loopCtx, s)

	d.opts.log.Debug().Str("url", d.url).Str("user", bound.ID).Msg("connected")
	return nil
}

func (d *Driver) handshake(ctx context.Context, conn Conn) (core.User, error) {
	id := d.opts.ids.NewID()
	hello, err := proto.NewInbound(proto.InboundTypeHello, id, proto.HelloData{
		User:     proto.FromUser(d.user),
		Token:    d.opts.token,
		Protocol: proto.ProtocolVersion,
	})
	if err != nil {
		return core.User{}, err
	}
	if err := writeFrame(ctx, conn, hello); err != nil {
		return core.User{}, fmt.Errorf("send hello: %w", err)
	}

	for {
		data, err := conn.Read(ctx)
		if err != nil {
			return core.User{}, fmt.Errorf("await welcome: %w", err)
		}
		var out proto.Outbound
		if err := proto.Unmarshal(data, &out); err != nil {
			return core.User{}, fmt.Errorf("decode welcome: %w", err)
		}
		switch out.Type {
		case proto.OutboundTypeWelcome:
			var u proto.UserData
			if err := proto.Unmarshal(out.Data, &u); err != nil {
				return core.User{}, fmt.Errorf("decode welcome: %w", err)
			}
			return u.User(), nil
		case proto.OutboundTypeError:
			return core.User{}, out.Error.Err()
		}
	}
}

func (d *Driver) readLoop(ctx context.Context, s *session) {
	defer close(s.done)

	for {
		data, err := s.conn.Read(ctx)
		if err != nil {
			d.drop(s, err)
			return
		}

		var out proto.Outbound
		if err := proto.Unmarshal(data, &out); err != nil {
			d.opts.log.Warn().Err(err).Msg("malformed frame")
			continue
		}

		switch out.Type {
		case proto.OutboundTypeEvent:
			e, err := proto.DecodeEventData(out.Data)
			if err != nil {
				if errors.Is(err, proto.ErrUnknownEvent) {
					d.opts.log.Debug().Str("event", out.Event).Msg("skipping unknown event")
				} else {
					d.opts.log.Warn().Err(err).Msg("bad event frame")
				}
				continue
			}
			d.dispatch(e)
		case proto.OutboundTypeAck:
			d.resolve(out.ID, nil)
		case proto.OutboundTypeError:
			ferr := out.Error.Err()
			if out.ID == "" || !d.resolve(out.ID, ferr) {
				d.opts.log.Warn().Str("code", core.CodeOf(ferr)).Msg(ferr.Error())
			}
		}
	}
}

func (d *Driver) dispatch(e core.Event) {
	d.mu.Lock()
	listeners := append([]core.Listener(nil), d.listeners...)
	d.mu.Unlock()

	for _, fn := range listeners {
		fn(e)
	}
}

func (d *Driver) resolve(id string, err error) bool {
	d.mu.Lock()
	ch, ok := d.pending[id]
	delete(d.pending, id)
	d.mu.Unlock()
	if ok {
		ch <- err
	}
	return ok
}

// drop ends a session whose socket failed and fails every waiting request.
func (d *Driver) drop(s *session, cause error) {
	d.mu.Lock()
	if d.sess != s {
		d.mu.Unlock()
		return
	}
	d.sess = nil
	pending := d.pending
	d.pending = nil
	d.mu.Unlock()

	for _, ch := range pending {
		ch <- fmt.Errorf("%w: %w", core.ErrNotConnected, cause)
	}
	d.opts.log.Debug().Err(cause).Msg("connection closed")
}

// request sends frame and waits for the reply correlated by frame.ID.
func (d *Driver) request(ctx context.Context, frame proto.Inbound) error {
	ch := make(chan error, 1)

	d.mu.Lock()
	s := d.sess
	if s == nil {
		d.mu.Unlock()
		return core.ErrNotConnected
	}
	d.pending[frame.ID] = ch
	d.mu.Unlock()

	s.writeMu.Lock()
	err := writeFrame(ctx, s.conn, frame)
	s.writeMu.Unlock()
	if err != nil {
		d.forget(frame.ID)
		return fmt.Errorf("%w: %w", core.ErrNotConnected, err)
	}

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		d.forget(frame.ID)
		return ctx.Err()
	}
}

func (d *Driver) forget(id string) {
	d.mu.Lock()
	if d.pending != nil {
		delete(d.pending, id)
	}
	d.mu.Unlock()
}

// Trigger sends e and waits for the server's acknowledgement.
func (d *Driver) Trigger(ctx context.Context, e core.Event) error {
	if e == nil {
		return core.ErrBadRequest
	}
	frame, err := proto.NewInbound(proto.InboundTypeTrigger, d.opts.ids.NewID(), proto.EncodeEvent(e))
	if err != nil {
		return err
	}
	return d.request(ctx, frame)
}

// Listen registers fn. Listeners survive until Disconnect.
func (d *Driver) Listen(fn core.Listener) error {
	if fn == nil {
		return core.ErrBadRequest
	}
	d.mu.Lock()
	d.listeners = append(d.listeners, fn)
	d.mu.Unlock()
	return nil
}

// Disconnect says bye, waits for the server to finish the implied leaves and closes the socket.
func (d *Driver) Disconnect(ctx context.Context) error {
	d.mu.Lock()
	s := d.sess
	d.mu.Unlock()
	if s == nil {
		return nil
	}

	bye, _ := proto.NewInbound(proto.InboundTypeBye, d.opts.ids.NewID(), nil)
	byeErr := d.request(ctx, bye)
	if errors.Is(byeErr, core.ErrNotConnected) {
		byeErr = nil
	}

	if err := s.conn.Close(); err != nil {
		d.opts.log.Debug().Err(err).Msg("close socket")
	}
	s.cancel()
	<-s.done

	d.mu.Lock()
	if d.sess == s {
		d.sess = nil
		d.pending = nil
	}
	d.listeners = nil
	d.mu.Unlock()

	return byeErr
}

func writeFrame(ctx context.Context, conn Conn, frame proto.Inbound) error {
	data, err := proto.Marshal(frame)
	if err != nil {
		return err
	}
	return conn.Write(ctx, data)
}
