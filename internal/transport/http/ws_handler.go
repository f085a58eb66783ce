package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/auth"
	"github.com/vovakirdan/roomchat/internal/config"
	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/driver/memory"
	"github.com/vovakirdan/roomchat/internal/proto"
	"github.com/vovakirdan/roomchat/internal/utils"
)

// WSHandler upgrades HTTP connections and bridges each one to a driver handle on the chat store.
type WSHandler struct {
	chat *memory.Store
	cfg  *config.Config
	jwt  *auth.JWTConfig
	log  *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler. A nil jwtCfg disables token validation.
func NewWSHandler(chat *memory.Store, cfg *config.Config, jwtCfg *auth.JWTConfig, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{chat: chat, cfg: cfg, jwt: jwtCfg, log: logger}
}

// wsConn is the per-connection state. Only the read loop touches limiter and closing.
type wsConn struct {
	conn    *websocket.Conn
	user    core.User
	driver  core.Driver
	out     chan proto.Outbound
	limiter *rateLimiter
	closing bool
	log     zerolog.Logger
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	connLog := h.log.With().Str("conn_id", utils.NewID()).Logger()

	user, err := h.handshake(ctx, conn)
	if err != nil {
		connLog.Warn().Err(err).Msg("ws handshake failed")
		conn.Close(websocket.StatusPolicyViolation, "handshake failed")
		return
	}
	connLog = connLog.With().Str("user_id", user.ID).Logger()

	buffer := h.cfg.OutboundBuffer
	if buffer <= 0 {
		buffer = 1
	}
	c := &wsConn{
		conn:    conn,
		user:    user,
		driver:  h.chat.Bind(user),
		out:     make(chan proto.Outbound, buffer),
		limiter: newRateLimiter(h.cfg.RateLimitPerMinute),
		log:     connLog,
	}
	if err := c.driver.Listen(c.enqueueEvent); err != nil {
		connLog.Error().Err(err).Msg("listen on chat store")
		return
	}
	connLog.Info().Msg("ws client connected")

	errCh := make(chan error, 2)
	go func() {
		errCh <- c.readLoop(ctx)
	}()
	go func() {
		errCh <- c.writeLoop(ctx)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	// Peers observe the implied leave-room events.
	if dErr := c.driver.Disconnect(context.Background()); dErr != nil {
		connLog.Warn().Err(dErr).Msg("disconnect chat driver")
	}
	connLog.Info().Msg("ws client disconnected")

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			connLog.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// handshake reads the hello frame, answers welcome or error and returns the bound user.
func (h *WSHandler) handshake(ctx context.Context, conn *websocket.Conn) (core.User, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return core.User{}, fmt.Errorf("read hello: %w", err)
	}

	var inbound proto.Inbound
	if err := proto.Unmarshal(data, &inbound); err != nil || inbound.Type != proto.InboundTypeHello {
		herr := core.NewCoreError(core.ErrCodeBadRequest, "hello required")
		_ = writeFrame(ctx, conn, proto.ErrorFrame(inbound.ID, herr))
		return core.User{}, herr
	}

	var hello proto.HelloData
	if len(inbound.Data) > 0 {
		if err := proto.Unmarshal(inbound.Data, &hello); err != nil {
			herr := core.NewCoreError(core.ErrCodeBadRequest, "malformed hello")
			_ = writeFrame(ctx, conn, proto.ErrorFrame(inbound.ID, herr))
			return core.User{}, herr
		}
	}

	user, err := h.helloUser(hello)
	if err != nil {
		_ = writeFrame(ctx, conn, proto.ErrorFrame(inbound.ID, err))
		return core.User{}, err
	}

	welcome, err := proto.NewOutbound(proto.OutboundTypeWelcome, inbound.ID, proto.FromUser(user))
	if err != nil {
		return core.User{}, err
	}
	if err := writeFrame(ctx, conn, welcome); err != nil {
		return core.User{}, fmt.Errorf("write welcome: %w", err)
	}
	return user, nil
}

// helloUser resolves the connection identity. A valid token wins over the announced user.
func (h *WSHandler) helloUser(hello proto.HelloData) (core.User, error) {
	if hello.Protocol > proto.ProtocolVersion {
		return core.User{}, core.NewCoreError(core.ErrCodeUnsupportedVersion, "unsupported protocol version")
	}

	if h.jwt != nil && hello.Token != "" {
		claims, err := auth.ValidateToken(h.jwt, hello.Token)
		if err != nil {
			return core.User{}, core.NewCoreError(core.ErrCodeUnauthorized, "invalid token")
		}
		return claims.User(), nil
	}
	if h.cfg.JWTRequired {
		return core.User{}, core.NewCoreError(core.ErrCodeUnauthorized, "token required")
	}

	user := hello.User.User()
	if user.ID == "" {
		return core.User{}, core.NewCoreError(core.ErrCodeUnauthorized, "user id is required")
	}
	return user, nil
}

// enqueueEvent runs inside the store's fan-out and must not block.
func (c *wsConn) enqueueEvent(e core.Event) {
	frame, err := proto.EventFrame(e)
	if err != nil {
		c.log.Error().Err(err).Msg("encode event")
		return
	}
	select {
	case c.out <- frame:
	default:
		c.log.Warn().Str("event", e.Kind().String()).Msg("outbound buffer full, dropping event")
	}
}

func (c *wsConn) reply(ctx context.Context, frame proto.Outbound) error {
	select {
	case c.out <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *wsConn) readLoop(ctx context.Context) error {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return err
		}

		var inbound proto.Inbound
		if err := proto.Unmarshal(data, &inbound); err != nil {
			c.log.Debug().Err(err).Msg("malformed inbound frame")
			if err := c.reply(ctx, proto.ErrorFrame("", core.NewCoreError(core.ErrCodeBadRequest, "malformed frame"))); err != nil {
				return err
			}
			continue
		}

		if err := c.reply(ctx, c.handle(ctx, inbound)); err != nil {
			return err
		}
	}
}

// handle executes one inbound frame and returns the reply to send.
func (c *wsConn) handle(ctx context.Context, inbound proto.Inbound) proto.Outbound {
	ack := proto.Outbound{Type: proto.OutboundTypeAck, ID: inbound.ID}

	switch inbound.Type {
	case proto.InboundTypeTrigger:
		if c.closing {
			return proto.ErrorFrame(inbound.ID, core.ErrNotConnected)
		}
		if !c.limiter.allow() {
			c.log.Debug().Msg("trigger rate limited")
			return proto.ErrorFrame(inbound.ID, core.ErrRateLimited)
		}
		e, err := inboundToEvent(c.user, inbound)
		if err != nil {
			return proto.ErrorFrame(inbound.ID, err)
		}
		if err := c.driver.Trigger(ctx, e); err != nil {
			c.log.Debug().Err(err).Str("event", e.Kind().String()).Msg("trigger rejected")
			return proto.ErrorFrame(inbound.ID, err)
		}
		return ack
	case proto.InboundTypeBye:
		c.closing = true
		if err := c.driver.Disconnect(ctx); err != nil {
			c.log.Warn().Err(err).Msg("disconnect on bye")
		}
		return ack
	case proto.InboundTypeHello:
		return proto.ErrorFrame(inbound.ID, core.NewCoreError(core.ErrCodeBadRequest, "already greeted"))
	default:
		return proto.ErrorFrame(inbound.ID, core.NewCoreError(core.ErrCodeBadRequest, "unknown message type"))
	}
}

func (c *wsConn) writeLoop(ctx context.Context) error {
	for {
		select {
		case frame := <-c.out:
			if err := writeFrame(ctx, c.conn, frame); err != nil {
				c.log.Error().Err(err).Msg("write ws frame")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, frame proto.Outbound) error {
	data, err := proto.Marshal(frame)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
