// Package chat is the room-oriented API on top of a core.Driver.
//
// A Connection binds one driver to one user. Entering a room yields a RoomSession that
// scopes messaging and presence to that room: the driver broadcasts every event and the
// session filters by room id and sender.
package chat

import (
	"context"
	"sync"

	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/utils"
)

// Option customizes a Connection.
type Option func(*Connection)

// WithClock sets the clock used to stamp outgoing events.
func WithClock(c utils.Clock) Option {
	return func(conn *Connection) { conn.clock = c }
}

// WithIDGenerator sets the generator for outgoing message ids.
func WithIDGenerator(g utils.IDGenerator) Option {
	return func(conn *Connection) { conn.ids = g }
}

// Connection is a user's long-lived handle on a driver.
type Connection struct {
	driver core.Driver
	user   core.User
	clock  utils.Clock
	ids    utils.IDGenerator

	mu        sync.Mutex
	connected bool
	sessions  []*RoomSession
}

// New binds factory to user. It is the only operation that fails synchronously on bad input.
func New(factory core.DriverFactory, user core.User, opts ...Option) (*Connection, error) {
	if factory == nil {
		return nil, core.ErrNilDriver
	}
	if user.ID == "" {
		return nil, core.ErrInvalidUser
	}
	driver := factory(user)
	if driver == nil {
		return nil, core.ErrNilDriver
	}

	c := &Connection{
		driver: driver,
		user:   user,
		clock:  utils.SystemClock{},
		ids:    utils.UUIDGenerator{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// User returns the bound user. After Connect this is the identity the driver reports,
// which a server may have replaced (for example with a token subject).
func (c *Connection) User() core.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// Driver returns the bound driver.
func (c *Connection) Driver() core.Driver {
	return c.driver
}

// Connect establishes the driver's transport. EnterRoom calls it on first use.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}
	if err := c.driver.Connect(ctx); err != nil {
		return err
	}
	if u := c.driver.User(); u.ID != "" {
		c.user = u
	}
	c.connected = true
	return nil
}

// EnterRoom asks the driver to admit the user to roomID. Driver errors are returned as is.
func (c *Connection) EnterRoom(ctx context.Context, roomID string) (*RoomSession, error) {
	if roomID == "" {
		return nil, core.ErrInvalidRoom
	}
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	if err := c.driver.Trigger(ctx, core.NewEnterRoom(c.clock.Now(), c.User(), roomID)); err != nil {
		return nil, err
	}

	session := &RoomSession{conn: c, room: core.Room{ID: roomID}, entered: true}
	c.mu.Lock()
	c.sessions = append(c.sessions, session)
	c.mu.Unlock()
	return session, nil
}

// Disconnect tears down the driver. The driver leaves the rooms the user still occupies,
// and every room session of this connection stops sending and receiving.
func (c *Connection) Disconnect(ctx context.Context) error {
	err := c.driver.Disconnect(ctx)

	c.mu.Lock()
	sessions := c.sessions
	c.sessions = nil
	c.connected = false
	c.mu.Unlock()

	for _, s := range sessions {
		s.markLeft()
	}
	return err
}
