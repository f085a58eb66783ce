// Package mock provides test doubles for the driver contract: a scriptable driver and a
// loopback transport for the WebSocket client driver.
package mock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vovakirdan/roomchat/internal/core"
)

// Injected failures, one per event kind.
var (
	ErrCannotEnterRoom   = errors.New("cannot enter room")
	ErrCannotLeaveRoom   = errors.New("cannot leave room")
	ErrCannotSendMessage = errors.New("cannot send message")
)

// Option configures a Backend.
type Option func(*Backend)

// WithFailures makes every trigger of the given kinds fail.
func WithFailures(kinds ...core.EventKind) Option {
	return func(b *Backend) {
		for _, k := range kinds {
			b.failing[k] = true
		}
	}
}

// WithAllowedRooms sets the allow-list: room id to permitted user ids.
func WithAllowedRooms(rooms map[string][]string) Option {
	return func(b *Backend) {
		for roomID, ids := range rooms {
			b.allowed[roomID] = append([]string(nil), ids...)
		}
	}
}

// WithConnectError makes Connect fail with err wrapped in core.ErrCannotConnect.
func WithConnectError(err error) Option {
	return func(b *Backend) { b.connectErr = err }
}

// Backend is the state shared by every mock driver bound from it.
type Backend struct {
	mu         sync.Mutex
	failing    map[core.EventKind]bool
	allowed    map[string][]string
	connectErr error
	listeners  []core.Listener
	rooms      map[string][]string
	triggered  []core.Event
}

// New constructs a Backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		failing: make(map[core.EventKind]bool),
		allowed: make(map[string][]string),
		rooms:   make(map[string][]string),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Bind returns a mock driver for user. It satisfies core.DriverFactory.
func (b *Backend) Bind(user core.User) core.Driver {
	return &Driver{backend: b, user: user}
}

// Triggered returns every event accepted so far, in order.
func (b *Backend) Triggered() []core.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]core.Event(nil), b.triggered...)
}

// Members returns the user ids in a room.
func (b *Backend) Members(roomID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.rooms[roomID]...)
}

func (b *Backend) trigger(e core.Event) error {
	b.mu.Lock()
	if err := b.applyLocked(e); err != nil {
		b.mu.Unlock()
		return err
	}
	b.triggered = append(b.triggered, e)
	listeners := append([]core.Listener(nil), b.listeners...)
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(e)
	}
	return nil
}

func (b *Backend) applyLocked(e core.Event) error {
	switch ev := e.(type) {
	case core.EnterRoom:
		if b.failing[core.EventEnterRoom] {
			return ErrCannotEnterRoom
		}
		if !has(b.allowed[ev.Room.ID], ev.User.ID) {
			return core.ErrRoomNotAllowed
		}
		if !has(b.rooms[ev.Room.ID], ev.User.ID) {
			b.rooms[ev.Room.ID] = append(b.rooms[ev.Room.ID], ev.User.ID)
		}
	case core.LeaveRoom:
		if b.failing[core.EventLeaveRoom] {
			return fmt.Errorf("%w %s", ErrCannotLeaveRoom, ev.Room.ID)
		}
		b.rooms[ev.Room.ID] = without(b.rooms[ev.Room.ID], ev.User.ID)
	case core.MessageSent:
		if b.failing[core.EventMessage] {
			return ErrCannotSendMessage
		}
	default:
		return core.ErrBadRequest
	}
	return nil
}

// Driver is a mock core.Driver.
type Driver struct {
	backend *Backend
	user    core.User
}

var _ core.Driver = (*Driver)(nil)

// Connect succeeds unless the backend was built WithConnectError.
func (d *Driver) Connect(context.Context) error {
	if err := d.backend.connectErr; err != nil {
		return fmt.Errorf("%w: %w", core.ErrCannotConnect, err)
	}
	return nil
}

// Disconnect triggers a leave-room for every room the user is in.
func (d *Driver) Disconnect(ctx context.Context) error {
	d.backend.mu.Lock()
	var rooms []string
	for roomID, ids := range d.backend.rooms {
		if has(ids, d.user.ID) {
			rooms = append(rooms, roomID)
		}
	}
	d.backend.mu.Unlock()
	sort.Strings(rooms)

	var errs []error
	for _, roomID := range rooms {
		errs = append(errs, d.Trigger(ctx, core.NewLeaveRoom(time.Now().UTC(), d.user, roomID)))
	}
	return errors.Join(errs...)
}

// Listen registers fn.
func (d *Driver) Listen(fn core.Listener) error {
	d.backend.mu.Lock()
	d.backend.listeners = append(d.backend.listeners, fn)
	d.backend.mu.Unlock()
	return nil
}

// Trigger applies e unless a failure is scripted for its kind.
func (d *Driver) Trigger(_ context.Context, e core.Event) error {
	return d.backend.trigger(e)
}

// User returns the bound user.
func (d *Driver) User() core.User {
	return d.user
}

func has(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func without(ids []string, id string) []string {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
