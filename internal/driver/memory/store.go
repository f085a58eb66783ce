// Package memory is the reference in-process driver. A Store owns the membership,
// permission, message, listener and event tables; Bind hands out per-user drivers
// that share them.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/store"
	"github.com/vovakirdan/roomchat/internal/utils"
)

// ErrReadOnlyPermissions is returned by AllowUser when the permission store cannot grant.
var ErrReadOnlyPermissions = errors.New("permission store does not accept grants")

// Option customizes a Store.
type Option func(*Store)

// WithPermissions replaces the default in-memory allow-list.
func WithPermissions(p store.Permissions) Option {
	return func(s *Store) { s.permissions = p }
}

// WithClock sets the time source for events stamped without a timestamp.
func WithClock(c utils.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithIDGenerator sets the generator for event and message ids.
func WithIDGenerator(g utils.IDGenerator) Option {
	return func(s *Store) { s.ids = g }
}

// WithLogger sets the logger used for rejected triggers.
func WithLogger(l *zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

type listenerEntry struct {
	owner *Driver
	fn    core.Listener
}

// Store holds the chat state shared by every driver bound from it.
type Store struct {
	// triggerMu serializes triggers across apply and fan-out.
	triggerMu sync.Mutex

	mu           sync.RWMutex
	rooms        map[string][]core.User
	roomMessages map[string][]string
	messages     map[string]core.Message
	events       map[string]core.Event
	eventOrder   []string
	listeners    []*listenerEntry
	lastTS       time.Time

	permissions store.Permissions
	clock       utils.Clock
	ids         utils.IDGenerator
	log         *zerolog.Logger
}

// NewStore constructs an empty store. Without WithPermissions nobody may enter any room
// until AllowUser is called.
func NewStore(opts ...Option) *Store {
	nop := zerolog.Nop()
	s := &Store{
		rooms:        make(map[string][]core.User),
		roomMessages: make(map[string][]string),
		messages:     make(map[string]core.Message),
		events:       make(map[string]core.Event),
		permissions:  store.NewAllowList(),
		clock:        utils.SystemClock{},
		ids:          utils.UUIDGenerator{},
		log:          &nop,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bind returns a driver for user backed by this store. It satisfies core.DriverFactory.
func (s *Store) Bind(user core.User) core.Driver {
	return &Driver{store: s, user: user}
}

// Subscribe registers a listener not tied to any driver. The returned func removes it.
func (s *Store) Subscribe(fn core.Listener) func() {
	entry := &listenerEntry{fn: fn}
	s.mu.Lock()
	s.listeners = append(s.listeners, entry)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l == entry {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// AllowUser grants userID access to roomID through the permission store.
func (s *Store) AllowUser(ctx context.Context, roomID, userID string) error {
	granter, ok := s.permissions.(store.PermissionGranter)
	if !ok {
		return ErrReadOnlyPermissions
	}
	return granter.Allow(ctx, roomID, userID)
}

// Permissions returns the permission collaborator consulted on enter-room.
func (s *Store) Permissions() store.Permissions {
	return s.permissions
}

func (s *Store) listen(owner *Driver, fn core.Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, &listenerEntry{owner: owner, fn: fn})
	s.mu.Unlock()
}

func (s *Store) unlisten(owner *Driver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.listeners[:0:0]
	for _, l := range s.listeners {
		if l.owner != owner {
			kept = append(kept, l)
		}
	}
	s.listeners = kept
}

// trigger validates and applies e, then delivers the accepted event to every listener.
func (s *Store) trigger(ctx context.Context, e core.Event) (core.Event, error) {
	s.triggerMu.Lock()
	defer s.triggerMu.Unlock()

	accepted, err := s.apply(ctx, e)
	if err != nil {
		s.log.Debug().Err(err).Str("event", e.Kind().String()).Msg("trigger rejected")
		return nil, err
	}

	s.mu.RLock()
	listeners := make([]*listenerEntry, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	for _, l := range listeners {
		l.fn(accepted)
	}
	return accepted, nil
}

func (s *Store) apply(ctx context.Context, e core.Event) (core.Event, error) {
	user, _ := core.UserOf(e)
	room, ok := core.RoomOf(e)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported event %T", core.ErrBadRequest, e)
	}
	if user.ID == "" || room.ID == "" {
		return nil, fmt.Errorf("%w: %s event needs a user and a room", core.ErrBadRequest, e.Kind())
	}

	if _, entering := e.(core.EnterRoom); entering {
		allowed, err := s.permissions.IsAllowed(ctx, room.ID, user.ID)
		if err != nil {
			return nil, fmt.Errorf("check permission: %w", err)
		}
		if !allowed {
			return nil, fmt.Errorf("%w: user %s is not allowed to enter room %s", core.ErrRoomNotAllowed, user.ID, room.ID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ev, sending := e.(core.MessageSent); sending {
		if indexOf(s.rooms[room.ID], user.ID) < 0 {
			return nil, fmt.Errorf("%w: user %s has not entered room %s", core.ErrNotInRoom, user.ID, room.ID)
		}
		if _, dup := s.messages[ev.Message.ID]; dup && ev.Message.ID != "" {
			return nil, fmt.Errorf("%w: duplicate message id %s", core.ErrBadRequest, ev.Message.ID)
		}
	}

	stamped := core.Stamp(e, s.ids.NewID(), s.nextTS(e.Meta().TS))

	switch ev := stamped.(type) {
	case core.EnterRoom:
		members := s.rooms[room.ID]
		if members == nil {
			members = []core.User{}
		}
		if indexOf(members, user.ID) < 0 {
			members = append(members, ev.User)
		}
		s.rooms[room.ID] = members
	case core.LeaveRoom:
		if i := indexOf(s.rooms[room.ID], user.ID); i >= 0 {
			members := s.rooms[room.ID]
			s.rooms[room.ID] = append(members[:i:i], members[i+1:]...)
		}
	case core.MessageSent:
		if ev.Message.ID == "" {
			ev.Message.ID = s.ids.NewID()
			stamped = ev
		}
		s.messages[ev.Message.ID] = ev.Message
		s.roomMessages[room.ID] = append(s.roomMessages[room.ID], ev.Message.ID)
	}

	id := stamped.Meta().ID
	s.events[id] = stamped
	s.eventOrder = append(s.eventOrder, id)
	return stamped, nil
}

// nextTS keeps timestamps non-decreasing. Callers hold s.mu.
func (s *Store) nextTS(ts time.Time) time.Time {
	if ts.IsZero() {
		ts = s.clock.Now()
	}
	ts = ts.UTC()
	if ts.Before(s.lastTS) {
		ts = s.lastTS
	}
	s.lastTS = ts
	return ts
}

// UsersInRoom returns the members of a room in entry order, or nil if nobody ever entered it.
func (s *Store) UsersInRoom(roomID string) []core.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	return append([]core.User{}, members...)
}

// IsMember reports whether userID currently occupies roomID.
func (s *Store) IsMember(roomID, userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return indexOf(s.rooms[roomID], userID) >= 0
}

// Rooms returns the ids of every room ever entered, sorted.
func (s *Store) Rooms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Messages returns the messages stored for a room in send order.
func (s *Store) Messages(roomID string) []core.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.roomMessages[roomID]
	out := make([]core.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.messages[id])
	}
	return out
}

// Message looks up a stored message by id.
func (s *Store) Message(id string) (core.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[id]
	return msg, ok
}

// Events returns the event log in acceptance order.
func (s *Store) Events() []core.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Event, 0, len(s.eventOrder))
	for _, id := range s.eventOrder {
		out = append(out, s.events[id])
	}
	return out
}

// Event looks up a logged event by id.
func (s *Store) Event(id string) (core.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	return ev, ok
}

// ClearRooms empties the membership table.
func (s *Store) ClearRooms() {
	s.mu.Lock()
	s.rooms = make(map[string][]core.User)
	s.mu.Unlock()
}

// ClearMessages empties the message store.
func (s *Store) ClearMessages() {
	s.mu.Lock()
	s.roomMessages = make(map[string][]string)
	s.messages = make(map[string]core.Message)
	s.mu.Unlock()
}

// ClearEvents empties the event log.
func (s *Store) ClearEvents() {
	s.mu.Lock()
	s.events = make(map[string]core.Event)
	s.eventOrder = nil
	s.mu.Unlock()
}

// ClearListeners drops every registered listener.
func (s *Store) ClearListeners() {
	s.mu.Lock()
	s.listeners = nil
	s.mu.Unlock()
}

// ClearPermissions wipes the permission store if it supports it.
func (s *Store) ClearPermissions(ctx context.Context) error {
	clearer, ok := s.permissions.(store.Clearer)
	if !ok {
		return ErrReadOnlyPermissions
	}
	return clearer.Clear(ctx)
}

func indexOf(users []core.User, id string) int {
	for i, u := range users {
		if u.ID == id {
			return i
		}
	}
	return -1
}
