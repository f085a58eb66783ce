package core

import "time"

// EventKind discriminates the event variants.
type EventKind int

const (
	// EventEnterRoom notifies that a user entered a room.
	EventEnterRoom EventKind = iota
	// EventLeaveRoom notifies that a user left a room.
	EventLeaveRoom
	// EventMessage carries a chat message sent in a room.
	EventMessage
)

func (k EventKind) String() string {
	switch k {
	case EventEnterRoom:
		return "enter-room"
	case EventLeaveRoom:
		return "leave-room"
	case EventMessage:
		return "on-message"
	default:
		return "unknown"
	}
}

// ParseEventKind maps a wire tag back to its kind.
func ParseEventKind(s string) (EventKind, bool) {
	switch s {
	case "enter-room":
		return EventEnterRoom, true
	case "leave-room":
		return EventLeaveRoom, true
	case "on-message":
		return EventMessage, true
	default:
		return 0, false
	}
}

// EventMeta is common to every event. ID is empty until a driver accepts the event.
type EventMeta struct {
	ID string
	TS time.Time
}

// Meta returns the event metadata.
func (m EventMeta) Meta() EventMeta { return m }

// Event is one of EnterRoom, LeaveRoom or MessageSent.
// Consumers switch on the concrete type and ignore anything else.
type Event interface {
	Kind() EventKind
	Meta() EventMeta
	sealed()
}

// EnterRoom is emitted when a user enters a room.
type EnterRoom struct {
	EventMeta
	User User
	Room Room
}

// LeaveRoom is emitted when a user leaves a room, explicitly or by disconnecting.
type LeaveRoom struct {
	EventMeta
	User User
	Room Room
}

// MessageSent is emitted when a message is sent to a room.
type MessageSent struct {
	EventMeta
	Message Message
}

func (EnterRoom) Kind() EventKind   { return EventEnterRoom }
func (LeaveRoom) Kind() EventKind   { return EventLeaveRoom }
func (MessageSent) Kind() EventKind { return EventMessage }

func (EnterRoom) sealed()   {}
func (LeaveRoom) sealed()   {}
func (MessageSent) sealed() {}

// NewEnterRoom builds an unstamped enter-room event.
func NewEnterRoom(ts time.Time, user User, roomID string) EnterRoom {
	return EnterRoom{EventMeta: EventMeta{TS: ts}, User: user, Room: Room{ID: roomID}}
}

// NewLeaveRoom builds an unstamped leave-room event.
func NewLeaveRoom(ts time.Time, user User, roomID string) LeaveRoom {
	return LeaveRoom{EventMeta: EventMeta{TS: ts}, User: user, Room: Room{ID: roomID}}
}

// NewMessageSent builds an unstamped on-message event for msg.
func NewMessageSent(msg Message) MessageSent {
	return MessageSent{EventMeta: EventMeta{TS: msg.TS}, Message: msg}
}

// Stamp returns a copy of e carrying the given id and timestamp.
// A message event also gets its message timestamp aligned.
func Stamp(e Event, id string, ts time.Time) Event {
	meta := EventMeta{ID: id, TS: ts}
	switch ev := e.(type) {
	case EnterRoom:
		ev.EventMeta = meta
		return ev
	case LeaveRoom:
		ev.EventMeta = meta
		return ev
	case MessageSent:
		ev.EventMeta = meta
		ev.Message.TS = ts
		return ev
	default:
		return e
	}
}

// WithUser returns a copy of e attributed to user.
func WithUser(e Event, user User) Event {
	switch ev := e.(type) {
	case EnterRoom:
		ev.User = user
		return ev
	case LeaveRoom:
		ev.User = user
		return ev
	case MessageSent:
		ev.Message.User = user
		return ev
	default:
		return e
	}
}

// RoomOf returns the room an event refers to.
func RoomOf(e Event) (Room, bool) {
	switch ev := e.(type) {
	case EnterRoom:
		return ev.Room, true
	case LeaveRoom:
		return ev.Room, true
	case MessageSent:
		return ev.Message.Room, true
	default:
		return Room{}, false
	}
}

// UserOf returns the acting user of an event.
func UserOf(e Event) (User, bool) {
	switch ev := e.(type) {
	case EnterRoom:
		return ev.User, true
	case LeaveRoom:
		return ev.User, true
	case MessageSent:
		return ev.Message.User, true
	default:
		return User{}, false
	}
}
