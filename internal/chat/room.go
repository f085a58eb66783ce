package chat

import (
	"context"
	"sync"

	"github.com/vovakirdan/roomchat/internal/core"
)

// RoomSession scopes messaging and presence to one room for one user.
type RoomSession struct {
	conn *Connection
	room core.Room

	mu      sync.Mutex
	entered bool
}

// Room returns the room this session is bound to.
func (s *RoomSession) Room() core.Room {
	if s == nil {
		return core.Room{}
	}
	return s.room
}

// Entered reports whether the session is still inside its room.
func (s *RoomSession) Entered() bool {
	if s == nil || s.conn == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entered
}

func (s *RoomSession) requireEntered() error {
	if !s.Entered() {
		return core.ErrRoomNotEntered
	}
	return nil
}

// SendMessage stamps msg with sender, room, time and id and publishes it.
func (s *RoomSession) SendMessage(ctx context.Context, msg core.ChatMessage) error {
	if err := s.requireEntered(); err != nil {
		return err
	}
	c := s.conn
	return c.driver.Trigger(ctx, core.NewMessageSent(core.Message{
		ID:      c.ids.NewID(),
		Content: msg.Content,
		User:    c.User(),
		Room:    s.room,
		TS:      c.clock.Now(),
	}))
}

// OnMessage delivers messages sent to this room by other users.
func (s *RoomSession) OnMessage(fn func(core.Message)) error {
	if err := s.requireEntered(); err != nil {
		return err
	}
	if fn == nil {
		return core.ErrBadRequest
	}
	self := s.conn.User().ID
	return s.conn.driver.Listen(func(e core.Event) {
		ev, ok := e.(core.MessageSent)
		if !ok || ev.Message.Room.ID != s.room.ID || ev.Message.User.ID == self {
			return
		}
		if !s.Entered() {
			return
		}
		fn(ev.Message)
	})
}

// LeaveRoom publishes a leave-room event. Afterwards the session no longer sends or receives.
func (s *RoomSession) LeaveRoom(ctx context.Context) error {
	if s == nil || s.conn == nil {
		return core.ErrRoomNotEntered
	}
	c := s.conn
	if err := c.driver.Trigger(ctx, core.NewLeaveRoom(c.clock.Now(), c.User(), s.room.ID)); err != nil {
		return err
	}
	s.markLeft()
	return nil
}

func (s *RoomSession) markLeft() {
	s.mu.Lock()
	s.entered = false
	s.mu.Unlock()
}

// OnEnterRoom reports other users entering this room.
func (s *RoomSession) OnEnterRoom(fn func(core.User, core.Room)) error {
	if s == nil || s.conn == nil {
		return core.ErrRoomNotEntered
	}
	if fn == nil {
		return core.ErrBadRequest
	}
	self := s.conn.User().ID
	return s.conn.driver.Listen(func(e core.Event) {
		if ev, ok := e.(core.EnterRoom); ok && ev.Room.ID == s.room.ID && ev.User.ID != self {
			fn(ev.User, ev.Room)
		}
	})
}

// OnLeaveRoom reports users leaving this room, the subscriber included. A disconnect
// shows up here as a leave.
func (s *RoomSession) OnLeaveRoom(fn func(core.User, core.Room)) error {
	if s == nil || s.conn == nil {
		return core.ErrRoomNotEntered
	}
	if fn == nil {
		return core.ErrBadRequest
	}
	return s.conn.driver.Listen(func(e core.Event) {
		if ev, ok := e.(core.LeaveRoom); ok && ev.Room.ID == s.room.ID {
			fn(ev.User, ev.Room)
		}
	})
}
