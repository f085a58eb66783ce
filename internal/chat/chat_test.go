package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/driver/memory"
	"github.com/vovakirdan/roomchat/internal/driver/mock"
	"github.com/vovakirdan/roomchat/internal/utils"
)

var (
	cristian = core.User{ID: "123-32323", FirstName: "Cristian", LastName: "Gabbanini"}
	daniela  = core.User{ID: "123-42323", FirstName: "Daniela", LastName: "Bulgarelli"}
)

func newStore(t *testing.T, grants map[string][]core.User) *memory.Store {
	t.Helper()

	st := memory.NewStore(memory.WithIDGenerator(&utils.SequenceIDs{Prefix: "evt"}))
	for roomID, users := range grants {
		for _, u := range users {
			if err := st.AllowUser(context.Background(), roomID, u.ID); err != nil {
				t.Fatalf("allow: %v", err)
			}
		}
	}
	return st
}

func mustConnect(t *testing.T, factory core.DriverFactory, user core.User) *Connection {
	t.Helper()
	conn, err := New(factory, user,
		WithClock(utils.NewStepClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Millisecond)),
		WithIDGenerator(&utils.SequenceIDs{Prefix: user.ID}),
	)
	if err != nil {
		t.Fatalf("new connection: %v", err)
	}
	return conn
}

func mustEnter(t *testing.T, conn *Connection, roomID string) *RoomSession {
	t.Helper()
	session, err := conn.EnterRoom(context.Background(), roomID)
	if err != nil {
		t.Fatalf("enter %s as %s: %v", roomID, conn.User().ID, err)
	}
	return session
}

func TestNewValidatesInput(t *testing.T) {
	st := memory.NewStore()

	tests := []struct {
		name    string
		factory core.DriverFactory
		user    core.User
		want    error
	}{
		{name: "missing driver", factory: nil, user: cristian, want: core.ErrNilDriver},
		{name: "driver returns nil", factory: func(core.User) core.Driver { return nil }, user: cristian, want: core.ErrNilDriver},
		{name: "missing user id", factory: st.Bind, user: core.User{FirstName: "Nobody"}, want: core.ErrInvalidUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, err := New(tt.factory, tt.user)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if conn != nil {
				t.Fatal("no connection should be produced on error")
			}
		})
	}
}

func TestEnterRoomScenario(t *testing.T) {
	st := newStore(t, map[string][]core.User{"123": {cristian, daniela}})
	a := mustConnect(t, st.Bind, cristian)
	b := mustConnect(t, st.Bind, daniela)
	ctx := context.Background()

	roomA := mustEnter(t, a, "123")
	roomB := mustEnter(t, b, "123")

	users := st.UsersInRoom("123")
	if len(users) != 2 || users[0] != cristian || users[1] != daniela {
		t.Fatalf("unexpected members %+v", users)
	}

	var received []string
	if err := roomB.OnMessage(func(m core.Message) { received = append(received, m.Content) }); err != nil {
		t.Fatalf("daniela subscribe: %v", err)
	}
	var echoed int
	if err := roomA.OnMessage(func(core.Message) { echoed++ }); err != nil {
		t.Fatalf("cristian subscribe: %v", err)
	}

	for _, content := range []string{"Hello world", "Hello world, again!"} {
		if err := roomA.SendMessage(ctx, core.ChatMessage{Content: content}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	if n := len(st.Messages("123")); n != 2 {
		t.Fatalf("expected 2 stored messages, got %d", n)
	}
	if len(received) != 2 || received[0] != "Hello world" || received[1] != "Hello world, again!" {
		t.Fatalf("unexpected deliveries to daniela: %v", received)
	}
	if echoed != 0 {
		t.Fatalf("sender received its own messages %d times", echoed)
	}
}

func TestStoredMessagesAreEnriched(t *testing.T) {
	st := newStore(t, map[string][]core.User{"123": {cristian}})
	a := mustConnect(t, st.Bind, cristian)
	room := mustEnter(t, a, "123")

	if err := room.SendMessage(context.Background(), core.ChatMessage{Content: "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	msgs := st.Messages("123")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	msg := msgs[0]
	if msg.ID != cristian.ID+"-1" || msg.User != cristian || msg.Room.ID != "123" || msg.TS.IsZero() {
		t.Fatalf("message not enriched as expected: %+v", msg)
	}
}

func TestEnterRoomNotAllowed(t *testing.T) {
	st := newStore(t, map[string][]core.User{"123": {cristian}})
	a := mustConnect(t, st.Bind, cristian)

	session, err := a.EnterRoom(context.Background(), "999")
	if !errors.Is(err, core.ErrRoomNotAllowed) {
		t.Fatalf("expected ErrRoomNotAllowed, got %v", err)
	}
	if session != nil {
		t.Fatal("no room session should be returned")
	}
	if users := st.UsersInRoom("999"); len(users) != 0 {
		t.Fatalf("expected no members, got %+v", users)
	}
}

func TestEnterRoomRequiresRoomID(t *testing.T) {
	st := newStore(t, nil)
	a := mustConnect(t, st.Bind, cristian)

	if _, err := a.EnterRoom(context.Background(), ""); !errors.Is(err, core.ErrInvalidRoom) {
		t.Fatalf("expected ErrInvalidRoom, got %v", err)
	}
}

func TestSameUserEntersOnce(t *testing.T) {
	st := newStore(t, map[string][]core.User{"123": {cristian}})
	a := mustConnect(t, st.Bind, cristian)

	mustEnter(t, a, "123")
	mustEnter(t, a, "123")

	if users := st.UsersInRoom("123"); len(users) != 1 {
		t.Fatalf("expected 1 member, got %d", len(users))
	}
}

func TestLeaveRoom(t *testing.T) {
	st := newStore(t, map[string][]core.User{"123": {cristian}})
	a := mustConnect(t, st.Bind, cristian)
	room := mustEnter(t, a, "123")

	var left []core.User
	if err := room.OnLeaveRoom(func(u core.User, r core.Room) { left = append(left, u) }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := room.LeaveRoom(context.Background()); err != nil {
		t.Fatalf("leave: %v", err)
	}

	if users := st.UsersInRoom("123"); len(users) != 0 {
		t.Fatalf("expected empty room, got %+v", users)
	}
	if len(left) != 1 || left[0].ID != cristian.ID {
		t.Fatalf("expected own leave to be observed once, got %+v", left)
	}
	if room.Entered() {
		t.Fatal("session should no longer be entered")
	}
	if err := room.SendMessage(context.Background(), core.ChatMessage{Content: "late"}); !errors.Is(err, core.ErrRoomNotEntered) {
		t.Fatalf("expected ErrRoomNotEntered after leaving, got %v", err)
	}
}

func TestDisconnectTriggersLeave(t *testing.T) {
	st := newStore(t, map[string][]core.User{"111-222-333": {cristian, daniela}})
	a := mustConnect(t, st.Bind, cristian)
	b := mustConnect(t, st.Bind, daniela)

	roomA := mustEnter(t, a, "111-222-333")
	roomB := mustEnter(t, b, "111-222-333")

	var ownLeaves, peerLeaves int
	_ = roomA.OnLeaveRoom(func(u core.User, _ core.Room) {
		if u.ID == cristian.ID {
			ownLeaves++
		}
	})
	_ = roomB.OnLeaveRoom(func(u core.User, _ core.Room) {
		if u.ID == cristian.ID {
			peerLeaves++
		}
	})

	if err := a.Disconnect(context.Background()); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	if ownLeaves != 1 || peerLeaves != 1 {
		t.Fatalf("expected exactly one leave for each observer, got own=%d peer=%d", ownLeaves, peerLeaves)
	}
	if roomA.Entered() {
		t.Fatal("room session should be closed by disconnect")
	}
	if users := st.UsersInRoom("111-222-333"); len(users) != 1 || users[0].ID != daniela.ID {
		t.Fatalf("unexpected members after disconnect %+v", users)
	}
}

func TestOnEnterRoomSkipsSelfAndOtherRooms(t *testing.T) {
	st := newStore(t, map[string][]core.User{
		"123": {cristian, daniela},
		"456": {daniela},
	})
	a := mustConnect(t, st.Bind, cristian)
	b := mustConnect(t, st.Bind, daniela)

	room := mustEnter(t, a, "123")

	var entered []string
	if err := room.OnEnterRoom(func(u core.User, r core.Room) { entered = append(entered, u.ID+"@"+r.ID) }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	mustEnter(t, a, "123")
	mustEnter(t, b, "456")
	mustEnter(t, b, "123")

	if len(entered) != 1 || entered[0] != daniela.ID+"@123" {
		t.Fatalf("unexpected enter notifications %v", entered)
	}
}

func TestRoomIsolation(t *testing.T) {
	st := newStore(t, map[string][]core.User{
		"123-456-abc": {cristian},
		"123-991-abb": {daniela},
	})
	a := mustConnect(t, st.Bind, cristian)
	b := mustConnect(t, st.Bind, daniela)

	roomA := mustEnter(t, a, "123-456-abc")
	roomB := mustEnter(t, b, "123-991-abb")

	var received int
	_ = roomA.OnMessage(func(core.Message) { received++ })

	for _, content := range []string{"Hello world", "Hello world, again!"} {
		if err := roomB.SendMessage(context.Background(), core.ChatMessage{Content: content}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	if received != 0 {
		t.Fatalf("message leaked across rooms %d times", received)
	}
}

func TestConcurrentRoomSessions(t *testing.T) {
	st := newStore(t, map[string][]core.User{
		"r1": {cristian, daniela},
		"r2": {cristian, daniela},
	})
	a := mustConnect(t, st.Bind, cristian)
	b := mustConnect(t, st.Bind, daniela)

	r1 := mustEnter(t, a, "r1")
	r2 := mustEnter(t, a, "r2")
	peer1 := mustEnter(t, b, "r1")
	peer2 := mustEnter(t, b, "r2")

	var got1, got2 []string
	_ = r1.OnMessage(func(m core.Message) { got1 = append(got1, m.Content) })
	_ = r2.OnMessage(func(m core.Message) { got2 = append(got2, m.Content) })

	ctx := context.Background()
	_ = peer1.SendMessage(ctx, core.ChatMessage{Content: "one"})
	_ = peer2.SendMessage(ctx, core.ChatMessage{Content: "two"})

	if len(got1) != 1 || got1[0] != "one" || len(got2) != 1 || got2[0] != "two" {
		t.Fatalf("sessions not independently scoped: r1=%v r2=%v", got1, got2)
	}

	if err := r1.LeaveRoom(ctx); err != nil {
		t.Fatalf("leave r1: %v", err)
	}
	_ = peer1.SendMessage(ctx, core.ChatMessage{Content: "after"})
	_ = peer2.SendMessage(ctx, core.ChatMessage{Content: "still"})
	if len(got1) != 1 || len(got2) != 2 {
		t.Fatalf("leaving r1 affected r2 or r1 kept receiving: r1=%v r2=%v", got1, got2)
	}
}

func TestZeroRoomSessionIsGuarded(t *testing.T) {
	var session RoomSession
	ctx := context.Background()

	if err := session.SendMessage(ctx, core.ChatMessage{Content: "x"}); !errors.Is(err, core.ErrRoomNotEntered) {
		t.Fatalf("SendMessage: expected ErrRoomNotEntered, got %v", err)
	}
	if err := session.OnMessage(func(core.Message) {}); !errors.Is(err, core.ErrRoomNotEntered) {
		t.Fatalf("OnMessage: expected ErrRoomNotEntered, got %v", err)
	}
	if err := session.LeaveRoom(ctx); !errors.Is(err, core.ErrRoomNotEntered) {
		t.Fatalf("LeaveRoom: expected ErrRoomNotEntered, got %v", err)
	}
	if err := session.OnEnterRoom(func(core.User, core.Room) {}); !errors.Is(err, core.ErrRoomNotEntered) {
		t.Fatalf("OnEnterRoom: expected ErrRoomNotEntered, got %v", err)
	}

	var nilSession *RoomSession
	if err := nilSession.OnMessage(func(core.Message) {}); !errors.Is(err, core.ErrRoomNotEntered) {
		t.Fatalf("nil OnMessage: expected ErrRoomNotEntered, got %v", err)
	}
}

func TestMockDriverFailuresPropagate(t *testing.T) {
	tests := []struct {
		name string
		kind core.EventKind
		want error
	}{
		{name: "enter", kind: core.EventEnterRoom, want: mock.ErrCannotEnterRoom},
		{name: "message", kind: core.EventMessage, want: mock.ErrCannotSendMessage},
		{name: "leave", kind: core.EventLeaveRoom, want: mock.ErrCannotLeaveRoom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := mock.New(
				mock.WithFailures(tt.kind),
				mock.WithAllowedRooms(map[string][]string{"123": {cristian.ID}}),
			)
			conn := mustConnect(t, backend.Bind, cristian)
			ctx := context.Background()

			session, err := conn.EnterRoom(ctx, "123")
			if tt.kind == core.EventEnterRoom {
				if !errors.Is(err, tt.want) {
					t.Fatalf("expected %v, got %v", tt.want, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("enter: %v", err)
			}

			switch tt.kind {
			case core.EventMessage:
				err = session.SendMessage(ctx, core.ChatMessage{Content: "x"})
			case core.EventLeaveRoom:
				err = session.LeaveRoom(ctx)
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestMockDriverRoomNotAllowed(t *testing.T) {
	backend := mock.New(mock.WithAllowedRooms(map[string][]string{"123": {daniela.ID}}))
	conn := mustConnect(t, backend.Bind, cristian)

	if _, err := conn.EnterRoom(context.Background(), "123"); !errors.Is(err, core.ErrRoomNotAllowed) {
		t.Fatalf("expected ErrRoomNotAllowed, got %v", err)
	}
	if len(backend.Triggered()) != 0 {
		t.Fatal("a rejected trigger must not be recorded")
	}
}

func TestConnectFailurePropagates(t *testing.T) {
	backend := mock.New(
		mock.WithConnectError(errors.New("socket refused")),
		mock.WithAllowedRooms(map[string][]string{"123": {cristian.ID}}),
	)
	conn := mustConnect(t, backend.Bind, cristian)

	if _, err := conn.EnterRoom(context.Background(), "123"); !errors.Is(err, core.ErrCannotConnect) {
		t.Fatalf("expected ErrCannotConnect, got %v", err)
	}
	if len(backend.Triggered()) != 0 {
		t.Fatal("nothing should be triggered without a connection")
	}
}

func TestMockDriverDisconnectLeaves(t *testing.T) {
	backend := mock.New(mock.WithAllowedRooms(map[string][]string{"123": {cristian.ID, daniela.ID}}))
	a := mustConnect(t, backend.Bind, cristian)
	b := mustConnect(t, backend.Bind, daniela)

	mustEnter(t, a, "123")
	roomB := mustEnter(t, b, "123")

	var leaves int
	_ = roomB.OnLeaveRoom(func(u core.User, _ core.Room) {
		if u.ID == cristian.ID {
			leaves++
		}
	})

	if err := a.Disconnect(context.Background()); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if leaves != 1 {
		t.Fatalf("expected one leave, got %d", leaves)
	}
	if members := backend.Members("123"); len(members) != 1 || members[0] != daniela.ID {
		t.Fatalf("unexpected members %v", members)
	}
}

// rebindingDriver reports a server-assigned identity once connected.
type rebindingDriver struct {
	core.Driver
	bound     core.User
	connected bool
}

func (d *rebindingDriver) Connect(ctx context.Context) error {
	if err := d.Driver.Connect(ctx); err != nil {
		return err
	}
	d.connected = true
	return nil
}

func (d *rebindingDriver) User() core.User {
	if d.connected {
		return d.bound
	}
	return core.User{ID: "placeholder"}
}

func TestConnectionAdoptsDriverIdentity(t *testing.T) {
	st := newStore(t, map[string][]core.User{"123": {cristian, daniela}})
	factory := func(core.User) core.Driver {
		return &rebindingDriver{Driver: st.Bind(cristian), bound: cristian}
	}

	a := mustConnect(t, factory, core.User{ID: "placeholder"})
	b := mustConnect(t, st.Bind, daniela)

	roomA := mustEnter(t, a, "123")
	if got := a.User(); got != cristian {
		t.Fatalf("expected adopted identity %+v, got %+v", cristian, got)
	}
	roomB := mustEnter(t, b, "123")

	var echoed, selfEnter int
	var received []core.Message
	_ = roomA.OnMessage(func(core.Message) { echoed++ })
	_ = roomA.OnEnterRoom(func(u core.User, _ core.Room) {
		if u.ID == cristian.ID {
			selfEnter++
		}
	})
	_ = roomB.OnMessage(func(m core.Message) { received = append(received, m) })

	if err := roomA.SendMessage(context.Background(), core.ChatMessage{Content: "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	mustEnter(t, a, "123")

	if echoed != 0 || selfEnter != 0 {
		t.Fatalf("own events leaked back: messages=%d enters=%d", echoed, selfEnter)
	}
	if len(received) != 1 || received[0].User != cristian {
		t.Fatalf("unexpected delivery %+v", received)
	}
	if users := st.UsersInRoom("123"); len(users) != 2 || users[0] != cristian {
		t.Fatalf("unexpected members %+v", users)
	}
}
