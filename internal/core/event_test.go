package core

import (
	"testing"
	"time"
)

func TestEventKindRoundTrip(t *testing.T) {
	for _, kind := range []EventKind{EventEnterRoom, EventLeaveRoom, EventMessage} {
		got, ok := ParseEventKind(kind.String())
		if !ok || got != kind {
			t.Fatalf("ParseEventKind(%q) = %v, %v", kind.String(), got, ok)
		}
	}
	if _, ok := ParseEventKind("user-online"); ok {
		t.Fatal("expected unknown tag to be rejected")
	}
}

func TestStampKeepsPayload(t *testing.T) {
	alice := User{ID: "a", FirstName: "Alice"}
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	msg := Message{ID: "m1", Content: "hi", User: alice, Room: Room{ID: "r"}, TS: ts.Add(-time.Second)}
	stamped := Stamp(NewMessageSent(msg), "e1", ts)

	ev, ok := stamped.(MessageSent)
	if !ok {
		t.Fatalf("unexpected type %T", stamped)
	}
	if ev.ID != "e1" || !ev.TS.Equal(ts) {
		t.Fatalf("unexpected meta: %+v", ev.EventMeta)
	}
	if !ev.Message.TS.Equal(ts) || ev.Message.ID != "m1" || ev.Message.Content != "hi" {
		t.Fatalf("unexpected message: %+v", ev.Message)
	}
	if msg.TS.Equal(ts) {
		t.Fatal("stamping must not modify the original message")
	}
}

func TestRoomAndUserOf(t *testing.T) {
	bob := User{ID: "b"}
	tests := []struct {
		name string
		ev   Event
	}{
		{name: "enter", ev: NewEnterRoom(time.Now(), bob, "r1")},
		{name: "leave", ev: NewLeaveRoom(time.Now(), bob, "r1")},
		{name: "message", ev: NewMessageSent(Message{User: bob, Room: Room{ID: "r1"}})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room, ok := RoomOf(tt.ev)
			if !ok || room.ID != "r1" {
				t.Fatalf("RoomOf = %+v, %v", room, ok)
			}
			user, ok := UserOf(tt.ev)
			if !ok || user.ID != "b" {
				t.Fatalf("UserOf = %+v, %v", user, ok)
			}
		})
	}
}

func TestWithUserReplacesActor(t *testing.T) {
	mallory := User{ID: "m"}
	alice := User{ID: "a"}

	ev := WithUser(NewMessageSent(Message{User: mallory, Room: Room{ID: "r"}}), alice)
	if user, _ := UserOf(ev); user.ID != "a" {
		t.Fatalf("expected alice, got %+v", user)
	}
}

func TestDisplayName(t *testing.T) {
	if got := (User{ID: "1", FirstName: "Ada", LastName: "Lovelace"}).DisplayName(); got != "Ada Lovelace" {
		t.Fatalf("unexpected display name %q", got)
	}
	if got := (User{ID: "1", FirstName: "Ada"}).DisplayName(); got != "Ada" {
		t.Fatalf("unexpected first-name-only display name %q", got)
	}
	if got := (User{ID: "1"}).DisplayName(); got != "1" {
		t.Fatalf("unexpected fallback %q", got)
	}
}
