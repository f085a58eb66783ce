package proto

import (
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/vovakirdan/roomchat/internal/core"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrUnknownEvent is returned when a payload names an event type this build does not know.
var ErrUnknownEvent = errors.New("unknown event type")

// Marshal encodes v with the package codec.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes data into v with the package codec.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// NewOutbound builds a frame whose data is v encoded. A nil v leaves data empty.
func NewOutbound(typ, id string, v any) (Outbound, error) {
	out := Outbound{Type: typ, ID: id}
	if v == nil {
		return out, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return Outbound{}, fmt.Errorf("encode %s data: %w", typ, err)
	}
	out.Data = raw
	return out, nil
}

// NewInbound builds a client frame whose data is v encoded.
func NewInbound(typ, id string, v any) (Inbound, error) {
	in := Inbound{Type: typ, ID: id}
	if v == nil {
		return in, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return Inbound{}, fmt.Errorf("encode %s data: %w", typ, err)
	}
	in.Data = raw
	return in, nil
}

// EventFrame wraps e in an event frame.
func EventFrame(e core.Event) (Outbound, error) {
	out, err := NewOutbound(OutboundTypeEvent, "", EncodeEvent(e))
	if err != nil {
		return Outbound{}, err
	}
	out.Event = e.Kind().String()
	return out, nil
}

// ErrorFrame replies to request id with err.
func ErrorFrame(id string, err error) Outbound {
	return Outbound{Type: OutboundTypeError, ID: id, Error: NewError(err)}
}

// EncodeEvent converts a domain event to its wire payload.
func EncodeEvent(e core.Event) EventPayload {
	meta := e.Meta()
	p := EventPayload{ID: meta.ID, Type: e.Kind().String(), TS: toMillis(meta.TS)}

	switch ev := e.(type) {
	case core.EnterRoom:
		p.User = FromUser(ev.User)
		p.Room = ev.Room.ID
	case core.LeaveRoom:
		p.User = FromUser(ev.User)
		p.Room = ev.Room.ID
	case core.MessageSent:
		p.User = FromUser(ev.Message.User)
		p.Room = ev.Message.Room.ID
		p.Content = &MessagePayload{
			ID:      ev.Message.ID,
			Content: ev.Message.Content,
			User:    p.User,
			Room:    p.Room,
			TS:      toMillis(ev.Message.TS),
		}
	}
	return p
}

// DecodeEvent converts a wire payload to a domain event.
func DecodeEvent(p EventPayload) (core.Event, error) {
	kind, ok := core.ParseEventKind(p.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, p.Type)
	}
	meta := core.EventMeta{ID: p.ID, TS: fromMillis(p.TS)}

	switch kind {
	case core.EventEnterRoom:
		return core.EnterRoom{EventMeta: meta, User: p.User.User(), Room: core.Room{ID: p.Room}}, nil
	case core.EventLeaveRoom:
		return core.LeaveRoom{EventMeta: meta, User: p.User.User(), Room: core.Room{ID: p.Room}}, nil
	default:
		if p.Content == nil {
			return nil, fmt.Errorf("%w: on-message without content", core.ErrBadRequest)
		}
		msg := core.Message{
			ID:      p.Content.ID,
			Content: p.Content.Content,
			User:    p.Content.User.User(),
			Room:    core.Room{ID: p.Content.Room},
			TS:      fromMillis(p.Content.TS),
		}
		if msg.User.ID == "" {
			msg.User = p.User.User()
		}
		if msg.Room.ID == "" {
			msg.Room.ID = p.Room
		}
		if msg.TS.IsZero() {
			msg.TS = meta.TS
		}
		return core.MessageSent{EventMeta: meta, Message: msg}, nil
	}
}

// DecodeEventData unmarshals raw frame data and decodes the event in it.
func DecodeEventData(raw []byte) (core.Event, error) {
	var p EventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrBadRequest, err)
	}
	return DecodeEvent(p)
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
