// Package proto defines the JSON frames exchanged between the chat server and its WebSocket
// driver.
package proto

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/vovakirdan/roomchat/internal/core"
)

// ProtocolVersion is the highest protocol revision the server speaks.
const ProtocolVersion = 1

const (
	InboundTypeHello   = "hello"
	InboundTypeTrigger = "trigger"
	InboundTypeBye     = "bye"

	OutboundTypeWelcome = "welcome"
	OutboundTypeEvent   = "event"
	OutboundTypeAck     = "ack"
	OutboundTypeError   = "error"
)

// Inbound is the envelope for frames coming from the client. ID correlates the reply.
type Inbound struct {
	Type string              `json:"type"`
	ID   string              `json:"id,omitempty"`
	Data jsoniter.RawMessage `json:"data,omitempty"`
}

// HelloData is sent by the client to introduce itself.
type HelloData struct {
	User     UserData `json:"user"`
	Token    string   `json:"token,omitempty"`
	Protocol int      `json:"protocol,omitempty"`
}

// Outbound is the envelope for frames sent to the client.
type Outbound struct {
	Type  string              `json:"type"`
	ID    string              `json:"id,omitempty"`
	Event string              `json:"event,omitempty"`
	Data  jsoniter.RawMessage `json:"data,omitempty"`
	Error *Error              `json:"error,omitempty"`
}

// UserData is the wire form of core.User.
type UserData struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// EventPayload is the wire form of a core.Event. TS is in epoch milliseconds.
type EventPayload struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	TS      int64           `json:"ts,omitempty"`
	User    UserData        `json:"user"`
	Room    string          `json:"room"`
	Content *MessagePayload `json:"content,omitempty"`
}

// MessagePayload carries the message of an on-message event.
type MessagePayload struct {
	ID      string   `json:"id,omitempty"`
	Content string   `json:"content"`
	User    UserData `json:"user"`
	Room    string   `json:"room"`
	TS      int64    `json:"ts,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// Err rebuilds the domain error so callers can match it with errors.Is.
func (e *Error) Err() error {
	if e == nil {
		return core.NewCoreError(core.ErrCodeInternal, "error frame without details")
	}
	return core.NewCoreError(e.Code, e.Msg)
}

// NewError converts err into its wire form.
func NewError(err error) *Error {
	return &Error{Code: core.CodeOf(err), Msg: err.Error()}
}

// FromUser converts a domain user.
func FromUser(u core.User) UserData {
	return UserData{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName}
}

// User converts back to a domain user.
func (u UserData) User() core.User {
	return core.User{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName}
}
