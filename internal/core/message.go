package core

import "time"

// ChatMessage is a message as authored by the sender.
type ChatMessage struct {
	Content string `json:"content"`
}

// Message is a chat message enriched with sender, room, timestamp and id.
// It is passed by value and never modified after creation.
type Message struct {
	ID      string
	Content string
	User    User
	Room    Room
	TS      time.Time
}
