package store

import (
	"context"
	"sync"
)

// AllowList is an in-memory permission table: room id to the ordered set of allowed user ids.
type AllowList struct {
	mu    sync.RWMutex
	rooms map[string][]string
}

// NewAllowList constructs an empty allow-list.
func NewAllowList() *AllowList {
	return &AllowList{rooms: make(map[string][]string)}
}

// IsAllowed reports whether userID may enter roomID.
func (a *AllowList) IsAllowed(_ context.Context, roomID, userID string) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return contains(a.rooms[roomID], userID), nil
}

// Allow adds userID to the room's allow-list. Adding twice is a no-op.
func (a *AllowList) Allow(_ context.Context, roomID, userID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !contains(a.rooms[roomID], userID) {
		a.rooms[roomID] = append(a.rooms[roomID], userID)
	}
	return nil
}

// Revoke removes userID from the room's allow-list.
func (a *AllowList) Revoke(_ context.Context, roomID, userID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := a.rooms[roomID]
	for i, id := range ids {
		if id == userID {
			a.rooms[roomID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

// AllowedUsers returns the allowed user ids of a room in grant order.
func (a *AllowList) AllowedUsers(_ context.Context, roomID string) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string{}, a.rooms[roomID]...), nil
}

// Clear removes every grant.
func (a *AllowList) Clear(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rooms = make(map[string][]string)
	return nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
