package utils

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// IDGenerator produces globally unique identifiers for events and messages.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator issues random (version 4) UUIDs.
type UUIDGenerator struct{}

// NewID returns a new UUID string.
func (UUIDGenerator) NewID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		// Fallback to timestamp if the random source is unavailable.
		return strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return id.String()
}

// NewID returns a best-effort unique identifier.
func NewID() string {
	return UUIDGenerator{}.NewID()
}

// SequenceIDs yields prefix-1, prefix-2, ... for deterministic tests.
type SequenceIDs struct {
	Prefix string

	mu   sync.Mutex
	next int
}

// NewID returns the next identifier in the sequence.
func (s *SequenceIDs) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return s.Prefix + "-" + strconv.Itoa(s.next)
}
