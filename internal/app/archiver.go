package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/driver/memory"
	"github.com/vovakirdan/roomchat/internal/store"
)

const saveTimeout = 5 * time.Second

// Archiver copies every accepted message into an Archive. Messages are queued from the
// chat store's fan-out and written by a single goroutine; a full queue drops messages.
type Archiver struct {
	archive store.Archive
	queue   chan core.Message
	log     *zerolog.Logger

	mu          sync.Mutex
	closed      bool
	unsubscribe func()
	wg          sync.WaitGroup
}

// NewArchiver builds an archiver with room for buffer pending messages.
func NewArchiver(archive store.Archive, buffer int, logger *zerolog.Logger) *Archiver {
	if buffer <= 0 {
		buffer = 1
	}
	return &Archiver{
		archive: archive,
		queue:   make(chan core.Message, buffer),
		log:     logger,
	}
}

// Attach subscribes to chat and starts writing.
func (a *Archiver) Attach(chat *memory.Store) {
	a.wg.Add(1)
	go a.drain()

	unsubscribe := chat.Subscribe(a.listen)
	a.mu.Lock()
	a.unsubscribe = unsubscribe
	a.mu.Unlock()
}

func (a *Archiver) listen(e core.Event) {
	ev, ok := e.(core.MessageSent)
	if !ok {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- ev.Message:
	default:
		a.log.Warn().Str("room_id", ev.Message.Room.ID).Str("message_id", ev.Message.ID).Msg("archive queue full, dropping message")
	}
}

func (a *Archiver) drain() {
	defer a.wg.Done()
	for msg := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		if err := a.archive.SaveMessage(ctx, msg); err != nil {
			a.log.Error().Err(err).Str("room_id", msg.Room.ID).Str("message_id", msg.ID).Msg("archive message")
		}
		cancel()
	}
}

// Close detaches from the chat store and waits until queued messages are written.
func (a *Archiver) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	unsubscribe := a.unsubscribe
	close(a.queue)
	a.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	a.wg.Wait()
}
