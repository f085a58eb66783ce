package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vovakirdan/roomchat/internal/core"
)

// Driver is a per-user handle on a Store.
type Driver struct {
	store *Store
	user  core.User

	mu    sync.Mutex
	rooms []string // entered through this handle, in entry order
}

var _ core.Driver = (*Driver)(nil)

// Connect always succeeds; there is no transport to establish.
func (d *Driver) Connect(context.Context) error {
	return nil
}

// Disconnect leaves every room the user still occupies through this handle, then detaches
// the handle's listeners. Listeners therefore observe the leave events before going away.
func (d *Driver) Disconnect(ctx context.Context) error {
	d.mu.Lock()
	rooms := append([]string(nil), d.rooms...)
	d.mu.Unlock()

	var errs []error
	for _, roomID := range rooms {
		if !d.store.IsMember(roomID, d.user.ID) {
			continue
		}
		if err := d.Trigger(ctx, core.NewLeaveRoom(time.Time{}, d.user, roomID)); err != nil {
			errs = append(errs, err)
		}
	}

	d.mu.Lock()
	d.rooms = nil
	d.mu.Unlock()

	d.store.unlisten(d)
	return errors.Join(errs...)
}

// Listen registers fn on the shared listener registry.
func (d *Driver) Listen(fn core.Listener) error {
	if fn == nil {
		return core.ErrBadRequest
	}
	d.store.listen(d, fn)
	return nil
}

// Trigger applies e to the store and fans it out before returning.
func (d *Driver) Trigger(ctx context.Context, e core.Event) error {
	if e == nil {
		return core.ErrBadRequest
	}
	accepted, err := d.store.trigger(ctx, e)
	if err != nil {
		return err
	}

	switch ev := accepted.(type) {
	case core.EnterRoom:
		if ev.User.ID == d.user.ID {
			d.track(ev.Room.ID)
		}
	case core.LeaveRoom:
		if ev.User.ID == d.user.ID {
			d.untrack(ev.Room.ID)
		}
	}
	return nil
}

// User returns the bound user.
func (d *Driver) User() core.User {
	return d.user
}

func (d *Driver) track(roomID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range d.rooms {
		if id == roomID {
			return
		}
	}
	d.rooms = append(d.rooms, roomID)
}

func (d *Driver) untrack(roomID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, id := range d.rooms {
		if id == roomID {
			d.rooms = append(d.rooms[:i:i], d.rooms[i+1:]...)
			return
		}
	}
}
