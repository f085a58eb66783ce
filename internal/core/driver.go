package core

import "context"

// Listener consumes events. It runs synchronously inside the trigger that produced the event.
type Listener func(Event)

// Driver is the transport a session talks through.
//
// Trigger is the only write path: it validates and applies one event, delivers it to every
// registered listener in registration order, and only then returns. A rejected trigger
// changes nothing and reaches no listener.
type Driver interface {
	// Connect establishes the transport.
	Connect(ctx context.Context) error
	// Disconnect tears the transport down. Rooms the bound user still occupies are
	// left first, so listeners observe a leave-room event for each of them.
	Disconnect(ctx context.Context) error
	// Listen registers fn for every event.
	Listen(fn Listener) error
	// Trigger publishes one event.
	Trigger(ctx context.Context, e Event) error
	// User returns the user this driver is bound to.
	User() User
}

// DriverFactory binds a driver to a user.
type DriverFactory func(User) Driver
