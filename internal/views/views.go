// Package views holds the per-role state stores. Every mutation of a role's
// state goes through its view: notifications from the realtime channel and
// results of the commands it issues are folded with the lifecycle reducer
// under one lock, and nothing is applied after Close.
package views

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrBusy            = errors.New("views: a command is already in flight")
	ErrNoIncomingRide  = errors.New("views: no incoming ride")
	ErrNoCurrentRide   = errors.New("views: no current ride")
	ErrUnknownRide     = errors.New("views: ride is not listed")
	ErrClosed          = errors.New("views: view closed")
	ErrUnauthenticated = errors.New("views: session is not authenticated")
)

// Session is what a view needs from the session gate.
type Session interface {
	Ready() bool
	DriverID() string
	SetDriverID(ctx context.Context, driverID string) bool
}

type cloner[S any] interface {
	Clone() S
}

// core is the single mutation funnel shared by both views.
type core[S cloner[S]] struct {
	mu     sync.Mutex
	state  S
	busy   bool
	closed bool
}

// begin marks the view busy and returns a copy of the state the command
// starts from. end must follow every successful begin.
func (c *core[S]) begin() (S, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		var zero S
		return zero, ErrClosed
	}
	if c.busy {
		var zero S
		return zero, ErrBusy
	}
	c.busy = true
	return c.state.Clone(), nil
}

func (c *core[S]) end() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}

// apply folds fn into the state. It reports false once the view is closed.
func (c *core[S]) apply(fn func(S) S) (S, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.state.Clone(), false
	}
	c.state = fn(c.state)
	return c.state.Clone(), true
}

func (c *core[S]) read() (S, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone(), c.busy
}

func (c *core[S]) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	was := c.closed
	c.closed = true
	return !was
}

func (c *core[S]) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
