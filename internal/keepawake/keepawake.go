// Package keepawake holds an OS sleep inhibitor while a long run is in
// progress, e.g. a book going through the processing pipeline or the
// simulator serving captures.
//
// The inhibitor is a child process (caffeinate on macOS, systemd-inhibit
// on Linux) bound to this process's lifetime. A Guard tracks whether it is
// held and notices when it exits on its own.
package keepawake

import (
	"context"
	"log"
	"sync"
	"time"

	apperrors "github.com/spreads/client/internal/errors"
)

// State is whether sleep is currently inhibited.
type State string

const (
	StateOff State = "off"
	StateOn  State = "on"

	// StateDegraded means inhibition was requested but is not in effect.
	StateDegraded State = "degraded"
)

// Status is a snapshot of a Guard.
type Status struct {
	State     State
	LastError string
	Since     time.Time
}

// Handle is an acquired inhibitor.
type Handle interface {
	// Done is closed when the inhibitor exits.
	Done() <-chan struct{}
	// Err is the inhibitor's exit error once Done is closed.
	Err() error
	Release(ctx context.Context) error
}

// Adapter acquires inhibitors. Command is the production adapter.
type Adapter interface {
	Acquire(ctx context.Context) (Handle, error)
}

// Guard owns at most one inhibitor.
type Guard struct {
	adapter Adapter
	now     func() time.Time

	mu     sync.Mutex
	handle Handle
	status Status
}

// New creates a Guard in the off state.
func New(adapter Adapter) *Guard {
	g := &Guard{adapter: adapter, now: time.Now}
	g.status = Status{State: StateOff, Since: g.now()}
	return g
}

// Status returns the current state.
func (g *Guard) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// Hold acquires the inhibitor if it is not already held. A failure leaves
// the guard degraded; callers carry on without inhibition.
func (g *Guard) Hold(ctx context.Context) Status {
	g.mu.Lock()
	if g.handle != nil {
		select {
		case <-g.handle.Done():
			g.handle = nil
		default:
			defer g.mu.Unlock()
			return g.status
		}
	}
	g.mu.Unlock()

	h, err := g.adapter.Acquire(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		log.Printf("keepawake: acquire failed: %v", err)
		g.setLocked(StateDegraded, err.Error())
		return g.status
	}
	g.handle = h
	g.setLocked(StateOn, "")
	go g.watch(h)
	return g.status
}

// Release drops the inhibitor. Releasing an idle guard is a no-op.
func (g *Guard) Release(ctx context.Context) error {
	g.mu.Lock()
	h := g.handle
	g.handle = nil
	g.setLocked(StateOff, "")
	g.mu.Unlock()

	if h == nil {
		return nil
	}
	if err := h.Release(ctx); err != nil {
		g.mu.Lock()
		g.status.LastError = err.Error()
		g.mu.Unlock()
		return apperrors.Wrap(apperrors.CodeKeepAwakeAcquireFailed, "release inhibitor", err)
	}
	return nil
}

// watch marks the guard degraded if h exits while still held.
func (g *Guard) watch(h Handle) {
	<-h.Done()

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.handle != h {
		return
	}
	msg := "inhibitor exited unexpectedly"
	if err := h.Err(); err != nil {
		msg = err.Error()
	}
	log.Printf("keepawake: %s", msg)
	g.handle = nil
	g.setLocked(StateDegraded, msg)
}

func (g *Guard) setLocked(state State, lastErr string) {
	g.status = Status{State: state, LastError: lastErr, Since: g.now()}
}
