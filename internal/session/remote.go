// Package session holds the client-side state machines for the capture and
// processing screens.
//
// Both sessions are a Remote: a state value driven by server frames, an
// ordered history and a bounded tail of recent notices. The transition rules
// live in CaptureSession and ProcessingSession; Remote only guards the data
// and tells observers when it changed.
package session

import (
	"context"
	"sync"

	"github.com/spreads/client/internal/api"
	"github.com/spreads/client/internal/protocol"
	"github.com/spreads/client/internal/ring"
)

// TailSize is how many recent log entries or notices a session keeps.
const TailSize = 50

// Sender is the outbound half of the push channel. connection.Manager
// satisfies it.
type Sender interface {
	Send(protocol.Command) error
}

// Notifier shows user-visible banners. notify.Center satisfies it.
type Notifier interface {
	Error(message string)
	Info(message string)
}

// WorkflowUpdater persists workflow edits. api.Client satisfies it.
type WorkflowUpdater interface {
	UpdateWorkflow(ctx context.Context, id string, u api.WorkflowUpdate) (*api.Workflow, error)
}

// Remote is the state shared by every session kind: a value of type S, an
// ordered history of H and the newest TailSize entries of L.
type Remote[S, H, L any] struct {
	mu        sync.RWMutex
	state     S
	history   []H
	tail      *ring.Buffer[L]
	observers map[int]func()
	nextObsID int
}

func newRemote[S, H, L any](initial S, history []H) *Remote[S, H, L] {
	return &Remote[S, H, L]{
		state:     initial,
		history:   append([]H(nil), history...),
		tail:      ring.New[L](TailSize),
		observers: make(map[int]func()),
	}
}

// State returns a copy of the current state.
func (r *Remote[S, H, L]) State() S {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// History returns a copy of the history, oldest first.
func (r *Remote[S, H, L]) History() []H {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]H(nil), r.history...)
}

// Tail returns the retained tail entries, oldest first.
func (r *Remote[S, H, L]) Tail() []L {
	return r.tail.Snapshot()
}

// OnChange registers fn to run after every state change. fn runs on the
// goroutine that caused the change and must not block.
func (r *Remote[S, H, L]) OnChange(fn func()) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextObsID++
	id := r.nextObsID
	r.observers[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.observers, id)
	}
}

// mutate runs fn under the write lock. fn returns whether anything changed;
// observers are told after the lock is released.
func (r *Remote[S, H, L]) mutate(fn func(s *S, history *[]H) bool) {
	r.mu.Lock()
	changed := fn(&r.state, &r.history)
	r.mu.Unlock()
	if changed {
		r.changed()
	}
}

func (r *Remote[S, H, L]) push(entry L) {
	r.tail.Push(entry)
	r.changed()
}

func (r *Remote[S, H, L]) changed() {
	r.mu.RLock()
	fns := make([]func(), 0, len(r.observers))
	for _, fn := range r.observers {
		fns = append(fns, fn)
	}
	r.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}
