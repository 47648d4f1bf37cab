// Package router decodes push-channel frames and hands each one to the
// consumer that subscribed for its domain.
//
// Subscriptions are explicit. A screen subscribes its session when it mounts
// and calls the returned unsubscribe function when it exits; frames for a
// domain nobody is subscribed to are dropped. Handler interfaces carry one
// method per variant, so a consumer that forgets a variant does not compile.
package router

import (
	"log"
	"sync"

	apperrors "github.com/spreads/client/internal/errors"
	"github.com/spreads/client/internal/protocol"
)

// CaptureHandler consumes the capture domain.
type CaptureHandler interface {
	OnCaptureStatus(protocol.CaptureStatus)
	OnCaptureComplete(protocol.CaptureComplete)
	OnPreviewUpdate(protocol.PreviewUpdate)
	OnCaptureError(protocol.CaptureError)
}

// ProcessingHandler consumes the processing domain.
type ProcessingHandler interface {
	OnProcessingStatus(protocol.ProcessingStatus)
	OnProcessingStep(protocol.ProcessingStep)
	OnProcessingLog(protocol.ProcessingLog)
	OnProcessingComplete(protocol.ProcessingComplete)
	OnProcessingError(protocol.ProcessingError)
}

// AppHandler consumes app-wide frames.
type AppHandler interface {
	OnLog(protocol.Log)
	OnNotification(protocol.Notification)
}

// Stats counts frames by outcome.
type Stats struct {
	Dispatched uint64 // delivered to at least one subscriber
	Dropped    uint64 // recognized, but no subscriber for the domain
	Ignored    uint64 // well-formed frame with an unknown type
	Malformed  uint64 // decode failed
}

// slot holds a single-subscriber domain. id distinguishes subscriptions so
// a stale unsubscribe cannot remove a newer subscriber.
type slot[H any] struct {
	id      uint64
	handler H
	set     bool
}

// Router dispatches decoded frames. It is safe for concurrent use, but
// Dispatch is expected to be called from a single read goroutine so that
// frames are delivered in arrival order.
type Router struct {
	mu         sync.Mutex
	nextID     uint64
	capture    slot[CaptureHandler]
	processing slot[ProcessingHandler]
	app        map[uint64]AppHandler
	taps       map[uint64]func(protocol.Inbound)
	onError    func(error)
	stats      Stats
}

// New creates an empty router.
func New() *Router {
	return &Router{
		app:  make(map[uint64]AppHandler),
		taps: make(map[uint64]func(protocol.Inbound)),
	}
}

// OnError registers the hook that observes malformed frames. The hook runs
// on the dispatching goroutine.
func (r *Router) OnError(fn func(error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onError = fn
}

// SubscribeCapture makes h the capture consumer, replacing any previous one.
func (r *Router) SubscribeCapture(h CaptureHandler) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.capture = slot[CaptureHandler]{id: id, handler: h, set: true}
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.capture.id == id {
			r.capture = slot[CaptureHandler]{}
		}
	}
}

// SubscribeProcessing makes h the processing consumer, replacing any
// previous one.
func (r *Router) SubscribeProcessing(h ProcessingHandler) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.processing = slot[ProcessingHandler]{id: id, handler: h, set: true}
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.processing.id == id {
			r.processing = slot[ProcessingHandler]{}
		}
	}
}

// SubscribeApp adds an app-wide consumer. Several may be active.
func (r *Router) SubscribeApp(h AppHandler) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.app[id] = h
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.app, id)
	}
}

// Tap observes every recognized frame before domain delivery. Used by the
// watch command; taps do not count as subscribers.
func (r *Router) Tap(fn func(protocol.Inbound)) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.taps[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.taps, id)
	}
}

// Dispatch decodes raw and delivers it.
//
// A malformed frame is counted, reported to the error hook, and returned as
// a protocol.invalid_message error. An unknown type returns (nil, nil).
func (r *Router) Dispatch(raw []byte) (protocol.Inbound, error) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		r.mu.Lock()
		r.stats.Malformed++
		hook := r.onError
		r.mu.Unlock()

		log.Printf("router: %v", err)
		if hook != nil {
			hook(err)
		}
		return nil, err
	}
	if msg == nil {
		r.mu.Lock()
		r.stats.Ignored++
		r.mu.Unlock()
		return nil, nil
	}
	r.Deliver(msg)
	return msg, nil
}

// Deliver hands an already decoded frame to its domain's subscribers.
// Handlers run outside the router lock so they may subscribe or unsubscribe.
//
// Each subscription is checked again right before its handler is called,
// so once an unsubscribe func returns no new call to that handler starts.
// A call already running at that moment still runs to completion.
func (r *Router) Deliver(msg protocol.Inbound) {
	r.mu.Lock()
	capture := r.capture
	processing := r.processing
	app := make([]entry[AppHandler], 0, len(r.app))
	for id, h := range r.app {
		app = append(app, entry[AppHandler]{id: id, handler: h})
	}
	taps := make([]entry[func(protocol.Inbound)], 0, len(r.taps))
	for id, fn := range r.taps {
		taps = append(taps, entry[func(protocol.Inbound)]{id: id, handler: fn})
	}
	r.mu.Unlock()

	for _, t := range taps {
		if r.live(t.id) {
			t.handler(msg)
		}
	}

	delivered := false
	switch m := msg.(type) {
	case protocol.CaptureStatus:
		if delivered = capture.set && r.live(capture.id); delivered {
			capture.handler.OnCaptureStatus(m)
		}
	case protocol.CaptureComplete:
		if delivered = capture.set && r.live(capture.id); delivered {
			capture.handler.OnCaptureComplete(m)
		}
	case protocol.PreviewUpdate:
		if delivered = capture.set && r.live(capture.id); delivered {
			capture.handler.OnPreviewUpdate(m)
		}
	case protocol.CaptureError:
		if delivered = capture.set && r.live(capture.id); delivered {
			capture.handler.OnCaptureError(m)
		}
	case protocol.ProcessingStatus:
		if delivered = processing.set && r.live(processing.id); delivered {
			processing.handler.OnProcessingStatus(m)
		}
	case protocol.ProcessingStep:
		if delivered = processing.set && r.live(processing.id); delivered {
			processing.handler.OnProcessingStep(m)
		}
	case protocol.ProcessingLog:
		if delivered = processing.set && r.live(processing.id); delivered {
			processing.handler.OnProcessingLog(m)
		}
	case protocol.ProcessingComplete:
		if delivered = processing.set && r.live(processing.id); delivered {
			processing.handler.OnProcessingComplete(m)
		}
	case protocol.ProcessingError:
		if delivered = processing.set && r.live(processing.id); delivered {
			processing.handler.OnProcessingError(m)
		}
	case protocol.Log:
		for _, h := range app {
			if r.live(h.id) {
				h.handler.OnLog(m)
				delivered = true
			}
		}
	case protocol.Notification:
		for _, h := range app {
			if r.live(h.id) {
				h.handler.OnNotification(m)
				delivered = true
			}
		}
	default:
		// Unreachable while Inbound stays sealed.
		log.Printf("router: %v", apperrors.Internal("unhandled variant "+string(msg.Type()), nil))
	}

	r.mu.Lock()
	if delivered {
		r.stats.Dispatched++
	} else {
		r.stats.Dropped++
	}
	r.mu.Unlock()
}

// entry pairs a multi-subscriber handler with its subscription id.
type entry[H any] struct {
	id      uint64
	handler H
}

// live reports whether subscription id has not been unsubscribed or
// replaced. Ids are unique across all domains and never zero.
func (r *Router) live(id uint64) bool {
	if id == 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.capture.id == id || r.processing.id == id {
		return true
	}
	if _, ok := r.app[id]; ok {
		return true
	}
	_, ok := r.taps[id]
	return ok
}

// Stats returns a snapshot of the frame counters.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
