// Package notify keeps the dismissible, auto-expiring banners shown above
// every screen.
package notify

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/spreads/client/internal/errors"
	"github.com/spreads/client/internal/protocol"
	"github.com/spreads/client/internal/router"
)

// Default banner lifetimes.
const (
	DefaultErrorTTL = 5 * time.Second
	DefaultInfoTTL  = 3 * time.Second
)

// Kind separates error banners from informational ones.
type Kind int

const (
	KindError Kind = iota
	KindInfo
)

func (k Kind) String() string {
	if k == KindError {
		return "error"
	}
	return "info"
}

// Banner is one posted message.
type Banner struct {
	ID      string
	Kind    Kind
	Message string
	Posted  time.Time
	Expires time.Time
}

// Options configures a Center. Zero values select the defaults.
type Options struct {
	ErrorTTL time.Duration
	InfoTTL  time.Duration
	Now      func() time.Time
}

// Center holds active banners. It implements router.AppHandler: server
// log records at WARNING or ERROR become error banners, notifications
// become info banners.
type Center struct {
	errorTTL time.Duration
	infoTTL  time.Duration
	now      func() time.Time

	mu        sync.Mutex
	banners   []Banner
	observers map[int]func()
	nextObsID int
}

var _ router.AppHandler = (*Center)(nil)

// New creates an empty center.
func New(opts Options) *Center {
	c := &Center{
		errorTTL:  opts.ErrorTTL,
		infoTTL:   opts.InfoTTL,
		now:       opts.Now,
		observers: make(map[int]func()),
	}
	if c.errorTTL <= 0 {
		c.errorTTL = DefaultErrorTTL
	}
	if c.infoTTL <= 0 {
		c.infoTTL = DefaultInfoTTL
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Post adds a banner and returns it.
func (c *Center) Post(kind Kind, message string) Banner {
	ttl := c.infoTTL
	if kind == KindError {
		ttl = c.errorTTL
	}
	now := c.now()
	b := Banner{
		ID:      uuid.NewString(),
		Kind:    kind,
		Message: message,
		Posted:  now,
		Expires: now.Add(ttl),
	}

	c.mu.Lock()
	c.banners = append(c.banners, b)
	c.mu.Unlock()

	log.Printf("notify: %s: %s", kind, message)
	c.changed()
	return b
}

// Error posts an error banner.
func (c *Center) Error(message string) {
	c.Post(KindError, message)
}

// Info posts an info banner.
func (c *Center) Info(message string) {
	c.Post(KindInfo, message)
}

// ReportError posts err as an error banner. Used for malformed frames and
// REST failures.
func (c *Center) ReportError(err error) {
	if err == nil {
		return
	}
	code, msg := apperrors.ToCodeAndMessage(err)
	if code == apperrors.CodeProtocolInvalidMessage {
		msg = "Protocol error: " + msg
	}
	c.Error(msg)
}

// Dismiss removes a banner before it expires. It reports whether the id
// was active.
func (c *Center) Dismiss(id string) bool {
	c.mu.Lock()
	found := false
	for i, b := range c.banners {
		if b.ID == id {
			c.banners = append(c.banners[:i], c.banners[i+1:]...)
			found = true
			break
		}
	}
	c.mu.Unlock()

	if found {
		c.changed()
	}
	return found
}

// Active returns unexpired banners, oldest first, and forgets expired ones.
func (c *Center) Active() []Banner {
	now := c.now()

	c.mu.Lock()
	kept := c.banners[:0]
	for _, b := range c.banners {
		if now.Before(b.Expires) {
			kept = append(kept, b)
		}
	}
	c.banners = kept
	out := append([]Banner(nil), kept...)
	c.mu.Unlock()
	return out
}

// OnChange registers fn to run after a banner is posted or dismissed.
func (c *Center) OnChange(fn func()) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextObsID++
	id := c.nextObsID
	c.observers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
	}
}

// OnLog shows WARNING and ERROR server records; other levels are ignored.
func (c *Center) OnLog(m protocol.Log) {
	if protocol.IsAlertLevel(m.Level) {
		c.Error(m.Message)
	}
}

// OnNotification shows an info banner.
func (c *Center) OnNotification(m protocol.Notification) {
	c.Info(m.Message)
}

func (c *Center) changed() {
	c.mu.Lock()
	fns := make([]func(), 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
