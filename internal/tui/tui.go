// Package tui holds the Bubble Tea screens for capture and processing.
//
// A screen subscribes its session to the router when it starts and
// unsubscribes when it quits. Session, connection and banner changes are
// forwarded into the program through a channel that the screen drains one
// message at a time.
package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/spreads/client/internal/connection"
	"github.com/spreads/client/internal/notify"
	"github.com/spreads/client/internal/router"
)

// bannerTick is how often expired banners are pruned from the view.
const bannerTick = 500 * time.Millisecond

// Connection is the part of connection.Manager a screen needs.
type Connection interface {
	State() connection.State
	Reconnect() error
	OnStateChange(fn func(connection.State)) (unsubscribe func())
}

// Deps are shared by both screens.
type Deps struct {
	Router  *router.Router
	Conn    Connection
	Banners *notify.Center
}

// sessionMsg signals that the session state changed.
type sessionMsg struct{}

// connMsg carries a new connection state.
type connMsg connection.State

// bannersMsg signals that the active banners changed.
type bannersMsg struct{}

// tickMsg prunes expired banners.
type tickMsg time.Time

// subscriptions collects unsubscribe funcs and the update channels. It is
// shared by every copy of a screen model.
type subscriptions struct {
	updates chan tea.Msg
	unsubs  []func()
	closed  bool

	// conn holds only the newest connection state, so it survives a full
	// updates channel.
	conn chan connection.State
}

func newSubscriptions() *subscriptions {
	return &subscriptions{
		updates: make(chan tea.Msg, 64),
		conn:    make(chan connection.State, 1),
	}
}

func (s *subscriptions) add(unsub func()) {
	s.unsubs = append(s.unsubs, unsub)
}

// forward queues msg without blocking. A burst of identical signals
// collapses into the ones already queued.
func (s *subscriptions) forward(msg tea.Msg) {
	select {
	case s.updates <- msg:
	default:
	}
}

// forwardConn replaces any undelivered connection state with st.
func (s *subscriptions) forwardConn(st connection.State) {
	for {
		select {
		case s.conn <- st:
			return
		default:
		}
		select {
		case <-s.conn:
		default:
		}
	}
}

// teardown unsubscribes everything. Safe to call more than once.
func (s *subscriptions) teardown() {
	if s.closed {
		return
	}
	s.closed = true
	for i := len(s.unsubs) - 1; i >= 0; i-- {
		s.unsubs[i]()
	}
	s.unsubs = nil
}

// wait returns a command that delivers the next forwarded message.
func (s *subscriptions) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case st := <-s.conn:
			return connMsg(st)
		case msg := <-s.updates:
			return msg
		}
	}
}

// watchShared subscribes to the connection and the banners.
func watchShared(subs *subscriptions, d Deps) {
	if d.Conn != nil {
		subs.add(d.Conn.OnStateChange(func(st connection.State) {
			subs.forwardConn(st)
		}))
	}
	if d.Banners != nil {
		subs.add(d.Banners.OnChange(func() {
			subs.forward(bannersMsg{})
		}))
	}
}

// dismissNewest drops the most recent active banner, if any.
func dismissNewest(c *notify.Center) {
	if c == nil {
		return
	}
	if active := c.Active(); len(active) > 0 {
		c.Dismiss(active[len(active)-1].ID)
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(bannerTick, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Run shows a screen until it quits or ctx is cancelled.
func Run(ctx context.Context, m tea.Model) (tea.Model, error) {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	return p.Run()
}
