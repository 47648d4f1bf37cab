package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/spreads/client/internal/connection"
	apperrors "github.com/spreads/client/internal/errors"
	"github.com/spreads/client/internal/protocol"
	"github.com/spreads/client/internal/session"
)

// finishedMsg carries the outcome of Finish.
type finishedMsg struct{ err error }

// CaptureModel is the capture screen.
type CaptureModel struct {
	title   string
	session *session.CaptureSession
	deps    Deps
	subs    *subscriptions

	keys captureKeys
	help help.Model

	conn      connection.State
	hint      string
	finishing bool
	width     int

	// Done is set when the pages were saved and the screen left.
	Done bool
}

// NewCaptureModel creates the capture screen for s.
func NewCaptureModel(title string, s *session.CaptureSession, d Deps) CaptureModel {
	m := CaptureModel{
		title:   title,
		session: s,
		deps:    d,
		subs:    newSubscriptions(),
		keys:    newCaptureKeys(),
		help:    help.New(),
	}
	if d.Conn != nil {
		m.conn = d.Conn.State()
	}
	return m
}

// Init subscribes the session and starts draining updates.
func (m CaptureModel) Init() tea.Cmd {
	m.subs.add(m.deps.Router.SubscribeCapture(m.session))
	m.subs.add(m.session.OnChange(func() {
		m.subs.forward(sessionMsg{})
	}))
	watchShared(m.subs, m.deps)
	return tea.Batch(m.subs.wait(), tickCmd())
}

// Update implements tea.Model.
func (m CaptureModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case connMsg:
		m.conn = connection.State(msg)
		return m, m.subs.wait()

	case sessionMsg, bannersMsg:
		return m, m.subs.wait()

	case tickMsg:
		return m, tickCmd()

	case finishedMsg:
		m.finishing = false
		if msg.err != nil {
			m.hint = apperrors.GetMessage(msg.err)
			return m, nil
		}
		m.Done = true
		return m.quit()
	}
	return m, nil
}

func (m CaptureModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()
	case key.Matches(msg, m.keys.Reconnect) && m.deps.Conn != nil:
		if err := m.deps.Conn.Reconnect(); err != nil {
			m.hint = apperrors.GetMessage(err)
		}
		return m, nil
	case key.Matches(msg, m.keys.Dismiss):
		dismissNewest(m.deps.Banners)
		return m, nil
	}

	m.hint = ""
	switch session.KeyAction(msg.String(), false) {
	case session.ActionCapture:
		if err := m.session.Capture(); err != nil {
			m.hint = apperrors.GetMessage(err)
		}
	case session.ActionRetake:
		if err := m.session.Retake(); err != nil {
			m.hint = apperrors.GetMessage(err)
		}
	case session.ActionFinish:
		if m.finishing {
			return m, nil
		}
		m.finishing = true
		s := m.session
		return m, func() tea.Msg {
			return finishedMsg{err: s.Finish(context.Background())}
		}
	case session.ActionHelp:
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m CaptureModel) quit() (tea.Model, tea.Cmd) {
	m.subs.teardown()
	return m, tea.Quit
}

// View implements tea.Model.
func (m CaptureModel) View() string {
	st := m.session.State()

	var b strings.Builder
	b.WriteString(titleStyle.Render("Capture: "+m.title) + "  " + connBadge(m.conn) + "\n\n")

	device := deviceBadge(st)
	if st.Capturing {
		device += " " + hintStyle.Render("capture requested")
	}
	b.WriteString(label("Device", device) + "\n")
	b.WriteString(label("Pages captured", fmt.Sprint(st.CurrentPage)) + "\n")
	if st.Preview.Odd != "" || st.Preview.Even != "" {
		b.WriteString(label("Preview", "") + "\n")
		b.WriteString("  odd:  " + orDash(st.Preview.Odd) + "\n")
		b.WriteString("  even: " + orDash(st.Preview.Even) + "\n")
	}
	if st.Err != "" {
		b.WriteString("\n" + errBadge.Render("Capture error") + " " + st.Err + "\n")
	}

	if tail := m.session.Tail(); len(tail) > 1 {
		b.WriteString(labelStyle.Render("Earlier errors:") + "\n")
		for _, n := range tail[max(0, len(tail)-4) : len(tail)-1] {
			b.WriteString("  " + n.Timestamp.Format("15:04:05") + " " + n.Message + "\n")
		}
	}

	if m.deps.Banners != nil {
		if banners := renderBanners(m.deps.Banners.Active(), m.width); banners != "" {
			b.WriteString("\n" + banners + "\n")
		}
	}
	if m.finishing {
		b.WriteString("\n" + hintStyle.Render("Saving pages...") + "\n")
	} else if m.hint != "" {
		b.WriteString("\n" + hintStyle.Render(m.hint) + "\n")
	}

	b.WriteString("\n" + m.help.View(m.keys))
	return lipgloss.NewStyle().Padding(1, 2).Render(b.String())
}

// deviceBadge shows the last status the server sent, as sent.
func deviceBadge(st session.CaptureState) string {
	if st.Status == protocol.DeviceReady {
		return okBadge.Render(string(st.Status))
	}
	return warnBadge.Render(string(st.Status))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
