package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/spreads/client/internal/connection"
	apperrors "github.com/spreads/client/internal/errors"
	"github.com/spreads/client/internal/protocol"
	"github.com/spreads/client/internal/session"
)

// visibleLogs is how many log lines the screen shows.
const visibleLogs = 8

// ProcessingModel is the processing screen.
type ProcessingModel struct {
	title   string
	session *session.ProcessingSession
	deps    Deps
	subs    *subscriptions

	keys processingKeys
	help help.Model
	bar  progress.Model

	conn  connection.State
	hint  string
	width int
}

// NewProcessingModel creates the processing screen for s.
func NewProcessingModel(title string, s *session.ProcessingSession, d Deps) ProcessingModel {
	m := ProcessingModel{
		title:   title,
		session: s,
		deps:    d,
		subs:    newSubscriptions(),
		keys:    newProcessingKeys(),
		help:    help.New(),
		bar:     progress.New(progress.WithDefaultGradient()),
	}
	if d.Conn != nil {
		m.conn = d.Conn.State()
	}
	return m
}

// Init subscribes the session, then starts the pipeline once the channel
// is open.
func (m ProcessingModel) Init() tea.Cmd {
	m.subs.add(m.deps.Router.SubscribeProcessing(m.session))
	m.subs.add(m.session.OnChange(func() {
		m.subs.forward(sessionMsg{})
	}))
	watchShared(m.subs, m.deps)
	if m.conn.Connected {
		m.mount()
	}
	return tea.Batch(m.subs.wait(), tickCmd())
}

// mount sends start_processing. The session sends it at most once.
func (m ProcessingModel) mount() {
	if err := m.session.Mount(); err != nil && m.deps.Banners != nil {
		m.deps.Banners.ReportError(err)
	}
}

// Update implements tea.Model.
func (m ProcessingModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		m.bar.Width = min(max(msg.Width-8, 10), 80)

	case connMsg:
		m.conn = connection.State(msg)
		if m.conn.Connected {
			m.mount()
		}
		return m, m.subs.wait()

	case sessionMsg, bannersMsg:
		return m, m.subs.wait()

	case tickMsg:
		return m, tickCmd()
	}
	return m, nil
}

func (m ProcessingModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()

	case key.Matches(msg, m.keys.Cancel):
		if m.session.State().Terminal() {
			return m, nil
		}
		// Leave right away; the server's answer is not awaited and a
		// failed send is already logged by the session.
		_ = m.session.Cancel()
		return m.quit()

	case key.Matches(msg, m.keys.Reconnect) && m.deps.Conn != nil:
		if err := m.deps.Conn.Reconnect(); err != nil {
			m.hint = apperrors.GetMessage(err)
		}

	case key.Matches(msg, m.keys.Dismiss):
		dismissNewest(m.deps.Banners)

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m ProcessingModel) quit() (tea.Model, tea.Cmd) {
	m.subs.teardown()
	return m, tea.Quit
}

// View implements tea.Model.
func (m ProcessingModel) View() string {
	st := m.session.State()

	var b strings.Builder
	b.WriteString(titleStyle.Render("Processing: "+m.title) + "  " + connBadge(m.conn) + "\n\n")

	b.WriteString(label("Stage", stageBadge(st.Stage)) + " " + st.Stage.Describe() + "\n")
	if st.CurrentStep != "" {
		b.WriteString(label("Step", st.CurrentStep) + "\n")
	}
	b.WriteString(m.bar.ViewAs(st.DisplayedProgress()/100) + "\n")

	if st.Err != "" {
		b.WriteString("\n" + errBadge.Render("Processing failed") + " " + st.Err + "\n")
	}

	if steps := m.session.Steps(); len(steps) > 0 {
		b.WriteString("\n" + labelStyle.Render("Steps") + "\n")
		for _, s := range steps {
			b.WriteString(fmt.Sprintf("  %-16s %-10s %6.1fs\n", s.Name, s.Status, s.Duration.Seconds()))
		}
	}

	if logs := m.session.Logs(); len(logs) > 0 {
		b.WriteString("\n" + labelStyle.Render("Log") + "\n")
		for _, l := range logs[max(0, len(logs)-visibleLogs):] {
			b.WriteString(fmt.Sprintf("  %s %-7s %s\n", l.Timestamp.Format("15:04:05"), l.Level, l.Message))
		}
	}

	if m.deps.Banners != nil {
		if banners := renderBanners(m.deps.Banners.Active(), m.width); banners != "" {
			b.WriteString("\n" + banners + "\n")
		}
	}
	if m.hint != "" {
		b.WriteString("\n" + hintStyle.Render(m.hint) + "\n")
	}

	b.WriteString("\n" + m.help.View(m.keys))
	return lipgloss.NewStyle().Padding(1, 2).Render(b.String())
}

func stageBadge(stage protocol.Stage) string {
	switch stage {
	case protocol.StageCompleted:
		return okBadge.Render(string(stage))
	case protocol.StageFailed:
		return errBadge.Render(string(stage))
	default:
		return warnBadge.Render(string(stage))
	}
}
