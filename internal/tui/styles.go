package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/spreads/client/internal/connection"
	"github.com/spreads/client/internal/notify"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	hintStyle  = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("245"))

	okBadge   = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("42")).Padding(0, 1)
	warnBadge = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("214")).Padding(0, 1)
	errBadge  = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("160")).Padding(0, 1)

	errorBanner = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("124")).Padding(0, 1)
	infoBanner  = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("25")).Padding(0, 1)
)

// connBadge renders the connected indicator.
func connBadge(st connection.State) string {
	switch {
	case st.Connected:
		return okBadge.Render("connected")
	case st.GaveUp:
		return errBadge.Render("disconnected (ctrl+r to retry)")
	case st.ReconnectAttempts > 0:
		return warnBadge.Render(fmt.Sprintf("reconnecting (attempt %d/%d)", st.ReconnectAttempts, connection.MaxReconnectAttempts))
	default:
		return warnBadge.Render("connecting")
	}
}

// renderBanners renders active banners, newest last.
func renderBanners(banners []notify.Banner, width int) string {
	if len(banners) == 0 {
		return ""
	}
	lines := make([]string, 0, len(banners))
	for _, b := range banners {
		style := infoBanner
		if b.Kind == notify.KindError {
			style = errorBanner
		}
		if width > 0 {
			style = style.MaxWidth(width)
		}
		lines = append(lines, style.Render(b.Message))
	}
	return strings.Join(lines, "\n")
}

func label(name, value string) string {
	return labelStyle.Render(name+": ") + value
}
