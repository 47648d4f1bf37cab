package tui

import "github.com/charmbracelet/bubbles/key"

type captureKeys struct {
	Capture   key.Binding
	Retake    key.Binding
	Finish    key.Binding
	Reconnect key.Binding
	Dismiss   key.Binding
	Help      key.Binding
	Quit      key.Binding
}

func newCaptureKeys() captureKeys {
	return captureKeys{
		Capture:   key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "capture")),
		Retake:    key.NewBinding(key.WithKeys("r", "R"), key.WithHelp("r", "retake")),
		Finish:    key.NewBinding(key.WithKeys("f", "F"), key.WithHelp("f", "finish")),
		Reconnect: key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "reconnect")),
		Dismiss:   key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "dismiss banner")),
		Help:      key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "leave")),
	}
}

func (k captureKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Capture, k.Finish, k.Help, k.Quit}
}

func (k captureKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Capture, k.Retake, k.Finish},
		{k.Reconnect, k.Dismiss, k.Help, k.Quit},
	}
}

type processingKeys struct {
	Cancel    key.Binding
	Reconnect key.Binding
	Dismiss   key.Binding
	Help      key.Binding
	Quit      key.Binding
}

func newProcessingKeys() processingKeys {
	return processingKeys{
		Cancel:    key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "cancel")),
		Reconnect: key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "reconnect")),
		Dismiss:   key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "dismiss banner")),
		Help:      key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "leave")),
	}
}

func (k processingKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Cancel, k.Help, k.Quit}
}

func (k processingKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Cancel, k.Reconnect, k.Dismiss},
		{k.Help, k.Quit},
	}
}
