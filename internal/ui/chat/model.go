// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
package chat

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/morganforge/tavern-tui/internal/config"
	"github.com/morganforge/tavern-tui/internal/session"
	"github.com/morganforge/tavern-tui/internal/ui/styles"
)

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view. All conversation state
// lives in the session; the model only holds presentation state.
type Model struct {
	// Wiring
	session *session.Session
	cfg     *config.Config
	theme   *styles.Theme

	// Dimensions
	width  int
	height int

	// UI components
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	// Markdown rendering for resolved assistant messages. Rebuilt on
	// resize so word wrap tracks the terminal width.
	renderer *glamour.TermRenderer

	// Key bindings
	keyMap KeyMap

	// Transient status line shown in the status bar
	status    string
	statusErr bool
}

// New creates a new chat model bound to a running session.
func New(sess *session.Session, cfg *config.Config, theme *styles.Theme) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type a message, or /help for commands..."
	ti.CharLimit = 4096
	ti.Focus()

	vp := viewport.New(80, 20)
	vp.SetContent("")

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}

	m := Model{
		session:  sess,
		cfg:      cfg,
		theme:    theme,
		viewport: vp,
		input:    ti,
		spinner:  sp,
		keyMap:   DefaultKeyMap(),
	}
	m.rebuildRenderer(80)
	return m
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		waitForUpdate(m.session.Updates()),
	)
}

// View renders the chat view.
func (m Model) View() string {
	return m.renderChat()
}

// rebuildRenderer recreates the glamour renderer for the given wrap width.
func (m *Model) rebuildRenderer(width int) {
	style := "dark"
	if m.theme != nil && !m.theme.IsDark {
		style = "light"
	}
	if width < 20 {
		width = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
		glamour.WithEmoji(),
	)
	if err != nil {
		// Fall back to plain bodies; renderBody handles a nil renderer.
		m.renderer = nil
		return
	}
	m.renderer = r
}
