// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/morganforge/tavern-tui/internal/ui/styles"
)

// =============================================================================
// UPDATE
// =============================================================================

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case TranscriptUpdatedMsg:
		m.refreshViewport()
		return m, waitForUpdate(m.session.Updates())

	case StatusMsg:
		m.status = msg.Text
		m.statusErr = msg.IsErr
		return m, nil

	case ConfigReloadedMsg:
		return m.handleConfigReload(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	default:
		var cmds []tea.Cmd
		var inputCmd tea.Cmd
		m.input, inputCmd = m.input.Update(msg)
		cmds = append(cmds, inputCmd)

		var vpCmd tea.Cmd
		m.viewport, vpCmd = m.viewport.Update(msg)
		cmds = append(cmds, vpCmd)

		return m, tea.Batch(cmds...)
	}
}

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	// Layout: header + viewport + input area + status bar. The reserved
	// heights must stay in sync with the renderers in view.go.
	const (
		headerHeight    = 2
		inputAreaHeight = 3
		statusBarHeight = 1
	)

	viewportHeight := m.height - headerHeight - inputAreaHeight - statusBarHeight
	if viewportHeight < 1 {
		viewportHeight = 1
	}
	viewportWidth := m.width
	if viewportWidth < 1 {
		viewportWidth = 1
	}

	m.viewport.Width = viewportWidth
	m.viewport.Height = viewportHeight

	inputWidth := m.width - 6
	if inputWidth < 10 {
		inputWidth = 10
	}
	m.input.Width = inputWidth

	m.rebuildRenderer(m.bodyWidth())
	m.refreshViewport()

	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, vpCmd
}

// handleConfigReload applies an edited config file without a restart:
// the session picks up the reveal cadence and persistence settings, the
// view re-themes and re-renders. Connection endpoints still need a restart.
func (m Model) handleConfigReload(msg ConfigReloadedMsg) (tea.Model, tea.Cmd) {
	if msg.Config == nil {
		return m, nil
	}
	m.session.UpdateConfig(msg.Config)
	m.cfg = msg.Config
	m.theme = styles.NewTheme(msg.Config.UI.Theme)
	m.rebuildRenderer(m.bodyWidth())
	m.refreshViewport()
	m.status = "Config reloaded"
	m.statusErr = false
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keyMap.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keyMap.ToggleVoice):
		return m.toggleVoice()

	case key.Matches(msg, m.keyMap.Cancel):
		if m.session.Recording() {
			m.session.CancelRecording()
			m.status = "Recording discarded"
			m.statusErr = false
			return m, nil
		}
		m.input.Reset()
		m.status = ""
		return m, nil

	case key.Matches(msg, m.keyMap.ScrollUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keyMap.ScrollDown):
		m.viewport.HalfViewDown()
		return m, nil

	case key.Matches(msg, m.keyMap.Send):
		return m.submitInput()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// INPUT SUBMISSION
// =============================================================================

func (m Model) submitInput() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	m.input.Reset()

	if strings.HasPrefix(text, "/") {
		return m.handleCommand(text)
	}

	m.status = ""
	m.session.SubmitText(text)
	return m, nil
}

// handleCommand dispatches slash commands typed into the input line.
func (m Model) handleCommand(text string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(text)
	name := strings.ToLower(fields[0])

	switch name {
	case "/attach":
		if len(fields) < 2 {
			m.status = "Usage: /attach <path>"
			m.statusErr = true
			return m, nil
		}
		path := strings.TrimSpace(strings.TrimPrefix(text, fields[0]))
		if err := m.session.SubmitAttachment(path); err != nil {
			m.status = "Attach failed: " + err.Error()
			m.statusErr = true
			return m, nil
		}
		m.status = ""
		return m, nil

	case "/voice":
		return m.toggleVoice()

	case "/cancel":
		if m.session.Recording() {
			m.session.CancelRecording()
			m.status = "Recording discarded"
			m.statusErr = false
		}
		return m, nil

	case "/help":
		m.status = "enter send · ctrl+r record · esc cancel · /attach <path> · /quit"
		m.statusErr = false
		return m, nil

	case "/quit":
		return m, tea.Quit

	default:
		m.status = "Unknown command: " + name
		m.statusErr = true
		return m, nil
	}
}

// toggleVoice starts a capture, or stops and submits the one in flight.
func (m Model) toggleVoice() (tea.Model, tea.Cmd) {
	if m.session.Recording() {
		m.session.StopRecording()
		m.status = ""
		return m, nil
	}
	m.session.StartRecording(context.Background())
	m.status = "Recording... ctrl+r to send, esc to discard"
	m.statusErr = false
	return m, textinput.Blink
}

// =============================================================================
// VIEWPORT REFRESH
// =============================================================================

func (m *Model) refreshViewport() {
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderMessages())
	if atBottom {
		m.viewport.GotoBottom()
	}
}
