// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/morganforge/tavern-tui/internal/config"
)

// =============================================================================
// MESSAGES
// =============================================================================

// TranscriptUpdatedMsg signals that the session's transcript (or recording
// state) changed and the view should re-render.
type TranscriptUpdatedMsg struct{}

// StatusMsg shows a transient line in the status bar.
type StatusMsg struct {
	Text  string
	IsErr bool
}

// ConfigReloadedMsg carries a freshly reloaded configuration. The view
// re-themes itself and hands the config to the session.
type ConfigReloadedMsg struct {
	Config *config.Config
}

// =============================================================================
// COMMAND CREATORS
// =============================================================================

// waitForUpdate blocks on the session's update channel and converts the
// signal into a Bubble Tea message. Re-issued after each receipt.
func waitForUpdate(updates <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-updates
		return TranscriptUpdatedMsg{}
	}
}
