// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components for the application.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	// Header and footer
	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	StatusBar   lipgloss.Style
	ShortcutKey lipgloss.Style

	// Message rendering
	SenderUser      lipgloss.Style
	SenderAssistant lipgloss.Style
	UserBubble      lipgloss.Style
	AssistantBubble lipgloss.Style
	SystemNotice    lipgloss.Style
	Timestamp       lipgloss.Style
	PendingBody     lipgloss.Style
	ErrorBody       lipgloss.Style

	// Attachments
	AttachmentChip lipgloss.Style
	UploadProgress lipgloss.Style

	// Input area
	InputContainer   lipgloss.Style
	InputPrompt      lipgloss.Style
	InputPlaceholder lipgloss.Style

	// Recording overlay
	RecordingLabel lipgloss.Style
	AmplitudeBar   lipgloss.Style
	Spinner        lipgloss.Style
}

// NewTheme creates a theme, detecting terminal capabilities. themeName
// ("dark" or "light") overrides background detection when non-empty.
func NewTheme(themeName string) *Theme {
	colorProfile := termenv.ColorProfile()
	isDark := termenv.HasDarkBackground()
	switch themeName {
	case "dark":
		isDark = true
	case "light":
		isDark = false
	}
	lipgloss.SetHasDarkBackground(isDark)

	t := &Theme{
		IsDark:       isDark,
		HasTrueColor: colorProfile == termenv.TrueColor,
		ColorProfile: colorProfile,
	}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(Teal).
		Background(SurfaceDim).
		Padding(0, 2)

	t.HeaderTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Violet)

	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)

	t.ShortcutKey = lipgloss.NewStyle().
		Foreground(Teal).
		Bold(true)

	t.SenderUser = lipgloss.NewStyle().
		Bold(true).
		Foreground(Teal)

	t.SenderAssistant = lipgloss.NewStyle().
		Bold(true).
		Foreground(Violet)

	t.UserBubble = lipgloss.NewStyle().
		Foreground(UserBubbleFg).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(UserBubbleBorder).
		Padding(0, 1).
		MarginLeft(4)

	t.AssistantBubble = lipgloss.NewStyle().
		Foreground(AssistantBubbleFg).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(AssistantBubbleBorder).
		Padding(0, 1).
		MarginRight(4)

	t.SystemNotice = lipgloss.NewStyle().
		Foreground(SystemFg).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(SystemBorder).
		Padding(0, 1).
		Align(lipgloss.Center)

	t.Timestamp = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.PendingBody = lipgloss.NewStyle().
		Foreground(Amber).
		Italic(true)

	t.ErrorBody = lipgloss.NewStyle().
		Foreground(Rose)

	t.AttachmentChip = lipgloss.NewStyle().
		Foreground(AttachmentFg).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(AttachmentBorder).
		BorderLeft(true).
		PaddingLeft(1)

	t.UploadProgress = lipgloss.NewStyle().
		Foreground(Amber)

	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderTop(true).
		BorderForeground(Overlay).
		Padding(0, 1)

	t.InputPrompt = lipgloss.NewStyle().
		Foreground(Teal).
		Bold(true)

	t.InputPlaceholder = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true)

	t.RecordingLabel = lipgloss.NewStyle().
		Foreground(Crimson).
		Bold(true)

	t.AmplitudeBar = lipgloss.NewStyle().
		Foreground(Crimson)

	t.Spinner = lipgloss.NewStyle().
		Foreground(Violet)
}
