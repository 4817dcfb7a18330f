// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/morganforge/tavern-tui/internal/model"
	"github.com/morganforge/tavern-tui/internal/util"
)

// =============================================================================
// LAYOUT
// =============================================================================

func (m Model) renderChat() string {
	sections := []string{
		m.renderHeader(),
		m.viewport.View(),
		m.renderInput(),
		m.renderStatusBar(),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader() string {
	width := m.width
	if width < 1 {
		width = 80
	}

	// Truncate the URL before styling so escape codes do not count
	// against the width budget.
	target := util.TruncateWidth(m.cfg.Backend.BaseURL, width-16)
	bar := m.theme.HeaderTitle.Render("Tavern") + "  " + m.theme.Timestamp.Render(target)
	return m.theme.Header.Width(width).Render(bar)
}

// bodyWidth is the wrap width for message bodies inside their bubbles.
func (m Model) bodyWidth() int {
	w := m.width - 12
	if w < 20 {
		w = 20
	}
	return w
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

func (m Model) renderMessages() string {
	msgs := m.session.Transcript()
	if len(msgs) == 0 {
		return m.theme.Timestamp.Render("\n  No messages yet. Say something.\n")
	}

	var b strings.Builder
	for i := range msgs {
		b.WriteString(m.renderMessage(&msgs[i]))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderMessage(msg *model.Message) string {
	switch msg.Role {
	case model.RoleSystem:
		return m.theme.SystemNotice.Render(msg.Body) + "\n"
	case model.RoleUser:
		return m.renderBubble(msg, m.theme.SenderUser, m.theme.UserBubble)
	default:
		return m.renderBubble(msg, m.theme.SenderAssistant, m.theme.AssistantBubble)
	}
}

func (m Model) renderBubble(msg *model.Message, sender, bubble lipgloss.Style) string {
	header := sender.Render(msg.Role.DisplayName()) + " " +
		m.theme.Timestamp.Render(msg.CreatedAt.Format("15:04"))

	var parts []string
	if body := m.renderBody(msg); body != "" {
		parts = append(parts, body)
	}
	if chip := m.renderAttachment(msg.Attach); chip != "" {
		parts = append(parts, chip)
	}
	if len(parts) == 0 {
		parts = append(parts, m.theme.PendingBody.Render(m.spinner.View()+" thinking..."))
	}

	content := bubble.MaxWidth(m.bodyWidth() + 4).Render(strings.Join(parts, "\n"))
	return header + "\n" + content + "\n"
}

// renderBody formats the message body according to its lifecycle state.
func (m Model) renderBody(msg *model.Message) string {
	body := msg.Body

	switch msg.Status {
	case model.StatusErrored:
		return m.theme.ErrorBody.Render(body)

	case model.StatusPending:
		if body == "" {
			return ""
		}
		if msg.Attach != nil {
			// Upload progress text on attachment messages.
			return m.theme.UploadProgress.Render(body)
		}
		return m.theme.PendingBody.Render(body)

	case model.StatusStreaming:
		return wrap(body, m.bodyWidth()) + m.theme.Spinner.Render("▌")

	default:
		if msg.Role == model.RoleAssistant {
			return m.renderMarkdown(body)
		}
		return wrap(body, m.bodyWidth())
	}
}

// renderMarkdown renders a resolved assistant body through glamour, falling
// back to plain wrapped text if rendering fails.
func (m Model) renderMarkdown(body string) string {
	if m.renderer == nil || body == "" {
		return wrap(body, m.bodyWidth())
	}
	out, err := m.renderer.Render(body)
	if err != nil {
		return wrap(body, m.bodyWidth())
	}
	return strings.TrimRight(out, "\n")
}

func (m Model) renderAttachment(a *model.Attachment) string {
	if a == nil {
		return ""
	}
	icon := "📄"
	switch a.Kind {
	case model.AttachmentImage:
		icon = "🖼"
	case model.AttachmentAudio:
		icon = "🎤"
	}
	name := util.TruncateWidth(a.Name, 40)
	return m.theme.AttachmentChip.Render(icon + " " + name)
}

// =============================================================================
// INPUT AREA
// =============================================================================

func (m Model) renderInput() string {
	width := m.width
	if width < 1 {
		width = 80
	}

	if m.session.Recording() {
		return m.theme.InputContainer.Width(width).Render(m.renderRecording())
	}
	return m.theme.InputContainer.Width(width).Render(m.input.View())
}

// renderRecording draws the live amplitude meter shown while the
// microphone is open.
func (m Model) renderRecording() string {
	label := m.theme.RecordingLabel.Render("● REC " + m.spinner.View())

	barWidth := m.width - lipgloss.Width(label) - 8
	if barWidth < 10 {
		barWidth = 10
	}
	filled := int(m.session.Amplitude() * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}
	bar := m.theme.AmplitudeBar.Render(strings.Repeat("█", filled)) +
		m.theme.Timestamp.Render(strings.Repeat("░", barWidth-filled))

	return label + " " + bar
}

func (m Model) renderStatusBar() string {
	width := m.width
	if width < 1 {
		width = 80
	}

	text := m.status
	if text == "" {
		text = fmt.Sprintf("%s send · %s record · %s quit",
			m.theme.ShortcutKey.Render("enter"),
			m.theme.ShortcutKey.Render("ctrl+r"),
			m.theme.ShortcutKey.Render("ctrl+c"))
	} else if m.statusErr {
		text = m.theme.ErrorBody.Render(text)
	}

	return m.theme.StatusBar.Width(width).Render(text)
}

// wrap soft-wraps text at the given display width, breaking on words where
// possible. Wide runes count as two cells.
func wrap(text string, width int) string {
	if width <= 0 || text == "" {
		return text
	}

	var b strings.Builder
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(wrapLine(line, width))
	}
	return b.String()
}

func wrapLine(line string, width int) string {
	if runewidth.StringWidth(line) <= width {
		return line
	}

	var b strings.Builder
	cur := 0
	for _, word := range strings.Fields(line) {
		w := runewidth.StringWidth(word)
		if cur > 0 && cur+1+w > width {
			b.WriteString("\n")
			cur = 0
		} else if cur > 0 {
			b.WriteString(" ")
			cur++
		}
		// A single word longer than the line is hard-broken.
		for w > width {
			head := runewidth.Truncate(word, width, "")
			b.WriteString(head)
			b.WriteString("\n")
			word = word[len(head):]
			w = runewidth.StringWidth(word)
		}
		b.WriteString(word)
		cur += w
	}
	return b.String()
}
