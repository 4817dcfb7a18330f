// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for the chat transcript.
package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message. It is fixed at creation and
// never mutated afterwards.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "AI Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// STATUS TYPE
// =============================================================================

// Status represents the lifecycle state of a message.
//
// Legal transitions:
//
//	pending   -> streaming | resolved | errored
//	streaming -> resolved
//
// StatusResolved and StatusErrored are terminal: no transition leaves them.
type Status string

const (
	StatusPending   Status = "pending"
	StatusStreaming Status = "streaming"
	StatusResolved  Status = "resolved"
	StatusErrored   Status = "errored"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusErrored
}

// CanTransition reports whether moving from s to next is a legal transition.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusStreaming || next == StatusResolved || next == StatusErrored
	case StatusStreaming:
		return next == StatusResolved
	default:
		return false
	}
}

// =============================================================================
// ATTACHMENT TYPE
// =============================================================================

// AttachmentKind classifies what an attachment holds.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentAudio AttachmentKind = "audio"
	AttachmentFile  AttachmentKind = "file"
)

// Attachment is a reference carried by a message. It is immutable once set:
// the URL may point at a local preview before upload or a remote object after.
type Attachment struct {
	Kind AttachmentKind `json:"kind"`
	Name string         `json:"name"`
	URL  string         `json:"url,omitempty"`
}

// HasPreview reports whether the attachment renders its own media preview,
// in which case progress text is suppressed on the owning message.
func (a *Attachment) HasPreview() bool {
	if a == nil {
		return false
	}
	return a.Kind == AttachmentImage || a.Kind == AttachmentAudio
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single entry in the transcript.
//
// Role and Attachment are fixed at creation; Body and Status are mutated in
// place by the conversation engine as asynchronous results arrive.
type Message struct {
	ID        string      `json:"id"`
	Role      Role        `json:"role"`
	Status    Status      `json:"status"`
	Body      string      `json:"body"`
	Attach    *Attachment `json:"attachment,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewUserMessage creates a resolved user message with the given body.
func NewUserMessage(body string) *Message {
	return &Message{
		ID:        generateID(),
		Role:      RoleUser,
		Status:    StatusResolved,
		Body:      body,
		CreatedAt: time.Now(),
	}
}

// NewPendingUserMessage creates a pending user message carrying an attachment.
// The body starts empty; the engine fills in progress text where appropriate.
func NewPendingUserMessage(body string, attach *Attachment) *Message {
	return &Message{
		ID:        generateID(),
		Role:      RoleUser,
		Status:    StatusPending,
		Body:      body,
		Attach:    attach,
		CreatedAt: time.Now(),
	}
}

// NewPendingAssistantMessage creates a pending assistant message awaiting a
// chat-completion result.
func NewPendingAssistantMessage() *Message {
	return &Message{
		ID:        generateID(),
		Role:      RoleAssistant,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
}

// NewSystemMessage creates a resolved system message. Used for conditions
// that belong to no existing entry, such as microphone failures.
func NewSystemMessage(body string) *Message {
	return &Message{
		ID:        generateID(),
		Role:      RoleSystem,
		Status:    StatusResolved,
		Body:      body,
		CreatedAt: time.Now(),
	}
}

// Pending reports whether the message is still awaiting an async result.
func (m *Message) Pending() bool {
	return m.Status == StatusPending
}

// Preview returns a truncated preview of the message body.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	runes := []rune(m.Body)
	if len(runes) <= maxLen {
		return m.Body
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateID creates a unique message ID.
func generateID() string {
	return "msg_" + uuid.NewString()
}
