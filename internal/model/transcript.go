// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for the chat transcript.
package model

// =============================================================================
// TRANSCRIPT TYPE
// =============================================================================

// Transcript holds the ordered sequence of messages shown to the user.
//
// The transcript is append-only: entries are never removed or reordered, and
// a message's index is stable from the moment it is appended. Later events
// only mutate Body and Status in place.
type Transcript struct {
	messages []*Message
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{messages: make([]*Message, 0)}
}

// Append adds a message to the end of the transcript and returns it.
func (t *Transcript) Append(msg *Message) *Message {
	t.messages = append(t.messages, msg)
	return msg
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	return len(t.messages)
}

// Get returns the message at index i, or nil if out of range.
func (t *Transcript) Get(i int) *Message {
	if i < 0 || i >= len(t.messages) {
		return nil
	}
	return t.messages[i]
}

// ByID returns the message with the given ID, or nil.
func (t *Transcript) ByID(id string) *Message {
	for _, msg := range t.messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

// Last returns the most recent message, or nil if empty.
func (t *Transcript) Last() *Message {
	if len(t.messages) == 0 {
		return nil
	}
	return t.messages[len(t.messages)-1]
}

// LastPending returns the most recently appended message still in pending
// status, or nil. This is the legacy correlation fallback for realtime
// events that carry no request id.
func (t *Transcript) LastPending() *Message {
	for i := len(t.messages) - 1; i >= 0; i-- {
		if t.messages[i].Status == StatusPending {
			return t.messages[i]
		}
	}
	return nil
}

// Snapshot returns a copy of all messages by value. Callers may read the
// copy freely while the engine keeps mutating the live entries.
func (t *Transcript) Snapshot() []Message {
	out := make([]Message, len(t.messages))
	for i, msg := range t.messages {
		out[i] = *msg
	}
	return out
}

// IsEmpty returns true if there are no messages.
func (t *Transcript) IsEmpty() bool {
	return len(t.messages) == 0
}
