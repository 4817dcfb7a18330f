// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation implements the transcript state machine.
//
// This file defines the typed events posted by each asynchronous source
// (user input, upload coordinator, chat-completion client, realtime channel,
// reveal timer) and the commands the engine hands back for execution.
// Events are organized into the following categories:
//   - Submission: text, attachment, and voice submits from the user
//   - Upload: progress and terminal results from the upload coordinator
//   - Completion: chat-completion success and failure
//   - Realtime: transcription events from the push channel
//   - Reveal: simulated-streaming ticks
//   - Recorder: microphone failures with no owning message
//
// All event types are immutable once constructed.
package conversation

import (
	"time"

	"github.com/morganforge/tavern-tui/internal/model"
)

// =============================================================================
// EVENTS
// =============================================================================

// Event is a single input to the engine's transition function. Every async
// source posts events onto one queue; Engine.Apply is the only code that
// mutates the transcript in response.
type Event interface {
	event()
}

// TextSubmitted signals that the user submitted a typed message.
type TextSubmitted struct {
	Text string
}

// AttachmentSubmitted signals that the user submitted a picked file.
type AttachmentSubmitted struct {
	Name        string
	ContentType string
	Kind        model.AttachmentKind
	PreviewURL  string // local preview reference, empty for generic files
	Data        []byte
}

// VoiceSubmitted signals that the user submitted a recorded or selected
// audio blob. The filename is synthesized from the submission time.
type VoiceSubmitted struct {
	Data       []byte
	PreviewURL string
	When       time.Time
}

// UploadProgress reports transfer progress for an in-flight upload.
// Percent is an integer 0-100 and monotonically non-decreasing.
type UploadProgress struct {
	CorrelationID string
	Percent       int
}

// UploadDone signals that an upload completed successfully.
type UploadDone struct {
	CorrelationID string
	RemoteURL     string
}

// UploadFailed signals a terminal upload error for the named file.
type UploadFailed struct {
	CorrelationID string
	Name          string
	Err           error
}

// CompletionDone delivers a successful chat-completion response for the
// pending assistant message identified by MessageID.
type CompletionDone struct {
	MessageID string
	Response  string
}

// CompletionFailed delivers a chat-completion failure.
type CompletionFailed struct {
	MessageID string
	Err       error
}

// Transcription delivers a realtime transcription event. RequestID matches
// the correlation id threaded through the upload-target request; it may be
// empty when the backend predates correlation support.
type Transcription struct {
	RequestID string
	Text      string
}

// RevealTick delivers one step of the simulated streaming reveal: the
// partial body to persist, and whether the reveal has finished.
type RevealTick struct {
	MessageID string
	Body      string
	Done      bool
}

// MicError signals a microphone failure. No message exists yet at that
// point, so the engine appends a system-role entry.
type MicError struct {
	Err error
}

func (TextSubmitted) event()       {}
func (AttachmentSubmitted) event() {}
func (VoiceSubmitted) event()      {}
func (UploadProgress) event()      {}
func (UploadDone) event()          {}
func (UploadFailed) event()        {}
func (CompletionDone) event()      {}
func (CompletionFailed) event()    {}
func (Transcription) event()       {}
func (RevealTick) event()          {}
func (MicError) event()            {}

// =============================================================================
// COMMANDS
// =============================================================================

// Command describes asynchronous work the engine wants started. The engine
// itself never performs I/O; the owning session executes commands and posts
// the resulting events back.
type Command interface {
	command()
}

// CallCompletion requests a chat-completion call whose result resolves the
// assistant message identified by MessageID.
type CallCompletion struct {
	MessageID string
	Prompt    string
}

// StartUpload requests a two-phase presigned upload for the given bytes.
// CorrelationID is threaded through the upload-target request and expected
// back in the realtime transcription payload.
type StartUpload struct {
	CorrelationID string
	MessageID     string
	Name          string
	ContentType   string
	Data          []byte
}

// StartReveal requests a simulated-streaming reveal of Body into the
// message identified by MessageID.
type StartReveal struct {
	MessageID string
	Body      string
}

func (CallCompletion) command() {}
func (StartUpload) command()    {}
func (StartReveal) command()    {}
