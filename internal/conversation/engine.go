// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation implements the transcript state machine.
package conversation

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/morganforge/tavern-tui/internal/model"
)

// GenericErrorBody is shown when a failure carries no usable message.
const GenericErrorBody = "Sorry, I encountered an error. Please try again."

// =============================================================================
// ENGINE
// =============================================================================

// Engine is the conversation state machine: the single writer of the
// transcript. Each asynchronous source posts typed events; Apply is the
// reducer-style transition function that mutates the transcript and returns
// the commands describing follow-up work to start.
//
// Thread-safety: Apply and the read accessors may be called from different
// goroutines; all state is protected by mu. The engine performs no I/O.
type Engine struct {
	mu         sync.RWMutex
	transcript *model.Transcript

	// uploads correlates in-flight uploads with their pending messages,
	// keyed by the correlation id threaded through the presigned-URL
	// request and echoed back in the realtime transcription payload.
	uploads map[string]string

	// resolveUploads switches uploaded non-voice attachments to the
	// static-confirmation behavior instead of waiting for transcription.
	resolveUploads bool
}

// NewEngine creates an engine with an empty transcript.
func NewEngine() *Engine {
	return &Engine{
		transcript: model.NewTranscript(),
		uploads:    make(map[string]string),
	}
}

// WithImmediateUploadResolution makes uploaded attachments resolve with a
// static confirmation instead of waiting for a transcription event.
func (e *Engine) WithImmediateUploadResolution(enabled bool) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resolveUploads = enabled
	return e
}

// Snapshot returns a copy of the transcript for rendering.
func (e *Engine) Snapshot() []model.Message {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.transcript.Snapshot()
}

// Len returns the number of transcript entries.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.transcript.Len()
}

// Restore seeds the transcript with persisted history. Restored messages
// must already be terminal; call before any events are applied.
func (e *Engine) Restore(msgs []model.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range msgs {
		msg := msgs[i]
		e.transcript.Append(&msg)
	}
}

// PendingUploads returns the number of uploads still awaiting resolution.
func (e *Engine) PendingUploads() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.uploads)
}

// =============================================================================
// TRANSITION FUNCTION
// =============================================================================

// Apply feeds one event through the state machine and returns the commands
// to execute. Unknown or stale events (terminal messages, unmatched ids)
// are dropped without mutating the transcript.
func (e *Engine) Apply(ev Event) []Command {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch ev := ev.(type) {
	case TextSubmitted:
		return e.applyTextSubmit(ev.Text)
	case AttachmentSubmitted:
		return e.applyAttachmentSubmit(ev)
	case VoiceSubmitted:
		return e.applyVoiceSubmit(ev)
	case UploadProgress:
		e.applyUploadProgress(ev)
	case UploadDone:
		e.applyUploadDone(ev)
	case UploadFailed:
		e.applyUploadFailed(ev)
	case CompletionDone:
		return e.applyCompletionDone(ev)
	case CompletionFailed:
		e.applyCompletionFailed(ev)
	case Transcription:
		return e.applyTranscription(ev)
	case RevealTick:
		e.applyRevealTick(ev)
	case MicError:
		e.transcript.Append(model.NewSystemMessage("Microphone error: " + errorBody(ev.Err)))
	}
	return nil
}

// applyTextSubmit appends a resolved user message and a pending assistant
// message, and requests the chat-completion call.
func (e *Engine) applyTextSubmit(text string) []Command {
	if text == "" {
		return nil
	}
	e.transcript.Append(model.NewUserMessage(text))
	assistant := e.transcript.Append(model.NewPendingAssistantMessage())

	return []Command{CallCompletion{MessageID: assistant.ID, Prompt: text}}
}

// applyAttachmentSubmit appends a pending user message for the picked file
// and requests the two-phase upload.
func (e *Engine) applyAttachmentSubmit(ev AttachmentSubmitted) []Command {
	attach := &model.Attachment{
		Kind: ev.Kind,
		Name: ev.Name,
		URL:  ev.PreviewURL,
	}
	msg := e.transcript.Append(model.NewPendingUserMessage("", attach))

	corrID := uuid.NewString()
	e.uploads[corrID] = msg.ID

	return []Command{StartUpload{
		CorrelationID: corrID,
		MessageID:     msg.ID,
		Name:          ev.Name,
		ContentType:   ev.ContentType,
		Data:          ev.Data,
	}}
}

// applyVoiceSubmit is the attachment flow for a recorded audio blob. The
// filename is synthesized from the submission timestamp.
func (e *Engine) applyVoiceSubmit(ev VoiceSubmitted) []Command {
	when := ev.When
	if when.IsZero() {
		when = time.Now()
	}
	name := fmt.Sprintf("recording-%d.mp3", when.UnixMilli())

	attach := &model.Attachment{
		Kind: model.AttachmentAudio,
		Name: name,
		URL:  ev.PreviewURL,
	}
	msg := e.transcript.Append(model.NewPendingUserMessage("Voice message", attach))

	corrID := uuid.NewString()
	e.uploads[corrID] = msg.ID

	return []Command{StartUpload{
		CorrelationID: corrID,
		MessageID:     msg.ID,
		Name:          name,
		ContentType:   "audio/mp3",
		Data:          ev.Data,
	}}
}

// applyUploadProgress updates the owning message's body to a human-readable
// percentage, unless the attachment renders its own media preview.
func (e *Engine) applyUploadProgress(ev UploadProgress) {
	msg := e.uploadMessage(ev.CorrelationID)
	if msg == nil || !msg.Pending() {
		return
	}
	if msg.Attach.HasPreview() {
		return
	}
	msg.Body = fmt.Sprintf("Uploading %d%%", ev.Percent)
}

// applyUploadDone either leaves the message pending until its transcription
// event arrives, or resolves it with a static confirmation when immediate
// resolution is configured.
func (e *Engine) applyUploadDone(ev UploadDone) {
	msg := e.uploadMessage(ev.CorrelationID)
	if msg == nil || !msg.Pending() {
		delete(e.uploads, ev.CorrelationID)
		return
	}

	if msg.Attach != nil && msg.Attach.URL == "" {
		// Attachments are immutable and their pointer is shared with
		// snapshots; swap in a copy instead of writing through it.
		attach := *msg.Attach
		attach.URL = ev.RemoteURL
		msg.Attach = &attach
	}

	if e.resolveUploads {
		msg.Status = model.StatusResolved
		msg.Body = "Uploaded " + msg.Attach.Name
		delete(e.uploads, ev.CorrelationID)
		return
	}

	// Awaiting the realtime transcription event; keep the correlation
	// entry so the event can be matched back to this message.
	if !msg.Attach.HasPreview() {
		msg.Body = "Uploading 100%"
	}
}

// applyUploadFailed marks the owning message errored with a body naming
// the file. Terminal: the upload is not retried.
func (e *Engine) applyUploadFailed(ev UploadFailed) {
	msg := e.uploadMessage(ev.CorrelationID)
	delete(e.uploads, ev.CorrelationID)
	if msg == nil || !msg.Pending() {
		return
	}
	msg.Status = model.StatusErrored
	msg.Body = "Error uploading " + ev.Name
}

// applyCompletionDone moves the assistant message to streaming and requests
// the simulated reveal of the sanitized response.
func (e *Engine) applyCompletionDone(ev CompletionDone) []Command {
	msg := e.transcript.ByID(ev.MessageID)
	if msg == nil || !msg.Status.CanTransition(model.StatusStreaming) {
		return nil
	}

	body := Sanitize(ev.Response)
	if body == "" {
		msg.Status = model.StatusResolved
		return nil
	}

	msg.Status = model.StatusStreaming
	msg.Body = ""
	return []Command{StartReveal{MessageID: msg.ID, Body: body}}
}

// applyCompletionFailed marks the assistant message errored with a readable
// body. The message never passes through streaming on this path.
func (e *Engine) applyCompletionFailed(ev CompletionFailed) {
	msg := e.transcript.ByID(ev.MessageID)
	if msg == nil || !msg.Status.CanTransition(model.StatusErrored) {
		return
	}
	msg.Status = model.StatusErrored
	msg.Body = errorBody(ev.Err)
}

// applyTranscription resolves the correlated pending message, then treats
// the transcribed text as a fresh text submit: a resolved user echo, a
// pending assistant message, and a chat-completion call.
func (e *Engine) applyTranscription(ev Transcription) []Command {
	var msg *model.Message
	if ev.RequestID != "" {
		// A correlated event resolves only its own upload. An id that
		// matches no live entry (already consumed, or unknown) resolves
		// nothing rather than grabbing an unrelated pending message.
		msg = e.uploadMessage(ev.RequestID)
		delete(e.uploads, ev.RequestID)
	} else {
		// Legacy fallback: the event carries no request id, so take the
		// most recently appended message still pending. Misattribution is
		// possible with concurrent pendings; correlated payloads avoid it.
		msg = e.transcript.LastPending()
		e.dropUploadByMessage(msg)
	}

	if msg != nil && msg.Pending() {
		msg.Status = model.StatusResolved
		msg.Body = "" // the attachment stands alone
	}

	if ev.Text == "" {
		return nil
	}
	return e.applyTextSubmit(ev.Text)
}

// applyRevealTick persists one step of the simulated reveal into the
// transcript. Each partial body is stored before the next tick fires.
func (e *Engine) applyRevealTick(ev RevealTick) {
	msg := e.transcript.ByID(ev.MessageID)
	if msg == nil || msg.Status != model.StatusStreaming {
		return
	}
	msg.Body = ev.Body
	if ev.Done {
		msg.Status = model.StatusResolved
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// uploadMessage resolves a correlation id to its live message.
func (e *Engine) uploadMessage(corrID string) *model.Message {
	msgID, ok := e.uploads[corrID]
	if !ok {
		return nil
	}
	return e.transcript.ByID(msgID)
}

// dropUploadByMessage removes any correlation entry pointing at msg.
func (e *Engine) dropUploadByMessage(msg *model.Message) {
	if msg == nil {
		return
	}
	for corrID, msgID := range e.uploads {
		if msgID == msg.ID {
			delete(e.uploads, corrID)
			return
		}
	}
}

// errorBody extracts a displayable message from an error.
func errorBody(err error) string {
	if err == nil {
		return GenericErrorBody
	}
	if s := err.Error(); s != "" {
		return s
	}
	return GenericErrorBody
}
