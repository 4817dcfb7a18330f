// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session wires the conversation engine to the backend clients,
// the recorder, and local storage on a single event loop.
package session

import (
	"context"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/morganforge/tavern-tui/internal/api"
	"github.com/morganforge/tavern-tui/internal/config"
	"github.com/morganforge/tavern-tui/internal/conversation"
	"github.com/morganforge/tavern-tui/internal/model"
	"github.com/morganforge/tavern-tui/internal/realtime"
	"github.com/morganforge/tavern-tui/internal/recorder"
	"github.com/morganforge/tavern-tui/internal/storage"
	"github.com/morganforge/tavern-tui/internal/upload"
)

// =============================================================================
// SESSION
// =============================================================================

// Session owns one conversation. All transcript mutations flow through the
// engine on the session's event loop; nothing mutates after Close returns.
type Session struct {
	cfg    *config.Config
	logger *slog.Logger

	engine   *conversation.Engine
	chat     *api.Client
	uploader *upload.Coordinator
	rt       *realtime.Client
	rec      *recorder.Recorder
	store    *storage.Store

	events  chan conversation.Event
	updates chan struct{}
	quit    chan struct{}
	done    chan struct{}

	closeOnce sync.Once
	cancel    context.CancelFunc

	mu        sync.Mutex
	revealers map[string]*conversation.Revealer
	amplitude float64
	recording bool
}

// Options bundle the session's collaborators. Nil fields get defaults
// derived from the config; Store may stay nil to disable persistence.
type Options struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    *storage.Store
	Device   recorder.Device
	Chat     *api.Client
	Uploader *upload.Coordinator
}

// New creates a session. Call Start to begin processing.
func New(opts Options) *Session {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	chat := opts.Chat
	if chat == nil {
		chat = api.NewClientWithConfig(&api.ClientConfig{
			BaseURL: cfg.Backend.BaseURL,
			Timeout: cfg.BackendTimeout(),
		})
	}
	uploader := opts.Uploader
	if uploader == nil {
		uploader = upload.NewCoordinator(&upload.Config{BaseURL: cfg.Backend.BaseURL})
	}

	s := &Session{
		cfg:       cfg,
		logger:    logger,
		engine:    conversation.NewEngine().WithImmediateUploadResolution(cfg.Chat.ResolveUploadsImmediately),
		chat:      chat,
		uploader:  uploader,
		store:     opts.Store,
		events:    make(chan conversation.Event, 64),
		updates:   make(chan struct{}, 1),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		revealers: make(map[string]*conversation.Revealer),
	}

	s.rec = recorder.New(opts.Device, s.onAmplitude)
	s.rt = realtime.NewClient(realtime.Config{URL: cfg.Backend.RealtimeURL}, s.onTranscription, logger)
	return s
}

// Start restores persisted history, connects the realtime channel, and
// launches the event loop.
func (s *Session) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if s.store != nil && s.Config().Storage.PersistHistory {
		if msgs, err := s.store.LoadTranscript(); err != nil {
			s.logger.Warn("could not load chat history", "error", err)
		} else if len(msgs) > 0 {
			s.engine.Restore(msgs)
			s.signal()
		}
	}

	s.rt.Start(ctx)
	go s.loop(ctx)
}

// Close shuts the session down and waits for the event loop to exit. The
// transcript does not change after Close returns.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.quit) })
	<-s.done

	s.mu.Lock()
	revealers := s.revealers
	s.revealers = make(map[string]*conversation.Revealer)
	s.mu.Unlock()
	for _, r := range revealers {
		r.Stop()
	}

	s.rt.Close()
	if s.cancel != nil {
		s.cancel()
	}
	s.rec.Cancel()
}

// =============================================================================
// READ ACCESSORS
// =============================================================================

// Transcript returns a snapshot of the conversation for rendering.
func (s *Session) Transcript() []model.Message {
	return s.engine.Snapshot()
}

// Updates signals after each transcript change. The channel is coalesced:
// one receive may cover several changes.
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

// Recording reports whether the microphone is live.
func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

// Amplitude returns the latest microphone level in [0,1].
func (s *Session) Amplitude() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.amplitude
}

// Config returns the currently applied configuration.
func (s *Session) Config() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// UpdateConfig applies a reloaded configuration to the running session.
// Connection endpoints are fixed at construction and need a restart; the
// reveal cadence, upload resolution mode, and history persistence take
// effect immediately.
func (s *Session) UpdateConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	s.engine.WithImmediateUploadResolution(cfg.Chat.ResolveUploadsImmediately)
}

// =============================================================================
// USER ACTIONS
// =============================================================================

// SubmitText sends a typed message. Blank input is ignored.
func (s *Session) SubmitText(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.post(conversation.TextSubmitted{Text: text})
}

// SubmitAttachment uploads the file at path as an attachment message.
func (s *Session) SubmitAttachment(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	name := filepath.Base(path)
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	s.post(conversation.AttachmentSubmitted{
		Name:        name,
		ContentType: contentType,
		Kind:        attachmentKind(contentType),
		PreviewURL:  "file://" + path,
		Data:        data,
	})
	return nil
}

// StartRecording opens the microphone. Failures surface in the transcript
// as a system message rather than an error return, matching how every other
// asynchronous failure is shown.
func (s *Session) StartRecording(ctx context.Context) {
	if err := s.rec.Start(ctx); err != nil {
		s.post(conversation.MicError{Err: err})
		return
	}
	s.mu.Lock()
	s.recording = true
	s.mu.Unlock()
	s.signal()
}

// StopRecording finishes the capture and submits the audio as a voice
// message. The raw recording is also kept locally so the last take is
// recoverable.
func (s *Session) StopRecording() {
	data, err := s.rec.Stop()
	s.mu.Lock()
	s.recording = false
	s.amplitude = 0
	s.mu.Unlock()

	if err != nil {
		s.post(conversation.MicError{Err: err})
		return
	}
	if len(data) == 0 {
		s.signal()
		return
	}

	if s.store != nil {
		if err := s.store.SaveLastRecording(data); err != nil {
			s.logger.Warn("could not save recording", "error", err)
		}
	}

	s.post(conversation.VoiceSubmitted{Data: data, When: time.Now()})
}

// CancelRecording discards the in-flight capture.
func (s *Session) CancelRecording() {
	s.rec.Cancel()
	s.mu.Lock()
	s.recording = false
	s.amplitude = 0
	s.mu.Unlock()
	s.signal()
}

// =============================================================================
// EVENT LOOP
// =============================================================================

// post delivers an event to the loop unless the session is shutting down.
func (s *Session) post(ev conversation.Event) {
	select {
	case <-s.quit:
	case s.events <- ev:
	}
}

// signal nudges the UI without blocking; a pending nudge covers this one.
func (s *Session) signal() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

func (s *Session) loop(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case <-s.quit:
			s.persist()
			return
		case ev := <-s.events:
			for _, cmd := range s.engine.Apply(ev) {
				s.execute(ctx, cmd)
			}
			if shouldPersist(ev) {
				s.persist()
			}
			s.signal()
		}
	}
}

// execute starts the asynchronous work a command describes. Results come
// back as events on the same loop.
func (s *Session) execute(ctx context.Context, cmd conversation.Command) {
	switch cmd := cmd.(type) {
	case conversation.CallCompletion:
		go func() {
			resp, err := s.chat.Complete(ctx, cmd.Prompt)
			if err != nil {
				s.post(conversation.CompletionFailed{MessageID: cmd.MessageID, Err: err})
				return
			}
			s.post(conversation.CompletionDone{MessageID: cmd.MessageID, Response: resp})
		}()

	case conversation.StartUpload:
		go func() {
			remote, err := s.uploader.Upload(ctx, upload.Request{
				CorrelationID: cmd.CorrelationID,
				Name:          cmd.Name,
				ContentType:   cmd.ContentType,
				Data:          cmd.Data,
			}, func(pct int) {
				s.post(conversation.UploadProgress{CorrelationID: cmd.CorrelationID, Percent: pct})
			})
			if err != nil {
				s.post(conversation.UploadFailed{CorrelationID: cmd.CorrelationID, Name: cmd.Name, Err: err})
				return
			}
			s.post(conversation.UploadDone{CorrelationID: cmd.CorrelationID, RemoteURL: remote})
		}()

	case conversation.StartReveal:
		r := conversation.NewRevealer(cmd.MessageID, cmd.Body, s.Config().RevealInterval(), func(ev conversation.Event) {
			if tick, ok := ev.(conversation.RevealTick); ok && tick.Done {
				s.mu.Lock()
				delete(s.revealers, cmd.MessageID)
				s.mu.Unlock()
			}
			s.post(ev)
		})
		s.mu.Lock()
		s.revealers[cmd.MessageID] = r
		s.mu.Unlock()
		r.Start()
	}
}

// shouldPersist filters out the intermediate reveal ticks: rewriting the
// transcript once per revealed character is wasteful, and the final tick
// lands the full body anyway.
func shouldPersist(ev conversation.Event) bool {
	if tick, ok := ev.(conversation.RevealTick); ok {
		return tick.Done
	}
	return true
}

// persist re-saves the transcript so history survives restarts.
func (s *Session) persist() {
	if s.store == nil || !s.Config().Storage.PersistHistory {
		return
	}
	if err := s.store.SaveTranscript(s.engine.Snapshot()); err != nil {
		s.logger.Warn("could not persist chat history", "error", err)
	}
}

// =============================================================================
// CALLBACKS
// =============================================================================

// onTranscription runs on the realtime client's goroutine.
func (s *Session) onTranscription(ev realtime.TranscriptionEvent) {
	s.post(conversation.Transcription{RequestID: ev.RequestID, Text: ev.Text})
}

// onAmplitude runs on the recorder's read goroutine.
func (s *Session) onAmplitude(level float64) {
	s.mu.Lock()
	s.amplitude = level
	s.mu.Unlock()
	s.signal()
}

// attachmentKind maps a MIME type to how the message renders.
func attachmentKind(contentType string) model.AttachmentKind {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return model.AttachmentImage
	case strings.HasPrefix(contentType, "audio/"):
		return model.AttachmentAudio
	default:
		return model.AttachmentFile
	}
}
