// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/morganforge/tavern-tui/internal/config"
	"github.com/morganforge/tavern-tui/internal/model"
	"github.com/morganforge/tavern-tui/internal/recorder"
	"github.com/morganforge/tavern-tui/internal/storage"
)

// fakeBackend is an in-process chat backend: completions, upload signing,
// storage PUTs, and the realtime websocket.
type fakeBackend struct {
	t   *testing.T
	srv *httptest.Server

	mu        sync.Mutex
	ws        *websocket.Conn
	wsCtx     context.Context
	requestID string
	putBody   []byte
}

func newFakeBackend(t *testing.T) *fakeBackend {
	b := &fakeBackend{t: t}
	b.srv = httptest.NewServer(http.HandlerFunc(b.handle))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/tuning-chat":
		msg := r.URL.Query().Get("msg")
		fmt.Fprintf(w, `{"response":"Fine-Tuned LIU ChatBot: echo %s"}`, msg)

	case r.URL.Path == "/get_presigned_url":
		var req struct {
			Filename  string `json:"filename"`
			RequestID string `json:"request_id"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		b.requestID = req.RequestID
		b.mu.Unlock()
		fmt.Fprintf(w, `{"url":"http://%s/bucket/%s?sig=x"}`, r.Host, req.Filename)

	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.putBody = body
		b.mu.Unlock()

	case r.URL.Path == "/ws":
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		b.mu.Lock()
		b.ws = conn
		b.wsCtx = r.Context()
		b.mu.Unlock()
		<-r.Context().Done()
	}
}

func (b *fakeBackend) config() *config.Config {
	cfg := config.Default()
	cfg.Backend.BaseURL = b.srv.URL
	cfg.Backend.RealtimeURL = "ws" + strings.TrimPrefix(b.srv.URL, "http") + "/ws"
	cfg.Chat.RevealIntervalMs = 1
	cfg.Storage.PersistHistory = false
	return cfg
}

// emitTranscription pushes a transcription event for the last signed upload.
func (b *fakeBackend) emitTranscription(text string) {
	require.Eventually(b.t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.ws != nil && b.requestID != ""
	}, 5*time.Second, 10*time.Millisecond, "websocket never connected or upload never signed")

	b.mu.Lock()
	defer b.mu.Unlock()
	payload := fmt.Sprintf(`{"event":"transcription_update","text":%q,"request_id":%q}`, text, b.requestID)
	require.NoError(b.t, b.ws.Write(b.wsCtx, websocket.MessageText, []byte(payload)))
}

// silentDevice emits a short burst of silence, then stays open.
type silentDevice struct{}

func (silentDevice) Open(ctx context.Context) (io.ReadCloser, error) {
	r, w := io.Pipe()
	go w.Write(make([]byte, 2048))
	return struct {
		io.Reader
		io.Closer
	}{r, writeCloser{w, r}}, nil
}

type writeCloser struct {
	w *io.PipeWriter
	r *io.PipeReader
}

func (wc writeCloser) Close() error {
	wc.w.Close()
	return wc.r.Close()
}

func lastMessage(s *Session) model.Message {
	msgs := s.Transcript()
	return msgs[len(msgs)-1]
}

func TestTextRoundTrip(t *testing.T) {
	backend := newFakeBackend(t)
	s := New(Options{Config: backend.config()})
	s.Start()
	defer s.Close()

	s.SubmitText("hello")

	require.Eventually(t, func() bool {
		msgs := s.Transcript()
		return len(msgs) == 2 &&
			msgs[1].Status == model.StatusResolved &&
			msgs[1].Body == "echo hello"
	}, 5*time.Second, 10*time.Millisecond, "assistant reply never resolved: %+v", s.Transcript())

	msgs := s.Transcript()
	require.Equal(t, model.RoleUser, msgs[0].Role)
	require.Equal(t, "hello", msgs[0].Body)
	require.Equal(t, model.RoleAssistant, msgs[1].Role)
}

func TestVoiceRoundTrip(t *testing.T) {
	backend := newFakeBackend(t)
	store, err := storage.Open(filepath.Join(t.TempDir(), "tavern.db"))
	require.NoError(t, err)
	defer store.Close()

	s := New(Options{Config: backend.config(), Store: store, Device: silentDevice{}})
	s.Start()
	defer s.Close()

	s.StartRecording(context.Background())
	require.Eventually(t, s.Recording, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond) // let some audio land
	s.StopRecording()

	// The voice message goes up and waits for its transcription.
	require.Eventually(t, func() bool {
		msgs := s.Transcript()
		return len(msgs) == 1 && msgs[0].Body == "Voice message" && msgs[0].Status == model.StatusPending
	}, 5*time.Second, 10*time.Millisecond)

	backend.emitTranscription("what is the meaning of life")

	// Transcription resolves the voice message, echoes the text, and chats.
	require.Eventually(t, func() bool {
		msgs := s.Transcript()
		return len(msgs) == 3 &&
			msgs[0].Status == model.StatusResolved &&
			msgs[1].Body == "what is the meaning of life" &&
			msgs[2].Status == model.StatusResolved &&
			msgs[2].Body == "echo what is the meaning of life"
	}, 5*time.Second, 10*time.Millisecond, "flow stalled: %+v", s.Transcript())

	// The raw take is recoverable locally.
	saved, err := store.LastRecording()
	require.NoError(t, err)
	require.NotEmpty(t, saved)

	// The audio actually reached storage.
	backend.mu.Lock()
	put := len(backend.putBody)
	backend.mu.Unlock()
	require.NotZero(t, put)
}

func TestUpdateConfigAppliesLive(t *testing.T) {
	backend := newFakeBackend(t)
	s := New(Options{Config: backend.config()})
	s.Start()
	defer s.Close()

	cfg := backend.config()
	cfg.Chat.ResolveUploadsImmediately = true
	cfg.Chat.RevealIntervalMs = 2
	s.UpdateConfig(cfg)
	require.Same(t, cfg, s.Config())

	path := filepath.Join(t.TempDir(), "notes.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0644))
	require.NoError(t, s.SubmitAttachment(path))

	// Immediate resolution was applied live: the upload resolves without
	// any transcription event.
	require.Eventually(t, func() bool {
		msgs := s.Transcript()
		return len(msgs) == 1 &&
			msgs[0].Status == model.StatusResolved &&
			msgs[0].Body == "Uploaded notes.pdf"
	}, 5*time.Second, 10*time.Millisecond, "upload never resolved: %+v", s.Transcript())
}

func TestHistoryPersistsAcrossSessions(t *testing.T) {
	backend := newFakeBackend(t)
	dbPath := filepath.Join(t.TempDir(), "tavern.db")

	cfg := backend.config()
	cfg.Storage.PersistHistory = true

	store, err := storage.Open(dbPath)
	require.NoError(t, err)

	s := New(Options{Config: cfg, Store: store})
	s.Start()
	s.SubmitText("remember me")
	require.Eventually(t, func() bool {
		msgs := s.Transcript()
		return len(msgs) == 2 && msgs[1].Status == model.StatusResolved
	}, 5*time.Second, 10*time.Millisecond)
	s.Close()
	require.NoError(t, store.Close())

	store2, err := storage.Open(dbPath)
	require.NoError(t, err)
	defer store2.Close()

	s2 := New(Options{Config: cfg, Store: store2})
	s2.Start()
	defer s2.Close()

	msgs := s2.Transcript()
	require.Len(t, msgs, 2)
	require.Equal(t, "remember me", msgs[0].Body)
}

func TestHistoryNotRestoredWhenPersistenceOff(t *testing.T) {
	backend := newFakeBackend(t)
	dbPath := filepath.Join(t.TempDir(), "tavern.db")

	// A run with persistence enabled leaves history in the store.
	cfg := backend.config()
	cfg.Storage.PersistHistory = true
	store, err := storage.Open(dbPath)
	require.NoError(t, err)
	s := New(Options{Config: cfg, Store: store})
	s.Start()
	s.SubmitText("ephemeral")
	require.Eventually(t, func() bool {
		msgs := s.Transcript()
		return len(msgs) == 2 && msgs[1].Status == model.StatusResolved
	}, 5*time.Second, 10*time.Millisecond)
	s.Close()
	require.NoError(t, store.Close())

	// With persistence off (the default) the same store yields a fresh
	// transcript; only the last-recording blob remains reachable.
	store2, err := storage.Open(dbPath)
	require.NoError(t, err)
	defer store2.Close()

	s2 := New(Options{Config: backend.config(), Store: store2})
	s2.Start()
	defer s2.Close()
	require.Empty(t, s2.Transcript())
}

func TestMicFailureBecomesSystemMessage(t *testing.T) {
	backend := newFakeBackend(t)
	s := New(Options{Config: backend.config(), Device: failingDevice{}})
	s.Start()
	defer s.Close()

	s.StartRecording(context.Background())

	require.Eventually(t, func() bool {
		msgs := s.Transcript()
		return len(msgs) == 1 && msgs[0].Role == model.RoleSystem
	}, 5*time.Second, 10*time.Millisecond)
	require.Contains(t, lastMessage(s).Body, "Microphone error")
	require.False(t, s.Recording())
}

type failingDevice struct{}

func (failingDevice) Open(context.Context) (io.ReadCloser, error) {
	return nil, recorder.ErrDeviceUnavailable
}

func TestCloseFreezesTranscript(t *testing.T) {
	backend := newFakeBackend(t)
	s := New(Options{Config: backend.config()})
	s.Start()

	s.SubmitText("hello")
	require.Eventually(t, func() bool {
		return len(s.Transcript()) == 2 && lastMessage(s).Status == model.StatusResolved
	}, 5*time.Second, 10*time.Millisecond)

	s.Close()
	before := s.Transcript()

	// Late activity must not land.
	s.SubmitText("after close")
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, before, s.Transcript())
}

func TestUpdatesSignalsOnChange(t *testing.T) {
	backend := newFakeBackend(t)
	s := New(Options{Config: backend.config()})
	s.Start()
	defer s.Close()

	s.SubmitText("ping")

	select {
	case <-s.Updates():
	case <-time.After(5 * time.Second):
		t.Fatal("no update signal")
	}
}
