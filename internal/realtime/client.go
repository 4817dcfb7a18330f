// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package realtime maintains the websocket subscription that delivers
// transcription events for uploaded audio.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// eventTranscription is the only event type this client consumes; other
// event names on the channel are ignored.
const eventTranscription = "transcription_update"

// TranscriptionEvent is a finished transcription for an uploaded audio
// file. RequestID echoes the correlation id sent with the upload, when the
// backend provides one.
type TranscriptionEvent struct {
	RequestID string
	Text      string
}

// Handler receives transcription events from the client's read loop.
type Handler func(TranscriptionEvent)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// Config holds configuration options for the realtime client.
type Config struct {
	// URL is the websocket endpoint (ws:// or wss://).
	URL string

	// DialTimeout bounds each connection attempt (default: 10s).
	DialTimeout time.Duration

	// ReconnectDelay is the initial delay before a reconnect; it doubles
	// up to ReconnectMax (defaults: 1s and 30s).
	ReconnectDelay time.Duration
	ReconnectMax   time.Duration
}

func (c *Config) fillDefaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = time.Second
	}
	if c.ReconnectMax == 0 {
		c.ReconnectMax = 30 * time.Second
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// wireEvent is the JSON shape of messages on the channel.
type wireEvent struct {
	Event     string `json:"event"`
	Text      string `json:"text"`
	RequestID string `json:"request_id,omitempty"`
}

// Client subscribes to the realtime channel and dispatches transcription
// events to its handler. The connection is re-established with exponential
// backoff when it drops; events arriving while disconnected are lost, which
// the backend tolerates by re-emitting on reconnect.
type Client struct {
	config  Config
	handler Handler
	logger  *slog.Logger

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

// NewClient creates a realtime client. The handler is invoked from the
// client's read goroutine and must not block for long.
func NewClient(config Config, handler Handler, logger *slog.Logger) *Client {
	config.fillDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config:  config,
		handler: handler,
		logger:  logger,
		closed:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the connect/read loop.
func (c *Client) Start(ctx context.Context) {
	go c.run(ctx)
}

// Close stops the client and waits for the read loop to exit. No handler
// call is made after Close returns.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
	<-c.done
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	delay := c.config.ReconnectDelay
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		default:
		}

		err := c.readOnce(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		c.logger.Debug("realtime connection lost", "error", err, "retry_in", delay)

		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > c.config.ReconnectMax {
			delay = c.config.ReconnectMax
		}
	}
}

// readOnce dials the endpoint and drains events until the connection drops
// or the client shuts down. A nil return means a clean shutdown.
func (c *Client) readOnce(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.config.DialTimeout)
	conn, _, err := websocket.Dial(dialCtx, c.config.URL, nil)
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "client shutdown")

	c.logger.Debug("realtime connected", "url", c.config.URL)

	// Tie reads to shutdown so Close unblocks a pending Read.
	readCtx, stopRead := context.WithCancel(ctx)
	defer stopRead()
	go func() {
		select {
		case <-c.closed:
			stopRead()
		case <-readCtx.Done():
		}
	}()

	for {
		_, data, err := conn.Read(readCtx)
		if err != nil {
			select {
			case <-c.closed:
				return nil
			default:
			}
			return err
		}

		var ev wireEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Debug("realtime payload not decodable", "error", err)
			continue
		}
		if ev.Event != eventTranscription {
			continue
		}

		select {
		case <-c.closed:
			return nil
		default:
		}
		c.handler(TranscriptionEvent{RequestID: ev.RequestID, Text: ev.Text})
	}
}
