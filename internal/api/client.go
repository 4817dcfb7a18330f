// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api provides the HTTP client for the fine-tuned chat backend.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CompletionError represents a failed chat-completion request. Message is
// always displayable: when the backend returns no usable error text, a
// generic message is substituted.
type CompletionError struct {
	// Message is the human-readable failure description.
	Message string

	// Status is the HTTP status code, or 0 for transport failures.
	Status int

	// Cause is the underlying error, if any.
	Cause error
}

func (e *CompletionError) Error() string {
	return e.Message
}

func (e *CompletionError) Unwrap() error {
	return e.Cause
}

// ErrTimeout indicates the completion request exceeded its deadline.
var ErrTimeout = &CompletionError{Message: "request timed out"}

// genericMessage is used when a failure carries no displayable text.
const genericMessage = "Sorry, I encountered an error. Please try again."

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the chat client.
type ClientConfig struct {
	// BaseURL is the backend API base URL.
	BaseURL string

	// Timeout for completion requests (default: 60s). Completions can be
	// slow; the fine-tuned model generates the full response server-side
	// before replying.
	Timeout time.Duration

	// MaxResponseSize caps how many bytes of a response body are read
	// (default: 1 MiB).
	MaxResponseSize int64
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:         "http://127.0.0.1:8000",
		Timeout:         60 * time.Second,
		MaxResponseSize: 1 << 20,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the chat backend.
//
// The Client is thread-safe for concurrent use.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
}

// NewClient creates a chat client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a chat client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	// Fill in defaults for any zero values
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:8000"
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MaxResponseSize == 0 {
		config.MaxResponseSize = 1 << 20
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// =============================================================================
// COMPLETION
// =============================================================================

// completionResponse is the backend's reply envelope. Exactly one of the
// fields is populated.
type completionResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

// Complete sends the user's message to the fine-tuned model and returns the
// raw response text. The message travels as a query parameter; the request
// body is empty. Failures are returned as *CompletionError.
func (c *Client) Complete(ctx context.Context, message string) (string, error) {
	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/tuning-chat?msg=" + url.QueryEscape(message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", &CompletionError{Message: genericMessage, Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", &CompletionError{Message: genericMessage, Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxResponseSize))
	if err != nil {
		return "", &CompletionError{Message: genericMessage, Status: resp.StatusCode, Cause: err}
	}

	var result completionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		// Non-JSON bodies (proxy error pages and the like) are not shown
		// to the user.
		return "", &CompletionError{Message: genericMessage, Status: resp.StatusCode, Cause: err}
	}

	if result.Error != "" {
		return "", &CompletionError{Message: result.Error, Status: resp.StatusCode}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &CompletionError{Message: genericMessage, Status: resp.StatusCode}
	}

	return result.Response, nil
}

// IsTimeout reports whether an error is a completion timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
