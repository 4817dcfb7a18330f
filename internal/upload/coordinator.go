// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package upload implements the two-phase attachment upload: a presigned
// URL is requested from the backend, then the file bytes are PUT directly
// to object storage.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// Phase identifies which half of the upload failed.
type Phase int

const (
	PhaseSign Phase = iota
	PhasePut
)

func (p Phase) String() string {
	switch p {
	case PhaseSign:
		return "sign"
	case PhasePut:
		return "put"
	default:
		return "unknown"
	}
}

// UploadError represents a failed upload.
type UploadError struct {
	Name  string
	Phase Phase
	Cause error
}

func (e *UploadError) Error() string {
	return "upload " + e.Name + " (" + e.Phase.String() + "): " + e.Cause.Error()
}

func (e *UploadError) Unwrap() error {
	return e.Cause
}

// =============================================================================
// COORDINATOR CONFIGURATION
// =============================================================================

// Config holds configuration options for the upload coordinator.
type Config struct {
	// BaseURL is the backend API base URL serving the signing endpoint.
	BaseURL string

	// SignTimeout bounds the presigned-URL request (default: 15s).
	SignTimeout time.Duration

	// PutTimeout bounds the storage PUT (default: 2m; audio blobs can be
	// large on slow links).
	PutTimeout time.Duration
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     "http://127.0.0.1:8000",
		SignTimeout: 15 * time.Second,
		PutTimeout:  2 * time.Minute,
	}
}

// =============================================================================
// COORDINATOR
// =============================================================================

// Request describes one attachment to upload. CorrelationID is threaded
// through the signing request so the backend can tag the resulting realtime
// transcription event.
type Request struct {
	CorrelationID string
	Name          string
	ContentType   string
	Data          []byte
}

// ProgressFunc receives upload progress as a percentage in [0,100].
// Reported values never decrease.
type ProgressFunc func(percent int)

// Coordinator drives two-phase uploads. Thread-safe for concurrent use.
type Coordinator struct {
	config     *Config
	httpClient *http.Client
}

// NewCoordinator creates a coordinator with the given configuration.
func NewCoordinator(config *Config) *Coordinator {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:8000"
	}
	if config.SignTimeout == 0 {
		config.SignTimeout = 15 * time.Second
	}
	if config.PutTimeout == 0 {
		config.PutTimeout = 2 * time.Minute
	}

	return &Coordinator{
		config:     config,
		httpClient: &http.Client{},
	}
}

// signRequest is the body of the presigned-URL request.
type signRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	RequestID   string `json:"request_id,omitempty"`
}

// signResponse is the backend's reply.
type signResponse struct {
	URL   string `json:"url"`
	Error string `json:"error,omitempty"`
}

// Upload performs both phases and returns the remote object URL (the
// presigned URL with its signing query stripped). progress may be nil.
func (c *Coordinator) Upload(ctx context.Context, req Request, progress ProgressFunc) (string, error) {
	putURL, err := c.sign(ctx, req)
	if err != nil {
		return "", &UploadError{Name: req.Name, Phase: PhaseSign, Cause: err}
	}

	if err := c.put(ctx, putURL, req, progress); err != nil {
		return "", &UploadError{Name: req.Name, Phase: PhasePut, Cause: err}
	}

	if progress != nil {
		progress(100)
	}
	return strippedURL(putURL), nil
}

// sign asks the backend for a presigned PUT URL.
func (c *Coordinator) sign(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.SignTimeout)
	defer cancel()

	body, err := json.Marshal(signRequest{
		Filename:    req.Name,
		ContentType: req.ContentType,
		RequestID:   req.CorrelationID,
	})
	if err != nil {
		return "", err
	}

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/get_presigned_url"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result signResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&result); err != nil {
		return "", errors.New("invalid signing response: " + err.Error())
	}
	if result.Error != "" {
		return "", errors.New(result.Error)
	}
	if resp.StatusCode != http.StatusOK || result.URL == "" {
		return "", errors.New("signing failed: " + resp.Status)
	}
	return result.URL, nil
}

// put streams the raw bytes to the presigned URL.
func (c *Coordinator) put(ctx context.Context, putURL string, req Request, progress ProgressFunc) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.PutTimeout)
	defer cancel()

	reader := newProgressReader(req.Data, progress)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, putURL, reader)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", req.ContentType)
	httpReq.ContentLength = int64(len(req.Data))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.New("storage rejected upload: " + resp.Status)
	}
	return nil
}

// strippedURL drops the signing query string from a presigned URL.
func strippedURL(putURL string) string {
	if i := strings.IndexByte(putURL, '?'); i >= 0 {
		return putURL[:i]
	}
	return putURL
}

// =============================================================================
// PROGRESS READER
// =============================================================================

// progressReader reports monotone percentage progress as the PUT body is
// consumed. The transport may retry and re-read the body; reported percent
// never moves backwards.
type progressReader struct {
	r        *bytes.Reader
	total    int
	read     int
	lastPct  int
	progress ProgressFunc
}

func newProgressReader(data []byte, progress ProgressFunc) *progressReader {
	return &progressReader{
		r:        bytes.NewReader(data),
		total:    len(data),
		progress: progress,
	}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.progress != nil && p.total > 0 {
		p.read += n
		// Cap at 99 until the server acknowledges the upload.
		pct := p.read * 100 / p.total
		if pct > 99 {
			pct = 99
		}
		if pct > p.lastPct {
			p.lastPct = pct
			p.progress(pct)
		}
	}
	return n, err
}
