// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package recorder captures microphone audio and reports live amplitude
// for the recording visualization.
package recorder

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"sync"
)

// Errors surfaced to the conversation as microphone failures.
var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = errors.New("no capture device available")
	ErrAlreadyRecording  = errors.New("recording already in progress")
	ErrNotRecording      = errors.New("no recording in progress")
)

// Device abstracts the audio source. The default implementation shells out
// to the platform capture tool (see device_unix.go and device_windows.go);
// tests substitute an in-memory reader.
type Device interface {
	// Open starts capture and returns a stream of signed 16-bit
	// little-endian mono PCM. Closing the reader stops capture.
	Open(ctx context.Context) (io.ReadCloser, error)
}

// AmplitudeFunc receives the normalized RMS amplitude of each captured
// chunk, in [0,1]. Called from the recorder's read goroutine.
type AmplitudeFunc func(level float64)

// chunkSize is the read granularity; at 44.1kHz s16le mono this is about
// 46ms of audio per amplitude sample.
const chunkSize = 4096

// =============================================================================
// RECORDER
// =============================================================================

// Recorder owns at most one capture session at a time.
type Recorder struct {
	device    Device
	amplitude AmplitudeFunc

	mu      sync.Mutex
	current *capture
}

// capture is one in-flight recording.
type capture struct {
	stream io.ReadCloser
	done   chan struct{}

	mu  sync.Mutex
	buf bytes.Buffer
	err error
}

// buffered reports how many bytes have been captured so far.
func (c *capture) buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Len()
}

// New creates a recorder reading from the given device. A nil device picks
// the platform default.
func New(device Device, amplitude AmplitudeFunc) *Recorder {
	if device == nil {
		device = defaultDevice()
	}
	return &Recorder{device: device, amplitude: amplitude}
}

// Recording reports whether a capture session is in flight.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil
}

// Start opens the device and begins buffering audio. Amplitude callbacks
// fire until Stop or Cancel.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil {
		return ErrAlreadyRecording
	}

	stream, err := r.device.Open(ctx)
	if err != nil {
		return err
	}

	c := &capture{stream: stream, done: make(chan struct{})}
	r.current = c
	go r.readLoop(c)
	return nil
}

// Stop ends the capture and returns the recorded PCM bytes. An empty
// recording is not an error; the caller decides whether to discard it.
// Stop with no capture in flight is a no-op.
func (r *Recorder) Stop() ([]byte, error) {
	c, err := r.detach()
	if errors.Is(err, ErrNotRecording) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c.buf.Bytes(), c.err
}

// Cancel ends the capture and discards the audio.
func (r *Recorder) Cancel() error {
	_, err := r.detach()
	return err
}

// detach closes the current capture's stream, waits for the read loop to
// drain, and clears the slot.
func (r *Recorder) detach() (*capture, error) {
	r.mu.Lock()
	c := r.current
	r.current = nil
	r.mu.Unlock()

	if c == nil {
		return nil, ErrNotRecording
	}
	c.stream.Close()
	<-c.done
	return c, nil
}

// readLoop drains the device into the capture buffer, reporting amplitude
// per chunk. Exits when the stream is closed.
func (r *Recorder) readLoop(c *capture) {
	defer close(c.done)

	chunk := make([]byte, chunkSize)
	for {
		n, err := c.stream.Read(chunk)
		if n > 0 {
			c.mu.Lock()
			c.buf.Write(chunk[:n])
			c.mu.Unlock()
			if r.amplitude != nil {
				r.amplitude(rmsAmplitude(chunk[:n]))
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				c.mu.Lock()
				c.err = err
				c.mu.Unlock()
			}
			return
		}
	}
}

// rmsAmplitude computes the normalized root-mean-square level of a chunk
// of s16le PCM. A trailing odd byte is ignored.
func rmsAmplitude(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < samples*2; i += 2 {
		s := int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8)
		f := float64(s) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(samples))
}
