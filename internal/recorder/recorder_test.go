// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package recorder

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"
)

// fakeDevice streams a fixed PCM payload, then blocks until closed.
type fakeDevice struct {
	pcm     []byte
	openErr error
}

func (d *fakeDevice) Open(ctx context.Context) (io.ReadCloser, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	r, w := io.Pipe()
	go func() {
		w.Write(d.pcm)
		// Keep the stream open like a live microphone would.
	}()
	return &pipeStream{r: r, w: w}, nil
}

type pipeStream struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (s *pipeStream) Read(p []byte) (int, error) { return s.r.Read(p) }

func (s *pipeStream) Close() error {
	s.w.Close()
	return s.r.Close()
}

// sine produces n samples of s16le PCM at the given amplitude.
func sine(n int, amplitude float64) []byte {
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := amplitude * math.Sin(2*math.Pi*float64(i)/64)
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(v*32767)))
	}
	return buf
}

func TestRecorderCapturesAudio(t *testing.T) {
	pcm := sine(8192, 0.5)
	r := New(&fakeDevice{pcm: pcm}, nil)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !r.Recording() {
		t.Error("Recording() = false while capturing")
	}

	waitForBytes(t, r, len(pcm))
	got, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("captured %d bytes, want %d, content mismatch=%v", len(got), len(pcm), !bytes.Equal(got, pcm))
	}
	if r.Recording() {
		t.Error("Recording() = true after Stop")
	}
}

func TestRecorderReportsAmplitude(t *testing.T) {
	var (
		mu     sync.Mutex
		levels []float64
	)
	r := New(&fakeDevice{pcm: sine(8192, 0.5)}, func(level float64) {
		mu.Lock()
		levels = append(levels, level)
		mu.Unlock()
	})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForBytes(t, r, 8192*2)
	r.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(levels) == 0 {
		t.Fatal("no amplitude samples")
	}
	for _, l := range levels {
		if l < 0 || l > 1 {
			t.Errorf("amplitude %f out of [0,1]", l)
		}
	}
	// A half-scale sine has RMS near 0.35.
	if levels[0] < 0.2 || levels[0] > 0.5 {
		t.Errorf("first amplitude = %f, want near 0.35", levels[0])
	}
}

func TestRecorderCancelDiscards(t *testing.T) {
	r := New(&fakeDevice{pcm: sine(1024, 0.5)}, nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if r.Recording() {
		t.Error("Recording() = true after Cancel")
	}
	if data, err := r.Stop(); err != nil || len(data) != 0 {
		t.Errorf("Stop after Cancel = (%d bytes, %v), want empty no-op", len(data), err)
	}
}

func TestRecorderStopWhenIdleIsNoOp(t *testing.T) {
	r := New(&fakeDevice{pcm: sine(1024, 0.5)}, nil)

	data, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop while idle = %v, want nil", err)
	}
	if len(data) != 0 {
		t.Errorf("Stop while idle returned %d bytes, want none", len(data))
	}
	if r.Recording() {
		t.Error("Recording() = true after idle Stop")
	}

	// Cancel still reports the missing capture.
	if err := r.Cancel(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Cancel while idle = %v, want ErrNotRecording", err)
	}
}

func TestRecorderDoubleStart(t *testing.T) {
	r := New(&fakeDevice{pcm: sine(1024, 0.5)}, nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Cancel()

	if err := r.Start(context.Background()); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("second Start = %v, want ErrAlreadyRecording", err)
	}
}

func TestRecorderDeviceErrors(t *testing.T) {
	r := New(&fakeDevice{openErr: ErrPermissionDenied}, nil)
	if err := r.Start(context.Background()); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Start = %v, want ErrPermissionDenied", err)
	}
	if r.Recording() {
		t.Error("Recording() = true after failed Start")
	}
}

func TestRMSAmplitude(t *testing.T) {
	tests := []struct {
		name string
		pcm  []byte
		want float64
	}{
		{"silence", make([]byte, 64), 0},
		{"empty", nil, 0},
		{"odd trailing byte", []byte{0x01}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rmsAmplitude(tt.pcm); got != tt.want {
				t.Errorf("rmsAmplitude = %f, want %f", got, tt.want)
			}
		})
	}

	// Full-scale square wave has RMS 1.0 (within quantization).
	full := bytes.Repeat([]byte{0xFF, 0x7F}, 32)
	if got := rmsAmplitude(full); got < 0.99 || got > 1.0 {
		t.Errorf("full-scale RMS = %f, want ~1.0", got)
	}
}

// waitForBytes blocks until the in-flight capture has buffered n bytes.
func waitForBytes(t *testing.T, r *Recorder, n int) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		r.mu.Lock()
		var buffered int
		if r.current != nil {
			buffered = r.current.buffered()
		}
		r.mu.Unlock()
		if buffered >= n {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out with %d of %d bytes", buffered, n)
		case <-time.After(5 * time.Millisecond):
		}
	}
}
