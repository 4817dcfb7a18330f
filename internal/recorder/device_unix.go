// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !windows
// +build !windows

package recorder

import (
	"context"
	"io"
	"os"
	"os/exec"
)

// execDevice captures audio by shelling out to a command that writes raw
// s16le PCM to stdout.
type execDevice struct {
	path string
	args []string
}

// defaultDevice finds a capture tool on this machine: arecord (ALSA),
// sox's rec, or ffmpeg, in that order.
func defaultDevice() Device {
	if path, err := exec.LookPath("arecord"); err == nil {
		return &execDevice{path: path, args: []string{"-q", "-f", "S16_LE", "-c", "1", "-r", "44100", "-t", "raw"}}
	}
	if path, err := exec.LookPath("rec"); err == nil {
		return &execDevice{path: path, args: []string{"-q", "-t", "raw", "-b", "16", "-e", "signed", "-c", "1", "-r", "44100", "-"}}
	}
	if path, err := exec.LookPath("ffmpeg"); err == nil {
		return &execDevice{path: path, args: []string{
			"-hide_banner", "-loglevel", "quiet",
			"-f", "pulse", "-i", "default",
			"-ac", "1", "-ar", "44100", "-f", "s16le", "-",
		}}
	}
	return unavailableDevice{}
}

// NewCommandDevice builds a device from a user-configured capture command.
// The command must emit s16le mono PCM on stdout.
func NewCommandDevice(path string, args ...string) Device {
	return &execDevice{path: path, args: args}
}

func (d *execDevice) Open(ctx context.Context) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, d.path, d.args...)
	cmd.Stderr = nil
	cmd.Stdin = nil

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		if os.IsPermission(err) {
			return nil, ErrPermissionDenied
		}
		return nil, ErrDeviceUnavailable
	}

	return &processStream{stdout: stdout, cmd: cmd}, nil
}

// processStream ties the PCM pipe to the capture process's lifetime.
type processStream struct {
	stdout io.ReadCloser
	cmd    *exec.Cmd
}

func (s *processStream) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

// Close stops the capture process. The reaped exit status is ignored;
// killing the recorder mid-stream is the normal stop path.
func (s *processStream) Close() error {
	s.stdout.Close()
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.cmd.Wait()
	return nil
}

// unavailableDevice is the fallback when no capture tool exists.
type unavailableDevice struct{}

func (unavailableDevice) Open(context.Context) (io.ReadCloser, error) {
	return nil, ErrDeviceUnavailable
}
