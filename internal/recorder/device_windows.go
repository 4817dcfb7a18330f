// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build windows
// +build windows

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

// defaultDevice looks for ffmpeg with the DirectShow capture backend, or
// sox's rec. Windows ships neither, so configuring recorder.capture_command
// is the usual route here.
func defaultDevice() Device {
	if path, err := exec.LookPath("ffmpeg.exe"); err == nil {
		return &execDevice{path: path, args: []string{
			"-hide_banner", "-loglevel", "quiet",
			"-f", "dshow", "-i", "audio=default",
			"-ac", "1", "-ar", "44100", "-f", "s16le", "-",
		}}
	}
	if path, err := exec.LookPath("rec.exe"); err == nil {
		return &execDevice{path: path, args: []string{"-q", "-t", "raw", "-b", "16", "-e", "signed", "-c", "1", "-r", "44100", "-"}}
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

// Close stops the capture process.
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
