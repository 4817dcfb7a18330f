// tavern TUI - a terminal client for the Fine-Tuned LIU ChatBot backend.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/morganforge/tavern-tui/internal/config"
	"github.com/morganforge/tavern-tui/internal/recorder"
	"github.com/morganforge/tavern-tui/internal/session"
	"github.com/morganforge/tavern-tui/internal/storage"
	"github.com/morganforge/tavern-tui/internal/ui/chat"
	"github.com/morganforge/tavern-tui/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to config file (default ~/.tavern/config.toml)")
		showVersion = flag.Bool("version", false, "print version and exit")
		verbose     = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("tavern %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	// Local .env overrides for development setups.
	_ = godotenv.Load()

	if err := run(*configPath, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, verbose bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger, logClose, err := newLogger(verbose)
	if err != nil {
		return err
	}
	defer logClose()

	store, err := openStore(cfg)
	if err != nil {
		logger.Warn("persistence disabled", "error", err)
	}
	if store != nil {
		defer store.Close()
	}

	var device recorder.Device
	if cmd := cfg.Recorder.CaptureCommand; len(cmd) > 0 {
		device = recorder.NewCommandDevice(cmd[0], cmd[1:]...)
	}

	sess := session.New(session.Options{
		Config: cfg,
		Logger: logger,
		Store:  store,
		Device: device,
	})
	sess.Start()
	defer sess.Close()

	theme := styles.NewTheme(cfg.UI.Theme)
	program := tea.NewProgram(
		chat.New(sess, cfg, theme),
		tea.WithAltScreen(),
	)

	// Apply config file edits (theme, reveal cadence) without a restart.
	watcher, err := watchConfig(configPath, program)
	if err != nil {
		logger.Warn("config watcher unavailable", "error", err)
	} else {
		defer watcher.Close()
	}

	logger.Info("starting", "version", Version, "backend", cfg.Backend.BaseURL)
	_, err = program.Run()
	return err
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

// newLogger writes structured logs to ~/.tavern/tavern.log; stdout belongs
// to the TUI.
func newLogger(verbose bool) (*slog.Logger, func(), error) {
	dir, err := config.Dir()
	if err != nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "tavern.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger, func() { f.Close() }, nil
}

func openStore(cfg *config.Config) (*storage.Store, error) {
	path := cfg.Storage.Path
	if path == "" {
		dir, err := config.Dir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "tavern.db")
	}
	return storage.Open(path)
}

func watchConfig(configPath string, program *tea.Program) (*config.Watcher, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = config.Path()
		if err != nil {
			return nil, err
		}
	}
	return config.NewWatcher(path, func(cfg *config.Config) {
		program.Send(chat.ConfigReloadedMsg{Config: cfg})
	})
}
