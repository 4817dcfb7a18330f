// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"testing"

	"github.com/morganforge/tavern-tui/internal/config"
	"github.com/morganforge/tavern-tui/internal/session"
	"github.com/morganforge/tavern-tui/internal/ui/styles"
)

func TestConfigReloadRethemes(t *testing.T) {
	cfg := config.Default()
	sess := session.New(session.Options{Config: cfg})
	m := New(sess, cfg, styles.NewTheme("dark"))

	next := config.Default()
	next.UI.Theme = "light"
	next.Chat.RevealIntervalMs = 5

	updated, _ := m.Update(ConfigReloadedMsg{Config: next})
	got, ok := updated.(Model)
	if !ok {
		t.Fatalf("Update returned %T", updated)
	}

	if got.cfg != next {
		t.Error("view kept the stale config")
	}
	if got.theme.IsDark {
		t.Error("theme should be light after reload")
	}
	if sess.Config() != next {
		t.Error("session did not receive the reloaded config")
	}
	if got.status != "Config reloaded" {
		t.Errorf("status = %q", got.status)
	}
}

func TestConfigReloadNilIsIgnored(t *testing.T) {
	cfg := config.Default()
	sess := session.New(session.Options{Config: cfg})
	m := New(sess, cfg, styles.NewTheme("dark"))

	updated, _ := m.Update(ConfigReloadedMsg{})
	got := updated.(Model)
	if got.cfg != cfg {
		t.Error("nil reload should leave the config alone")
	}
}
