// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config must validate, got: %v", err)
	}
}

func TestLoadFromPath_FillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[gateway]
history_page_size = 50

[ui]
theme = "light"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if cfg.Gateway.HistoryPageSize != 50 {
		t.Errorf("HistoryPageSize = %d, want 50", cfg.Gateway.HistoryPageSize)
	}
	if cfg.UI.Theme != "light" {
		t.Errorf("Theme = %q, want light", cfg.UI.Theme)
	}
	// Unset fields come from defaults.
	if cfg.Stream.BackoffBaseMS != 500 {
		t.Errorf("BackoffBaseMS = %d, want default 500", cfg.Stream.BackoffBaseMS)
	}
	if cfg.Gateway.SendTimeoutSecs != 15 {
		t.Errorf("SendTimeoutSecs = %d, want default 15", cfg.Gateway.SendTimeoutSecs)
	}
}

func TestLoadFromPath_FixesPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(""), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFromPath(path); err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 0600", perm)
	}
}

func TestApplyEnvOverrides_Tokens(t *testing.T) {
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-from-env")
	t.Setenv("SLACK_APP_TOKEN", "xapp-from-env")

	cfg := Default()
	cfg.Workspace.BotToken = "xoxb-from-file"
	cfg.ApplyEnvOverrides()

	if cfg.Workspace.BotToken != "xoxb-from-env" {
		t.Errorf("env must win over file, got %q", cfg.Workspace.BotToken)
	}
	if cfg.Workspace.AppToken != "xapp-from-env" {
		t.Errorf("AppToken = %q", cfg.Workspace.AppToken)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"bad bot token prefix", func(c *Config) { c.Workspace.BotToken = "xapp-wrong" }, "workspace.bot_token"},
		{"bad app token prefix", func(c *Config) { c.Workspace.AppToken = "xoxb-wrong" }, "workspace.app_token"},
		{"page size too large", func(c *Config) { c.Gateway.HistoryPageSize = 500 }, "gateway.history_page_size"},
		{"idle timeout too short", func(c *Config) { c.Stream.ReadIdleTimeoutSecs = 5 }, "stream.read_idle_timeout_secs"},
		{"cap below base", func(c *Config) { c.Stream.BackoffBaseMS = 5000; c.Stream.BackoffMaxSecs = 1 }, "stream.backoff_max_secs"},
		{"unknown theme", func(c *Config) { c.UI.Theme = "solarized" }, "ui.theme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantField) {
				t.Errorf("error %q does not mention %s", err, tt.wantField)
			}
		})
	}
}

func TestSaveTOML_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.UI.Theme = "light"
	cfg.Gateway.HistoryPageSize = 42
	if err := SaveTOML(cfg, path); err != nil {
		t.Fatalf("SaveTOML: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 0600", perm)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if loaded.UI.Theme != "light" || loaded.Gateway.HistoryPageSize != 42 {
		t.Errorf("round trip lost values: %+v", loaded)
	}
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := SaveTOML(Default(), path); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var got *Config
	w, err := Watch(path, func(cfg *Config, err error) {
		if err != nil {
			t.Logf("reload error: %v", err)
			return
		}
		mu.Lock()
		got = cfg
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close()

	changed := Default()
	changed.UI.Theme = "light"
	if err := SaveTOML(changed, path); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		ok := got != nil && got.UI.Theme == "light"
		mu.Unlock()
		if ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("reload callback never observed the change")
}
