// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for
// chanterm.
//
// Configuration is TOML at ~/.chanterm/config.toml with built-in
// defaults for every tunable; workspace credentials normally arrive via
// SLACK_BOT_TOKEN and SLACK_APP_TOKEN instead of the file. Environment
// overrides are applied after the file, and a Watcher can reload the
// file when it changes on disk.
package config
