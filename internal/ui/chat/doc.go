// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the terminal UI: a channel picker and a
// conversation screen over one Bubble Tea model.
//
// The model is a pure adapter. It reads immutable store snapshots,
// renders them, and turns keystrokes into dispatcher intents; it never
// touches the network and never mutates the store directly. External
// events (store changes, connection status, name-cache refreshes)
// arrive as messages.
package chat
