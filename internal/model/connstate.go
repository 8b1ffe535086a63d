// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// =============================================================================
// CONNECTION STATE
// =============================================================================

// ConnState is the coarse state of the event-stream connection.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Backoff
)

// String returns the string representation of the state.
func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Backoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// ConnStatus is the full externally visible connection status. Exactly
// one instance exists, written only by the event-stream client and read
// everywhere else.
type ConnStatus struct {
	State ConnState
	// Attempt counts consecutive failed connection attempts; zero while
	// connected.
	Attempt int
	// Until is when the current backoff expires (Backoff state only).
	Until time.Time
	// Reason describes the last disconnect, for the status line.
	Reason string
	// Fatal is set once Attempt exceeds the configured ceiling. The
	// client keeps retrying at the maximum interval, but the UI should
	// show a hard connectivity error.
	Fatal bool
}
