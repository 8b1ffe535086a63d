// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "github.com/jeranaias/chanterm/internal/util"

// =============================================================================
// PROVENANCE TYPE
// =============================================================================

// Provenance records how a message entered the local cache.
type Provenance int

const (
	// Confirmed messages came from the server (stream or history fetch).
	Confirmed Provenance = iota
	// Pending messages are optimistic local echoes awaiting confirmation.
	Pending
	// Failed messages are local echoes whose send was rejected or timed out.
	Failed
)

// String returns the string representation of the provenance.
func (p Provenance) String() string {
	switch p {
	case Confirmed:
		return "confirmed"
	case Pending:
		return "pending"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single message in a channel.
type Message struct {
	// Identity. (ChannelID, TS, Author) names a logical message: the same
	// triple delivered twice is the same message.
	ChannelID string `json:"channel"`
	TS        TS     `json:"ts"`
	Author    string `json:"user"`

	// Content
	Body string `json:"text"`

	// Local bookkeeping, never sent on the wire.
	Provenance Provenance `json:"-"`
	// EchoID links a pending local echo to its resolution. Empty for
	// server-confirmed messages.
	EchoID string `json:"-"`
	// FailReason is set when Provenance is Failed.
	FailReason string `json:"-"`
}

// Key identifies a logical message within the store.
type Key struct {
	ChannelID string
	TS        TS
	Author    string
}

// Key returns the identity triple of the message.
func (m Message) Key() Key {
	return Key{ChannelID: m.ChannelID, TS: m.TS, Author: m.Author}
}

// IsPending reports whether the message is an unresolved local echo.
func (m Message) IsPending() bool {
	return m.Provenance == Pending
}

// Preview returns a truncated preview of the message body.
// Uses rune-based truncation to handle Unicode correctly.
func (m Message) Preview(maxLen int) string {
	return util.TruncateRunes(m.Body, maxLen)
}
