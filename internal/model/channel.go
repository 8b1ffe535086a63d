// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// Channel is a workspace channel as known to the local cache.
//
// Channels are created when first observed (listing or an event that
// references them) and never deleted during a session; archival is
// handled server-side and out of scope here.
type Channel struct {
	// ID is the stable opaque channel identifier, e.g. "C09T0J1578V".
	ID string `json:"id"`
	// Name is the display name without the leading '#'.
	Name string `json:"name"`
	// IsMember reports whether the bot identity is a member. Posting to a
	// channel requires membership; the dispatcher joins on demand.
	IsMember bool `json:"is_member"`
	// LastActivity is the TS of the newest message observed in the
	// channel. It never regresses.
	LastActivity TS `json:"-"`
}

// Merge folds newer observed fields of other into c, never regressing
// the activity timestamp. The receiver's ID wins; other must refer to
// the same channel.
func (c *Channel) Merge(other Channel) {
	if other.Name != "" {
		c.Name = other.Name
	}
	if other.IsMember {
		c.IsMember = true
	}
	if c.LastActivity.Before(other.LastActivity) {
		c.LastActivity = other.LastActivity
	}
}
