// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"testing"
	"time"
)

// =============================================================================
// TIMESTAMP TESTS
// =============================================================================

func TestTS_Parts(t *testing.T) {
	tests := []struct {
		name string
		ts   TS
		sec  int64
		seq  int64
	}{
		{"full", TS("1712345678.000200"), 1712345678, 200},
		{"no fraction", TS("1712345678"), 1712345678, 0},
		{"zero", TS(""), 0, 0},
		{"garbage", TS("not-a-ts"), 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sec, seq := tt.ts.Parts()
			if sec != tt.sec || seq != tt.seq {
				t.Errorf("Parts() = (%d, %d), want (%d, %d)", sec, seq, tt.sec, tt.seq)
			}
		})
	}
}

func TestTS_Before(t *testing.T) {
	tests := []struct {
		name string
		a, b TS
		want bool
	}{
		{"seconds differ", TS("100.000001"), TS("200.000000"), true},
		{"sequence differs", TS("100.000001"), TS("100.000002"), true},
		{"equal", TS("100.000001"), TS("100.000001"), false},
		{"reversed", TS("200.000000"), TS("100.000001"), false},
		// Lexicographic comparison would get this wrong.
		{"wider seconds", TS("99.000000"), TS("100.000000"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Before(tt.b); got != tt.want {
				t.Errorf("%q.Before(%q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestTSFromTime(t *testing.T) {
	now := time.Unix(1712345678, 0)
	ts := TSFromTime(now)

	if ts != TS("1712345678.000000") {
		t.Errorf("TSFromTime = %q", ts)
	}
	if !ts.Time().Equal(now) {
		t.Errorf("round trip mismatch: %v != %v", ts.Time(), now)
	}
}

// =============================================================================
// CHANNEL TESTS
// =============================================================================

func TestChannel_Merge(t *testing.T) {
	c := Channel{ID: "C1", Name: "general", LastActivity: TS("100.000000")}

	c.Merge(Channel{ID: "C1", Name: "general-renamed", IsMember: true, LastActivity: TS("200.000000")})
	if c.Name != "general-renamed" {
		t.Errorf("Name = %q, want merged name", c.Name)
	}
	if !c.IsMember {
		t.Error("IsMember should stick after merge")
	}
	if c.LastActivity != TS("200.000000") {
		t.Errorf("LastActivity = %q, want 200.000000", c.LastActivity)
	}

	// Older activity must not regress the timestamp.
	c.Merge(Channel{ID: "C1", LastActivity: TS("150.000000")})
	if c.LastActivity != TS("200.000000") {
		t.Errorf("LastActivity regressed to %q", c.LastActivity)
	}

	// Empty name must not clobber the known one.
	c.Merge(Channel{ID: "C1"})
	if c.Name != "general-renamed" {
		t.Errorf("Name clobbered to %q", c.Name)
	}
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestMessage_Key(t *testing.T) {
	a := Message{ChannelID: "C1", TS: TS("100.000001"), Author: "U1", Body: "hi"}
	b := Message{ChannelID: "C1", TS: TS("100.000001"), Author: "U1", Body: "hi (redelivered)"}

	if a.Key() != b.Key() {
		t.Error("same (channel, ts, author) should produce equal keys")
	}

	c := Message{ChannelID: "C1", TS: TS("100.000001"), Author: "U2"}
	if a.Key() == c.Key() {
		t.Error("different authors should produce distinct keys")
	}
}

func TestMessage_Preview(t *testing.T) {
	m := Message{Body: "hello world"}
	if got := m.Preview(50); got != "hello world" {
		t.Errorf("Preview = %q", got)
	}
	if got := m.Preview(8); got != "hello..." {
		t.Errorf("Preview = %q", got)
	}

	unicode := Message{Body: "héllo wörld"}
	if got := unicode.Preview(8); len([]rune(got)) != 8 {
		t.Errorf("unicode Preview length = %d runes", len([]rune(got)))
	}
}

func TestProvenance_String(t *testing.T) {
	if Confirmed.String() != "confirmed" || Pending.String() != "pending" || Failed.String() != "failed" {
		t.Error("provenance strings wrong")
	}
	if Provenance(99).String() != "unknown" {
		t.Error("out-of-range provenance should be unknown")
	}
}
