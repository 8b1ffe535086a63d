// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// TIMESTAMP TYPE
// =============================================================================

// TS is a workspace message timestamp in the wire format
// "<unix-seconds>.<sequence>", e.g. "1712345678.000200".
//
// Within a channel the TS is both the ordering key and, together with the
// author, the identity of a logical message. The raw string is kept as
// identity; comparisons parse the two integer parts because the string
// form does not sort lexicographically once the seconds column changes
// width.
type TS string

// Parts returns the seconds and sequence components of the timestamp.
// A malformed timestamp yields (0, 0), which sorts before everything.
func (t TS) Parts() (sec int64, seq int64) {
	s := string(t)
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		sec, _ = strconv.ParseInt(s, 10, 64)
		return sec, 0
	}
	sec, _ = strconv.ParseInt(s[:dot], 10, 64)
	seq, _ = strconv.ParseInt(s[dot+1:], 10, 64)
	return sec, seq
}

// Before reports whether t orders strictly before other.
func (t TS) Before(other TS) bool {
	ts, tq := t.Parts()
	os, oq := other.Parts()
	if ts != os {
		return ts < os
	}
	return tq < oq
}

// IsZero reports whether the timestamp is unset.
func (t TS) IsZero() bool {
	return t == ""
}

// Time converts the timestamp to a time.Time, dropping the sequence part.
func (t TS) Time() time.Time {
	sec, _ := t.Parts()
	return time.Unix(sec, 0)
}

// Clock returns the timestamp formatted as HH:MM for display.
func (t TS) Clock() string {
	if t.IsZero() {
		return "--:--"
	}
	return t.Time().Local().Format("15:04")
}

// TSFromTime builds a TS from a wall-clock time with a zero sequence.
// Used for locally echoed messages before the server assigns the real TS.
func TSFromTime(tm time.Time) TS {
	return TS(strconv.FormatInt(tm.Unix(), 10) + ".000000")
}
