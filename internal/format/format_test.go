// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package format

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"
)

func TestMain(m *testing.M) {
	// Strip colors so assertions see the text, not escape codes.
	lipgloss.SetColorProfile(termenv.Ascii)
	m.Run()
}

// =============================================================================
// DISPLAY TESTS
// =============================================================================

func TestDisplay(t *testing.T) {
	users := map[string]string{"U123": "ada"}
	channels := map[string]string{"C123": "general"}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello world", "hello world"},
		{"user mention", "ping <@U123>", "ping @ada"},
		{"unknown user falls back to id", "ping <@U999>", "ping @U999"},
		{"channel with label", "see <#C123|general>", "see #general"},
		{"channel without label", "see <#C123|>", "see #general"},
		{"labeled link", `docs: <https://example.com/doc|the doc>`, "docs: the doc (https://example.com/doc)"},
		{"link labeled with itself", `<https://example.com|https://example.com>`, "https://example.com"},
		{"bare link", `<https://example.com>`, "https://example.com"},
		{"bold", "this is *important* now", "this is important now"},
		{"italic", "_quietly_ said", "quietly said"},
		{"strike", "~wrong~ right", "wrong right"},
		{"lone asterisk untouched", "2 * 3 = 6", "2 * 3 = 6"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Display(tt.in, users, channels); got != tt.want {
				t.Errorf("Display(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDisplay_NilCaches(t *testing.T) {
	got := Display("ping <@U42>", nil, nil)
	if got != "ping @U42" {
		t.Errorf("got %q", got)
	}
}

// =============================================================================
// INPUT TESTS
// =============================================================================

func TestInput(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"markdown link", "[the doc](https://example.com)", "<https://example.com|the doc>"},
		{"bare url bracketed", "see https://example.com now", "see <https://example.com> now"},
		{"url at line start", "https://example.com", "<https://example.com>"},
		{"already bracketed untouched", "see <https://example.com>", "see <https://example.com>"},
		{"plain text untouched", "no links here", "no links here"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Input(tt.in); got != tt.want {
				t.Errorf("Input(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestResolveMentions(t *testing.T) {
	names := map[string]string{"U123": "Ada", "U456": "grace.h"}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"known name", "hey @ada look", "hey <@U123> look"},
		{"case insensitive", "hey @ADA", "hey <@U123>"},
		{"dotted name", "cc @grace.h", "cc <@U456>"},
		{"unknown passes through", "hey @nobody", "hey @nobody"},
		{"no cache", "hey @ada", "hey @ada"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := names
			if tt.name == "no cache" {
				cache = nil
			}
			if got := ResolveMentions(tt.in, cache); got != tt.want {
				t.Errorf("ResolveMentions(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// =============================================================================
// WRAP TESTS
// =============================================================================

func TestWrap(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		width int
		want  []string
	}{
		{"fits", "short", 10, []string{"short"}},
		{"breaks on spaces", "one two three four", 9, []string{"one two", "three", "four"}},
		{"hard splits long word", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"keeps empty lines", "a\n\nb", 10, []string{"a", "", "b"}},
		{"zero width passthrough", "anything", 0, []string{"anything"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Wrap(tt.in, tt.width)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("Wrap(%q, %d) = %v, want %v", tt.in, tt.width, got, tt.want)
			}
		})
	}
}

func TestWrap_WideRunes(t *testing.T) {
	// CJK runes occupy two cells; byte length must not drive the split.
	lines := Wrap("日本語のテキスト", 6)
	for _, line := range lines {
		if w := runewidth.StringWidth(line); w > 6 {
			t.Errorf("line %q is %d cells wide", line, w)
		}
	}
	if len(lines) < 2 {
		t.Errorf("expected wrapping, got %v", lines)
	}
}
