// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package format rewrites message markup between the wire form and the
// terminal. Inbound mrkdwn tokens (links, mentions, emphasis) become
// styled display text; outbound input is normalized into the wire form
// the workspace expects. Rendering fidelity is best-effort.
package format

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	linkStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Underline(true)
	mentionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	channelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	boldStyle    = lipgloss.NewStyle().Bold(true)
	italicStyle  = lipgloss.NewStyle().Italic(true)
	strikeStyle  = lipgloss.NewStyle().Strikethrough(true)
)

// =============================================================================
// TOKEN PATTERNS
// =============================================================================

var (
	reUserMention    = regexp.MustCompile(`<@([A-Z0-9]+)>`)
	reChannelMention = regexp.MustCompile(`<#([A-Z0-9]+)\|([^>]*)>`)
	reLabeledLink    = regexp.MustCompile(`<([^|>]+)\|([^>]+)>`)
	reBareLink       = regexp.MustCompile(`<(https?://[^>]+)>`)
	reBold           = regexp.MustCompile(`\*(\S.*?\S|\S)\*`)
	reItalic         = regexp.MustCompile(`_(\S.*?\S|\S)_`)
	reStrike         = regexp.MustCompile(`~(\S.*?\S|\S)~`)

	reMarkdownLink = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	reBareURL      = regexp.MustCompile(`(^|[^<\[])(https?://[^\s>]+)`)
	reInputMention = regexp.MustCompile(`@([a-zA-Z0-9_.-]+)`)
)

// =============================================================================
// DISPLAY
// =============================================================================

// Display rewrites one wire-form message body for terminal rendering.
// Unknown user and channel IDs fall back to the raw ID so a cold name
// cache never hides content.
//
// Mentions are rewritten before generic links: a labeled channel token
// would otherwise match the link pattern and lose its # prefix.
func Display(text string, users, channels map[string]string) string {
	text = reUserMention.ReplaceAllStringFunc(text, func(tok string) string {
		id := reUserMention.FindStringSubmatch(tok)[1]
		name := id
		if n, ok := users[id]; ok && n != "" {
			name = n
		}
		return mentionStyle.Render("@" + name)
	})

	text = reChannelMention.ReplaceAllStringFunc(text, func(tok string) string {
		m := reChannelMention.FindStringSubmatch(tok)
		label := m[2]
		if label == "" {
			label = m[1]
			if n, ok := channels[m[1]]; ok && n != "" {
				label = n
			}
		}
		return channelStyle.Render("#" + label)
	})

	text = reLabeledLink.ReplaceAllStringFunc(text, func(tok string) string {
		m := reLabeledLink.FindStringSubmatch(tok)
		url, label := m[1], m[2]
		if label == url {
			return linkStyle.Render(url)
		}
		return linkStyle.Render(label) + " (" + url + ")"
	})

	text = reBareLink.ReplaceAllStringFunc(text, func(tok string) string {
		return linkStyle.Render(reBareLink.FindStringSubmatch(tok)[1])
	})

	text = replaceEmphasis(text, reBold, boldStyle)
	text = replaceEmphasis(text, reItalic, italicStyle)
	text = replaceEmphasis(text, reStrike, strikeStyle)
	return text
}

func replaceEmphasis(text string, re *regexp.Regexp, style lipgloss.Style) string {
	return re.ReplaceAllStringFunc(text, func(tok string) string {
		return style.Render(re.FindStringSubmatch(tok)[1])
	})
}

// =============================================================================
// INPUT
// =============================================================================

// Input normalizes typed text into the wire form: markdown links become
// labeled link tokens and bare URLs get bracketed so the workspace
// treats them as links.
func Input(text string) string {
	text = reMarkdownLink.ReplaceAllString(text, "<$2|$1>")
	text = reBareURL.ReplaceAllString(text, "$1<$2>")
	return text
}

// ResolveMentions rewrites @name references into user-ID mention tokens
// using the session's name cache (case-insensitive). Names nobody has
// resolved yet pass through untouched.
func ResolveMentions(text string, userNames map[string]string) string {
	if len(userNames) == 0 {
		return text
	}

	byName := make(map[string]string, len(userNames))
	for id, name := range userNames {
		byName[strings.ToLower(name)] = id
	}

	return reInputMention.ReplaceAllStringFunc(text, func(tok string) string {
		name := strings.ToLower(tok[1:])
		if id, ok := byName[name]; ok {
			return "<@" + id + ">"
		}
		return tok
	})
}

// =============================================================================
// WRAPPING
// =============================================================================

// Wrap breaks text into lines no wider than width terminal cells,
// preferring space boundaries and hard-splitting words that exceed the
// width on their own. Wrap operates on plain text; apply it before
// styling.
func Wrap(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	for _, para := range strings.Split(text, "\n") {
		lines = append(lines, wrapLine(para, width)...)
	}
	return lines
}

func wrapLine(line string, width int) []string {
	if runewidth.StringWidth(line) <= width {
		return []string{line}
	}

	var out []string
	current := ""
	currentW := 0
	for _, word := range strings.Split(line, " ") {
		wordW := runewidth.StringWidth(word)

		// A single word wider than the line gets cut mid-word.
		if wordW > width {
			if current != "" {
				out = append(out, current)
				current, currentW = "", 0
			}
			for runewidth.StringWidth(word) > width {
				cut := runewidth.Truncate(word, width, "")
				out = append(out, cut)
				word = word[len(cut):]
			}
			current, currentW = word, runewidth.StringWidth(word)
			continue
		}

		switch {
		case current == "":
			current, currentW = word, wordW
		case currentW+1+wordW <= width:
			current += " " + word
			currentW += 1 + wordW
		default:
			out = append(out, current)
			current, currentW = word, wordW
		}
	}
	if current != "" {
		out = append(out, current)
	}
	if len(out) == 0 {
		out = []string{""}
	}
	return out
}
