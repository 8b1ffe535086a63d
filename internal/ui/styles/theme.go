// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components for the application.
// It detects the terminal's color capability and adjusts accordingly.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	// ==========================================================================
	// HEADER STYLES
	// ==========================================================================

	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	HeaderMeta  lipgloss.Style

	// ==========================================================================
	// CHANNEL LIST STYLES
	// ==========================================================================

	ChannelItem         lipgloss.Style
	ChannelItemSelected lipgloss.Style
	ChannelMember       lipgloss.Style
	ChannelActivity     lipgloss.Style

	// ==========================================================================
	// MESSAGE STYLES
	// ==========================================================================

	Author    lipgloss.Style
	OwnAuthor lipgloss.Style
	Timestamp lipgloss.Style
	Body      lipgloss.Style
	Pending   lipgloss.Style
	Failed    lipgloss.Style
	FailNote  lipgloss.Style

	// ==========================================================================
	// STATUS BAR STYLES
	// ==========================================================================

	StatusBar          lipgloss.Style
	StatusConnected    lipgloss.Style
	StatusConnecting   lipgloss.Style
	StatusBackoff      lipgloss.Style
	StatusDisconnected lipgloss.Style
	StatusFatal        lipgloss.Style
	StatusNotice       lipgloss.Style

	// ==========================================================================
	// INPUT AREA STYLES
	// ==========================================================================

	InputContainer lipgloss.Style
	InputPrompt    lipgloss.Style

	// ==========================================================================
	// HELP STYLES
	// ==========================================================================

	ShortcutKey  lipgloss.Style
	ShortcutDesc lipgloss.Style
	Spinner      lipgloss.Style
}

// NewTheme creates a new theme with all styles configured.
func NewTheme() *Theme {
	colorProfile := termenv.ColorProfile()

	t := &Theme{
		IsDark:       termenv.HasDarkBackground(),
		HasTrueColor: colorProfile == termenv.TrueColor,
		ColorProfile: colorProfile,
	}

	t.initStyles()
	return t
}

// initStyles initializes all the lip gloss styles.
func (t *Theme) initStyles() {
	// Header
	t.Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan).
		Background(SurfaceDim).
		Padding(0, 1)

	t.HeaderTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)

	t.HeaderMeta = lipgloss.NewStyle().
		Foreground(TextMuted)

	// Channel list
	t.ChannelItem = lipgloss.NewStyle().
		Foreground(TextPrimary).
		Padding(0, 1)

	t.ChannelItemSelected = lipgloss.NewStyle().
		Background(Purple).
		Foreground(TextInverse).
		Bold(true).
		Padding(0, 1)

	t.ChannelMember = lipgloss.NewStyle().
		Foreground(Emerald)

	t.ChannelActivity = lipgloss.NewStyle().
		Foreground(TextMuted)

	// Messages
	t.Author = lipgloss.NewStyle().
		Bold(true).
		Foreground(TextSecondary)

	t.OwnAuthor = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)

	t.Timestamp = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.Body = lipgloss.NewStyle().
		Foreground(TextPrimary)

	t.Pending = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true)

	t.Failed = lipgloss.NewStyle().
		Foreground(Rose)

	t.FailNote = lipgloss.NewStyle().
		Foreground(Rose).
		Italic(true)

	// Status bar
	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)

	t.StatusConnected = lipgloss.NewStyle().
		Foreground(Emerald).
		Bold(true)

	t.StatusConnecting = lipgloss.NewStyle().
		Foreground(Amber)

	t.StatusBackoff = lipgloss.NewStyle().
		Foreground(Amber).
		Bold(true)

	t.StatusDisconnected = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.StatusFatal = lipgloss.NewStyle().
		Foreground(Rose).
		Bold(true)

	t.StatusNotice = lipgloss.NewStyle().
		Foreground(Rose)

	// Input area
	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderTop(true).
		BorderForeground(Overlay).
		Padding(0, 1)

	t.InputPrompt = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	// Help
	t.ShortcutKey = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	t.ShortcutDesc = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.Spinner = lipgloss.NewStyle().
		Foreground(Purple)
}
