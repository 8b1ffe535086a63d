// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/chanterm/internal/format"
	"github.com/jeranaias/chanterm/internal/model"
	"github.com/jeranaias/chanterm/internal/ui/styles"
)

// View renders the whole screen.
func (m Model) View() string {
	if m.width == 0 {
		return "loading..."
	}

	var b strings.Builder
	b.WriteString(m.viewHeader())
	b.WriteString("\n")

	if m.screen == screenPicker {
		b.WriteString(m.viewPicker())
	} else {
		b.WriteString(m.vp.View())
		b.WriteString("\n")
		b.WriteString(m.theme.InputContainer.Width(m.width - 2).Render(
			m.theme.InputPrompt.Render("> ") + m.input.View()))
	}

	b.WriteString("\n")
	b.WriteString(m.viewStatusBar())
	return b.String()
}

// =============================================================================
// HEADER
// =============================================================================

func (m Model) viewHeader() string {
	title := "chanterm"
	if m.screen == screenChat {
		if ch, ok := m.activeChannel(); ok {
			name := ch.Name
			if name == "" {
				name = ch.ID
			}
			title = "#" + name
		}
	}
	return m.theme.Header.Width(m.width).Render(m.theme.HeaderTitle.Render(title))
}

// =============================================================================
// CHANNEL PICKER
// =============================================================================

func (m Model) viewPicker() string {
	if len(m.channels) == 0 {
		return m.theme.ChannelItem.Render(m.spin.View() + " loading channels...")
	}

	var b strings.Builder
	for i, ch := range m.channels {
		name := ch.Name
		if name == "" {
			name = ch.ID
		}
		line := "#" + name
		if ch.IsMember {
			line += " " + m.theme.ChannelMember.Render("joined")
		}
		if !ch.LastActivity.IsZero() {
			line += " " + m.theme.ChannelActivity.Render(ch.LastActivity.Time().Format("Jan 2 15:04"))
		}

		if i == m.cursor {
			b.WriteString(m.theme.ChannelItemSelected.Render(line))
		} else {
			b.WriteString(m.theme.ChannelItem.Render(line))
		}
		b.WriteString("\n")
	}

	if m.showHelp {
		b.WriteString("\n")
		b.WriteString(m.viewHelp())
	}
	return b.String()
}

func (m Model) viewHelp() string {
	pairs := []struct{ key, desc string }{
		{"Enter", "open channel"},
		{"C-r", "refresh channels"},
		{"PgUp", "older history"},
		{"Esc", "back"},
		{"C-c", "quit"},
	}
	var parts []string
	for _, p := range pairs {
		parts = append(parts, m.theme.ShortcutKey.Render(p.key)+" "+m.theme.ShortcutDesc.Render(p.desc))
	}
	return strings.Join(parts, "  ")
}

// =============================================================================
// CONVERSATION
// =============================================================================

// renderConversation renders the active channel's messages and returns
// the author IDs that have no cached display name yet.
func (m *Model) renderConversation() (string, []string) {
	msgs, _, ok := m.st.Snapshot(m.activeID)
	if !ok || len(msgs) == 0 {
		return m.theme.ChannelActivity.Render("no messages yet"), nil
	}

	names := m.names()
	channelNames := make(map[string]string, len(m.channels))
	for _, ch := range m.channels {
		channelNames[ch.ID] = ch.Name
	}

	var missing []string
	seenMissing := make(map[string]bool)
	var b strings.Builder

	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderMessage(msg, names, channelNames))

		if _, ok := names[msg.Author]; !ok && msg.Author != m.self && !seenMissing[msg.Author] {
			seenMissing[msg.Author] = true
			missing = append(missing, msg.Author)
		}
	}
	return b.String(), missing
}

func (m *Model) renderMessage(msg model.Message, names, channelNames map[string]string) string {
	author := msg.Author
	if name, ok := names[author]; ok && name != "" {
		author = name
	}

	authorStyle := m.theme.Author
	if msg.Author == m.self {
		authorStyle = m.theme.OwnAuthor
	}

	ts := msg.TS.Time().Format("15:04")
	head := authorStyle.Render(author) + " " + m.theme.Timestamp.Render(ts)

	width := m.width - 2
	if width < 10 {
		width = 10
	}

	switch msg.Provenance {
	case model.Pending:
		body := strings.Join(format.Wrap(msg.Body, width), "\n")
		return head + " " + m.theme.Pending.Render(styles.Indicators.Pending) + "\n" +
			m.theme.Pending.Render(body)

	case model.Failed:
		body := strings.Join(format.Wrap(msg.Body, width), "\n")
		note := "send failed"
		if msg.FailReason != "" {
			note = "send failed: " + msg.FailReason
		}
		return head + " " + m.theme.Failed.Render(styles.Indicators.Failed) + "\n" +
			m.theme.Failed.Render(body) + "\n" +
			m.theme.FailNote.Render(note)

	default:
		body := format.Display(msg.Body, names, channelNames)
		return head + "\n" + m.theme.Body.Render(strings.Join(format.Wrap(body, width), "\n"))
	}
}

// =============================================================================
// STATUS BAR
// =============================================================================

func (m Model) viewStatusBar() string {
	var state string
	switch m.status.State {
	case model.Connected:
		state = m.theme.StatusConnected.Render(styles.Indicators.Connected + " connected")
	case model.Connecting:
		state = m.theme.StatusConnecting.Render(styles.Indicators.Connecting + " connecting " + m.spin.View())
	case model.Backoff:
		wait := time.Until(m.status.Until).Round(time.Second)
		if wait < 0 {
			wait = 0
		}
		text := fmt.Sprintf("%s reconnecting in %s (attempt %d)", styles.Indicators.Backoff, wait, m.status.Attempt)
		if m.status.Fatal {
			state = m.theme.StatusFatal.Render(text + " (connectivity degraded)")
		} else {
			state = m.theme.StatusBackoff.Render(text)
		}
	default:
		state = m.theme.StatusDisconnected.Render(styles.Indicators.Disconnected + " offline")
	}

	line := state
	if m.status.Reason != "" && m.status.State == model.Connected {
		line += "  " + m.theme.StatusNotice.Render(m.status.Reason)
	}
	if m.notice != "" {
		line += "  " + m.theme.StatusNotice.Render(m.notice)
	}
	return m.theme.StatusBar.Width(m.width).Render(line)
}
