// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/chanterm/internal/format"
	"github.com/jeranaias/chanterm/internal/store"
)

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		m.refreshViewport()
		return m, nil

	case StoreChangedMsg:
		return m.handleStoreChange(msg.Change)

	case StoreClosedMsg:
		return m, tea.Quit

	case ConnStatusMsg:
		m.status = msg.Status
		return m, nil

	case NamesUpdatedMsg:
		m.refreshViewport()
		return m, nil

	case NoticeMsg:
		m.notice = msg.Text
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

// handleStoreChange merges one store change into the view and re-arms
// the subscription pump.
func (m Model) handleStoreChange(change store.Change) (tea.Model, tea.Cmd) {
	switch change.Kind {
	case store.ChannelsChanged:
		m.channels = m.st.Channels()
		if m.cursor >= len(m.channels) && len(m.channels) > 0 {
			m.cursor = len(m.channels) - 1
		}
	case store.MessagesChanged:
		if change.ChannelID == m.activeID {
			m.refreshViewport()
		}
	}
	return m, waitForChange(m.sub)
}

// handleKey routes keystrokes by screen.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.Close()
		return m, tea.Quit
	}

	if m.screen == screenPicker {
		return m.handlePickerKey(msg)
	}
	return m.handleChatKey(msg)
}

func (m Model) handlePickerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.channels)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Select):
		if m.cursor < len(m.channels) {
			m.openChannel(m.channels[m.cursor].ID)
		}
	case key.Matches(msg, m.keys.Refresh):
		return m, syncChannelsCmd(m.intents)
	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
	case msg.String() == "q":
		m.Close()
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.screen = screenPicker
		m.input.Blur()
		return m, nil

	case key.Matches(msg, m.keys.Select):
		return m.submitInput()

	case key.Matches(msg, m.keys.PageUp):
		// Top of the viewport means we want older history.
		if m.vp.AtTop() {
			m.intents.LoadMoreHistory(m.activeID)
			return m, nil
		}
		m.vp.ViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.vp.ViewDown()
		return m, nil

	case key.Matches(msg, m.keys.Up):
		m.vp.LineUp(1)
		return m, nil

	case key.Matches(msg, m.keys.Down):
		m.vp.LineDown(1)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// openChannel switches to the conversation screen for channelID.
func (m *Model) openChannel(channelID string) {
	m.activeID = channelID
	m.screen = screenChat
	m.notice = ""
	m.input.Focus()
	m.intents.SelectChannel(channelID)
	m.refreshViewport()
}

// submitInput normalizes and sends the composer content.
func (m Model) submitInput() (tea.Model, tea.Cmd) {
	body := strings.TrimSpace(m.input.Value())
	if body == "" {
		return m, nil
	}

	body = format.ResolveMentions(format.Input(body), m.names())
	if _, err := m.intents.SendMessage(m.activeID, body); err != nil {
		m.notice = err.Error()
		return m, nil
	}

	m.input.Reset()
	m.refreshViewport()
	m.vp.GotoBottom()
	return m, nil
}

// layout recomputes component sizes from the window size.
func (m *Model) layout() {
	if m.width == 0 || m.height == 0 {
		return
	}

	// Header, status bar, and the bordered composer.
	contentHeight := m.height - 4
	if contentHeight < 1 {
		contentHeight = 1
	}

	if !m.vpReady {
		m.vp = viewport.New(m.width, contentHeight)
		m.vpReady = true
	} else {
		m.vp.Width = m.width
		m.vp.Height = contentHeight
	}
	m.input.Width = m.width - 4
}

// refreshViewport re-renders the active conversation into the viewport
// and keeps the scroll pinned to the bottom when it already was.
func (m *Model) refreshViewport() {
	if !m.vpReady || m.activeID == "" {
		return
	}

	atBottom := m.vp.AtBottom()
	content, missing := m.renderConversation()
	m.vp.SetContent(content)
	if atBottom {
		m.vp.GotoBottom()
	}

	if len(missing) > 0 {
		m.intents.ResolveUsers(missing)
	}
}
