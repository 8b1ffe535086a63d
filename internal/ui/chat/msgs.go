// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/chanterm/internal/model"
	"github.com/jeranaias/chanterm/internal/store"
)

// =============================================================================
// EXTERNAL EVENT MESSAGES
// =============================================================================

// StoreChangedMsg reports one store change from the subscription feed.
type StoreChangedMsg struct {
	Change store.Change
}

// StoreClosedMsg reports that the subscription feed ended.
type StoreClosedMsg struct{}

// ConnStatusMsg carries a connection status transition. Sent into the
// program by the stream client's status listener.
type ConnStatusMsg struct {
	Status model.ConnStatus
}

// NamesUpdatedMsg reports that the user-name cache gained entries and
// rendered mentions may resolve differently now.
type NamesUpdatedMsg struct{}

// NoticeMsg surfaces a dispatcher failure notice on the status line.
type NoticeMsg struct {
	Text string
}

// =============================================================================
// COMMAND CREATORS
// =============================================================================

// waitForChange blocks on the store subscription and delivers the next
// change as a message. Re-issued after every delivery.
func waitForChange(sub <-chan store.Change) tea.Cmd {
	return func() tea.Msg {
		change, ok := <-sub
		if !ok {
			return StoreClosedMsg{}
		}
		return StoreChangedMsg{Change: change}
	}
}

// syncChannelsCmd kicks off the channel-list sync intent.
func syncChannelsCmd(intents Intents) tea.Cmd {
	return func() tea.Msg {
		intents.SyncChannels()
		return nil
	}
}
