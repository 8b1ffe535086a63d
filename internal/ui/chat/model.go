// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/chanterm/internal/model"
	"github.com/jeranaias/chanterm/internal/store"
	"github.com/jeranaias/chanterm/internal/ui/styles"
)

// =============================================================================
// INTENT CONTRACT
// =============================================================================

// Intents is the dispatcher surface the UI drives. Satisfied by
// *dispatch.Dispatcher.
type Intents interface {
	SyncChannels()
	SelectChannel(channelID string)
	SendMessage(channelID, body string) (string, error)
	LoadMoreHistory(channelID string)
	ResolveUsers(ids []string)
}

// =============================================================================
// MODEL
// =============================================================================

type screen int

const (
	screenPicker screen = iota
	screenChat
)

// Model is the root Bubble Tea model.
type Model struct {
	st      *store.Store
	intents Intents
	// names returns the current user-name cache snapshot.
	names func() map[string]string
	// self is the authenticated identity, used to style own messages
	// and rendered as the echo author.
	self  string
	theme *styles.Theme
	keys  KeyMap

	sub       <-chan store.Change
	cancelSub func()

	screen   screen
	channels []model.Channel
	cursor   int

	activeID string
	input    textinput.Model
	vp       viewport.Model
	vpReady  bool
	spin     spinner.Model

	status   model.ConnStatus
	notice   string
	showHelp bool

	width  int
	height int
}

// New builds the root model over the given store and dispatcher.
func New(st *store.Store, intents Intents, names func() map[string]string, self string, theme *styles.Theme) Model {
	input := textinput.New()
	input.Placeholder = "message"
	input.Prompt = ""
	input.CharLimit = 4000

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = theme.Spinner

	sub, cancel := st.Subscribe()

	return Model{
		st:        st,
		intents:   intents,
		names:     names,
		self:      self,
		theme:     theme,
		keys:      DefaultKeyMap(),
		sub:       sub,
		cancelSub: cancel,
		screen:    screenPicker,
		input:     input,
		spin:      spin,
		channels:  st.Channels(),
		status:    model.ConnStatus{State: model.Disconnected},
	}
}

// Init starts the subscription pump, the spinner, and the initial
// channel sync.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForChange(m.sub),
		m.spin.Tick,
		syncChannelsCmd(m.intents),
		textinput.Blink,
	)
}

// Close releases the store subscription.
func (m *Model) Close() {
	if m.cancelSub != nil {
		m.cancelSub()
	}
}

// activeChannel returns the channel record for the open conversation.
func (m *Model) activeChannel() (model.Channel, bool) {
	if m.activeID == "" {
		return model.Channel{}, false
	}
	return m.st.Channel(m.activeID)
}
