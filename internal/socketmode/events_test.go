// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package socketmode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chanterm/internal/model"
)

func TestDecodeFrame_Hello(t *testing.T) {
	ev, ackID, err := decodeFrame([]byte(`{"type":"hello","num_connections":2}`))
	require.NoError(t, err)
	assert.Empty(t, ackID)
	hello, ok := ev.(HelloEvent)
	require.True(t, ok)
	assert.Equal(t, 2, hello.NumConnections)
}

func TestDecodeFrame_Disconnect(t *testing.T) {
	ev, _, err := decodeFrame([]byte(`{"type":"disconnect","reason":"refresh_requested"}`))
	require.NoError(t, err)
	dc, ok := ev.(DisconnectEvent)
	require.True(t, ok)
	assert.Equal(t, "refresh_requested", dc.Reason)
}

func TestDecodeFrame_Message(t *testing.T) {
	frame := `{"type":"events_api","envelope_id":"env-1","payload":{"event":
		{"type":"message","channel":"C1","user":"U1","text":"hi there","ts":"100.000001"}}}`

	ev, ackID, err := decodeFrame([]byte(frame))
	require.NoError(t, err)
	assert.Equal(t, "env-1", ackID, "delivered envelopes must be acknowledged")

	me, ok := ev.(MessageEvent)
	require.True(t, ok)
	assert.Equal(t, model.Message{
		ChannelID:  "C1",
		TS:         model.TS("100.000001"),
		Author:     "U1",
		Body:       "hi there",
		Provenance: model.Confirmed,
	}, me.Message)
}

func TestDecodeFrame_BotMessage(t *testing.T) {
	frame := `{"type":"events_api","envelope_id":"env-2","payload":{"event":
		{"type":"message","channel":"C1","bot_id":"B9","text":"beep","ts":"100.000002"}}}`

	ev, _, err := decodeFrame([]byte(frame))
	require.NoError(t, err)
	me, ok := ev.(MessageEvent)
	require.True(t, ok)
	assert.Equal(t, "B9", me.Message.Author)
}

func TestDecodeFrame_SkipsMessageSubtypes(t *testing.T) {
	cases := []struct {
		name  string
		frame string
	}{
		{"edit", `{"type":"events_api","envelope_id":"e","payload":{"event":
			{"type":"message","subtype":"message_changed","channel":"C1","ts":"1.0"}}}`},
		{"missing ts", `{"type":"events_api","envelope_id":"e","payload":{"event":
			{"type":"message","channel":"C1","user":"U1","text":"x"}}}`},
		{"missing author", `{"type":"events_api","envelope_id":"e","payload":{"event":
			{"type":"message","channel":"C1","text":"x","ts":"1.0"}}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, ackID, err := decodeFrame([]byte(tc.frame))
			require.NoError(t, err)
			assert.Equal(t, "e", ackID, "skipped frames still get acknowledged")
			_, isUnknown := ev.(UnknownEvent)
			assert.True(t, isUnknown)
		})
	}
}

func TestDecodeFrame_ChannelCreated(t *testing.T) {
	frame := `{"type":"events_api","envelope_id":"env-3","payload":{"event":
		{"type":"channel_created","channel":{"id":"C9","name":"incidents"}}}}`

	ev, _, err := decodeFrame([]byte(frame))
	require.NoError(t, err)
	ce, ok := ev.(ChannelEvent)
	require.True(t, ok)
	assert.Equal(t, "C9", ce.Channel.ID)
	assert.Equal(t, "incidents", ce.Channel.Name)
}

func TestDecodeFrame_UnknownTypeIgnored(t *testing.T) {
	ev, _, err := decodeFrame([]byte(`{"type":"interactive","envelope_id":"env-4"}`))
	require.NoError(t, err)
	ue, ok := ev.(UnknownEvent)
	require.True(t, ok)
	assert.Equal(t, "interactive", ue.Type)
}

func TestDecodeFrame_Garbage(t *testing.T) {
	_, _, err := decodeFrame([]byte(`{not json`))
	assert.Error(t, err)
}
