// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package socketmode

import (
	"encoding/json"

	"github.com/jeranaias/chanterm/internal/model"
)

// =============================================================================
// EVENT UNION
// =============================================================================

// Event is a decoded inbound stream event. The union is closed: every
// frame decodes to exactly one of the variants below, with UnknownEvent
// absorbing forward-compatible types the client does not understand.
type Event interface {
	isEvent()
}

// HelloEvent is the handshake acknowledgment: the stream is live.
type HelloEvent struct {
	// NumConnections reports how many sockets the app currently holds.
	NumConnections int
}

// MessageEvent carries a new channel message.
type MessageEvent struct {
	Message model.Message
}

// ChannelEvent carries a channel creation, rename, or membership change.
type ChannelEvent struct {
	Channel model.Channel
}

// DisconnectEvent is the remote side asking us to reconnect.
type DisconnectEvent struct {
	Reason string
}

// UnknownEvent is any frame type the client does not handle. Ignored,
// never fatal.
type UnknownEvent struct {
	Type string
}

func (HelloEvent) isEvent()      {}
func (MessageEvent) isEvent()    {}
func (ChannelEvent) isEvent()    {}
func (DisconnectEvent) isEvent() {}
func (UnknownEvent) isEvent()    {}

// =============================================================================
// WIRE DECODE
// =============================================================================

// envelope is the outer frame of the socket protocol. Frames that carry
// an EnvelopeID must be acknowledged.
type envelope struct {
	Type       string `json:"type"`
	EnvelopeID string `json:"envelope_id"`
	Reason     string `json:"reason"`
	NumConns   int    `json:"num_connections"`
	Payload    struct {
		Event json.RawMessage `json:"event"`
	} `json:"payload"`
}

// ack is the acknowledgment frame echoed back for delivered envelopes.
type ack struct {
	EnvelopeID string `json:"envelope_id"`
}

// innerEvent is the payload event shared by the push event types.
type innerEvent struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	Channel string `json:"channel"`
	User    string `json:"user"`
	BotID   string `json:"bot_id"`
	Text    string `json:"text"`
	TS      string `json:"ts"`
}

// channelLifecycle mirrors channel_created / channel_rename payloads,
// where "channel" is an object rather than an ID string.
type channelLifecycle struct {
	Type    string `json:"type"`
	Channel struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"channel"`
}

// decodeFrame turns one raw websocket text frame into a typed event and
// the envelope ID to acknowledge (empty when no ack is due). A decode
// error means this frame only; the connection stays up.
func decodeFrame(data []byte) (Event, string, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, "", err
	}

	switch env.Type {
	case "hello":
		return HelloEvent{NumConnections: env.NumConns}, env.EnvelopeID, nil
	case "disconnect":
		return DisconnectEvent{Reason: env.Reason}, env.EnvelopeID, nil
	case "events_api":
		ev, err := decodePayloadEvent(env.Payload.Event)
		return ev, env.EnvelopeID, err
	case "":
		// Heartbeat-style frames without a type: nothing to do.
		return UnknownEvent{}, env.EnvelopeID, nil
	default:
		return UnknownEvent{Type: env.Type}, env.EnvelopeID, nil
	}
}

// decodePayloadEvent decodes the inner push event of an events_api frame.
func decodePayloadEvent(raw json.RawMessage) (Event, error) {
	if len(raw) == 0 {
		return UnknownEvent{Type: "events_api"}, nil
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}

	switch probe.Type {
	case "message":
		var ie innerEvent
		if err := json.Unmarshal(raw, &ie); err != nil {
			return nil, err
		}
		if ie.Subtype != "" || ie.TS == "" || ie.Channel == "" {
			// Edits, deletions, and system notices are not plain
			// messages; skip them.
			return UnknownEvent{Type: "message/" + ie.Subtype}, nil
		}
		author := ie.User
		if author == "" {
			author = ie.BotID
		}
		if author == "" {
			return UnknownEvent{Type: "message/anonymous"}, nil
		}
		return MessageEvent{Message: model.Message{
			ChannelID:  ie.Channel,
			TS:         model.TS(ie.TS),
			Author:     author,
			Body:       ie.Text,
			Provenance: model.Confirmed,
		}}, nil

	case "channel_created", "channel_rename":
		var cl channelLifecycle
		if err := json.Unmarshal(raw, &cl); err != nil {
			return nil, err
		}
		if cl.Channel.ID == "" {
			return UnknownEvent{Type: probe.Type}, nil
		}
		return ChannelEvent{Channel: model.Channel{
			ID:   cl.Channel.ID,
			Name: cl.Channel.Name,
		}}, nil

	default:
		return UnknownEvent{Type: probe.Type}, nil
	}
}
