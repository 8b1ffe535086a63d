// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds the in-memory cache of channels and messages.
//
// The store is the single shared mutable resource of the program: the
// event-stream client and the dispatcher write into it, the UI reads
// snapshots out of it. One mutex serializes all mutations; every read
// returns copies, so no caller ever holds a reference into the cache.
// Change notifications are buffered and non-blocking, so they never
// stall a writer.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/chanterm/internal/model"
)

// =============================================================================
// CHANGE NOTIFICATIONS
// =============================================================================

// ChangeKind discriminates store change notifications.
type ChangeKind int

const (
	// ChannelsChanged: the channel set or channel metadata changed.
	ChannelsChanged ChangeKind = iota
	// MessagesChanged: the message history of ChannelID changed.
	MessagesChanged
)

// Change is a store change notification delivered to subscribers.
// It carries no payload beyond the affected channel; readers re-snapshot.
type Change struct {
	Kind      ChangeKind
	ChannelID string
}

// subBufferSize bounds a subscriber's queue. A full queue drops the
// notification: the subscriber re-reads the latest snapshot anyway, so a
// dropped Change is coalesced, not lost state.
const subBufferSize = 64

// =============================================================================
// STORE
// =============================================================================

// Store is the concurrency-safe channel/message cache.
type Store struct {
	mu sync.Mutex

	channels map[string]*model.Channel
	// messages per channel, ordered by TS non-decreasing.
	messages map[string][]model.Message
	// seen indexes confirmed identities for idempotent ingest.
	seen map[model.Key]struct{}
	// echoes maps a local-echo handle to the channel holding it.
	echoes map[string]string

	subs    map[int]chan Change
	nextSub int
	closed  bool
}

// New creates an empty store.
func New() *Store {
	return &Store{
		channels: make(map[string]*model.Channel),
		messages: make(map[string][]model.Message),
		seen:     make(map[model.Key]struct{}),
		echoes:   make(map[string]string),
		subs:     make(map[int]chan Change),
	}
}

// =============================================================================
// CHANNEL OPERATIONS
// =============================================================================

// UpsertChannel inserts or merges a channel by ID. Merging never
// regresses the activity timestamp.
func (s *Store) UpsertChannel(ch model.Channel) {
	if ch.ID == "" {
		return
	}

	s.mu.Lock()
	existing, ok := s.channels[ch.ID]
	if ok {
		existing.Merge(ch)
	} else {
		c := ch
		s.channels[ch.ID] = &c
	}
	s.mu.Unlock()

	s.notify(Change{Kind: ChannelsChanged, ChannelID: ch.ID})
}

// Channels returns a copy of all known channels sorted by name.
func (s *Store) Channels() []model.Channel {
	s.mu.Lock()
	out := make([]model.Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		out = append(out, *ch)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Channel returns a copy of a single channel.
func (s *Store) Channel(id string) (model.Channel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[id]
	if !ok {
		return model.Channel{}, false
	}
	return *ch, true
}

// HasHistory reports whether any messages are cached for the channel.
// The dispatcher uses this to decide whether selecting a channel needs a
// history fetch.
func (s *Store) HasHistory(channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages[channelID]) > 0
}

// =============================================================================
// MESSAGE INGEST
// =============================================================================

// IngestMessage inserts a server-confirmed message. The insert is
// idempotent on (channel, TS, author): a redelivered message is a no-op.
// If an unconfirmed local echo with the same channel, author, and body
// exists, the echo is resolved in place instead of duplicated.
func (s *Store) IngestMessage(m model.Message) {
	if m.ChannelID == "" || m.TS.IsZero() {
		return
	}
	m.Provenance = model.Confirmed
	m.EchoID = ""
	m.FailReason = ""

	s.mu.Lock()
	if _, dup := s.seen[m.Key()]; dup {
		s.mu.Unlock()
		return
	}

	// A pending echo for the same author+body is this message coming back
	// through the stream; replace it rather than showing it twice.
	if idx, echoID, ok := s.findPendingLocked(m.ChannelID, m.Author, m.Body); ok {
		s.removeAtLocked(m.ChannelID, idx)
		delete(s.echoes, echoID)
	}

	s.insertLocked(m)
	s.seen[m.Key()] = struct{}{}
	s.touchActivityLocked(m.ChannelID, m.TS)
	s.mu.Unlock()

	s.notify(Change{Kind: MessagesChanged, ChannelID: m.ChannelID})
}

// =============================================================================
// LOCAL ECHO
// =============================================================================

// AppendLocalEcho inserts a pending message immediately so the UI
// reflects a send before the server confirms it. The returned handle is
// used to resolve or fail the entry later.
func (s *Store) AppendLocalEcho(channelID, author, body string) string {
	handle := uuid.NewString()
	m := model.Message{
		ChannelID:  channelID,
		TS:         model.TSFromTime(time.Now()),
		Author:     author,
		Body:       body,
		Provenance: model.Pending,
		EchoID:     handle,
	}

	s.mu.Lock()
	s.insertLocked(m)
	s.echoes[handle] = channelID
	s.touchActivityLocked(channelID, m.TS)
	s.mu.Unlock()

	s.notify(Change{Kind: MessagesChanged, ChannelID: channelID})
	return handle
}

// ResolveLocalEcho is the terminal transition for a pending entry.
// With a confirmed message it replaces the echo by the authoritative
// copy (server TS and author). With a failure reason it marks the echo
// failed in place; failed sends stay visible, never silently dropped.
// Resolving an already-resolved or unknown handle is a no-op.
func (s *Store) ResolveLocalEcho(handle string, confirmed *model.Message, failReason string) {
	s.mu.Lock()
	channelID, ok := s.echoes[handle]
	if !ok {
		s.mu.Unlock()
		return
	}

	idx := s.findEchoLocked(channelID, handle)
	if idx < 0 {
		delete(s.echoes, handle)
		s.mu.Unlock()
		return
	}

	if confirmed != nil {
		c := *confirmed
		c.Provenance = model.Confirmed
		c.EchoID = ""
		if _, dup := s.seen[c.Key()]; dup {
			// The stream already delivered the confirmed copy; just drop
			// the echo.
			s.removeAtLocked(channelID, idx)
		} else {
			s.removeAtLocked(channelID, idx)
			s.insertLocked(c)
			s.seen[c.Key()] = struct{}{}
			s.touchActivityLocked(c.ChannelID, c.TS)
		}
	} else {
		msgs := s.messages[channelID]
		msgs[idx].Provenance = model.Failed
		msgs[idx].FailReason = failReason
	}
	delete(s.echoes, handle)
	s.mu.Unlock()

	s.notify(Change{Kind: MessagesChanged, ChannelID: channelID})
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

// Snapshot returns a copy of the channel's messages in TS order plus the
// channel metadata. The copy is safe to read while writers append.
func (s *Store) Snapshot(channelID string) ([]model.Message, model.Channel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[channelID]
	if !ok {
		return nil, model.Channel{}, false
	}
	msgs := make([]model.Message, len(s.messages[channelID]))
	copy(msgs, s.messages[channelID])
	return msgs, *ch, true
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

// Subscribe registers a change listener. The returned channel closes
// when cancel is called or the store shuts down; re-subscribing restarts
// the feed.
func (s *Store) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, subBufferSize)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// Close shuts down all subscriber feeds.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	for id, sub := range s.subs {
		delete(s.subs, id)
		close(sub)
	}
	s.mu.Unlock()
}

// notify fans a change out to subscribers. Sends happen under the store
// lock: they are buffered and non-blocking so the critical section stays
// bounded, and holding the lock keeps a concurrent cancel or Close from
// closing a channel mid-send.
func (s *Store) notify(c Change) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.subs {
		select {
		case sub <- c:
		default:
			// Queue full: coalesce. The subscriber re-snapshots on its
			// next read, so dropping the notification loses nothing.
		}
	}
}

// =============================================================================
// INTERNAL (callers hold s.mu)
// =============================================================================

// insertLocked places m keeping the channel's TS order non-decreasing.
// Appends are the common case, so search from the end.
func (s *Store) insertLocked(m model.Message) {
	msgs := s.messages[m.ChannelID]
	i := len(msgs)
	for i > 0 && m.TS.Before(msgs[i-1].TS) {
		i--
	}
	msgs = append(msgs, model.Message{})
	copy(msgs[i+1:], msgs[i:])
	msgs[i] = m
	s.messages[m.ChannelID] = msgs
}

func (s *Store) removeAtLocked(channelID string, idx int) {
	msgs := s.messages[channelID]
	s.messages[channelID] = append(msgs[:idx], msgs[idx+1:]...)
}

// findPendingLocked locates an unconfirmed echo matching author+body.
func (s *Store) findPendingLocked(channelID, author, body string) (int, string, bool) {
	for i, m := range s.messages[channelID] {
		if m.Provenance == model.Pending && m.Author == author && m.Body == body {
			return i, m.EchoID, true
		}
	}
	return -1, "", false
}

func (s *Store) findEchoLocked(channelID, handle string) int {
	for i, m := range s.messages[channelID] {
		if m.EchoID == handle && m.Provenance == model.Pending {
			return i
		}
	}
	return -1
}

// touchActivityLocked advances the channel activity timestamp, creating
// the channel record if an event referenced it before any listing did.
func (s *Store) touchActivityLocked(channelID string, ts model.TS) {
	ch, ok := s.channels[channelID]
	if !ok {
		s.channels[channelID] = &model.Channel{ID: channelID, LastActivity: ts}
		return
	}
	if ch.LastActivity.Before(ts) {
		ch.LastActivity = ts
	}
}
