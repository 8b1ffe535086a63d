// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dispatch turns user intents into gateway calls and store
// mutations. The UI calls into it and never touches the network; all
// remote work runs in short-lived goroutines under bounded timeouts so
// an unreachable gateway can never freeze the interactive side.
package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/chanterm/internal/model"
	"github.com/jeranaias/chanterm/internal/slack"
	"github.com/jeranaias/chanterm/internal/store"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrQueueFull is returned when the send queue cannot take another
// message; the local echo is failed immediately.
var ErrQueueFull = errors.New("send queue full")

// ErrShuttingDown is returned when a send arrives after the worker has
// stopped; the local echo is failed immediately.
var ErrShuttingDown = errors.New("client shutting down")

// ValidationError rejects bad input locally, before any echo or network
// traffic.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid input: " + e.Reason
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config bounds the dispatcher's remote work.
type Config struct {
	// SendTimeout caps one send, including an implicit channel join.
	SendTimeout time.Duration
	// FetchTimeout caps one history or channel-list fetch.
	FetchTimeout time.Duration
	// HistoryPageSize is the page size for history fetches.
	HistoryPageSize int
}

// DefaultConfig returns the default dispatcher bounds.
func DefaultConfig() Config {
	return Config{
		SendTimeout:     15 * time.Second,
		FetchTimeout:    30 * time.Second,
		HistoryPageSize: 100,
	}
}

// sendQueueSize bounds unsent messages. Sends past this fail fast
// rather than queueing into a dead gateway.
const sendQueueSize = 64

// =============================================================================
// GATEWAY CONTRACT
// =============================================================================

// Gateway is the REST surface the dispatcher needs. Satisfied by
// *slack.Client; tests substitute fakes.
type Gateway interface {
	ListChannels(ctx context.Context) ([]model.Channel, error)
	FetchHistory(ctx context.Context, channelID string, beforeTS model.TS, limit int) ([]model.Message, bool, error)
	PostMessage(ctx context.Context, channelID, body string) (model.Message, error)
	JoinChannel(ctx context.Context, channelID string) error
	UserInfo(ctx context.Context, userID string) string
}

// =============================================================================
// DISPATCHER
// =============================================================================

type sendJob struct {
	handle    string
	channelID string
	body      string
}

// Dispatcher mediates between the UI and the gateway/store pair.
// Sends are serialized through one worker so same-channel messages post
// in issuance order; fetches run concurrently.
type Dispatcher struct {
	gw   Gateway
	st   *store.Store
	cfg  Config
	self string

	jobs chan sendJob

	mu       sync.Mutex
	ctx      context.Context
	active   string
	fetching map[string]bool
	// stopped is set by Run before the final queue drain; enqueues are
	// serialized against it under mu so no send can slip in after the
	// drain and sit pending forever.
	stopped bool

	// onNotice surfaces non-echo failures (history fetch, channel sync)
	// to the status line.
	onNotice func(string)
	// onUsersResolved fires after a ResolveUsers batch lands in the
	// name cache, so rendered mentions can be refreshed.
	onUsersResolved func()

	resolving map[string]bool
}

// New creates a dispatcher posting as the given identity.
func New(gw Gateway, st *store.Store, selfID string, cfg Config) *Dispatcher {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultConfig().SendTimeout
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultConfig().FetchTimeout
	}
	if cfg.HistoryPageSize <= 0 {
		cfg.HistoryPageSize = DefaultConfig().HistoryPageSize
	}
	return &Dispatcher{
		gw:        gw,
		st:        st,
		cfg:       cfg,
		self:      selfID,
		jobs:      make(chan sendJob, sendQueueSize),
		ctx:       context.Background(),
		fetching:  make(map[string]bool),
		resolving: make(map[string]bool),
	}
}

// OnNotice registers the failure-notice listener. Must be set before Run.
func (d *Dispatcher) OnNotice(fn func(string)) {
	d.onNotice = fn
}

// OnUsersResolved registers the name-cache refresh listener. Must be
// set before Run.
func (d *Dispatcher) OnUsersResolved(fn func()) {
	d.onUsersResolved = fn
}

func (d *Dispatcher) notice(msg string) {
	if d.onNotice != nil {
		d.onNotice(msg)
	}
}

// Run owns the send worker until ctx is cancelled. Queued sends that
// never reach the worker are failed on shutdown so no echo is left
// pending forever.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.mu.Lock()
	d.ctx = ctx
	d.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			// Mark stopped before draining: any enqueue that won the
			// race is already in the queue, any later one fails fast.
			d.mu.Lock()
			d.stopped = true
			d.mu.Unlock()
			d.drainQueue()
			return ctx.Err()
		case job := <-d.jobs:
			d.processSend(ctx, job)
		}
	}
}

func (d *Dispatcher) drainQueue() {
	for {
		select {
		case job := <-d.jobs:
			d.st.ResolveLocalEcho(job.handle, nil, ErrShuttingDown.Error())
		default:
			return
		}
	}
}

func (d *Dispatcher) baseCtx() context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ctx
}

// =============================================================================
// INTENTS
// =============================================================================

// SyncChannels pulls the workspace channel list into the store. Used at
// startup and after reconnects.
func (d *Dispatcher) SyncChannels() {
	go func() {
		ctx, cancel := context.WithTimeout(d.baseCtx(), d.cfg.FetchTimeout)
		defer cancel()

		channels, err := d.gw.ListChannels(ctx)
		// A partial page is still worth merging.
		for _, ch := range channels {
			d.st.UpsertChannel(ch)
		}
		if err != nil {
			d.notice("channel list: " + err.Error())
		}
	}()
}

// SelectChannel makes channelID the active channel. The switch itself
// is purely local; when no history is cached yet a fetch starts in the
// background and lands through the idempotent ingest.
func (d *Dispatcher) SelectChannel(channelID string) {
	d.mu.Lock()
	d.active = channelID
	d.mu.Unlock()

	if !d.st.HasHistory(channelID) {
		d.fetchHistory(channelID, model.TS(""))
	}
}

// ActiveChannel returns the currently selected channel ID.
func (d *Dispatcher) ActiveChannel() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// SendMessage validates and echoes body into channelID, then queues the
// remote post. It returns the echo handle; the echo always resolves,
// confirmed or failed, within roughly SendTimeout.
func (d *Dispatcher) SendMessage(channelID, body string) (string, error) {
	if strings.TrimSpace(body) == "" {
		return "", &ValidationError{Reason: "message body is empty"}
	}
	if channelID == "" {
		return "", &ValidationError{Reason: "no channel selected"}
	}

	handle := d.st.AppendLocalEcho(channelID, d.self, body)

	// Enqueue under mu: pairs with Run setting stopped before its final
	// drain, so the echo either reaches the drain or fails here.
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		d.st.ResolveLocalEcho(handle, nil, ErrShuttingDown.Error())
		return handle, ErrShuttingDown
	}
	select {
	case d.jobs <- sendJob{handle: handle, channelID: channelID, body: body}:
		d.mu.Unlock()
		return handle, nil
	default:
		d.mu.Unlock()
		d.st.ResolveLocalEcho(handle, nil, ErrQueueFull.Error())
		return handle, ErrQueueFull
	}
}

// LoadMoreHistory fetches the page older than what the store already
// holds for channelID. Overlapping pages are harmless: duplicates merge
// away in ingest.
func (d *Dispatcher) LoadMoreHistory(channelID string) {
	var before model.TS
	if msgs, _, ok := d.st.Snapshot(channelID); ok && len(msgs) > 0 {
		before = msgs[0].TS
	}
	d.fetchHistory(channelID, before)
}

// RefreshActive refetches the newest page of the active channel.
// Called after a reconnect, when events may have been missed.
func (d *Dispatcher) RefreshActive() {
	d.mu.Lock()
	active := d.active
	d.mu.Unlock()

	if active != "" {
		d.fetchHistory(active, model.TS(""))
	}
}

// ResolveUsers looks up display names for the given user IDs in the
// background. IDs already being resolved are skipped; the resolved
// listener fires once per batch.
func (d *Dispatcher) ResolveUsers(ids []string) {
	d.mu.Lock()
	var todo []string
	for _, id := range ids {
		if id != "" && !d.resolving[id] {
			d.resolving[id] = true
			todo = append(todo, id)
		}
	}
	d.mu.Unlock()

	if len(todo) == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(d.baseCtx(), d.cfg.FetchTimeout)
		defer cancel()

		for _, id := range todo {
			d.gw.UserInfo(ctx, id)
		}

		d.mu.Lock()
		for _, id := range todo {
			delete(d.resolving, id)
		}
		fn := d.onUsersResolved
		d.mu.Unlock()

		if fn != nil {
			fn()
		}
	}()
}

// =============================================================================
// REMOTE WORK
// =============================================================================

// fetchHistory pulls one page of channelID older than beforeTS (newest
// page when zero) into the store. At most one fetch per channel runs at
// a time.
func (d *Dispatcher) fetchHistory(channelID string, beforeTS model.TS) {
	d.mu.Lock()
	if d.fetching[channelID] {
		d.mu.Unlock()
		return
	}
	d.fetching[channelID] = true
	d.mu.Unlock()

	go func() {
		defer func() {
			d.mu.Lock()
			delete(d.fetching, channelID)
			d.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(d.baseCtx(), d.cfg.FetchTimeout)
		defer cancel()

		msgs, _, err := d.gw.FetchHistory(ctx, channelID, beforeTS, d.cfg.HistoryPageSize)
		for _, m := range msgs {
			d.st.IngestMessage(m)
		}
		if err != nil {
			d.notice("history fetch: " + err.Error())
		}
	}()
}

// processSend performs one queued post under the send timeout. Not
// being in the channel is recoverable: join, then post again.
func (d *Dispatcher) processSend(ctx context.Context, job sendJob) {
	sctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	msg, err := d.gw.PostMessage(sctx, job.channelID, job.body)
	if errors.Is(err, slack.ErrNotInChannel) {
		if jerr := d.gw.JoinChannel(sctx, job.channelID); jerr == nil {
			d.st.UpsertChannel(model.Channel{ID: job.channelID, IsMember: true})
			msg, err = d.gw.PostMessage(sctx, job.channelID, job.body)
		}
	}

	if err != nil {
		reason := err.Error()
		if sctx.Err() != nil {
			reason = "send timed out"
		}
		d.st.ResolveLocalEcho(job.handle, nil, reason)
		return
	}
	d.st.ResolveLocalEcho(job.handle, &msg, "")
}
