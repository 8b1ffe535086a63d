// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package socketmode

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/jeranaias/chanterm/internal/model"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds the connection-lifecycle tuning for the stream client.
type Config struct {
	// HandshakeTimeout bounds URL minting, dialing, and the wait for the
	// hello acknowledgment.
	HandshakeTimeout time.Duration

	// ReadIdleTimeout is the longest silence tolerated on an established
	// stream. The server pings every ~30s, so silence past this window
	// means the connection is dead even if the socket looks open.
	ReadIdleTimeout time.Duration

	// BackoffBase and BackoffMax bound the reconnect schedule.
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// MaxAttempts is the consecutive-failure count after which the
	// status turns Fatal. The client still retries at BackoffMax
	// forever; it only stops on explicit shutdown.
	MaxAttempts int
}

// DefaultConfig returns the default stream configuration.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		ReadIdleTimeout:  70 * time.Second,
		BackoffBase:      500 * time.Millisecond,
		BackoffMax:       30 * time.Second,
		MaxAttempts:      10,
	}
}

// =============================================================================
// PHASES
// =============================================================================

// Phase is the fine-grained connection-machine state, exposed for
// observability. The UI-facing model.ConnStatus is derived from it.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseHandshaking
	PhaseStreaming
	PhaseDraining
	PhaseBackoff
	PhaseShutdown
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseHandshaking:
		return "handshaking"
	case PhaseStreaming:
		return "streaming"
	case PhaseDraining:
		return "draining"
	case PhaseBackoff:
		return "backoff"
	case PhaseShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// =============================================================================
// COLLABORATOR CONTRACTS
// =============================================================================

// URLMinter mints a fresh single-use stream URL. Satisfied by the REST
// gateway's OpenSocketURL.
type URLMinter interface {
	OpenSocketURL(ctx context.Context) (string, error)
}

// Ingestor receives decoded events. Satisfied by the store.
type Ingestor interface {
	IngestMessage(m model.Message)
	UpsertChannel(ch model.Channel)
}

// Conn is one established stream connection. The production
// implementation wraps a websocket; tests substitute scripted conns.
type Conn interface {
	// ReadFrame blocks for the next text frame, honoring the read
	// deadline. A non-text frame is framing corruption and returns an
	// error.
	ReadFrame() ([]byte, error)
	// WriteAck acknowledges a delivered envelope.
	WriteAck(envelopeID string) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// DialFunc opens a Conn to a minted stream URL.
type DialFunc func(ctx context.Context, url string) (Conn, error)

// =============================================================================
// CLIENT
// =============================================================================

// Client owns the persistent event-stream connection and its receive
// loop. Create with New, start with Run (blocks until the context is
// cancelled), observe through OnStatus/Status.
type Client struct {
	gateway URLMinter
	store   Ingestor
	cfg     Config
	dial    DialFunc

	mu     sync.Mutex
	status model.ConnStatus
	phase  Phase

	// onStatus is invoked (outside the lock) on every status change.
	onStatus func(model.ConnStatus)
	// onReconnect is invoked when a stream re-establishes after a drop:
	// events may have been missed, the caller should refresh history.
	onReconnect func()

	// timeAfter indirects time.After so tests can collapse backoff.
	timeAfter func(time.Duration) <-chan time.Time

	// lastDelay is the previous backoff wait. Only the run loop touches
	// it; it floors the next wait so the schedule never decreases within
	// one failure streak.
	lastDelay time.Duration
}

// New creates a stream client over the given gateway and store.
func New(gateway URLMinter, store Ingestor, cfg Config) *Client {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultConfig().HandshakeTimeout
	}
	if cfg.ReadIdleTimeout <= 0 {
		cfg.ReadIdleTimeout = DefaultConfig().ReadIdleTimeout
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultConfig().BackoffBase
	}
	if cfg.BackoffMax < cfg.BackoffBase {
		cfg.BackoffMax = DefaultConfig().BackoffMax
	}
	return &Client{
		gateway:   gateway,
		store:     store,
		cfg:       cfg,
		dial:      dialWebsocket,
		phase:     PhaseIdle,
		status:    model.ConnStatus{State: model.Disconnected},
		timeAfter: time.After,
	}
}

// WithDial overrides the websocket dialer (tests).
func (c *Client) WithDial(dial DialFunc) *Client {
	c.dial = dial
	return c
}

// OnStatus registers the status listener. Must be set before Run.
func (c *Client) OnStatus(fn func(model.ConnStatus)) {
	c.onStatus = fn
}

// OnReconnect registers the reconnect (possible gap) listener. Must be
// set before Run.
func (c *Client) OnReconnect(fn func()) {
	c.onReconnect = fn
}

// Status returns the current externally visible connection status.
func (c *Client) Status() model.ConnStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Phase returns the current machine phase.
func (c *Client) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// transition records a phase/status change and notifies the listener
// outside the critical section.
func (c *Client) transition(p Phase, st model.ConnStatus) {
	c.mu.Lock()
	c.phase = p
	c.status = st
	fn := c.onStatus
	c.mu.Unlock()

	if fn != nil {
		fn(st)
	}
}

// =============================================================================
// RUN LOOP
// =============================================================================

// Run drives the connection machine until ctx is cancelled. It never
// returns on network failure; every error path funnels into backoff and
// another handshake. The only exits are context cancellation.
func (c *Client) Run(ctx context.Context) error {
	defer c.transition(PhaseShutdown, model.ConnStatus{State: model.Disconnected, Reason: "shutdown"})

	attempt := 0
	hadSession := false

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		c.transition(PhaseHandshaking, model.ConnStatus{State: model.Connecting, Attempt: attempt})

		sawHello, err := c.connectOnce(ctx, hadSession)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		reason := "connection lost"
		if err != nil {
			reason = err.Error()
		}
		c.transition(PhaseDraining, model.ConnStatus{State: model.Disconnected, Reason: reason})

		if sawHello {
			// The session was live: the next attempt starts a fresh
			// failure count, and any re-established stream is a
			// reconnect with a possible gap.
			attempt = 0
			hadSession = true
		}
		attempt++

		fatal := c.cfg.MaxAttempts > 0 && attempt > c.cfg.MaxAttempts
		delay := c.backoffDelay(attempt)
		c.transition(PhaseBackoff, model.ConnStatus{
			State:   model.Backoff,
			Attempt: attempt,
			Until:   time.Now().Add(delay),
			Reason:  reason,
			Fatal:   fatal,
		})

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.timeAfter(delay):
		}
	}
}

// connectOnce performs one handshake + streaming session. It returns
// whether the session reached Streaming (saw hello) and the error that
// ended it.
func (c *Client) connectOnce(ctx context.Context, isReconnect bool) (bool, error) {
	hctx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	url, err := c.gateway.OpenSocketURL(hctx)
	cancel()
	if err != nil {
		return false, fmt.Errorf("mint stream url: %w", err)
	}

	dctx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	conn, err := c.dial(dctx, url)
	cancel()
	if err != nil {
		return false, fmt.Errorf("dial stream: %w", err)
	}
	defer conn.Close()

	// Unblock the read loop when the context is cancelled: closing the
	// conn makes ReadFrame fail immediately.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchDone:
		}
	}()

	// Until hello arrives, reads run under the handshake deadline.
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.HandshakeTimeout))

	sawHello := false
	for {
		data, err := conn.ReadFrame()
		if err != nil {
			if !sawHello {
				return false, fmt.Errorf("handshake: %w", err)
			}
			return true, err
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadIdleTimeout))

		ev, envelopeID, decodeErr := decodeFrame(data)
		if envelopeID != "" {
			if err := conn.WriteAck(envelopeID); err != nil {
				return sawHello, fmt.Errorf("ack: %w", err)
			}
		}
		if decodeErr != nil {
			// One bad frame is not a dead connection.
			log.Printf("socketmode: dropping undecodable frame: %v", decodeErr)
			continue
		}

		switch ev := ev.(type) {
		case HelloEvent:
			sawHello = true
			st := model.ConnStatus{State: model.Connected}
			if isReconnect {
				st.Reason = "reconnected; events during the outage may be missing"
			}
			c.transition(PhaseStreaming, st)
			if isReconnect && c.onReconnect != nil {
				c.onReconnect()
			}
		case MessageEvent:
			c.store.IngestMessage(ev.Message)
		case ChannelEvent:
			c.store.UpsertChannel(ev.Channel)
		case DisconnectEvent:
			reason := ev.Reason
			if reason == "" {
				reason = "unspecified"
			}
			return sawHello, fmt.Errorf("remote disconnect: %s", reason)
		case UnknownEvent:
			// Forward compatibility: unknown types are ignored.
		}
	}
}

// =============================================================================
// BACKOFF
// =============================================================================

// backoffDelay computes the wait before the given (1-based) reconnect
// attempt: exponential from BackoffBase, capped at BackoffMax, plus
// additive jitter below one base unit, floored at the previous wait so
// the schedule is monotonic non-decreasing within one failure streak.
// The floor matters when the exponential step lands on the cap by less
// than a doubling: jitter alone could then shrink the wait.
func (c *Client) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	shift := uint(attempt - 1)
	if shift > 20 {
		shift = 20
	}
	delay := c.cfg.BackoffBase * time.Duration(1<<shift)
	if delay > c.cfg.BackoffMax || delay <= 0 {
		delay = c.cfg.BackoffMax
	}
	delay += time.Duration(rand.Int63n(int64(c.cfg.BackoffBase)))

	if attempt > 1 && delay < c.lastDelay {
		delay = c.lastDelay
	}
	c.lastDelay = delay
	return delay
}
