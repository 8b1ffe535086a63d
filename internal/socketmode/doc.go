// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package socketmode maintains the persistent event-stream connection.
//
// One client owns one authenticated websocket to the workspace's socket
// gateway. The receive loop decodes inbound envelopes into typed events,
// acknowledges them, and forwards them to the store in receipt order.
// On any connection loss the client drains, backs off with jitter, and
// reconnects; it never gives up silently and it never crashes the
// process. Gaps across a reconnect are possible (there is no replay
// upstream) and are surfaced through the status feed rather than masked.
package socketmode
