// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package slack implements the REST gateway to the workspace Web API.
//
// The gateway is stateless request/response: list channels, fetch
// history, post messages, resolve user names, and mint the socket-mode
// URL for the event-stream client. Transient failures (network, 5xx,
// rate limits) are retried a small bounded number of times with
// exponential backoff; authentication failures are terminal and never
// retried.
package slack
