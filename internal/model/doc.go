// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared by the sync engine
// and the UI: channels, messages, timestamps, and connection state.
//
// Everything in this package is a plain value type. Concurrency-safe
// ownership of these values lives in the store package; model types are
// copied freely across goroutine boundaries.
package model
