// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the chanterm TUI.

All colors use Lip Gloss AdaptiveColor for automatic light/dark terminal
detection. The Theme type bundles every styled component the chat and
picker screens render: message lines by provenance, the channel list,
the connection status bar, and the composer.
*/
package styles
