// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import "testing"

func TestNewTheme(t *testing.T) {
	theme := NewTheme()
	if theme == nil {
		t.Fatal("NewTheme returned nil")
	}

	// Spot-check that the core styles are initialized, not zero values.
	if !theme.HeaderTitle.GetBold() {
		t.Error("HeaderTitle should be bold")
	}
	if !theme.StatusConnected.GetBold() {
		t.Error("StatusConnected should be bold")
	}
	if !theme.Pending.GetItalic() {
		t.Error("Pending should be italic")
	}
	if !theme.InputContainer.GetBorderTop() {
		t.Error("InputContainer should have a top border")
	}
}

func TestIndicators(t *testing.T) {
	if Indicators.Connected == "" || Indicators.Failed == "" {
		t.Error("indicator set must be populated")
	}
	if Indicators.Connected == Indicators.Disconnected {
		t.Error("states need distinct shapes")
	}
}
