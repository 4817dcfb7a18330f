// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import "testing"

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text untouched", "Hello there", "Hello there"},
		{"tags stripped", "<p>Hello <b>there</b></p>", "Hello there"},
		{"prefix stripped", "Fine-Tuned LIU ChatBot: Hi!", "Hi!"},
		{"prefix case-insensitive", "fine-tuned liu chatbot: Hi!", "Hi!"},
		{"prefix inside markup", "<b>Fine-Tuned LIU ChatBot:</b> Hi!", "Hi!"},
		{"prefix only once", "Fine-Tuned LIU ChatBot: Fine-Tuned LIU ChatBot: x", "Fine-Tuned LIU ChatBot: x"},
		{"prefix mid-text kept", "say Fine-Tuned LIU ChatBot: loudly", "say Fine-Tuned LIU ChatBot: loudly"},
		{"whitespace trimmed", "  padded  ", "padded"},
		{"empty input", "", ""},
		{"only markup", "<br><img src='x'>", ""},
		{"unclosed angle kept", "a < b", "a < b"},
		{"angle pair consumed", "a <first> b", "a  b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.in); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
