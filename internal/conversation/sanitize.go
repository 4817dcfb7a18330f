// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"regexp"
	"strings"
)

// tagPattern matches anything that looks like an HTML/XML tag.
var tagPattern = regexp.MustCompile(`<[^>]*>`)

// modelPrefix is the self-identification the fine-tuned model prepends to
// its responses. It is presentation noise and is stripped before display.
const modelPrefix = "fine-tuned liu chatbot:"

// Sanitize normalizes a raw model response for display: tags are removed
// first (the prefix may arrive wrapped in markup), then the model's
// self-identification prefix is stripped case-insensitively, then the
// result is whitespace-trimmed.
func Sanitize(raw string) string {
	s := tagPattern.ReplaceAllString(raw, "")
	s = strings.TrimSpace(s)
	if len(s) >= len(modelPrefix) && strings.EqualFold(s[:len(modelPrefix)], modelPrefix) {
		s = s[len(modelPrefix):]
	}
	return strings.TrimSpace(s)
}
