// Package sanitize scrubs text flowing to and from the language model:
// control characters, markdown artefacts, invalid UTF-8, and size guards.
package sanitize

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Default size guards in bytes.
const (
	DefaultMaxPromptBytes   = 32 * 1024
	DefaultMaxResponseBytes = 64 * 1024
)

// Sanitizer applies the scrubbing pipeline. The zero value uses the default
// size guards.
type Sanitizer struct {
	MaxPromptBytes   int
	MaxResponseBytes int
}

// New builds a sanitizer with the default limits.
func New() *Sanitizer {
	return &Sanitizer{
		MaxPromptBytes:   DefaultMaxPromptBytes,
		MaxResponseBytes: DefaultMaxResponseBytes,
	}
}

// CleanPrompt scrubs outbound prompt text.
func (s *Sanitizer) CleanPrompt(text string) string {
	limit := s.MaxPromptBytes
	if limit <= 0 {
		limit = DefaultMaxPromptBytes
	}
	return truncate(scrub(text), limit)
}

// CleanResponse scrubs inbound model output, additionally dropping code
// fences and markdown tables the model was told not to produce.
func (s *Sanitizer) CleanResponse(text string) string {
	limit := s.MaxResponseBytes
	if limit <= 0 {
		limit = DefaultMaxResponseBytes
	}
	text = StripFences(text)
	text = stripTables(text)
	return truncate(scrub(text), limit)
}

// scrub drops control characters (keeping newline and tab), fixes invalid
// UTF-8, and collapses runs of blank lines.
func scrub(text string) string {
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) || r == utf8.RuneError {
			continue
		}
		b.WriteRune(r)
	}
	return collapseBlankLines(strings.TrimSpace(b.String()))
}

// StripFences removes markdown code fences, keeping the fenced content.
func StripFences(text string) string {
	if !strings.Contains(text, "```") {
		return text
	}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// stripTables drops markdown table rows.
func stripTables(text string) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "|") && strings.HasSuffix(trimmed, "|") {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func collapseBlankLines(text string) string {
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return text
}

// truncate cuts at the byte limit without splitting a rune.
func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := text[:limit]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
