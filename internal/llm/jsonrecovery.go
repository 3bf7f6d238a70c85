package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ravenmoor/deepspire/internal/llm/sanitize"
)

// RecoverJSON parses model output into a JSON object, tolerating the usual
// damage: markdown fences, a byte-order mark, single-quoted strings,
// trailing commas, and a single object wrapped in an array.
func RecoverJSON(raw string) (map[string]any, error) {
	candidates := []string{raw}

	cleaned := strings.TrimPrefix(strings.TrimSpace(sanitize.StripFences(raw)), "\ufeff")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned != raw {
		candidates = append(candidates, cleaned)
	}
	if extracted := extractJSONBlock(cleaned); extracted != "" && extracted != cleaned {
		candidates = append(candidates, extracted)
	}

	var repaired []string
	for _, c := range candidates {
		repaired = append(repaired, stripTrailingCommas(c), stripTrailingCommas(singleToDoubleQuotes(c)))
	}
	candidates = append(candidates, repaired...)

	var lastErr error
	for _, c := range candidates {
		obj, err := parseObject(c)
		if err == nil {
			return obj, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("json recovery failed: %w", lastErr)
}

// parseObject decodes an object, unwrapping a one-element array of objects.
func parseObject(raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("empty input")
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
		return obj, nil
	}
	var arr []any
	if err := json.Unmarshal([]byte(trimmed), &arr); err == nil {
		for _, item := range arr {
			if m, ok := item.(map[string]any); ok {
				return m, nil
			}
		}
		return nil, fmt.Errorf("array contains no object")
	}
	return nil, fmt.Errorf("not a json object: %.40s", trimmed)
}

// extractJSONBlock returns the first balanced {...} or [...] region.
func extractJSONBlock(raw string) string {
	start := -1
	var open, close byte
	for i := 0; i < len(raw); i++ {
		if raw[i] == '{' || raw[i] == '[' {
			start = i
			open = raw[i]
			if open == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return ""
}

// singleToDoubleQuotes rewrites single-quoted strings outside double-quoted
// regions. Apostrophes inside double-quoted strings are untouched.
func singleToDoubleQuotes(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	inDouble := false
	inSingle := false
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case inDouble:
			b.WriteByte(c)
			if c == '\\' && i+1 < len(raw) {
				i++
				b.WriteByte(raw[i])
			} else if c == '"' {
				inDouble = false
			}
		case inSingle:
			if c == '\'' {
				b.WriteByte('"')
				inSingle = false
			} else if c == '"' {
				b.WriteString(`\"`)
			} else {
				b.WriteByte(c)
			}
		case c == '"':
			inDouble = true
			b.WriteByte(c)
		case c == '\'':
			inSingle = true
			b.WriteByte('"')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// stripTrailingCommas removes commas directly before a closing brace or
// bracket, outside strings.
func stripTrailingCommas(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	inString := false
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if inString {
			b.WriteByte(c)
			if c == '\\' && i+1 < len(raw) {
				i++
				b.WriteByte(raw[i])
			} else if c == '"' {
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(raw) && (raw[j] == ' ' || raw[j] == '\n' || raw[j] == '\t' || raw[j] == '\r') {
				j++
			}
			if j < len(raw) && (raw[j] == '}' || raw[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}
