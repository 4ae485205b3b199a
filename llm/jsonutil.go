package llm

import (
	"strings"
)

// ExtractJSON returns the first balanced JSON object in an LLM response.
// Markdown fences and surrounding prose are ignored. Line comments and
// trailing commas outside string literals are removed. Returns "" when no
// complete object is present.
func ExtractJSON(content string) string {
	start := strings.IndexByte(content, '{')
	for start >= 0 {
		if end := matchBrace(content, start); end > start {
			return cleanJSON(content[start : end+1])
		}
		next := strings.IndexByte(content[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return ""
}

// matchBrace returns the index of the brace closing the one at open, or -1.
func matchBrace(s string, open int) int {
	depth := 0
	inString, escaped := false, false
	for i := open; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// cleanJSON drops // comments and trailing commas that sit outside strings.
func cleanJSON(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))

	inString, escaped := false, false
	for i := 0; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			b.WriteByte(ch)
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch {
		case ch == '"':
			inString = true
		case ch == '/' && i+1 < len(raw) && raw[i+1] == '/':
			for i < len(raw) && raw[i] != '\n' {
				i++
			}
			if i < len(raw) {
				b.WriteByte('\n')
			}
			continue
		case ch == ',':
			if closesNext(raw, i+1) {
				continue
			}
		}
		b.WriteByte(ch)
	}
	return b.String()
}

// closesNext reports whether the next significant character from i closes a
// container, skipping whitespace and line comments.
func closesNext(s string, i int) bool {
	for i < len(s) {
		switch ch := s[i]; {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			i++
		case ch == '/' && i+1 < len(s) && s[i+1] == '/':
			for i < len(s) && s[i] != '\n' {
				i++
			}
		default:
			return ch == '}' || ch == ']'
		}
	}
	return false
}
