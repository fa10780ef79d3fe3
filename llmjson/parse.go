// Package llmjson leniently extracts a JSON object from raw LLM completion
// text. Models routinely wrap JSON in markdown fences, add a sentence of
// preamble, leave a trailing comma before a closing brace, or use single
// quotes instead of double quotes despite explicit instructions not to -
// this package cleans all of that up before handing the result to
// encoding/json.
package llmjson

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	codeBlockRegex  = regexp.MustCompile("(?s)```(?:json)?\\s*([\\s\\S]*?)\\s*```")
	boldRegex       = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	trailingComma   = regexp.MustCompile(`,(\s*[}\]])`)
)

// ParseInto extracts a JSON object or array from raw LLM text, repairs the
// common formatting mistakes below, and unmarshals it into v:
//
//   - ```json ... ``` or ``` ... ``` fences
//   - narrative text before/after the JSON payload
//   - **bold**/*italic* markdown markers inside string values
//   - a trailing comma before a closing brace or bracket
//   - single-quoted strings instead of double-quoted
//
// Returns an error wrapping the final json.Unmarshal failure if the text
// still doesn't parse after cleanup, so callers can fall back to a
// deterministic default rather than failing the request outright.
func ParseInto(raw string, v interface{}) error {
	cleaned := Clean(raw)
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("llmjson: could not parse cleaned response: %w", err)
	}
	return nil
}

// Clean extracts and repairs a JSON payload from raw LLM text without
// unmarshalling it, for callers that want to inspect or log the
// intermediate string.
func Clean(raw string) string {
	s := extractPayload(raw)
	s = stripMarkdown(s)
	s = normalizeQuotes(s)
	s = trailingComma.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}

// extractPayload pulls the JSON object/array out of markdown fences or
// surrounding prose, preferring a fenced code block when present.
func extractPayload(s string) string {
	s = strings.TrimSpace(s)

	if matches := codeBlockRegex.FindStringSubmatch(s); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}

	start := -1
	var open, close byte
	for i, c := range []byte(s) {
		if c == '{' || c == '[' {
			start = i
			open, close = c, matchingClose(c)
			break
		}
	}
	if start == -1 {
		return s
	}

	end := findBalancedEnd(s, start, open, close)
	if end == -1 {
		return s
	}
	return strings.TrimSpace(s[start:end])
}

func matchingClose(open byte) byte {
	if open == '{' {
		return '}'
	}
	return ']'
}

// findBalancedEnd returns the index just past the brace/bracket that closes
// the one at start, ignoring braces/brackets that appear inside JSON string
// literals (including escaped quotes).
func findBalancedEnd(s string, start int, open, close byte) int {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

// stripMarkdown removes **bold** and *italic* markers from inside string
// values. LLMs sometimes emphasize a field value despite being told to
// emit plain JSON.
func stripMarkdown(s string) string {
	s = boldRegex.ReplaceAllString(s, "$1")

	var out strings.Builder
	out.Grow(len(s))
	i := 0
	for i < len(s) {
		if s[i] == '*' && i+1 < len(s) && s[i+1] != '*' {
			if endIdx := strings.Index(s[i+1:], "*"); endIdx > 0 && endIdx < 100 {
				fullEnd := i + 1 + endIdx
				if fullEnd+1 >= len(s) || s[fullEnd+1] != '*' {
					content := s[i+1 : fullEnd]
					if !strings.ContainsAny(content, "\n\t{}[]\"") && strings.TrimSpace(content) != "" {
						out.WriteString(content)
						i = fullEnd + 1
						continue
					}
				}
			}
		}
		out.WriteByte(s[i])
		i++
	}
	return out.String()
}

// normalizeQuotes rewrites single-quoted JSON keys/string values to double
// quotes when the payload contains no double quotes at all - a model that
// used single quotes throughout is internally consistent, so a blanket
// swap is safe. If double quotes are already present we leave the text
// alone rather than risk corrupting apostrophes inside valid strings.
func normalizeQuotes(s string) string {
	if strings.Contains(s, `"`) {
		return s
	}
	if !strings.Contains(s, "'") {
		return s
	}
	return strings.ReplaceAll(s, "'", `"`)
}
