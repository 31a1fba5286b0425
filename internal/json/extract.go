// Package json recovers JSON values from loosely formatted model output.
//
// Models frequently wrap tool arguments in markdown fences, surround them with
// commentary, or send a bare string where an object was requested. The helpers
// here normalise those shapes before decoding.
package json

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractObject finds the JSON object in s.
// Accepted shapes, in order:
//  1. the whole (fence-stripped) input
//  2. the span from the first '{' to the last '}'
//
// Brace matching is positional, so braces inside strings that surround the
// object can confuse it.
func extractObject(s string) (string, error) {
	s = stripMarkdownCodeBlocks(s)

	if json.Valid([]byte(s)) {
		return s, nil
	}

	start := strings.Index(s, "{")
	if start != -1 {
		end := strings.LastIndex(s, "}")
		if end > start {
			candidate := s[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, nil
			}
		}
	}

	preview := s
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("failed to extract valid JSON from response: %q", preview)
}

// stripMarkdownCodeBlocks removes ```json / ``` fences around a payload.
func stripMarkdownCodeBlocks(s string) string {
	trimmed := strings.TrimSpace(s)

	if strings.HasPrefix(trimmed, "```json") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```json"))
	} else if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
	}

	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "```"))
	}

	return trimmed
}

// Decode extracts the JSON value in s and unmarshals it into a T.
func Decode[T any](s string) (T, error) {
	var result T
	raw, err := extractObject(s)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return result, nil
}

// StringArgument pulls a single string argument out of a tool call payload.
//
// The value of key is preferred. Failing that, an object holding exactly one
// string field yields that field, and a bare JSON string yields itself. The
// boolean is false when no string could be recovered.
func StringArgument(raw []byte, key string) (string, bool) {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "", false
	}

	var bare string
	if err := json.Unmarshal([]byte(text), &bare); err == nil {
		return bare, true
	}

	fields, err := Decode[map[string]interface{}](text)
	if err != nil {
		return "", false
	}

	if v, ok := fields[key].(string); ok {
		return v, true
	}

	var only string
	found := 0
	for _, v := range fields {
		if s, ok := v.(string); ok {
			only = s
			found++
		}
	}
	if found == 1 {
		return only, true
	}
	return "", false
}
