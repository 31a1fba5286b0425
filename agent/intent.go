// Textual tool-call recovery.
//
// Some backends answer with a tool invocation written into the content
// instead of the structured tool_calls field. ExtractIntent recognises the
// two conventions seen in practice and turns them into a structured call.

package agent

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/premjatin/LLM-WebSearch/llm"
)

var (
	// <ToolName>{...}</ToolName>
	tagOpenPattern = regexp.MustCompile(`^<(\w+)>`)

	// <function=ToolName{...}</function>
	functionPattern = regexp.MustCompile(`(?s)^<function=(\w+)\s*(\{.*?\})\s*</function>`)
)

// ToolLookup reports whether a tool name is registered.
type ToolLookup interface {
	Has(name string) bool
}

// ExtractIntent parses a textual tool call out of model content.
//
// The tag convention is tried first, then the function convention. Once a
// convention matches, its payload must be a JSON object; otherwise the content
// is plain text and no further convention is tried. Calls naming a tool that
// lookup does not know are also treated as plain text.
func ExtractIntent(content string, lookup ToolLookup) (llm.ToolCall, bool) {
	content = strings.TrimSpace(content)

	name, payload, matched := matchTag(content)
	if !matched {
		name, payload, matched = matchFunction(content)
	}
	if !matched {
		return llm.ToolCall{}, false
	}

	args, ok := objectPayload(payload)
	if !ok {
		return llm.ToolCall{}, false
	}
	if lookup == nil || !lookup.Has(name) {
		return llm.ToolCall{}, false
	}

	return llm.ToolCall{
		ID:        "call_" + uuid.NewString(),
		Name:      name,
		Arguments: args,
	}, true
}

// matchTag finds a leading <Name> element and the first matching </Name>.
func matchTag(content string) (name, payload string, ok bool) {
	m := tagOpenPattern.FindStringSubmatch(content)
	if m == nil {
		return "", "", false
	}
	name = m[1]
	rest := content[len(m[0]):]
	end := strings.Index(rest, "</"+name+">")
	if end < 0 {
		return "", "", false
	}
	return name, strings.TrimSpace(rest[:end]), true
}

func matchFunction(content string) (name, payload string, ok bool) {
	m := functionPattern.FindStringSubmatch(content)
	if m == nil {
		return "", "", false
	}
	return m[1], strings.TrimSpace(m[2]), true
}

// objectPayload accepts only a JSON object and returns it compacted.
func objectPayload(payload string) (json.RawMessage, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &obj); err != nil || obj == nil {
		return nil, false
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(payload)); err != nil {
		return nil, false
	}
	return json.RawMessage(buf.Bytes()), true
}
