package agent

import (
	"strings"
	"testing"
)

type names map[string]bool

func (n names) Has(name string) bool { return n[name] }

func TestExtractIntent(t *testing.T) {
	known := names{"WebSearch": true, "InternalKnowledgeSearch": true}

	tests := []struct {
		name     string
		content  string
		wantTool string
		wantArgs string
	}{
		{"tag", `<WebSearch>{"query": "x"}</WebSearch>`, "WebSearch", `{"query":"x"}`},
		{"tag with whitespace", "  \n<WebSearch>\n  {\"query\": \"x\"}\n</WebSearch>\n", "WebSearch", `{"query":"x"}`},
		{"tag with trailing text", `<WebSearch>{"query":"a"}</WebSearch> then more`, "WebSearch", `{"query":"a"}`},
		{"first closing tag wins", `<WebSearch>{"query":"a"}</WebSearch><WebSearch>{"query":"b"}</WebSearch>`, "WebSearch", `{"query":"a"}`},
		{"function", `<function=InternalKnowledgeSearch{"query": "policy"} </function>`, "InternalKnowledgeSearch", `{"query":"policy"}`},
		{"function with space", `<function=WebSearch {"query": "y"}</function>`, "WebSearch", `{"query":"y"}`},
		{"tag payload not json", `<WebSearch>not json</WebSearch>`, "", ""},
		{"tag payload array", `<WebSearch>["x"]</WebSearch>`, "", ""},
		{"tag payload null", `<WebSearch>null</WebSearch>`, "", ""},
		{"unknown tag tool", `<Calculator>{"expr":"1+1"}</Calculator>`, "", ""},
		{"unknown function tool", `<function=Calculator{"expr":"1+1"}</function>`, "", ""},
		{"mismatched closing tag", `<WebSearch>{"query":"x"}</Other>`, "", ""},
		{"prose", "Lionel Messi last scored on Sunday.", "", ""},
		{"tag not at start", `Sure: <WebSearch>{"query":"x"}</WebSearch>`, "", ""},
		{"empty", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call, ok := ExtractIntent(tt.content, known)
			if tt.wantTool == "" {
				if ok {
					t.Fatalf("ExtractIntent() = %+v, want no intent", call)
				}
				return
			}
			if !ok {
				t.Fatalf("ExtractIntent() found no intent, want %s", tt.wantTool)
			}
			if call.Name != tt.wantTool {
				t.Errorf("Name = %q, want %q", call.Name, tt.wantTool)
			}
			if string(call.Arguments) != tt.wantArgs {
				t.Errorf("Arguments = %s, want %s", call.Arguments, tt.wantArgs)
			}
			if !strings.HasPrefix(call.ID, "call_") {
				t.Errorf("ID = %q, want call_ prefix", call.ID)
			}
		})
	}
}

func TestExtractIntentUniqueIDs(t *testing.T) {
	known := names{"WebSearch": true}
	a, _ := ExtractIntent(`<WebSearch>{"query":"x"}</WebSearch>`, known)
	b, _ := ExtractIntent(`<WebSearch>{"query":"x"}</WebSearch>`, known)
	if a.ID == b.ID {
		t.Errorf("expected distinct ids, both were %q", a.ID)
	}
}

func TestExtractIntentNilLookup(t *testing.T) {
	if _, ok := ExtractIntent(`<WebSearch>{"query":"x"}</WebSearch>`, nil); ok {
		t.Error("expected no intent without a lookup")
	}
}
