package json

import (
	"strings"
	"testing"
)

type queryArgs struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

func TestDecodePureJSON(t *testing.T) {
	result, err := Decode[queryArgs](`{"query": "test", "k": 3}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Query != "test" {
		t.Errorf("expected query 'test', got '%s'", result.Query)
	}
	if result.K != 3 {
		t.Errorf("expected k 3, got %d", result.K)
	}
}

func TestDecodeWithSurroundingText(t *testing.T) {
	result, err := Decode[queryArgs](`Calling the tool now: {"query": "test", "k": 3} and waiting.`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Query != "test" || result.K != 3 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestDecodeMarkdownFence(t *testing.T) {
	response := "```json\n{\"query\": \"fenced\"}\n```"
	result, err := Decode[queryArgs](response)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Query != "fenced" {
		t.Errorf("expected query 'fenced', got '%s'", result.Query)
	}
}

func TestDecodeNoJSON(t *testing.T) {
	_, err := Decode[queryArgs]("This is just plain text without any JSON.")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "failed to extract valid JSON") {
		t.Errorf("expected 'failed to extract valid JSON' in error, got: %v", err)
	}
}

func TestDecodeLongInputPreviewTruncated(t *testing.T) {
	_, err := Decode[queryArgs](strings.Repeat("x", 500))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "...") {
		t.Errorf("expected truncated preview, got: %v", err)
	}
}

func TestStringArgument(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{"named key", `{"query": "golang"}`, "golang", true},
		{"named key wins", `{"query": "a", "q": "b"}`, "a", true},
		{"single other string field", `{"q": "rust"}`, "rust", true},
		{"bare string", `"just text"`, "just text", true},
		{"fenced object", "```json\n{\"query\": \"fenced\"}\n```", "fenced", true},
		{"two unnamed strings", `{"a": "x", "b": "y"}`, "", false},
		{"non string value", `{"query": 42}`, "", false},
		{"empty", ``, "", false},
		{"garbage", `not json`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := StringArgument([]byte(tt.raw), "query")
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
