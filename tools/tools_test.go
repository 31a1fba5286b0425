package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/premjatin/LLM-WebSearch/rag"
	"github.com/premjatin/LLM-WebSearch/web"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// stubTool returns scripted results in order, repeating the last one.
type stubTool struct {
	BaseTool
	name    string
	results []ToolResult
	calls   atomic.Int32
	delay   time.Duration
}

func (s *stubTool) Metadata() ToolMetadata {
	return ToolMetadata{Name: s.name, Description: "stub " + s.name}
}

func (s *stubTool) Execute(ctx context.Context, _ json.RawMessage) (ToolResult, error) {
	n := int(s.calls.Add(1)) - 1
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return FailureResult(ctx.Err()), nil
		case <-time.After(s.delay):
		}
	}
	if n >= len(s.results) {
		n = len(s.results) - 1
	}
	return s.results[n], nil
}

func TestRegistryPreservesOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubTool{name: "Zeta"}))
	require.NoError(t, r.Register(&stubTool{name: "Alpha"}))
	require.NoError(t, r.Register(&stubTool{name: "Mid"}))

	assert.Equal(t, []string{"Zeta", "Alpha", "Mid"}, r.Names())
	assert.Equal(t, 3, r.Len())

	defs := r.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, "Zeta", defs[0].Name)
	assert.Equal(t, "Mid", defs[2].Name)

	err := r.Register(&stubTool{name: "Alpha"})
	assert.ErrorContains(t, err, "already registered")
	assert.Error(t, r.Register(&stubTool{name: ""}))

	_, ok := r.Get("Alpha")
	assert.True(t, ok)
	assert.False(t, r.Has("Missing"))

	assert.Equal(t, "Error: Missing is not a valid tool, try one of [Zeta, Alpha, Mid].", r.UnknownToolMessage("Missing"))
	assert.Contains(t, r.Description(), "Tool: Zeta")
}

func TestMetadataDefinitionSchema(t *testing.T) {
	def := NewRetrievalTool(nil, 3).Metadata().Definition()

	assert.Equal(t, RetrievalToolName, def.Name)
	assert.Equal(t, "object", def.Parameters["type"])
	assert.Equal(t, []string{"query"}, def.Parameters["required"])

	props := def.Parameters["properties"].(map[string]interface{})
	query := props["query"].(map[string]interface{})
	assert.Equal(t, "string", query["type"])
}

func TestToolResultText(t *testing.T) {
	assert.Equal(t, "fine", SuccessResult("fine").Text())
	assert.Equal(t, "Error: boom. Please fix your mistakes.", FailureResultf("boom").Text())

	data, err := json.Marshal(FailureResultf("bad"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"output":"","error":"bad"}`, string(data))
}

func TestExecutorRetriesTransientFailures(t *testing.T) {
	tool := &stubTool{name: "flaky", results: []ToolResult{
		FailureResultf("connection reset by peer"),
		SuccessResult("ok"),
	}}

	exec := NewExecutor(ToolConfig{TimeoutSecs: 5, MaxRetries: 3})
	result, err := exec.Execute(context.Background(), tool, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.True(t, result.Success())
	assert.Equal(t, "ok", result.Output)
	assert.Equal(t, int32(2), tool.calls.Load())
}

func TestExecutorDoesNotRetryPermanentFailures(t *testing.T) {
	tool := &stubTool{name: "broken", results: []ToolResult{FailureResultf("query cannot be empty")}}

	exec := NewExecutor(ToolConfig{TimeoutSecs: 5, MaxRetries: 3})
	result, err := exec.Execute(context.Background(), tool, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.False(t, result.Success())
	assert.Equal(t, int32(1), tool.calls.Load())
}

func TestExecutorAppliesTimeout(t *testing.T) {
	tool := &stubTool{name: "slow", delay: 5 * time.Second, results: []ToolResult{SuccessResult("late")}}

	exec := NewExecutor(ToolConfig{TimeoutSecs: 1, MaxRetries: 1})
	start := time.Now()
	result, err := exec.Execute(context.Background(), tool, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.False(t, result.Success())
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Contains(t, result.Error.Error(), "deadline exceeded")
}

func TestExecutorValidatesFirst(t *testing.T) {
	result, err := NewDefaultExecutor().Execute(context.Background(), NewRetrievalTool(nil, 3), json.RawMessage(`{"query": ""}`))
	require.NoError(t, err)
	assert.False(t, result.Success())
	assert.Contains(t, result.Error.Error(), "validation failed")
}

type fakeKB struct {
	ready   bool
	results []rag.Result
	err     error
	query   string
	k       int
}

func (f *fakeKB) IsReady() bool { return f.ready }

func (f *fakeKB) Search(_ context.Context, query string, k int) ([]rag.Result, error) {
	f.query, f.k = query, k
	return f.results, f.err
}

func TestRetrievalTool(t *testing.T) {
	ctx := context.Background()
	args := json.RawMessage(`{"query": "vacation policy"}`)

	tests := []struct {
		name string
		kb   *fakeKB
		want string
	}{
		{"not ready", &fakeKB{ready: false}, RetrievalUnavailable},
		{"no results", &fakeKB{ready: true}, RetrievalNoResults},
		{"search error", &fakeKB{ready: true, err: errors.New("embedder offline")}, "Internal knowledge base search failed: embedder offline"},
		{"joined in order", &fakeKB{ready: true, results: []rag.Result{
			{Distance: 0.1, Text: "first"},
			{Distance: 0.2, Text: "second"},
			{Distance: 0.3, Text: "third"},
		}}, "first\n---\nsecond\n---\nthird"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := NewRetrievalTool(tt.kb, 3).Execute(ctx, args)
			require.NoError(t, err)
			assert.True(t, result.Success())
			assert.Equal(t, tt.want, result.Output)
		})
	}

	kb := &fakeKB{ready: true}
	_, _ = NewRetrievalTool(kb, 0).Execute(ctx, json.RawMessage(`"bare query"`))
	assert.Equal(t, "bare query", kb.query)
	assert.Equal(t, 3, kb.k)
}

func TestRetrievalToolRejectsMissingQuery(t *testing.T) {
	tool := NewRetrievalTool(&fakeKB{ready: true}, 3)
	assert.Error(t, tool.Validate(json.RawMessage(`{}`)))
	assert.Error(t, tool.Validate(json.RawMessage(`{"query": "  "}`)))
	assert.NoError(t, tool.Validate(json.RawMessage(`{"q": "alt key"}`)))
}

type fakeSearcher struct {
	results []web.SearchResult
	err     error
	max     int
}

func (f *fakeSearcher) Search(_ context.Context, _ string, maxResults int) ([]web.SearchResult, error) {
	f.max = maxResults
	return f.results, f.err
}

type fakeFetcher map[string]error

func (f fakeFetcher) Fetch(_ context.Context, u string) (string, error) {
	if err := f[u]; err != nil {
		return "", err
	}
	return "content of " + u, nil
}

func TestWebSearchPartialFailure(t *testing.T) {
	searcher := &fakeSearcher{results: []web.SearchResult{
		{URL: "https://a.example"},
		{URL: "https://b.example"},
		{URL: ""},
		{URL: "https://c.example"},
		{URL: "https://d.example"},
	}}
	fetcher := fakeFetcher{
		"https://b.example": &web.FetchError{Kind: web.FailureTimeout, URL: "https://b.example"},
	}
	tool := NewWebSearchTool(searcher, web.NewScraper(fetcher, 3000, 3), WebSearchConfig{})

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"query": "news"}`))
	require.NoError(t, err)
	assert.Equal(t, 5, searcher.max)

	want := "content of https://a.example\n\n---\n\ncontent of https://c.example" +
		"\nAdditionally, errors were encountered accessing some sources:\n- Timeout accessing https://b.example"
	assert.Equal(t, want, result.Output)
	assert.NotContains(t, result.Output, "d.example")
}

func TestWebSearchAllFailures(t *testing.T) {
	searcher := &fakeSearcher{results: []web.SearchResult{{URL: "https://a.example"}, {URL: "https://b.example"}}}
	fetcher := fakeFetcher{
		"https://a.example": &web.FetchError{Kind: web.FailureHTTPStatus, URL: "https://a.example", Status: 403},
		"https://b.example": fmt.Errorf("parser exploded"),
	}
	tool := NewWebSearchTool(searcher, web.NewScraper(fetcher, 3000, 2), WebSearchConfig{MaxLinks: 3})

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"query": "x"}`))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.Output, WebSearchNoContent))
	assert.Contains(t, result.Output, "- Failed to access https://a.example (HTTP 403)")
	assert.Contains(t, result.Output, "- Error processing content from https://b.example")
}

func TestWebSearchNoLinks(t *testing.T) {
	for name, searcher := range map[string]*fakeSearcher{
		"empty":  {},
		"failed": {err: errors.New("ratelimited")},
	} {
		t.Run(name, func(t *testing.T) {
			tool := NewWebSearchTool(searcher, web.NewScraper(fakeFetcher{}, 3000, 3), WebSearchConfig{})
			result, err := tool.Execute(context.Background(), json.RawMessage(`{"query": "x"}`))
			require.NoError(t, err)
			assert.Equal(t, WebSearchNoLinks, result.Output)
		})
	}
}
