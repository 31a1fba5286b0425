package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	jsonx "github.com/premjatin/LLM-WebSearch/internal/json"
	"github.com/premjatin/LLM-WebSearch/rag"
)

// RetrievalToolName is the name the model uses to call the knowledge base.
const RetrievalToolName = "InternalKnowledgeSearch"

// Knowledge-base result texts.
const (
	RetrievalUnavailable = "Internal knowledge base (RAG) is not available."
	RetrievalNoResults   = "No relevant information found in the internal knowledge base."
	retrievalSeparator   = "\n---\n"
)

// KnowledgeBase is the read side of a vector store.
type KnowledgeBase interface {
	IsReady() bool
	Search(ctx context.Context, query string, k int) ([]rag.Result, error)
}

// RetrievalTool answers queries from the internal knowledge base.
type RetrievalTool struct {
	kb  KnowledgeBase
	k   int
	log zerolog.Logger
}

// NewRetrievalTool creates the knowledge base tool returning the top k chunks.
func NewRetrievalTool(kb KnowledgeBase, k int) *RetrievalTool {
	if k <= 0 {
		k = 3
	}
	return &RetrievalTool{kb: kb, k: k, log: zerolog.Nop()}
}

// WithLogger sets the tool logger.
func (t *RetrievalTool) WithLogger(log zerolog.Logger) *RetrievalTool {
	t.log = log
	return t
}

// Metadata returns the tool metadata.
func (t *RetrievalTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        RetrievalToolName,
		Description: "Searches the internal knowledge base for specific information, documents, or context provided to the system. Use this FIRST for queries about internal procedures, specific datasets, or documented knowledge before trying a general web search.",
		Parameters: []ToolParameter{
			{Name: "query", ParamType: "string", Description: "What to look up in the knowledge base", Required: true},
		},
	}
}

// Validate requires a query argument.
func (t *RetrievalTool) Validate(args json.RawMessage) error {
	_, err := queryArgument(args)
	return err
}

// Execute searches the knowledge base. Every outcome, including failure, is
// reported as text.
func (t *RetrievalTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	query, err := queryArgument(args)
	if err != nil {
		return FailureResult(err), nil
	}

	if t.kb == nil || !t.kb.IsReady() {
		t.log.Warn().Msg("knowledge base not ready")
		return SuccessResult(RetrievalUnavailable), nil
	}

	results, err := t.kb.Search(ctx, query, t.k)
	if err != nil {
		t.log.Error().Err(err).Str("query", query).Msg("knowledge base search failed")
		return SuccessResult(fmt.Sprintf("Internal knowledge base search failed: %v", err)), nil
	}
	if len(results) == 0 {
		return SuccessResult(RetrievalNoResults), nil
	}

	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	t.log.Debug().Str("query", query).Int("results", len(results)).Msg("knowledge base search")
	return SuccessResult(strings.Join(texts, retrievalSeparator)), nil
}

// queryArgument extracts a non-empty query string from tool arguments.
func queryArgument(args json.RawMessage) (string, error) {
	query, ok := jsonx.StringArgument(args, "query")
	if !ok {
		return "", fmt.Errorf("invalid arguments: expected {\"query\": string}")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("query cannot be empty")
	}
	return query, nil
}

var _ Tool = (*RetrievalTool)(nil)
