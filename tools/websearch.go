package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"github.com/premjatin/LLM-WebSearch/web"
)

// WebSearchToolName is the name the model uses to search the web.
const WebSearchToolName = "WebSearch"

// Web search result texts.
const (
	WebSearchNoLinks   = "Web search did not return any usable links."
	WebSearchNoContent = "No readable content was successfully scraped from web links."
	webPageSeparator   = "\n\n---\n\n"
	webErrorHeader     = "\nAdditionally, errors were encountered accessing some sources:\n- "
)

// PageScraper fetches readable text for a list of URLs.
type PageScraper interface {
	Scrape(ctx context.Context, urls []string) ([]web.Page, []*web.FetchError)
}

// WebSearchConfig bounds discovery.
type WebSearchConfig struct {
	MaxResults int // results requested from the search engine
	MaxLinks   int // results actually fetched
}

// WebSearchTool discovers pages for a query and returns their extracted text.
type WebSearchTool struct {
	searcher web.Searcher
	scraper  PageScraper
	cfg      WebSearchConfig
	log      zerolog.Logger
}

// NewWebSearchTool creates the web search tool.
func NewWebSearchTool(searcher web.Searcher, scraper PageScraper, cfg WebSearchConfig) *WebSearchTool {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if cfg.MaxLinks <= 0 {
		cfg.MaxLinks = 3
	}
	return &WebSearchTool{searcher: searcher, scraper: scraper, cfg: cfg, log: zerolog.Nop()}
}

// WithLogger sets the tool logger.
func (t *WebSearchTool) WithLogger(log zerolog.Logger) *WebSearchTool {
	t.log = log
	return t
}

// Metadata returns the tool metadata.
func (t *WebSearchTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        WebSearchToolName,
		Description: "Searches the web (DuckDuckGo) for a query, fetches content from top results. Use this for recent events, real-time information, or topics likely not covered in the internal knowledge base.",
		Parameters: []ToolParameter{
			{Name: "query", ParamType: "string", Description: "The web search query", Required: true},
		},
	}
}

// Validate requires a query argument.
func (t *WebSearchTool) Validate(args json.RawMessage) error {
	_, err := queryArgument(args)
	return err
}

// Execute searches, scrapes and aggregates. Degraded outcomes are text.
func (t *WebSearchTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	query, err := queryArgument(args)
	if err != nil {
		return FailureResult(err), nil
	}

	links := t.discover(ctx, query)
	if len(links) == 0 {
		return SuccessResult(WebSearchNoLinks), nil
	}

	pages, failures := t.scraper.Scrape(ctx, links)
	return SuccessResult(aggregate(pages, failures)), nil
}

// discover returns up to MaxLinks distinct result URLs; failures yield none.
func (t *WebSearchTool) discover(ctx context.Context, query string) []string {
	results, err := t.searcher.Search(ctx, query, t.cfg.MaxResults)
	if err != nil {
		t.log.Warn().Err(err).Str("query", query).Msg("web search failed")
		return nil
	}

	seen := make(map[string]bool)
	var links []string
	for _, r := range results {
		if r.URL == "" || seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		links = append(links, r.URL)
		if len(links) == t.cfg.MaxLinks {
			break
		}
	}
	t.log.Debug().Str("query", query).Strs("links", links).Msg("web search links")
	return links
}

// aggregate joins page texts and appends a summary of any failures.
func aggregate(pages []web.Page, failures []*web.FetchError) string {
	var b strings.Builder
	if len(pages) == 0 {
		b.WriteString(WebSearchNoContent)
	} else {
		for i, p := range pages {
			if i > 0 {
				b.WriteString(webPageSeparator)
			}
			b.WriteString(p.Text)
		}
	}

	if len(failures) > 0 {
		msgs := make([]string, len(failures))
		for i, f := range failures {
			msgs[i] = f.Error()
		}
		b.WriteString(webErrorHeader)
		b.WriteString(strings.Join(msgs, "\n- "))
	}
	return b.String()
}

var _ Tool = (*WebSearchTool)(nil)
