// Package web discovers, fetches and extracts readable web content.
//
// Information Hiding:
// - Search engine endpoint and result markup hidden behind Searcher
// - HTTP client identity, timeouts and failure classification hidden in Fetcher
// - Parallelism and ordering of page fetches hidden in Scraper
package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultDuckDuckGoEndpoint is the JavaScript-free DuckDuckGo results page.
const DefaultDuckDuckGoEndpoint = "https://html.duckduckgo.com/html/"

// SearchResult is one organic search hit.
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
}

// Searcher discovers candidate pages for a query.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// DuckDuckGo queries the DuckDuckGo HTML endpoint.
type DuckDuckGo struct {
	client    *http.Client
	endpoint  string
	userAgent string
	log       zerolog.Logger
}

// NewDuckDuckGo creates a searcher. An empty endpoint selects the public one.
func NewDuckDuckGo(endpoint, userAgent string, timeout time.Duration) *DuckDuckGo {
	if endpoint == "" {
		endpoint = DefaultDuckDuckGoEndpoint
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &DuckDuckGo{
		client:    &http.Client{Timeout: timeout},
		endpoint:  endpoint,
		userAgent: userAgent,
		log:       zerolog.Nop(),
	}
}

// WithLogger sets the searcher logger.
func (d *DuckDuckGo) WithLogger(log zerolog.Logger) *DuckDuckGo {
	d.log = log
	return d
}

// Search posts the query and parses up to maxResults organic results.
func (d *DuckDuckGo) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("search returned HTTP %d", resp.StatusCode)
	}

	results, err := parseDuckDuckGoResults(resp.Body, maxResults)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}
	d.log.Debug().Str("query", query).Int("results", len(results)).Msg("search complete")
	return results, nil
}

// parseDuckDuckGoResults walks the results page collecting result__a anchors
// and their snippets.
func parseDuckDuckGoResults(r io.Reader, maxResults int) ([]SearchResult, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Div && hasClass(n, "result--ad") {
			return true
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			switch {
			case hasClass(n, "result__a"):
				results = append(results, SearchResult{
					Title: nodeText(n),
					URL:   resolveResultURL(attr(n, "href")),
				})
			case hasClass(n, "result__snippet") && len(results) > 0:
				results[len(results)-1].Snippet = nodeText(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !walk(c) {
				return false
			}
		}
		// Keep going until the snippet of the last wanted result has been seen.
		return maxResults <= 0 || len(results) <= maxResults
	}
	walk(doc)

	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// resolveResultURL unwraps DuckDuckGo's /l/?uddg= redirect links.
func resolveResultURL(href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" && strings.HasPrefix(href, "//") {
		u.Scheme = "https"
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}
