package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/html/charset"
)

// DefaultUserAgent presents fetches as a desktop Chrome browser.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

const (
	defaultFetchTimeout = 15 * time.Second
	defaultMaxBodyBytes = 5 << 20
	maxRedirects        = 10
)

// FailureKind classifies why a page could not be used.
type FailureKind int

const (
	FailureTimeout FailureKind = iota
	FailureHTTPStatus
	FailureNetwork
	FailureExtract
	FailureProcess
)

// String returns the metric label for the failure kind.
func (k FailureKind) String() string {
	switch k {
	case FailureTimeout:
		return "timeout"
	case FailureHTTPStatus:
		return "http_status"
	case FailureNetwork:
		return "network"
	case FailureExtract:
		return "empty"
	case FailureProcess:
		return "process"
	default:
		return "unknown"
	}
}

// FetchError describes a per-URL failure. Its message is shown to the model.
type FetchError struct {
	Kind   FailureKind
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FailureTimeout:
		return fmt.Sprintf("Timeout accessing %s", e.URL)
	case FailureHTTPStatus:
		return fmt.Sprintf("Failed to access %s (HTTP %d)", e.URL, e.Status)
	case FailureNetwork:
		return fmt.Sprintf("Network error accessing %s", e.URL)
	case FailureExtract:
		return fmt.Sprintf("Could not extract text content from %s", e.URL)
	default:
		return fmt.Sprintf("Error processing content from %s", e.URL)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetcher downloads a page and extracts its readable text.
type Fetcher struct {
	client       *http.Client
	userAgent    string
	timeout      time.Duration
	maxBodyBytes int64
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithTimeout sets the per-URL timeout.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying client. Its redirect policy is kept.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithMaxBodyBytes caps how much of a response body is read.
func WithMaxBodyBytes(n int64) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBodyBytes = n
		}
	}
}

// NewFetcher creates a fetcher with browser-like defaults.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		userAgent:    DefaultUserAgent,
		timeout:      defaultFetchTimeout,
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves rawURL and returns its visible text. Failures are *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &FetchError{Kind: FailureNetwork, URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return "", &FetchError{Kind: FailureTimeout, URL: rawURL, Err: err}
		}
		return "", &FetchError{Kind: FailureNetwork, URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &FetchError{Kind: FailureHTTPStatus, URL: rawURL, Status: resp.StatusCode}
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, f.maxBodyBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return "", &FetchError{Kind: FailureProcess, URL: rawURL, Err: err}
	}

	text, err := ExtractText(body)
	if err != nil {
		if isTimeout(ctx, err) {
			return "", &FetchError{Kind: FailureTimeout, URL: rawURL, Err: err}
		}
		return "", &FetchError{Kind: FailureProcess, URL: rawURL, Err: err}
	}
	if text == "" {
		return "", &FetchError{Kind: FailureExtract, URL: rawURL}
	}
	return text, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
