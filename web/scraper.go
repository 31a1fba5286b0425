package web

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/premjatin/LLM-WebSearch/internal/metrics"
)

// Page is the extracted text of one fetched URL.
type Page struct {
	URL  string
	Text string
}

// PageFetcher retrieves the readable text of a URL.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// Scraper fetches several pages concurrently.
type Scraper struct {
	fetcher     PageFetcher
	maxChars    int
	concurrency int
	log         zerolog.Logger
	metrics     *metrics.Metrics
}

// NewScraper creates a scraper that truncates each page to maxChars runes.
func NewScraper(fetcher PageFetcher, maxChars, concurrency int) *Scraper {
	if concurrency <= 0 {
		concurrency = 3
	}
	return &Scraper{
		fetcher:     fetcher,
		maxChars:    maxChars,
		concurrency: concurrency,
		log:         zerolog.Nop(),
	}
}

// WithLogger sets the scraper logger.
func (s *Scraper) WithLogger(log zerolog.Logger) *Scraper {
	s.log = log
	return s
}

// WithMetrics sets the metrics sink.
func (s *Scraper) WithMetrics(m *metrics.Metrics) *Scraper {
	s.metrics = m
	return s
}

// Scrape fetches every URL. Pages and failures are both returned in the order
// of urls; one URL failing never affects the others.
func (s *Scraper) Scrape(ctx context.Context, urls []string) ([]Page, []*FetchError) {
	texts := make([]string, len(urls))
	failures := make([]*FetchError, len(urls))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, u := range urls {
		g.Go(func() error {
			text, err := s.fetcher.Fetch(ctx, u)
			if err != nil {
				var fe *FetchError
				if !errors.As(err, &fe) {
					fe = &FetchError{Kind: FailureProcess, URL: u, Err: err}
				}
				failures[i] = fe
				s.metrics.RecordFetch(fe.Kind.String())
				s.log.Warn().Err(err).Str("url", u).Str("kind", fe.Kind.String()).Msg("fetch failed")
				return nil
			}
			texts[i] = truncateRunes(text, s.maxChars)
			s.metrics.RecordFetch("ok")
			s.log.Debug().Str("url", u).Int("chars", len(texts[i])).Msg("fetched")
			return nil
		})
	}
	_ = g.Wait()

	var pages []Page
	var errs []*FetchError
	for i, u := range urls {
		if failures[i] != nil {
			errs = append(errs, failures[i])
			continue
		}
		pages = append(pages, Page{URL: u, Text: texts[i]})
	}
	return pages, errs
}
