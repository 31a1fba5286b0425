package rag

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/premjatin/LLM-WebSearch/internal/metrics"
)

// ErrNotReady is recorded as the load error of a store that has never been ingested.
var ErrNotReady = errors.New("vector store not ready")

// ErrGenerationMismatch means the index and metadata files come from different ingests.
var ErrGenerationMismatch = errors.New("index and metadata are from different ingests")

// StoreConfig locates the persisted index/metadata pair.
type StoreConfig struct {
	Dir          string
	IndexFile    string
	MetadataFile string
	Backend      string
}

// DefaultStoreConfig returns the conventional file layout.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Dir:          "vector_store",
		IndexFile:    "vector_index.bin",
		MetadataFile: "vector_metadata.json",
		Backend:      BackendFlat,
	}
}

// IndexPath returns the index file location.
func (c StoreConfig) IndexPath() string {
	return filepath.Join(c.Dir, c.IndexFile)
}

// MetadataPath returns the metadata file location.
func (c StoreConfig) MetadataPath() string {
	return filepath.Join(c.Dir, c.MetadataFile)
}

// Result is one search hit with its source text.
type Result struct {
	Distance float32
	Text     string
	Source   string
}

// Store pairs an index with its metadata. It is read-only once opened and safe
// for concurrent searches.
type Store struct {
	cfg      StoreConfig
	embedder Embedder
	index    Index
	records  []Record
	loadErr  error
	log      zerolog.Logger
	metrics  *metrics.Metrics
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the store logger.
func WithStoreLogger(log zerolog.Logger) StoreOption {
	return func(s *Store) { s.log = log }
}

// WithStoreMetrics sets the metrics sink.
func WithStoreMetrics(m *metrics.Metrics) StoreOption {
	return func(s *Store) { s.metrics = m }
}

// Open loads the persisted pair described by cfg. A nil embedder is fatal and
// returns ErrEmbedderUnavailable. Any problem with the files yields an empty,
// not-ready store whose LoadError explains why.
func Open(ctx context.Context, cfg StoreConfig, embedder Embedder, opts ...StoreOption) (*Store, error) {
	if embedder == nil {
		return nil, ErrEmbedderUnavailable
	}

	s := &Store{cfg: cfg, embedder: embedder, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}

	start := time.Now()
	index, records, err := s.load()
	if err != nil {
		s.loadErr = err
		s.log.Warn().Err(err).
			Str("index", cfg.IndexPath()).
			Str("metadata", cfg.MetadataPath()).
			Msg("vector store unavailable, starting empty")
		s.metrics.SetStoreSize(0)
		return s, nil
	}

	s.index = index
	s.records = records
	s.metrics.SetStoreSize(len(records))
	s.log.Info().
		Int("vectors", len(records)).
		Int("dimension", index.Dimension()).
		Str("backend", index.Backend()).
		Dur("duration", time.Since(start)).
		Msg("vector store loaded")
	return s, nil
}

func (s *Store) load() (Index, []Record, error) {
	md, err := loadMetadata(s.cfg.MetadataPath())
	if err != nil {
		return nil, nil, fmt.Errorf("metadata: %w", err)
	}
	if md.Embedder != s.embedder.Name() {
		return nil, nil, fmt.Errorf("store was built with embedder %q, configured embedder is %q", md.Embedder, s.embedder.Name())
	}
	if md.Dimension != s.embedder.Dimension() {
		return nil, nil, fmt.Errorf("store dimension %d does not match embedder dimension %d", md.Dimension, s.embedder.Dimension())
	}

	index, err := LoadIndex(md.Backend, s.cfg.IndexPath(), md.Dimension)
	if err != nil {
		return nil, nil, fmt.Errorf("index: %w", err)
	}
	if index.Generation() != md.Generation {
		return nil, nil, fmt.Errorf("%w: index generation %s, metadata generation %s", ErrGenerationMismatch, index.Generation(), md.Generation)
	}
	if index.Dimension() != md.Dimension {
		return nil, nil, fmt.Errorf("index dimension %d does not match metadata dimension %d", index.Dimension(), md.Dimension)
	}
	if index.Len() != len(md.Records) {
		return nil, nil, fmt.Errorf("index holds %d vectors but metadata holds %d records", index.Len(), len(md.Records))
	}
	if len(md.Records) == 0 {
		return nil, nil, ErrNotReady
	}
	return index, md.Records, nil
}

// IsReady reports whether the index, embedder and non-empty metadata are all loaded.
func (s *Store) IsReady() bool {
	return s != nil && s.embedder != nil && s.index != nil && len(s.records) > 0
}

// LoadError returns why the store is not ready, or nil.
func (s *Store) LoadError() error {
	return s.loadErr
}

// Len returns the number of searchable records.
func (s *Store) Len() int {
	return len(s.records)
}

// Embedder returns the embedder the store queries with.
func (s *Store) Embedder() Embedder {
	return s.embedder
}

// Search returns up to k records nearest to query, closest first. A store that
// is not ready returns no results and no error.
func (s *Store) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if !s.IsReady() || k <= 0 {
		return nil, nil
	}

	results, err := s.search(ctx, query, k)
	s.metrics.RecordSearch(err)
	return results, err
}

func (s *Store) search(ctx context.Context, query string, k int) ([]Result, error) {
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vectors))
	}

	hits, err := s.index.Search(ctx, vectors[0], k)
	if err != nil {
		return nil, fmt.Errorf("index search failed: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		if h.Ordinal < 0 || h.Ordinal >= len(s.records) {
			s.log.Warn().Int("ordinal", h.Ordinal).Int("records", len(s.records)).Msg("search returned out-of-range ordinal, skipping")
			continue
		}
		rec := s.records[h.Ordinal]
		results = append(results, Result{Distance: h.Distance, Text: rec.Text, Source: rec.Source})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}
