package rag

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Document is one loaded source file.
type Document struct {
	Source string
	Text   string
}

// IngestOptions controls a wholesale rebuild of the store.
type IngestOptions struct {
	Source       string // directory (all **/*.txt) or a single file
	ChunkSize    int
	ChunkOverlap int
	Length       LengthFunc // nil counts runes
}

// IngestReport summarises a completed ingestion.
type IngestReport struct {
	Documents int
	Chunks    int
	Dimension int
	Backend   string
	Duration  time.Duration
}

// LoadDocuments reads source. A directory contributes every .txt file beneath
// it in lexical order; a file contributes itself.
func LoadDocuments(source string) ([]Document, error) {
	if strings.TrimSpace(source) == "" {
		return nil, errors.New("source path is empty")
	}
	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("cannot read source: %w", err)
	}

	var paths []string
	if info.IsDir() {
		err := filepath.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".txt") {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", source, err)
		}
		sort.Strings(paths)
	} else {
		paths = []string{source}
	}

	docs := make([]Document, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		docs = append(docs, Document{Source: p, Text: string(data)})
	}
	return docs, nil
}

// Ingest loads, splits and embeds the source, builds a fresh index and replaces
// the persisted pair. Existing files are only touched once everything else has
// succeeded.
func Ingest(ctx context.Context, cfg StoreConfig, embedder Embedder, opts IngestOptions, log zerolog.Logger) (IngestReport, error) {
	start := time.Now()
	if embedder == nil {
		return IngestReport{}, ErrEmbedderUnavailable
	}

	splitter, err := NewRecursiveSplitter(opts.ChunkSize, opts.ChunkOverlap, opts.Length)
	if err != nil {
		return IngestReport{}, err
	}

	docs, err := LoadDocuments(opts.Source)
	if err != nil {
		return IngestReport{}, err
	}
	if len(docs) == 0 {
		return IngestReport{}, fmt.Errorf("no documents found in %s", opts.Source)
	}
	log.Info().Int("documents", len(docs)).Str("source", opts.Source).Msg("documents loaded")

	var records []Record
	var texts []string
	for _, doc := range docs {
		for i, chunk := range splitter.Split(doc.Text) {
			records = append(records, Record{Text: chunk, Source: doc.Source, Chunk: i})
			texts = append(texts, chunk)
		}
	}
	if len(texts) == 0 {
		return IngestReport{}, errors.New("documents produced no chunks")
	}
	log.Info().Int("chunks", len(texts)).Int("size", opts.ChunkSize).Int("overlap", opts.ChunkOverlap).Msg("documents split")

	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		return IngestReport{}, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(texts) {
		return IngestReport{}, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(texts))
	}
	log.Info().Int("vectors", len(vectors)).Str("embedder", embedder.Name()).Msg("chunks embedded")

	index, err := NewIndex(cfg.Backend, embedder.Dimension())
	if err != nil {
		return IngestReport{}, err
	}
	if err := index.Add(ctx, vectors); err != nil {
		return IngestReport{}, fmt.Errorf("failed to build index: %w", err)
	}

	gen := uuid.New()
	index.SetGeneration(gen)
	md := &Metadata{
		Version:    metadataVersion,
		Generation: gen,
		Backend:    index.Backend(),
		Embedder:   embedder.Name(),
		Dimension:  embedder.Dimension(),
		Records:    records,
	}
	if err := persistPair(cfg, index, md); err != nil {
		return IngestReport{}, err
	}

	report := IngestReport{
		Documents: len(docs),
		Chunks:    len(records),
		Dimension: embedder.Dimension(),
		Backend:   index.Backend(),
		Duration:  time.Since(start),
	}
	log.Info().
		Str("index", cfg.IndexPath()).
		Str("metadata", cfg.MetadataPath()).
		Str("generation", gen.String()).
		Dur("duration", report.Duration).
		Msg("vector store written")
	return report, nil
}

// persistPair writes both files to temporaries in the store directory and then
// renames them into place, index first. The renames are not atomic as a pair;
// a half-installed pair carries two generations and opens not ready.
func persistPair(cfg StoreConfig, index Index, md *Metadata) error {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	indexTmp := cfg.IndexPath() + ".tmp"
	metaTmp := cfg.MetadataPath() + ".tmp"
	cleanup := func() {
		os.Remove(indexTmp)
		os.Remove(metaTmp)
	}

	if err := index.Save(indexTmp); err != nil {
		cleanup()
		return err
	}
	if err := md.save(metaTmp); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(indexTmp, cfg.IndexPath()); err != nil {
		cleanup()
		return fmt.Errorf("failed to install index: %w", err)
	}
	if err := os.Rename(metaTmp, cfg.MetadataPath()); err != nil {
		cleanup()
		return fmt.Errorf("failed to install metadata: %w", err)
	}
	return nil
}
