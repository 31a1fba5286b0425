package rag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
)

const (
	chromemCollection = "searchy"
	// The generation is exported as an empty marker collection named
	// chromemGenerationPrefix + id, since collection metadata is not readable
	// after import.
	chromemGenerationPrefix = "searchy.generation."
)

// ChromemIndex keeps vectors in a chromem-go collection. Documents are keyed by
// ordinal and distances are reported as 1 - cosine similarity.
type ChromemIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	dim        int
	gen        uuid.UUID
}

// precomputed rejects embedding requests; vectors always arrive embedded.
func precomputed(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromem index expects precomputed embeddings")
}

// NewChromemIndex creates an empty in-memory collection.
func NewChromemIndex(dim int) (*ChromemIndex, error) {
	db := chromem.NewDB()
	col, err := db.GetOrCreateCollection(chromemCollection, nil, precomputed)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	return &ChromemIndex{db: db, collection: col, dim: dim}, nil
}

// LoadChromemIndex imports a collection exported by Save.
func LoadChromemIndex(path string, dim int) (*ChromemIndex, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db := chromem.NewDB()
	if err := db.ImportFromFile(path, ""); err != nil {
		return nil, fmt.Errorf("failed to import chromem index: %w", err)
	}
	col := db.GetCollection(chromemCollection, precomputed)
	if col == nil {
		return nil, fmt.Errorf("chromem index has no %q collection", chromemCollection)
	}

	idx := &ChromemIndex{db: db, collection: col, dim: dim}
	for name := range db.ListCollections() {
		raw, ok := strings.CutPrefix(name, chromemGenerationPrefix)
		if !ok {
			continue
		}
		gen, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("chromem index has invalid generation %q: %w", raw, err)
		}
		idx.gen = gen
	}
	return idx, nil
}

// Backend returns BackendChromem.
func (c *ChromemIndex) Backend() string { return BackendChromem }

// Dimension returns the vector size.
func (c *ChromemIndex) Dimension() int { return c.dim }

// Generation returns the ingest generation, or uuid.Nil if none was recorded.
func (c *ChromemIndex) Generation() uuid.UUID { return c.gen }

// SetGeneration replaces the generation marker collection.
func (c *ChromemIndex) SetGeneration(id uuid.UUID) {
	if c.gen != uuid.Nil {
		_ = c.db.DeleteCollection(chromemGenerationPrefix + c.gen.String())
	}
	c.gen = id
	if id != uuid.Nil {
		// In-memory creation only fails on an empty name.
		_, _ = c.db.GetOrCreateCollection(chromemGenerationPrefix+id.String(), nil, precomputed)
	}
}

// Len returns the number of stored documents.
func (c *ChromemIndex) Len() int { return c.collection.Count() }

// Add stores vectors under consecutive ordinal IDs.
func (c *ChromemIndex) Add(ctx context.Context, vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	base := c.collection.Count()
	docs := make([]chromem.Document, len(vectors))
	for i, v := range vectors {
		if len(v) != c.dim {
			return fmt.Errorf("vector %d has dimension %d, index expects %d", i, len(v), c.dim)
		}
		docs[i] = chromem.Document{
			ID:        strconv.Itoa(base + i),
			Embedding: v,
		}
	}
	if err := c.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Search returns up to k neighbours ordered by ascending cosine distance.
// Hits whose ID is not an ordinal get Ordinal -1.
func (c *ChromemIndex) Search(ctx context.Context, query []float32, k int) ([]Neighbor, error) {
	if len(query) != c.dim {
		return nil, fmt.Errorf("query has dimension %d, index expects %d", len(query), c.dim)
	}
	k = min(k, c.collection.Count())
	if k <= 0 {
		return nil, nil
	}

	results, err := c.collection.QueryEmbedding(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query failed: %w", err)
	}

	hits := make([]Neighbor, 0, len(results))
	for _, r := range results {
		ordinal, err := strconv.Atoi(r.ID)
		if err != nil {
			ordinal = -1
		}
		hits = append(hits, Neighbor{Ordinal: ordinal, Distance: 1 - r.Similarity})
	}
	return hits, nil
}

// Save exports the collection, uncompressed and unencrypted.
func (c *ChromemIndex) Save(path string) error {
	if err := c.db.ExportToFile(path, false, ""); err != nil {
		return fmt.Errorf("failed to export chromem index: %w", err)
	}
	return nil
}

var _ Index = (*ChromemIndex)(nil)
