// Package rag embeds documents, persists a nearest-neighbour index and answers
// similarity queries against it.
//
// Information Hiding:
// - Embedding providers hidden behind Embedder
// - Index layout and distance computation hidden behind Index
// - Index/metadata pairing and readiness hidden inside Store
package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ErrEmbedderUnavailable is returned when no embedding model can be constructed.
var ErrEmbedderUnavailable = errors.New("embedding model unavailable")

// Embedder maps text to fixed-dimension vectors.
type Embedder interface {
	// Name identifies the embedding space; vectors from different names are not comparable.
	Name() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedderConfig selects and configures an embedding provider.
type EmbedderConfig struct {
	Provider  string // local, openai, gemini
	Model     string
	Dimension int
	APIKey    string
	BatchSize int
}

// NewEmbedder builds the configured embedder. Construction failures wrap
// ErrEmbedderUnavailable.
func NewEmbedder(cfg EmbedderConfig) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "local":
		return NewLocalEmbedder(cfg.Dimension), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: openai embeddings need an API key", ErrEmbedderUnavailable)
		}
		return NewOpenAIEmbedder(cfg.APIKey, cfg.Model, cfg.Dimension, cfg.BatchSize), nil
	case "gemini", "google":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: gemini embeddings need an API key", ErrEmbedderUnavailable)
		}
		e, err := NewGeminiEmbedder(cfg.APIKey, cfg.Model, cfg.Dimension, cfg.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmbedderUnavailable, err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", ErrEmbedderUnavailable, cfg.Provider)
	}
}

// DefaultLocalDimension is the vector size of the hashing embedder.
const DefaultLocalDimension = 384

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// LocalEmbedder is an offline feature-hashing embedder over word unigrams and
// bigrams. It needs no model files and is deterministic across runs.
type LocalEmbedder struct {
	dimension int
}

// NewLocalEmbedder creates a hashing embedder. dim <= 0 selects the default.
func NewLocalEmbedder(dim int) *LocalEmbedder {
	if dim <= 0 {
		dim = DefaultLocalDimension
	}
	return &LocalEmbedder{dimension: dim}
}

// Name returns the embedding space identifier.
func (e *LocalEmbedder) Name() string {
	return fmt.Sprintf("local-hash-%d", e.dimension)
}

// Dimension returns the vector size.
func (e *LocalEmbedder) Dimension() int { return e.dimension }

// Embed hashes every text into a unit vector.
func (e *LocalEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embedOne(text)
	}
	return out, nil
}

func (e *LocalEmbedder) embedOne(text string) []float32 {
	vec := make([]float32, e.dimension)
	tokens := tokenPattern.FindAllString(strings.ToLower(text), -1)

	add := func(feature string, weight float32) {
		h := xxhash.Sum64String(feature)
		idx := int(h % uint64(e.dimension))
		// The top bit picks the sign so collisions tend to cancel.
		if h>>63 == 1 {
			weight = -weight
		}
		vec[idx] += weight
	}

	for i, tok := range tokens {
		add(tok, 1)
		if i > 0 {
			add(tokens[i-1]+" "+tok, 0.5)
		}
	}

	normalize(vec)
	return vec
}

// normalize scales v to unit length in place. Zero vectors are left alone.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}
