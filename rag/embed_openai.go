package rag

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultOpenAIEmbeddingModel = "text-embedding-3-small"
	defaultOpenAIDimension      = 1536
	defaultEmbedBatch           = 256
)

// OpenAIEmbedder calls the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
	batchSize int
}

// NewOpenAIEmbedder creates an embedder for the OpenAI API.
func NewOpenAIEmbedder(apiKey, model string, dim, batchSize int) *OpenAIEmbedder {
	return newOpenAIEmbedder(openai.DefaultConfig(apiKey), model, dim, batchSize)
}

func newOpenAIEmbedder(config openai.ClientConfig, model string, dim, batchSize int) *OpenAIEmbedder {
	if model == "" {
		model = defaultOpenAIEmbeddingModel
	}
	if dim <= 0 {
		dim = defaultOpenAIDimension
	}
	if batchSize <= 0 {
		batchSize = defaultEmbedBatch
	}
	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(config),
		model:     model,
		dimension: dim,
		batchSize: batchSize,
	}
}

// Name returns the embedding space identifier.
func (e *OpenAIEmbedder) Name() string {
	return fmt.Sprintf("openai/%s-%d", e.model, e.dimension)
}

// Dimension returns the vector size.
func (e *OpenAIEmbedder) Dimension() int { return e.dimension }

// Embed requests embeddings in batches, keeping input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))

		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:      texts[start:end],
			Model:      openai.EmbeddingModel(e.model),
			Dimensions: e.dimension,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embeddings failed: %w", err)
		}
		if len(resp.Data) != end-start {
			return nil, fmt.Errorf("openai embeddings returned %d vectors for %d inputs", len(resp.Data), end-start)
		}
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= end-start {
				return nil, fmt.Errorf("openai embeddings returned out-of-range index %d", d.Index)
			}
			out[start+d.Index] = d.Embedding
		}
	}
	return out, nil
}
