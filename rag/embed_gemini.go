package rag

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const (
	defaultGeminiEmbeddingModel = "text-embedding-004"
	defaultGeminiDimension      = 768
	geminiMaxBatch              = 100
)

// GeminiEmbedder calls the Gemini embedContent API.
type GeminiEmbedder struct {
	client    *genai.Client
	model     string
	dimension int
	batchSize int
}

// NewGeminiEmbedder creates an embedder for the Gemini API.
func NewGeminiEmbedder(apiKey, model string, dim, batchSize int) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}
	if model == "" {
		model = defaultGeminiEmbeddingModel
	}
	if dim <= 0 {
		dim = defaultGeminiDimension
	}
	if batchSize <= 0 || batchSize > geminiMaxBatch {
		batchSize = geminiMaxBatch
	}
	return &GeminiEmbedder{client: client, model: model, dimension: dim, batchSize: batchSize}, nil
}

// Name returns the embedding space identifier.
func (e *GeminiEmbedder) Name() string {
	return fmt.Sprintf("gemini/%s-%d", e.model, e.dimension)
}

// Dimension returns the vector size.
func (e *GeminiEmbedder) Dimension() int { return e.dimension }

// Embed requests embeddings in batches, keeping input order.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	dim := int32(e.dimension)
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))

		contents := make([]*genai.Content, 0, end-start)
		for _, t := range texts[start:end] {
			contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
		}

		resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
			OutputDimensionality: &dim,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini embeddings failed: %w", err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini embeddings returned %d vectors for %d inputs", len(resp.Embeddings), end-start)
		}
		for _, emb := range resp.Embeddings {
			vec := emb.Values
			// Reduced-dimension outputs are not normalised by the API.
			normalize(vec)
			out = append(out, vec)
		}
	}
	return out, nil
}
