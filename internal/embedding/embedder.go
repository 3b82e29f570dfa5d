package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/avenika/study-helper/internal/learning"
)

// OpenAIEmbedder produces unit-normalized embeddings via the OpenAI API. A
// failed request is an error, never a zero vector, so callers can abandon the
// update instead of matching against garbage.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewOpenAIEmbedder wraps a shared client. dimensions is the expected vector
// width; responses of any other width are rejected.
func NewOpenAIEmbedder(client *openai.Client, model string, dimensions int) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		client:     client,
		model:      model,
		dimensions: dimensions,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding response contained no data")
	}

	vector := resp.Data[0].Embedding
	if e.dimensions > 0 && len(vector) != e.dimensions {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d",
			learning.ErrDimensionMismatch, len(vector), e.dimensions)
	}

	return learning.Normalize(vector), nil
}
