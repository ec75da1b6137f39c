package embedder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/quizmentor/quizmentor/internal/domain/dedup"
	"github.com/quizmentor/quizmentor/internal/infra/llm/chatgpt"
)

// ChatGPTEmbedder calls an OpenAI-compatible embeddings API.
type ChatGPTEmbedder struct {
	client *chatgpt.Client
	model  string
}

// NewChatGPTEmbedder constructs an embedder backed by the chatgpt client.
func NewChatGPTEmbedder(client *chatgpt.Client, model string) *ChatGPTEmbedder {
	return &ChatGPTEmbedder{
		client: client,
		model:  strings.TrimSpace(model),
	}
}

// Embed requests an embedding for the given text.
func (e *ChatGPTEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	input := strings.TrimSpace(text)
	if input == "" {
		return nil, errors.New("cannot embed empty text")
	}
	resp, err := e.client.CreateEmbedding(ctx, chatgpt.EmbeddingRequest{
		Model: e.model,
		Input: input,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("embedding response empty")
	}
	vector := make([]float32, len(resp.Data[0].Embedding))
	copy(vector, resp.Data[0].Embedding)
	return vector, nil
}

var _ dedup.Embedder = (*ChatGPTEmbedder)(nil)
