package corrector

import (
	"context"
	"log/slog"
	"strings"

	"github.com/quizmentor/quizmentor/internal/domain/dedup"
	"github.com/quizmentor/quizmentor/internal/infra/llm/chatgpt"
)

const correctionPrompt = "Rewrite the user's text as a single well-formed question. Fix grammar, capitalization and punctuation. Do not change the meaning. Reply with the rewritten question only."

// ChatGPTCorrector rewrites raw text into well-formed prose. It fails open:
// any provider error is logged and the input comes back unchanged, so a
// broken grammar model never blocks the pipeline.
type ChatGPTCorrector struct {
	client      *chatgpt.Client
	model       string
	temperature float32
	logger      *slog.Logger
}

// NewChatGPTCorrector constructs the corrector.
func NewChatGPTCorrector(client *chatgpt.Client, model string, temperature float32, logger *slog.Logger) *ChatGPTCorrector {
	return &ChatGPTCorrector{
		client:      client,
		model:       model,
		temperature: temperature,
		logger:      logger.With("component", "corrector.chatgpt"),
	}
}

// Correct returns the rewritten text, or the input when the provider fails.
func (c *ChatGPTCorrector) Correct(ctx context.Context, text string) string {
	input := strings.TrimSpace(text)
	if input == "" {
		return text
	}
	resp, err := c.client.CreateChatCompletion(ctx, chatgpt.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []chatgpt.Message{
			{Role: "system", Content: correctionPrompt},
			{Role: "user", Content: input},
		},
	})
	if err != nil {
		c.logger.Warn("grammar correction failed, using raw text", "error", err)
		return text
	}
	if len(resp.Choices) == 0 {
		c.logger.Warn("grammar correction returned no choices, using raw text")
		return text
	}
	corrected := strings.TrimSpace(resp.Choices[0].Message.Content)
	if corrected == "" {
		return text
	}
	return corrected
}

var _ dedup.Corrector = (*ChatGPTCorrector)(nil)

// PassthroughCorrector skips grammar correction entirely; used when no LLM
// is configured.
type PassthroughCorrector struct{}

// Correct returns the input unchanged.
func (PassthroughCorrector) Correct(_ context.Context, text string) string {
	return text
}

var _ dedup.Corrector = PassthroughCorrector{}
