package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/quizmentor/quizmentor/internal/domain/dedup"
	"github.com/quizmentor/quizmentor/internal/infra/llm/chatgpt"
	"github.com/quizmentor/quizmentor/pkg/metrics"
)

const classifyPrompt = `You are a fact-checking assistant for a quiz platform. Decide whether the user's question describes something true or false. Respond with JSON only: {"label": true|false, "explanation": "<one or two sentences>"}.`

const defaultMaxContextTokens = 2048

// ChatGPTClassifier asks the chat model for a truth label and explanation.
// Optional context material (lesson content) is token-bounded before it is
// attached to the prompt.
type ChatGPTClassifier struct {
	client           *chatgpt.Client
	model            string
	temperature      float32
	maxContextTokens int
	encoder          *tiktoken.Tiktoken
	logger           *slog.Logger
}

// NewChatGPTClassifier constructs the classifier.
func NewChatGPTClassifier(client *chatgpt.Client, model string, temperature float32, maxContextTokens int, logger *slog.Logger) *ChatGPTClassifier {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		logger.Warn("tiktoken encoding unavailable, context will not be trimmed", "error", err)
		encoder = nil
	}
	return &ChatGPTClassifier{
		client:           client,
		model:            model,
		temperature:      temperature,
		maxContextTokens: maxContextTokens,
		encoder:          encoder,
		logger:           logger.With("component", "classifier.chatgpt"),
	}
}

// Classify returns the model's verdict for the question.
func (c *ChatGPTClassifier) Classify(ctx context.Context, question, contextText string) (dedup.Classification, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return dedup.Classification{}, errors.New("cannot classify empty question")
	}

	user := "Question: " + question
	if trimmed := c.trimContext(contextText); trimmed != "" {
		user = "Context:\n" + trimmed + "\n\n" + user
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatgpt.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []chatgpt.Message{
			{Role: "system", Content: classifyPrompt},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return dedup.Classification{}, fmt.Errorf("classification request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return dedup.Classification{}, errors.New("classification returned no choices")
	}

	verdict, err := parseVerdict(resp.Choices[0].Message.Content)
	if err != nil {
		return dedup.Classification{}, err
	}
	return dedup.Classification{
		Label:       verdict.Label,
		Explanation: verdict.Explanation,
		Usage: metrics.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (c *ChatGPTClassifier) trimContext(contextText string) string {
	trimmed := strings.TrimSpace(contextText)
	if trimmed == "" || c.encoder == nil {
		return trimmed
	}
	tokens := c.encoder.Encode(trimmed, nil, nil)
	if len(tokens) <= c.maxContextTokens {
		return trimmed
	}
	c.logger.Warn("classification context trimmed", "tokens", len(tokens), "limit", c.maxContextTokens)
	return c.encoder.Decode(tokens[:c.maxContextTokens])
}

type verdict struct {
	Label       bool   `json:"label"`
	Explanation string `json:"explanation"`
}

func parseVerdict(content string) (verdict, error) {
	payload := strings.TrimSpace(content)
	payload = strings.TrimPrefix(payload, "```json")
	payload = strings.TrimPrefix(payload, "```")
	payload = strings.TrimSuffix(payload, "```")
	payload = strings.TrimSpace(payload)

	var v verdict
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return verdict{}, fmt.Errorf("decode classification verdict: %w", err)
	}
	if strings.TrimSpace(v.Explanation) == "" {
		return verdict{}, errors.New("classification verdict missing explanation")
	}
	return v, nil
}

var _ dedup.Classifier = (*ChatGPTClassifier)(nil)
