package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"estate-assistant/internal/config"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIClient talks to any OpenAI-compatible endpoint for chat completions
// and embeddings.
type OpenAIClient struct {
	client     openai.Client
	config     *config.OpenAIConfig
	chatExtra  []option.RequestOption
	embedExtra []option.RequestOption
}

// NewOpenAIClient builds a client from configuration. Extra body settings
// must be JSON objects; their top-level keys are merged into each request.
func NewOpenAIClient(cfg *config.OpenAIConfig) (*OpenAIClient, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(time.Duration(cfg.Timeout) * time.Second),
	}
	if cfg.APIBase != "" {
		opts = append(opts, option.WithBaseURL(cfg.APIBase))
	}

	chatExtra, err := extraBodyOptions(cfg.ChatExtraBody)
	if err != nil {
		return nil, fmt.Errorf("invalid OPENAI_CHAT_EXTRA_BODY: %w", err)
	}
	embedExtra, err := extraBodyOptions(cfg.EmbeddingExtraBody)
	if err != nil {
		return nil, fmt.Errorf("invalid OPENAI_EMBEDDING_EXTRA_BODY: %w", err)
	}

	return &OpenAIClient{
		client:     openai.NewClient(opts...),
		config:     cfg,
		chatExtra:  chatExtra,
		embedExtra: embedExtra,
	}, nil
}

// IsEnabled returns whether the client is configured and ready
func (c *OpenAIClient) IsEnabled() bool {
	return c != nil && c.config.Enabled
}

// Generate sends prompt as a single user message and returns the reply text
func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	if !c.IsEnabled() {
		return "", ErrGeneratorDisabled
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.config.ChatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature:         openai.Float(c.config.ChatTemperature),
		TopP:                openai.Float(c.config.ChatTopP),
		MaxCompletionTokens: openai.Int(int64(c.config.ChatMaxTokens)),
	}

	resp, err := c.client.Chat.Completions.New(ctx, params, c.chatExtra...)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in chat completion response")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty chat completion content")
	}
	return text, nil
}

// Embed returns the embedding of a single text
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in chunks of the configured batch size, preserving
// input order.
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if !c.IsEnabled() {
		return nil, ErrEmbedderDisabled
	}
	if len(texts) == 0 {
		return nil, nil
	}

	batchSize := c.config.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := c.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch %d-%d: %w", start, end, err)
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (c *OpenAIClient) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(c.config.EmbeddingModel),
	}
	if c.config.EmbeddingDimensions > 0 {
		params.Dimensions = openai.Int(int64(c.config.EmbeddingDimensions))
	}

	resp, err := c.client.Embeddings.New(ctx, params, c.embedExtra...)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vectors[d.Index] = toFloat32(d.Embedding)
	}
	return vectors, nil
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

// extraBodyOptions turns a JSON object into per-key body overrides
func extraBodyOptions(raw string) ([]option.RequestOption, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, err
	}
	opts := make([]option.RequestOption, 0, len(fields))
	for k, v := range fields {
		opts = append(opts, option.WithJSONSet(k, v))
	}
	return opts, nil
}
