package service

import (
	"context"
	"fmt"
	"strings"

	"estate-assistant/internal/config"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient generates assistant text with the Anthropic Messages API
type AnthropicClient struct {
	client anthropic.Client
	config *config.AnthropicConfig
}

// NewAnthropicClient creates a client; extra request options are appended,
// e.g. option.WithBaseURL in tests.
func NewAnthropicClient(cfg *config.AnthropicConfig, opts ...option.RequestOption) *AnthropicClient {
	clientOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	clientOpts = append(clientOpts, opts...)
	return &AnthropicClient{
		client: anthropic.NewClient(clientOpts...),
		config: cfg,
	}
}

// Generate sends prompt as one user message and concatenates the text blocks
// of the reply.
func (c *AnthropicClient) Generate(ctx context.Context, prompt string) (string, error) {
	if c == nil || !c.config.Enabled {
		return "", ErrGeneratorDisabled
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.config.Model),
		MaxTokens:   int64(c.config.MaxTokens),
		Temperature: anthropic.Float(c.config.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to create message: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.AsText().Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("empty message content")
	}
	return text, nil
}
