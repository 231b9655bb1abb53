package service

import (
	"context"
	"regexp"
	"strings"
)

// IsNVIDIAProvider checks if the base URL points at NVIDIA's hosted API
func IsNVIDIAProvider(baseURL string) bool {
	return strings.Contains(baseURL, "nvidia.com")
}

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// NVIDIAGenerator wraps an OpenAI-compatible client for NVIDIA-hosted
// reasoning models, which may inline their chain of thought in the content.
type NVIDIAGenerator struct {
	client *OpenAIClient
}

// NewNVIDIAGenerator creates a generator for NVIDIA-hosted models
func NewNVIDIAGenerator(client *OpenAIClient) *NVIDIAGenerator {
	return &NVIDIAGenerator{client: client}
}

// Generate returns the model's answer with any reasoning block removed
func (g *NVIDIAGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	text, err := g.client.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	return StripReasoning(text), nil
}

// StripReasoning drops <think>...</think> blocks and an unterminated leading
// </think> prefix.
func StripReasoning(text string) string {
	text = thinkBlock.ReplaceAllString(text, "")
	if i := strings.Index(text, "</think>"); i >= 0 {
		text = text[i+len("</think>"):]
	}
	return strings.TrimSpace(text)
}
