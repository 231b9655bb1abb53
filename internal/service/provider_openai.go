package service

import (
	"fmt"
	"strings"

	"estate-assistant/internal/config"

	"github.com/rs/zerolog"
)

// IsOpenAIProvider checks if the base URL is OpenAI's own API
func IsOpenAIProvider(baseURL string) bool {
	return baseURL == "" || strings.Contains(baseURL, "api.openai.com")
}

// Providers bundles the configured AI collaborators
type Providers struct {
	Generator Generator
	Embedder  Embedder
}

// NewProviders selects the text generator and embedder from configuration.
// Missing credentials yield disabled collaborators instead of an error so the
// assistant still answers structured searches.
func NewProviders(cfg *config.Config, log zerolog.Logger) (*Providers, error) {
	p := &Providers{
		Generator: disabledGenerator{},
		Embedder:  disabledEmbedder{},
	}

	var openaiClient *OpenAIClient
	if cfg.OpenAI.Enabled {
		client, err := NewOpenAIClient(&cfg.OpenAI)
		if err != nil {
			return nil, err
		}
		openaiClient = client
		p.Embedder = client
		log.Info().
			Str("api_base", cfg.OpenAI.APIBase).
			Str("embedding_model", cfg.OpenAI.EmbeddingModel).
			Int("embedding_dimensions", cfg.OpenAI.EmbeddingDimensions).
			Msg("embedding client initialized")
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set, semantic search and embedding backfill are disabled")
	}

	switch cfg.LLM.Provider {
	case "anthropic":
		if !cfg.Anthropic.Enabled {
			log.Warn().Msg("ANTHROPIC_API_KEY not set, free-form replies are disabled")
			return p, nil
		}
		p.Generator = NewAnthropicClient(&cfg.Anthropic)
		log.Info().Str("model", cfg.Anthropic.Model).Msg("anthropic generator initialized")
	case "openai", "nvidia":
		if openaiClient == nil {
			log.Warn().Msg("OPENAI_API_KEY not set, free-form replies are disabled")
			return p, nil
		}
		if cfg.LLM.Provider == "nvidia" || IsNVIDIAProvider(cfg.OpenAI.APIBase) {
			p.Generator = NewNVIDIAGenerator(openaiClient)
			log.Info().Str("model", cfg.OpenAI.ChatModel).Msg("nvidia generator initialized")
		} else {
			p.Generator = openaiClient
			log.Info().
				Str("model", cfg.OpenAI.ChatModel).
				Bool("compatible_endpoint", !IsOpenAIProvider(cfg.OpenAI.APIBase)).
				Msg("openai generator initialized")
		}
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLM.Provider)
	}
	return p, nil
}
