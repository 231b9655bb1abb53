package service

import (
	"context"
	"errors"

	"estate-assistant/internal/model"
)

var (
	// ErrGeneratorDisabled is returned when no text-generation provider is configured
	ErrGeneratorDisabled = errors.New("text generation is not configured")
	// ErrEmbedderDisabled is returned when no embedding provider is configured
	ErrEmbedderDisabled = errors.New("embeddings are not configured")
)

// Generator produces free-form assistant text from a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Embedder turns text into vectors for semantic search
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// PropertyStore is the relational property store
type PropertyStore interface {
	FindProperties(ctx context.Context, filters model.FilterSet, limit int) ([]model.PropertyRecord, error)
	GetPropertiesByIDs(ctx context.Context, ids []string) ([]model.PropertyRecord, error)
}

// VectorMatch is one hit from the vector index
type VectorMatch struct {
	ID    string  `db:"id"`
	Score float64 `db:"score"`
}

// VectorIndex finds the properties nearest to a query vector
type VectorIndex interface {
	Query(ctx context.Context, vector []float32, topK int) ([]VectorMatch, error)
}

// ConversationLog persists finished exchanges
type ConversationLog interface {
	SaveConversation(ctx context.Context, entry model.ConversationLogEntry) error
}

// disabledGenerator answers every call with ErrGeneratorDisabled
type disabledGenerator struct{}

func (disabledGenerator) Generate(context.Context, string) (string, error) {
	return "", ErrGeneratorDisabled
}

// disabledEmbedder answers every call with ErrEmbedderDisabled
type disabledEmbedder struct{}

func (disabledEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, ErrEmbedderDisabled
}

func (disabledEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, ErrEmbedderDisabled
}
