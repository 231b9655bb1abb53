package service

import (
	"context"
	"errors"
	"fmt"

	"estate-assistant/internal/metrics"
	"estate-assistant/internal/model"
)

// ErrNoEmbedding is returned when a property has not been embedded yet
var ErrNoEmbedding = errors.New("property has no embedding")

// EmbeddingLookup reads a property's stored vector
type EmbeddingLookup interface {
	GetEmbedding(ctx context.Context, id string) ([]float32, error)
}

// SimilarProperties finds listings near a property in embedding space
type SimilarProperties struct {
	embeddings EmbeddingLookup
	gateway    *PropertySearchGateway
}

// NewSimilarProperties reuses the gateway's vector index and store
func NewSimilarProperties(embeddings EmbeddingLookup, gateway *PropertySearchGateway) *SimilarProperties {
	return &SimilarProperties{embeddings: embeddings, gateway: gateway}
}

// Similar returns up to limit properties closest to id, excluding id itself,
// in rank order.
func (s *SimilarProperties) Similar(ctx context.Context, id string, limit int) ([]model.PropertyRecord, error) {
	if limit <= 0 {
		limit = 5
	}

	vector, err := guarded(ctx, s.gateway.guard, metrics.CollaboratorStore, func(ctx context.Context) ([]float32, error) {
		return s.embeddings.GetEmbedding(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	// one extra hit makes room for the property itself
	step := s.gateway.vectorStep(ctx, vector, limit+1)
	var outcome SearchOutcome
	s.gateway.record(&outcome, s.gateway.log.With().Str("property_id", id).Logger(), step)
	if step.Status == StepFailed {
		return nil, fmt.Errorf("similar properties: %w", step.Err)
	}

	out := make([]model.PropertyRecord, 0, limit)
	for _, r := range step.Records {
		if r.ID == id {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, r)
	}
	return out, nil
}
