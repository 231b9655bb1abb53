package service

import (
	"context"
	"fmt"
	"sync"

	"estate-assistant/internal/model"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// EmbeddingRepository stores property vectors
type EmbeddingRepository interface {
	ListPropertiesWithoutEmbedding(ctx context.Context, limit int) ([]model.PropertyRecord, error)
	BatchUpdateEmbeddings(ctx context.Context, items []model.EmbeddingItem) (int, []string)
}

// EmbeddingService fills in missing property vectors
type EmbeddingService struct {
	repo        EmbeddingRepository
	embedder    Embedder
	batchSize   int
	concurrency int
	log         zerolog.Logger
}

// NewEmbeddingService creates a backfill service. batchSize texts are sent
// per embedding request and at most concurrency requests run at once.
func NewEmbeddingService(repo EmbeddingRepository, embedder Embedder, batchSize, concurrency int, log zerolog.Logger) *EmbeddingService {
	if embedder == nil {
		embedder = disabledEmbedder{}
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &EmbeddingService{
		repo:        repo,
		embedder:    embedder,
		batchSize:   batchSize,
		concurrency: concurrency,
		log:         log,
	}
}

// UpdateEmbeddings stores precomputed vectors
func (s *EmbeddingService) UpdateEmbeddings(ctx context.Context, items []model.EmbeddingItem) (int, []string) {
	return s.repo.BatchUpdateEmbeddings(ctx, items)
}

// Backfill embeds up to limit properties that have no vector yet. An
// embedding failure aborts the run; per-row write failures are reported in
// the response.
func (s *EmbeddingService) Backfill(ctx context.Context, limit int) (*model.BackfillResponse, error) {
	properties, err := s.repo.ListPropertiesWithoutEmbedding(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list properties: %w", err)
	}

	resp := &model.BackfillResponse{Scanned: len(properties)}
	if len(properties) == 0 {
		return resp, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for start := 0; start < len(properties); start += s.batchSize {
		end := min(start+s.batchSize, len(properties))
		batch := properties[start:end]

		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, p := range batch {
				texts[i] = p.EmbeddingText()
			}

			vectors, err := s.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("failed to embed batch at offset %d: %w", start, err)
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(batch))
			}

			items := make([]model.EmbeddingItem, len(batch))
			for i, p := range batch {
				items[i] = model.EmbeddingItem{PropertyID: p.ID, Embedding: vectors[i]}
			}
			success, errs := s.repo.BatchUpdateEmbeddings(gctx, items)

			mu.Lock()
			resp.Success += success
			resp.Failed += len(items) - success
			resp.Errors = append(resp.Errors, errs...)
			mu.Unlock()

			s.log.Debug().Int("offset", start).Int("success", success).Msg("embedded batch")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return resp, err
	}

	s.log.Info().
		Int("scanned", resp.Scanned).
		Int("success", resp.Success).
		Int("failed", resp.Failed).
		Msg("embedding backfill finished")
	return resp, nil
}
