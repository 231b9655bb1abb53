package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"estate-assistant/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbeddingRepo struct {
	mu        sync.Mutex
	pending   []model.PropertyRecord
	listErr   error
	failIDs   map[string]bool
	stored    map[string][]float32
	lastLimit int
}

func (f *fakeEmbeddingRepo) ListPropertiesWithoutEmbedding(_ context.Context, limit int) ([]model.PropertyRecord, error) {
	f.lastLimit = limit
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.pending, nil
}

func (f *fakeEmbeddingRepo) BatchUpdateEmbeddings(_ context.Context, items []model.EmbeddingItem) (int, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stored == nil {
		f.stored = make(map[string][]float32)
	}
	success := 0
	var errs []string
	for _, item := range items {
		if f.failIDs[item.PropertyID] {
			errs = append(errs, fmt.Sprintf("property_id %s: rejected", item.PropertyID))
			continue
		}
		f.stored[item.PropertyID] = item.Embedding
		success++
	}
	return success, errs
}

func TestEmbeddingService_Backfill(t *testing.T) {
	repo := &fakeEmbeddingRepo{failIDs: map[string]bool{"p4": true}}
	for i := 1; i <= 5; i++ {
		repo.pending = append(repo.pending, newRecord(fmt.Sprintf("p%d", i), withCity("Pune")))
	}
	embedder := &fakeEmbedder{}
	svc := NewEmbeddingService(repo, embedder, 2, 2, nopLogger())

	resp, err := svc.Backfill(context.Background(), 100)
	require.NoError(t, err)

	assert.Equal(t, 100, repo.lastLimit)
	assert.Equal(t, 5, resp.Scanned)
	assert.Equal(t, 4, resp.Success)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, []string{"property_id p4: rejected"}, resp.Errors)

	sizes := make([]int, 0, len(embedder.batches))
	for _, b := range embedder.batches {
		sizes = append(sizes, len(b))
	}
	sort.Ints(sizes)
	assert.Equal(t, []int{1, 2, 2}, sizes)
	assert.Contains(t, embedder.batches[0][0], "Located in Pune")

	stored := make([]string, 0, len(repo.stored))
	for id := range repo.stored {
		stored = append(stored, id)
	}
	sort.Strings(stored)
	assert.Equal(t, []string{"p1", "p2", "p3", "p5"}, stored)
}

func TestEmbeddingService_BackfillNothingPending(t *testing.T) {
	embedder := &fakeEmbedder{}
	svc := NewEmbeddingService(&fakeEmbeddingRepo{}, embedder, 10, 1, nopLogger())

	resp, err := svc.Backfill(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, &model.BackfillResponse{}, resp)
	assert.Empty(t, embedder.batches)
}

func TestEmbeddingService_BackfillErrors(t *testing.T) {
	t.Run("listing fails", func(t *testing.T) {
		svc := NewEmbeddingService(&fakeEmbeddingRepo{listErr: errBoom}, &fakeEmbedder{}, 10, 1, nopLogger())
		_, err := svc.Backfill(context.Background(), 10)
		assert.ErrorIs(t, err, errBoom)
	})

	t.Run("embedding fails", func(t *testing.T) {
		repo := &fakeEmbeddingRepo{pending: []model.PropertyRecord{newRecord("p1")}}
		svc := NewEmbeddingService(repo, &fakeEmbedder{batchErr: errBoom}, 10, 1, nopLogger())
		_, err := svc.Backfill(context.Background(), 10)
		assert.ErrorIs(t, err, errBoom)
		assert.Empty(t, repo.stored)
	})

	t.Run("no embedder configured", func(t *testing.T) {
		repo := &fakeEmbeddingRepo{pending: []model.PropertyRecord{newRecord("p1")}}
		svc := NewEmbeddingService(repo, nil, 10, 1, nopLogger())
		_, err := svc.Backfill(context.Background(), 10)
		assert.ErrorIs(t, err, ErrEmbedderDisabled)
	})
}

func TestEmbeddingService_UpdateEmbeddings(t *testing.T) {
	repo := &fakeEmbeddingRepo{}
	svc := NewEmbeddingService(repo, nil, 0, 0, nopLogger())

	success, errs := svc.UpdateEmbeddings(context.Background(), []model.EmbeddingItem{
		{PropertyID: "p1", Embedding: []float32{1, 2}},
	})
	assert.Equal(t, 1, success)
	assert.Empty(t, errs)
	assert.Equal(t, []float32{1, 2}, repo.stored["p1"])
}
