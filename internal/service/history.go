package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"estate-assistant/internal/model"
	"estate-assistant/internal/session"
)

const turnsKeyPrefix = "turns:"

// HistoryStore keeps each user's ordered turns, dropping the oldest once
// more than limit are stored.
type HistoryStore struct {
	store session.Store
	ttl   time.Duration
	limit int
}

// NewHistoryStore creates a history store; limit <= 0 keeps every turn
func NewHistoryStore(store session.Store, ttl time.Duration, limit int) *HistoryStore {
	return &HistoryStore{store: store, ttl: ttl, limit: limit}
}

// Get returns the user's turns, oldest first
func (h *HistoryStore) Get(ctx context.Context, userID string) ([]model.Turn, error) {
	data, err := h.store.Get(ctx, turnsKeyPrefix+userID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	var turns []model.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	return turns, nil
}

// Append adds a turn and returns the updated history
func (h *HistoryStore) Append(ctx context.Context, userID string, turn model.Turn) ([]model.Turn, error) {
	turns, err := h.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	turns = append(turns, turn)
	if h.limit > 0 && len(turns) > h.limit {
		turns = turns[len(turns)-h.limit:]
	}

	data, err := json.Marshal(turns)
	if err != nil {
		return nil, fmt.Errorf("failed to encode history: %w", err)
	}
	if err := h.store.Set(ctx, turnsKeyPrefix+userID, data, h.ttl); err != nil {
		return nil, fmt.Errorf("failed to write history: %w", err)
	}
	return turns, nil
}

// Clear deletes the user's history
func (h *HistoryStore) Clear(ctx context.Context, userID string) error {
	return h.store.Delete(ctx, turnsKeyPrefix+userID)
}
