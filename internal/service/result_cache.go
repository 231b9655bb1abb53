package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"estate-assistant/internal/model"
	"estate-assistant/internal/session"
)

const resultsKeyPrefix = "results:"

// ErrCacheEmpty is returned by FilterInPlace when the user has no cached results
var ErrCacheEmpty = errors.New("no cached results")

// ResultCache keeps each user's most recent result set so follow-up turns
// can be answered by narrowing it locally.
type ResultCache struct {
	store session.Store
	ttl   time.Duration
}

// NewResultCache creates a cache over store; ttl of zero never expires
func NewResultCache(store session.Store, ttl time.Duration) *ResultCache {
	return &ResultCache{store: store, ttl: ttl}
}

// Get returns the cached records, or nil when the user has none
func (c *ResultCache) Get(ctx context.Context, userID string) ([]model.PropertyRecord, error) {
	data, err := c.store.Get(ctx, resultsKeyPrefix+userID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached results: %w", err)
	}

	var records []model.PropertyRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode cached results: %w", err)
	}
	return records, nil
}

// Set replaces the cached records
func (c *ResultCache) Set(ctx context.Context, userID string, records []model.PropertyRecord) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	if err := c.store.Set(ctx, resultsKeyPrefix+userID, data, c.ttl); err != nil {
		return fmt.Errorf("failed to write cached results: %w", err)
	}
	return nil
}

// FilterInPlace narrows the cached records by filters. A non-empty result
// replaces the cache; an empty result is returned but leaves the cache as it
// was, so one over-strict refinement does not lose the previous results.
// It returns ErrCacheEmpty when there is nothing to narrow.
func (c *ResultCache) FilterInPlace(ctx context.Context, userID string, filters model.FilterSet) ([]model.PropertyRecord, error) {
	cached, err := c.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(cached) == 0 {
		return nil, ErrCacheEmpty
	}

	filtered := FilterRecords(cached, filters)
	if len(filtered) == 0 {
		return filtered, nil
	}
	if err := c.Set(ctx, userID, filtered); err != nil {
		return nil, err
	}
	return filtered, nil
}

// Clear drops the user's cached records
func (c *ResultCache) Clear(ctx context.Context, userID string) error {
	return c.store.Delete(ctx, resultsKeyPrefix+userID)
}

// FilterRecords keeps the records matching every set filter. Strings compare
// case-insensitively. Property type matches on either property_type or type
// and a record with neither never matches; for the other keys a record
// lacking the field is not excluded.
func FilterRecords(records []model.PropertyRecord, filters model.FilterSet) []model.PropertyRecord {
	out := make([]model.PropertyRecord, 0, len(records))
	for _, r := range records {
		if recordMatches(r, filters) {
			out = append(out, r)
		}
	}
	return out
}

func recordMatches(r model.PropertyRecord, f model.FilterSet) bool {
	if f.PropertyType != nil {
		matched := false
		for _, t := range r.PropertyTypes() {
			if strings.EqualFold(t, *f.PropertyType) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if !optionalEqualFold(r.State, f.State) ||
		!optionalEqualFold(r.City, f.City) ||
		!optionalEqualFold(r.ListingType, f.ListingType) {
		return false
	}
	if f.Bedrooms != nil {
		if beds := r.BedroomCount(); beds != nil && *beds != *f.Bedrooms {
			return false
		}
	}
	return true
}

func optionalEqualFold(field, want *string) bool {
	if want == nil || field == nil || *field == "" {
		return true
	}
	return strings.EqualFold(*field, *want)
}
