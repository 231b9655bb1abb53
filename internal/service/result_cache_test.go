package service

import (
	"context"
	"testing"

	"estate-assistant/internal/model"
	"estate-assistant/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterRecords(t *testing.T) {
	records := []model.PropertyRecord{
		newRecord("a", withCity("Bangalore"), withType("residential"), withBedrooms(2), withListing("rent")),
		newRecord("b", withCity("bangalore"), withLegacyType("Commercial"), withListing("sale")),
		newRecord("c", withState("Kerala"), withType("residential"), withBedrooms(3)),
		newRecord("d", withCity("Pune")),
	}

	tests := []struct {
		name    string
		filters model.FilterSet
		want    []string
	}{
		{
			name:    "no filters keeps everything",
			filters: model.FilterSet{},
			want:    []string{"a", "b", "c", "d"},
		},
		{
			name:    "city compares case-insensitively and ignores records without a city",
			filters: model.FilterSet{City: strPtr("BANGALORE")},
			want:    []string{"a", "b", "c"},
		},
		{
			name:    "property type matches the legacy type column",
			filters: model.FilterSet{PropertyType: strPtr("commercial")},
			want:    []string{"b"},
		},
		{
			name:    "property type excludes records with no type at all",
			filters: model.FilterSet{PropertyType: strPtr("residential")},
			want:    []string{"a", "c"},
		},
		{
			name:    "bedrooms ignore records without a count",
			filters: model.FilterSet{Bedrooms: intPtr(2)},
			want:    []string{"a", "b", "d"},
		},
		{
			name:    "every filter must hold",
			filters: model.FilterSet{City: strPtr("Bangalore"), ListingType: strPtr("rent")},
			want:    []string{"a", "c"},
		},
		{
			name:    "nothing matches",
			filters: model.FilterSet{State: strPtr("Goa"), PropertyType: strPtr("agricultural")},
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterRecords(records, tt.filters)
			assert.Equal(t, tt.want, model.PropertyIDs(got))
		})
	}
}

func TestResultCache_FilterInPlace(t *testing.T) {
	ctx := context.Background()
	cache := NewResultCache(session.NewMemoryStore(), 0)

	_, err := cache.FilterInPlace(ctx, "u1", model.FilterSet{})
	require.ErrorIs(t, err, ErrCacheEmpty)

	require.NoError(t, cache.Set(ctx, "u1", []model.PropertyRecord{
		newRecord("a", withBedrooms(2)),
		newRecord("b", withBedrooms(3)),
	}))

	got, err := cache.FilterInPlace(ctx, "u1", model.FilterSet{Bedrooms: intPtr(3)})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, model.PropertyIDs(got))

	cached, err := cache.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, model.PropertyIDs(cached), "a non-empty result replaces the cache")

	got, err = cache.FilterInPlace(ctx, "u1", model.FilterSet{Bedrooms: intPtr(2)})
	require.NoError(t, err)
	assert.Empty(t, got)

	cached, err = cache.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, model.PropertyIDs(cached), "an empty result leaves the cache alone")
}

func TestResultCache_NarrowingFiveCached(t *testing.T) {
	ctx := context.Background()
	five := []model.PropertyRecord{
		newRecord("a", withCity("Pune"), withBedrooms(2), withListing("rent")),
		newRecord("b", withCity("Pune"), withBedrooms(3), withListing("sale")),
		newRecord("c", withCity("Pune"), withBedrooms(2), withListing("sale")),
		newRecord("d", withCity("Pune"), withBedrooms(3), withListing("rent")),
		newRecord("e", withCity("Pune"), withBedrooms(1), withListing("rent")),
	}

	tests := []struct {
		name       string
		filters    model.FilterSet
		wantResult []string
		wantCached []string
	}{
		{
			name:       "no match keeps all five",
			filters:    model.FilterSet{Bedrooms: intPtr(4)},
			wantResult: []string{},
			wantCached: []string{"a", "b", "c", "d", "e"},
		},
		{
			name:       "two matches replace the cache",
			filters:    model.FilterSet{Bedrooms: intPtr(3)},
			wantResult: []string{"b", "d"},
			wantCached: []string{"b", "d"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := NewResultCache(session.NewMemoryStore(), 0)
			require.NoError(t, cache.Set(ctx, "u1", five))

			got, err := cache.FilterInPlace(ctx, "u1", tt.filters)
			require.NoError(t, err)
			assert.Equal(t, tt.wantResult, model.PropertyIDs(got))

			cached, err := cache.Get(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantCached, model.PropertyIDs(cached))
		})
	}
}

func TestResultCache_PerUserAndClear(t *testing.T) {
	ctx := context.Background()
	cache := NewResultCache(session.NewMemoryStore(), 0)

	require.NoError(t, cache.Set(ctx, "u1", []model.PropertyRecord{newRecord("a")}))

	other, err := cache.Get(ctx, "u2")
	require.NoError(t, err)
	assert.Nil(t, other)

	require.NoError(t, cache.Clear(ctx, "u1"))
	cached, err := cache.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestResultCache_StoreFailure(t *testing.T) {
	cache := NewResultCache(failingStore{}, 0)

	_, err := cache.FilterInPlace(context.Background(), "u1", model.FilterSet{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheEmpty)
}
