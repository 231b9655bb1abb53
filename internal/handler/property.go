package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"estate-assistant/internal/model"
	"estate-assistant/internal/repository"
	"estate-assistant/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	defaultSearchLimit  = 10
	maxSearchLimit      = 50
	defaultSimilarLimit = 5
	maxSimilarLimit     = 20
)

// PropertyLookup fetches a single property
type PropertyLookup interface {
	GetPropertyByID(ctx context.Context, id string) (*model.PropertyRecord, error)
}

// PropertySearch answers direct catalogue searches
type PropertySearch interface {
	Browse(ctx context.Context, req service.BrowseRequest) service.StepResult
}

// SimilarFinder finds properties near a given one
type SimilarFinder interface {
	Similar(ctx context.Context, id string, limit int) ([]model.PropertyRecord, error)
}

// PropertyHandler handles property HTTP requests
type PropertyHandler struct {
	properties PropertyLookup
	search     PropertySearch
	similar    SimilarFinder
}

// NewPropertyHandler creates a new property handler
func NewPropertyHandler(properties PropertyLookup, search PropertySearch, similar SimilarFinder) *PropertyHandler {
	return &PropertyHandler{properties: properties, search: search, similar: similar}
}

// GetProperty handles GET /api/v1/properties/:id
func (h *PropertyHandler) GetProperty(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid property ID"})
		return
	}

	property, err := h.properties.GetPropertyByID(c.Request.Context(), id)
	if errors.Is(err, repository.ErrPropertyNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Property not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get property: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, property)
}

type propertySearchQuery struct {
	Query        string `form:"q"`
	City         string `form:"city"`
	State        string `form:"state"`
	PropertyType string `form:"property_type"`
	ListingType  string `form:"listing_type"`
	Bedrooms     *int   `form:"bedrooms" binding:"omitempty,min=1"`
	Semantic     *bool  `form:"semantic"`
	Limit        int    `form:"limit" binding:"omitempty,min=1"`
}

func (q propertySearchQuery) filters() model.FilterSet {
	opt := func(v string) *string {
		if v = strings.TrimSpace(v); v == "" {
			return nil
		}
		return &v
	}
	return model.FilterSet{
		State:        opt(q.State),
		City:         opt(q.City),
		ListingType:  opt(strings.ToLower(q.ListingType)),
		PropertyType: opt(strings.ToLower(q.PropertyType)),
		Bedrooms:     q.Bedrooms,
	}
}

// Search handles GET /api/v1/properties/search
func (h *PropertyHandler) Search(c *gin.Context) {
	var q propertySearchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid search parameters: " + err.Error()})
		return
	}

	limit := q.Limit
	if limit == 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	step := h.search.Browse(c.Request.Context(), service.BrowseRequest{
		Query:    q.Query,
		Filters:  q.filters(),
		Semantic: q.Semantic == nil || *q.Semantic,
		Limit:    limit,
	})
	if step.Status == service.StepFailed {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Property search is unavailable"})
		return
	}

	properties := step.Records
	if properties == nil {
		properties = []model.PropertyRecord{}
	}
	c.JSON(http.StatusOK, gin.H{
		"properties": properties,
		"count":      len(properties),
		"strategy":   step.Strategy,
	})
}

// Similar handles GET /api/v1/properties/:id/similar
func (h *PropertyHandler) Similar(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid property ID"})
		return
	}

	var q struct {
		Limit int `form:"limit" binding:"omitempty,min=1"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}
	limit := q.Limit
	if limit == 0 {
		limit = defaultSimilarLimit
	}
	if limit > maxSimilarLimit {
		limit = maxSimilarLimit
	}

	similar, err := h.similar.Similar(c.Request.Context(), id, limit)
	switch {
	case errors.Is(err, repository.ErrPropertyNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Property not found"})
		return
	case errors.Is(err, service.ErrNoEmbedding):
		c.JSON(http.StatusConflict, gin.H{"error": "Property has no embedding yet"})
		return
	case err != nil:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to find similar properties"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"property_id": id, "similar_properties": similar})
}
