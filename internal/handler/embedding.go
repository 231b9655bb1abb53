package handler

import (
	"context"
	"fmt"
	"net/http"

	"estate-assistant/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	defaultBackfillLimit = 500
	maxBackfillLimit     = 5000
)

// Embeddings is the embedding service as the handlers see it
type Embeddings interface {
	UpdateEmbeddings(ctx context.Context, items []model.EmbeddingItem) (int, []string)
	Backfill(ctx context.Context, limit int) (*model.BackfillResponse, error)
}

// EmbeddingHandler handles embedding-related HTTP requests
type EmbeddingHandler struct {
	embeddings Embeddings
	dimensions int
	log        zerolog.Logger
}

// NewEmbeddingHandler creates a new embedding handler. dimensions is the
// vector length every submitted embedding must have.
func NewEmbeddingHandler(embeddings Embeddings, dimensions int, log zerolog.Logger) *EmbeddingHandler {
	return &EmbeddingHandler{
		embeddings: embeddings,
		dimensions: dimensions,
		log:        log,
	}
}

// BatchUpdate handles POST /api/v1/embeddings/batch
func (h *EmbeddingHandler) BatchUpdate(c *gin.Context) {
	var req model.EmbeddingBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if len(req.Embeddings) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No embeddings provided"})
		return
	}

	for i, item := range req.Embeddings {
		if item.PropertyID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Missing property_id at index %d", i)})
			return
		}
		if len(item.Embedding) != h.dimensions {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("Invalid embedding dimension at index %d, expected %d", i, h.dimensions),
			})
			return
		}
	}

	success, errs := h.embeddings.UpdateEmbeddings(c.Request.Context(), req.Embeddings)

	response := model.EmbeddingBatchResponse{
		Success: success,
		Failed:  len(req.Embeddings) - success,
		Errors:  errs,
	}

	if len(errs) > 0 {
		c.JSON(http.StatusPartialContent, response)
	} else {
		c.JSON(http.StatusOK, response)
	}
}

// Backfill handles POST /api/v1/embeddings/backfill
func (h *EmbeddingHandler) Backfill(c *gin.Context) {
	var req model.BackfillRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultBackfillLimit
	}
	if limit > maxBackfillLimit {
		limit = maxBackfillLimit
	}

	resp, err := h.embeddings.Backfill(c.Request.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Int("limit", limit).Msg("embedding backfill failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Backfill failed: " + err.Error()})
		return
	}

	if resp.Failed > 0 {
		c.JSON(http.StatusPartialContent, resp)
	} else {
		c.JSON(http.StatusOK, resp)
	}
}
