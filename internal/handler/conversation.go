package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"estate-assistant/internal/model"
	"estate-assistant/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const maxUserIDLength = 128

// Conversations is the conversation service as the handlers see it
type Conversations interface {
	ProcessQuery(ctx context.Context, userID, text string) model.Reply
	History(ctx context.Context, userID string) ([]model.Turn, error)
	Summary(ctx context.Context, userID string) (string, error)
	EndSession(ctx context.Context, userID string) error
}

// ConversationHandler handles conversation HTTP requests
type ConversationHandler struct {
	conversations Conversations
	log           zerolog.Logger
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(conversations Conversations, log zerolog.Logger) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		log:           log,
	}
}

// validUserID trims id and reports whether it is usable as a session key
func validUserID(id string) (string, bool) {
	id = strings.TrimSpace(id)
	return id, id != "" && len(id) <= maxUserIDLength
}

func (h *ConversationHandler) bindMessage(c *gin.Context) (string, string, bool) {
	userID, ok := validUserID(c.Param("user_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return "", "", false
	}

	var req model.MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return "", "", false
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message text is empty"})
		return "", "", false
	}
	return userID, text, true
}

// SendMessage handles POST /api/v1/conversations/:user_id/messages
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	userID, text, ok := h.bindMessage(c)
	if !ok {
		return
	}

	reply := h.conversations.ProcessQuery(c.Request.Context(), userID, text)
	c.JSON(http.StatusOK, reply)
}

// SendMessageStream handles POST /api/v1/conversations/:user_id/messages/stream - SSE reply
func (h *ConversationHandler) SendMessageStream(c *gin.Context) {
	userID, text, ok := h.bindMessage(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/event-stream; charset=utf-8")
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming not supported"})
		return
	}

	sendSSE(c, "start", map[string]any{"user_id": userID, "text": text})
	flusher.Flush()

	reply := h.conversations.ProcessQuery(c.Request.Context(), userID, text)

	sendSSE(c, "filters", map[string]any{
		"filters":     reply.Filters,
		"is_followup": reply.IsFollowup,
		"strategy":    reply.Strategy,
	})
	flusher.Flush()

	sendSSE(c, "response", map[string]any{
		"text":       reply.Text,
		"properties": reply.Properties,
	})
	flusher.Flush()

	sendSSE(c, "done", nil)
	flusher.Flush()
}

// sendSSE sends a Server-Sent Event
func sendSSE(c *gin.Context, event string, data any) {
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"error\": \"JSON marshal failed\"}\n\n")
			return
		}
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, string(jsonData))
	} else {
		fmt.Fprintf(c.Writer, "event: %s\ndata: {}\n\n", event)
	}
}

// History handles GET /api/v1/conversations/:user_id/history
func (h *ConversationHandler) History(c *gin.Context) {
	userID, ok := validUserID(c.Param("user_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	turns, err := h.conversations.History(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("failed to load history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load history"})
		return
	}

	c.JSON(http.StatusOK, model.HistoryResponse{UserID: userID, Turns: turns})
}

// Summary handles GET /api/v1/conversations/:user_id/summary
func (h *ConversationHandler) Summary(c *gin.Context) {
	userID, ok := validUserID(c.Param("user_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	summary, err := h.conversations.Summary(c.Request.Context(), userID)
	if errors.Is(err, service.ErrNoHistory) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No conversation to summarize"})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("failed to summarize conversation")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to generate summary"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user_id": userID, "summary": summary})
}

// EndSession handles DELETE /api/v1/conversations/:user_id
func (h *ConversationHandler) EndSession(c *gin.Context) {
	userID, ok := validUserID(c.Param("user_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	if err := h.conversations.EndSession(c.Request.Context(), userID); err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("failed to end session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to end session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user_id": userID, "status": "ended"})
}
