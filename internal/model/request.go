package model

// MessageRequest represents a user utterance posted over HTTP
type MessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// HistoryResponse lists a user's turns
type HistoryResponse struct {
	UserID string `json:"user_id"`
	Turns  []Turn `json:"turns"`
}

// SocketMessage is the frame exchanged on the conversation websocket
type SocketMessage struct {
	Type       string           `json:"type"`
	Text       string           `json:"text,omitempty"`
	Properties []PropertyRecord `json:"properties,omitempty"`
	Filters    *FilterSet       `json:"filters,omitempty"`
	IsFollowup bool             `json:"is_followup,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// EmbeddingItem represents a single property's embedding
type EmbeddingItem struct {
	PropertyID string    `json:"property_id"`
	Embedding  []float32 `json:"embedding"`
}

// EmbeddingBatchRequest represents a batch of precomputed embeddings
type EmbeddingBatchRequest struct {
	Embeddings []EmbeddingItem `json:"embeddings"`
}

// EmbeddingBatchResponse represents the result of a batch update
type EmbeddingBatchResponse struct {
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// BackfillRequest asks the server to embed properties that lack vectors
type BackfillRequest struct {
	Limit int `json:"limit"`
}

// BackfillResponse reports how many properties were embedded
type BackfillResponse struct {
	Scanned int      `json:"scanned"`
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}
