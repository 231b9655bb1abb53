package model

import "time"

// Role identifies who produced a turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry in a user's conversation history
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Reply is the result of processing one utterance
type Reply struct {
	Text       string           `json:"text"`
	Properties []PropertyRecord `json:"properties"`
	Filters    FilterSet        `json:"filters"`
	IsFollowup bool             `json:"is_followup"`
	Strategy   string           `json:"strategy,omitempty"`
}

// ConversationLogEntry is one persisted exchange
type ConversationLogEntry struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	Transcript  string    `db:"transcript"`
	AIResponse  string    `db:"ai_response"`
	PropertyIDs []string  `db:"property_ids"`
	CreatedAt   time.Time `db:"created_at"`
}
