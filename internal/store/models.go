package store

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Provenance values for assistant turns. User turns carry none.
const (
	ProvenanceKnowledgeBase = "knowledge-base"
	ProvenanceSelfLearned   = "self-learned"
	ProvenanceAI            = "ai"
	ProvenanceError         = "error"
)

type User struct {
	ID             int64     `json:"id"`
	ExternalUserID string    `json:"external_user_id"`
	PasswordHash   string    `json:"-"` // Do not expose this in JSON responses
	CreatedAt      time.Time `json:"created_at"`
}

type Chat struct {
	ID        string    `json:"id"` // Using UUID for external ID
	UserID    int64     `json:"user_id"`
	Title     *string   `json:"title"` // Nullable
	CreatedAt time.Time `json:"created_at"`
}

// Turn is one message in a chat transcript. Turns are append-only:
// once stored they are never reordered, edited or deleted.
type Turn struct {
	ID     string `json:"id"` // Using UUID for external ID
	ChatID string `json:"chat_id"`
	Role   string `json:"role"` // "user" or "assistant"
	Text   string `json:"text"`
	// Provenance is set exactly when Role is "assistant".
	Provenance string    `json:"provenance,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
