package domain

import (
	"time"
)

// Message is one contribution to a session's transcript. AgentID is
// empty for human interjections echoed into the transcript. Messages
// are append-only; they are removed only when the whole session is
// deleted.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	AgentID   string    `json:"agent_id,omitempty"`
	Content   string    `json:"content"`
	Phase     string    `json:"phase"`
	CreatedAt time.Time `json:"created_at"`
}
