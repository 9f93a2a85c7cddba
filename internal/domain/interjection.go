package domain

import (
	"time"
)

// Interjection is a free-form human message injected into a session,
// independent of the escalation flow. Append-only.
type Interjection struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
