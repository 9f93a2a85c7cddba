package domain

import (
	"time"
)

// EscalationStatus is the lifecycle state of an escalation.
type EscalationStatus string

const (
	// EscalationPending means the question awaits a human answer.
	EscalationPending EscalationStatus = "pending"
	// EscalationAnswered means a human answer has been recorded.
	EscalationAnswered EscalationStatus = "answered"
)

// Escalation is an agent-raised question that needs human input.
// The only legal transition is pending -> answered, applied exactly
// once; when answered, Answer is non-nil and AnsweredAt >= CreatedAt.
type Escalation struct {
	ID         string           `json:"id"`
	SessionID  string           `json:"session_id"`
	AgentID    string           `json:"agent_id"`
	Question   string           `json:"question"`
	Answer     *string          `json:"answer,omitempty"`
	Status     EscalationStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	AnsweredAt *time.Time       `json:"answered_at,omitempty"`
}
