// Package events provides real-time notification fan-out to observers.
package events

import (
	"time"

	"github.com/ashureev/conclave/internal/domain"
)

// Type tags one notification.
type Type string

const (
	TypeSessionCreated       Type = "session-created"
	TypePhaseChange          Type = "phase-change"
	TypeAgentState           Type = "agent-state"
	TypeMessage              Type = "message"
	TypeEscalation           Type = "escalation"
	TypeWaitingForHuman      Type = "waiting-for-human"
	TypeEscalationTimeout    Type = "escalation-timeout"
	TypeEscalationAnswered   Type = "escalation-answered"
	TypeHumanMessage         Type = "human-message"
	TypeSearchStarted        Type = "search-started"
	TypeSearchComplete       Type = "search-complete"
	TypeError                Type = "error"
	TypeDeliberationComplete Type = "deliberation-complete"
	TypeSessionStopped       Type = "session-stopped"
	TypeSessionDeleted       Type = "session-deleted"
)

// Event is one notification delivered to observers.
type Event struct {
	Type      Type        `json:"type"`
	SessionID string      `json:"session_id"`
	Timestamp time.Time   `json:"ts"`
	Payload   interface{} `json:"payload,omitempty"`
}

// PhaseChange announces a phase transition.
type PhaseChange struct {
	PhaseIndex int      `json:"phase_index"`
	PhaseID    string   `json:"phase_id"`
	PhaseName  string   `json:"phase_name"`
	Agents     []string `json:"agents"`
}

// AgentState announces an agent activity transition.
type AgentState struct {
	AgentID string               `json:"agent_id"`
	State   domain.AgentActivity `json:"state"`
}

// WaitingForHuman announces an escalation-gated pause.
type WaitingForHuman struct {
	PendingCount int `json:"pending_count"`
}

// SearchActivity announces the search sub-protocol. Queries is set on
// search start; ResultCount on completion.
type SearchActivity struct {
	AgentID     string   `json:"agent_id"`
	Queries     []string `json:"queries,omitempty"`
	Done        bool     `json:"done"`
	ResultCount int      `json:"result_count,omitempty"`
}

// ErrorInfo reports a contained failure to observers.
type ErrorInfo struct {
	AgentID string `json:"agent_id,omitempty"`
	Reason  string `json:"reason"`
}

// ExportSummary is the export-readiness summary attached to
// deliberation-complete notifications.
type ExportSummary struct {
	MessageCount          int  `json:"message_count"`
	SynthesisMessageCount int  `json:"synthesis_message_count"`
	EscalationCount       int  `json:"escalation_count"`
	HasSynthesis          bool `json:"has_synthesis"`
}
