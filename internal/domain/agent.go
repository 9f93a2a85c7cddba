package domain

// Agent is one member of the fixed deliberation cast. SystemPrompt is
// opaque configuration handed to the model gateway verbatim.
type Agent struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Glyph        string `json:"glyph"`
	Role         string `json:"role"`
	SystemPrompt string `json:"-"`
}

// AgentActivity is the transient per-agent state tracked while a
// session is active. It is never persisted.
type AgentActivity string

const (
	AgentIdle      AgentActivity = "idle"
	AgentThinking  AgentActivity = "thinking"
	AgentSearching AgentActivity = "searching"
	AgentSpeaking  AgentActivity = "speaking"
)
