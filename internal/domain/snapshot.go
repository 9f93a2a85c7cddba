package domain

// Snapshot is the full materialized state of a session, as returned to
// a newly attaching observer and consumed by export formatting.
type Snapshot struct {
	Session       *Session                 `json:"session"`
	Messages      []*Message               `json:"messages"`
	Escalations   []*Escalation            `json:"escalations"`
	Interjections []*Interjection          `json:"interjections"`
	AgentStates   map[string]AgentActivity `json:"agent_states,omitempty"`
}
