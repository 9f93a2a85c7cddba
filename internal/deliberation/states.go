package deliberation

import (
	"sync"
	"time"

	"github.com/ashureev/conclave/internal/domain"
	"github.com/ashureev/conclave/internal/events"
	"github.com/ashureev/conclave/internal/roster"
)

// StateTracker holds the transient per-agent activity of one session.
// Reset to idle on activation, never persisted.
type StateTracker struct {
	sessionID string
	sink      events.Sink

	mu     sync.RWMutex
	states map[string]domain.AgentActivity
}

// NewStateTracker creates a tracker with every agent idle.
func NewStateTracker(sessionID string, sink events.Sink) *StateTracker {
	states := make(map[string]domain.AgentActivity)
	for _, a := range roster.All() {
		states[a.ID] = domain.AgentIdle
	}
	return &StateTracker{
		sessionID: sessionID,
		sink:      sink,
		states:    states,
	}
}

// Set records an activity transition and notifies observers.
func (t *StateTracker) Set(agentID string, state domain.AgentActivity) {
	t.mu.Lock()
	t.states[agentID] = state
	t.mu.Unlock()

	t.sink.Publish(events.Event{
		Type:      events.TypeAgentState,
		SessionID: t.sessionID,
		Timestamp: time.Now(),
		Payload:   events.AgentState{AgentID: agentID, State: state},
	})
}

// States returns a copy of the current activity map.
func (t *StateTracker) States() map[string]domain.AgentActivity {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]domain.AgentActivity, len(t.states))
	for id, st := range t.states {
		out[id] = st
	}
	return out
}
