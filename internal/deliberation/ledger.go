package deliberation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ashureev/conclave/internal/domain"
	"github.com/ashureev/conclave/internal/events"
	"github.com/ashureev/conclave/internal/store"
)

// Ledger tracks outstanding human-input requests. The in-memory
// pending set is the scheduler's blocking gate; the store is the
// durable record. Safe for concurrent use across session loops.
type Ledger struct {
	repo store.Repository
	sink events.Sink

	mu      sync.RWMutex
	pending map[string]map[string]*domain.Escalation
}

// NewLedger creates a new escalation ledger.
func NewLedger(repo store.Repository, sink events.Sink) *Ledger {
	return &Ledger{
		repo:    repo,
		sink:    sink,
		pending: make(map[string]map[string]*domain.Escalation),
	}
}

// Track starts tracking pending escalations for a session.
func (l *Ledger) Track(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.pending[sessionID]; !ok {
		l.pending[sessionID] = make(map[string]*domain.Escalation)
	}
}

// Drop discards in-memory state for a session.
func (l *Ledger) Drop(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, sessionID)
}

// Create persists a new pending escalation and notifies observers.
func (l *Ledger) Create(ctx context.Context, esc *domain.Escalation) error {
	if err := l.repo.CreateEscalation(ctx, esc); err != nil {
		return fmt.Errorf("persist escalation: %w", err)
	}

	l.mu.Lock()
	if m, ok := l.pending[esc.SessionID]; ok {
		m[esc.ID] = esc
	}
	l.mu.Unlock()

	l.sink.Publish(events.Event{
		Type:      events.TypeEscalation,
		SessionID: esc.SessionID,
		Timestamp: time.Now(),
		Payload:   esc,
	})
	return nil
}

// Answer applies the pending -> answered transition. Returns
// domain.ErrUnknownEscalation if the id does not belong to the session
// and domain.ErrAlreadyAnswered on a repeat answer; neither mutates
// anything.
func (l *Ledger) Answer(ctx context.Context, sessionID, escalationID, answer string) (*domain.Escalation, error) {
	esc, err := l.repo.AnswerEscalation(ctx, sessionID, escalationID, answer)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	if m, ok := l.pending[sessionID]; ok {
		delete(m, escalationID)
	}
	l.mu.Unlock()

	l.sink.Publish(events.Event{
		Type:      events.TypeEscalationAnswered,
		SessionID: sessionID,
		Timestamp: time.Now(),
		Payload:   esc,
	})
	return esc, nil
}

// PendingCount returns the number of unanswered escalations for a
// session currently tracked in memory.
func (l *Ledger) PendingCount(sessionID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.pending[sessionID])
}
