package deliberation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/conclave/internal/config"
	"github.com/ashureev/conclave/internal/domain"
	"github.com/ashureev/conclave/internal/events"
	"github.com/ashureev/conclave/internal/roster"
	"github.com/ashureev/conclave/internal/store"
	"github.com/google/uuid"
)

// handle is the manager's record of one in-flight deliberation.
type handle struct {
	sess   *domain.Session
	states *StateTracker
	active atomic.Bool
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager owns the registry of active sessions and is the single entry
// point for inbound operations. One Manager instance owns every active
// deliberation in the process.
type Manager struct {
	repo   store.Repository
	sink   events.Sink
	ledger *Ledger
	exec   *TurnExecutor
	sched  *Scheduler
	cfg    config.DeliberationConfig
	logger *slog.Logger

	mu      sync.RWMutex
	running map[string]*handle
	wg      sync.WaitGroup
}

// NewManager creates the session manager and its scheduler stack.
func NewManager(repo store.Repository, sink events.Sink, exec *TurnExecutor, ledger *Ledger,
	cfg config.DeliberationConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		repo:    repo,
		sink:    sink,
		ledger:  ledger,
		exec:    exec,
		sched:   NewScheduler(repo, sink, ledger, exec, cfg, logger),
		cfg:     cfg,
		logger:  logger,
		running: make(map[string]*handle),
	}
}

// CreateSession persists a new session and starts its deliberation
// loop. Returns immediately with the session record. Storage failure
// here is the one fatal condition: no session starts without a durable
// record.
func (m *Manager) CreateSession(ctx context.Context, problem string, files []domain.FileRef) (*domain.Session, error) {
	problem = strings.TrimSpace(problem)
	if problem == "" {
		return nil, fmt.Errorf("problem statement cannot be empty")
	}

	sess := &domain.Session{
		ID:           uuid.NewString(),
		Problem:      problem,
		Files:        files,
		CurrentPhase: 0,
		Active:       true,
		CreatedAt:    time.Now(),
	}
	if err := m.repo.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	m.ledger.Track(sess.ID)

	runCtx, cancel := context.WithCancel(context.Background())
	h := &handle{
		sess:   sess,
		states: NewStateTracker(sess.ID, m.sink),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	h.active.Store(true)

	m.mu.Lock()
	m.running[sess.ID] = h
	m.mu.Unlock()

	m.sink.Publish(events.Event{
		Type:      events.TypeSessionCreated,
		SessionID: sess.ID,
		Timestamp: time.Now(),
		Payload:   sess,
	})
	m.logger.Info("session created", "session_id", sess.ID, "files", len(files))

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		defer close(h.done)
		m.sched.Run(runCtx, sess, h.states, h.active.Load)

		m.mu.Lock()
		delete(m.running, sess.ID)
		m.mu.Unlock()
	}()

	return sess, nil
}

// StopSession requests a stop; the loop observes it at its next safe
// point. Idempotent: repeat calls re-emit session-stopped but mutate
// nothing further.
func (m *Manager) StopSession(ctx context.Context, sessionID string) error {
	m.mu.RLock()
	h, ok := m.running[sessionID]
	m.mu.RUnlock()

	if ok {
		h.active.Store(false)
	} else {
		// Loop already finished (or never existed): validate the id.
		if _, err := m.repo.GetSession(ctx, sessionID); err != nil {
			return err
		}
	}

	m.sink.Publish(events.Event{
		Type:      events.TypeSessionStopped,
		SessionID: sessionID,
		Timestamp: time.Now(),
	})
	m.logger.Info("session stop requested", "session_id", sessionID)
	return nil
}

// DeleteSession removes all durable records for a session and drops
// in-memory state if it is still running.
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	h, ok := m.running[sessionID]
	if ok {
		delete(m.running, sessionID)
	}
	m.mu.Unlock()

	if ok {
		h.active.Store(false)
		h.cancel()
		<-h.done
	}
	m.ledger.Drop(sessionID)

	if err := m.repo.DeleteSession(ctx, sessionID); err != nil {
		return err
	}

	m.sink.Publish(events.Event{
		Type:      events.TypeSessionDeleted,
		SessionID: sessionID,
		Timestamp: time.Now(),
	})
	m.logger.Info("session deleted", "session_id", sessionID)
	return nil
}

// SubmitEscalationAnswer records a human answer to a pending
// escalation. See Ledger.Answer for the failure contract.
func (m *Manager) SubmitEscalationAnswer(ctx context.Context, sessionID, escalationID, answer string) error {
	if _, err := m.ledger.Answer(ctx, sessionID, escalationID, answer); err != nil {
		return err
	}
	m.logger.Info("escalation answered", "session_id", sessionID, "escalation_id", escalationID)
	return nil
}

// SubmitHumanMessage appends a human interjection. The interjection is
// echoed into the transcript as an agent-less message. If the
// deliberation has already finished, a single follow-up synthesis turn
// runs asynchronously; its failures surface only as error events.
func (m *Manager) SubmitHumanMessage(ctx context.Context, sessionID, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("message content cannot be empty")
	}

	sess, err := m.repo.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	now := time.Now()
	ij := &domain.Interjection{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Content:   content,
		CreatedAt: now,
	}
	if err := m.repo.AppendInterjection(ctx, ij); err != nil {
		return fmt.Errorf("append interjection: %w", err)
	}

	phaseName := ""
	if phase, ok := roster.PhaseAt(sess.CurrentPhase); ok {
		phaseName = phase.Name
	}
	msg := &domain.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Content:   content,
		Phase:     phaseName,
		CreatedAt: now,
	}
	if err := m.repo.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("append transcript message: %w", err)
	}

	m.sink.Publish(events.Event{
		Type:      events.TypeHumanMessage,
		SessionID: sessionID,
		Timestamp: now,
		Payload:   ij,
	})

	m.mu.RLock()
	_, live := m.running[sessionID]
	m.mu.RUnlock()

	if !live && !sess.Active {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			followCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			m.exec.RunFollowUp(followCtx, sessionID)
		}()
	}

	return nil
}

// JoinSession returns the full materialized state for a newly
// attaching observer, including live agent activity when the session
// is still running.
func (m *Manager) JoinSession(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	snap, err := m.repo.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	h, ok := m.running[sessionID]
	m.mu.RUnlock()
	if ok {
		snap.AgentStates = h.states.States()
		// The loop owns the persisted flag; reflect the live one.
		snap.Session.Active = h.active.Load()
	}
	return snap, nil
}

// Shutdown stops every running deliberation and waits for loops and
// follow-up turns to drain, bounded by ctx.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.RLock()
	for _, h := range m.running {
		h.active.Store(false)
		h.cancel()
	}
	m.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutdown timed out waiting for deliberation loops")
	}
}
