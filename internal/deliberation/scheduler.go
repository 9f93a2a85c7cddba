package deliberation

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/conclave/internal/config"
	"github.com/ashureev/conclave/internal/domain"
	"github.com/ashureev/conclave/internal/events"
	"github.com/ashureev/conclave/internal/roster"
	"github.com/ashureev/conclave/internal/store"
)

// Scheduler drives one session phase by phase and agent by agent.
// Turns within a session are strictly sequential; the stop flag is
// checked before each phase and before each agent so a stop request
// takes effect at the next safe point without interrupting an
// in-flight model call.
type Scheduler struct {
	repo   store.Repository
	sink   events.Sink
	ledger *Ledger
	exec   *TurnExecutor
	cfg    config.DeliberationConfig
	logger *slog.Logger
}

// NewScheduler creates a scheduler.
func NewScheduler(repo store.Repository, sink events.Sink, ledger *Ledger, exec *TurnExecutor,
	cfg config.DeliberationConfig, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		repo:   repo,
		sink:   sink,
		ledger: ledger,
		exec:   exec,
		cfg:    cfg,
		logger: logger,
	}
}

// Run executes the full deliberation for one session. active is the
// level-triggered stop gate; once it reports false no further turn
// starts. Always finishes by persisting active=false and emitting the
// deliberation-complete notification with the export-readiness summary.
func (s *Scheduler) Run(ctx context.Context, sess *domain.Session, states *StateTracker, active func() bool) {
	s.logger.Info("deliberation started", "session_id", sess.ID, "phases", roster.PhaseCount())

	for i, phase := range roster.Phases() {
		if !active() || ctx.Err() != nil {
			break
		}

		sess.CurrentPhase = i
		if err := s.repo.UpdateSessionPhase(ctx, sess.ID, i); err != nil {
			s.logger.Error("failed to persist phase transition", "session_id", sess.ID, "phase", phase.ID, "error", err)
		}
		s.sink.Publish(events.Event{
			Type:      events.TypePhaseChange,
			SessionID: sess.ID,
			Timestamp: time.Now(),
			Payload: events.PhaseChange{
				PhaseIndex: i,
				PhaseID:    phase.ID,
				PhaseName:  phase.Name,
				Agents:     phase.Agents,
			},
		})

		for _, agentID := range phase.Agents {
			if !active() || ctx.Err() != nil {
				break
			}
			if !s.waitForEscalations(ctx, sess.ID, active) {
				break
			}
			s.exec.RunTurn(ctx, sess, states, agentID, i)
		}
	}

	sess.Active = false
	// Persist with a fresh context so shutdown cancellation cannot
	// strand the session marked active.
	finishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.repo.SetSessionActive(finishCtx, sess.ID, false); err != nil {
		s.logger.Error("failed to persist session completion", "session_id", sess.ID, "error", err)
	}

	summary := s.exportSummary(finishCtx, sess.ID)
	s.sink.Publish(events.Event{
		Type:      events.TypeDeliberationComplete,
		SessionID: sess.ID,
		Timestamp: time.Now(),
		Payload:   summary,
	})
	s.logger.Info("deliberation finished", "session_id", sess.ID,
		"messages", summary.MessageCount, "has_synthesis", summary.HasSynthesis)
}

// waitForEscalations blocks while the session has pending escalations.
// Polled rather than event-driven; worst-case staleness is one poll
// interval. After the wait ceiling the scheduler proceeds anyway and
// the escalations stay pending. Returns false when the wait ended on a
// stop request or cancellation; no further turn may start then.
func (s *Scheduler) waitForEscalations(ctx context.Context, sessionID string, active func() bool) bool {
	pending := s.ledger.PendingCount(sessionID)
	if pending == 0 {
		return true
	}

	s.sink.Publish(events.Event{
		Type:      events.TypeWaitingForHuman,
		SessionID: sessionID,
		Timestamp: time.Now(),
		Payload:   events.WaitingForHuman{PendingCount: pending},
	})
	s.logger.Info("waiting for human input", "session_id", sessionID, "pending", pending)

	deadline := time.Now().Add(s.cfg.EscalationCeiling)
	ticker := time.NewTicker(s.cfg.EscalationPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if !active() {
				return false
			}
			if s.ledger.PendingCount(sessionID) == 0 {
				return true
			}
			if time.Now().After(deadline) {
				s.sink.Publish(events.Event{
					Type:      events.TypeEscalationTimeout,
					SessionID: sessionID,
					Timestamp: time.Now(),
					Payload:   events.WaitingForHuman{PendingCount: s.ledger.PendingCount(sessionID)},
				})
				s.logger.Warn("escalation wait ceiling reached, proceeding", "session_id", sessionID)
				return true
			}
		}
	}
}

func (s *Scheduler) exportSummary(ctx context.Context, sessionID string) events.ExportSummary {
	snap, err := s.repo.LoadSession(ctx, sessionID)
	if err != nil {
		s.logger.Error("failed to load session for export summary", "session_id", sessionID, "error", err)
		return events.ExportSummary{}
	}
	return Summarize(snap)
}

// Summarize computes the export-readiness summary from a snapshot.
func Summarize(snap *domain.Snapshot) events.ExportSummary {
	synthesisPhase, _ := roster.PhaseAt(roster.PhaseCount() - 1)
	summary := events.ExportSummary{
		MessageCount:    len(snap.Messages),
		EscalationCount: len(snap.Escalations),
	}
	for _, msg := range snap.Messages {
		if msg.AgentID != "" && msg.Phase == synthesisPhase.Name {
			summary.SynthesisMessageCount++
		}
	}
	summary.HasSynthesis = summary.SynthesisMessageCount > 0
	return summary
}
