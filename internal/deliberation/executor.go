package deliberation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/conclave/internal/config"
	"github.com/ashureev/conclave/internal/domain"
	"github.com/ashureev/conclave/internal/events"
	"github.com/ashureev/conclave/internal/llm"
	"github.com/ashureev/conclave/internal/roster"
	"github.com/ashureev/conclave/internal/search"
	"github.com/ashureev/conclave/internal/store"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const maxEscalationsPerTurn = 5

// TurnExecutor runs one agent's contribution within a phase. A model
// or search failure is contained here: the turn produces no message,
// observers get an error notification, and the deliberation moves on.
type TurnExecutor struct {
	repo      store.Repository
	sink      events.Sink
	model     llm.Gateway
	searcher  search.Gateway // nil disables the search sub-protocol
	extractor Extractor
	ledger    *Ledger
	cfg       config.DeliberationConfig
	logger    *slog.Logger
}

// NewTurnExecutor creates a turn executor. searcher may be nil.
func NewTurnExecutor(repo store.Repository, sink events.Sink, model llm.Gateway, searcher search.Gateway,
	extractor Extractor, ledger *Ledger, cfg config.DeliberationConfig, logger *slog.Logger) *TurnExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &TurnExecutor{
		repo:      repo,
		sink:      sink,
		model:     model,
		searcher:  searcher,
		extractor: extractor,
		ledger:    ledger,
		cfg:       cfg,
		logger:    logger,
	}
}

// RunTurn executes one agent turn. It never returns an error: all
// failures are reported through the sink and leave the session intact.
func (e *TurnExecutor) RunTurn(ctx context.Context, sess *domain.Session, states *StateTracker, agentID string, phaseIndex int) {
	agent, err := roster.Lookup(agentID)
	if err != nil {
		e.reportError(sess.ID, agentID, fmt.Sprintf("turn skipped: %v", err))
		return
	}
	phase, ok := roster.PhaseAt(phaseIndex)
	if !ok {
		e.reportError(sess.ID, agentID, fmt.Sprintf("turn skipped: no phase at index %d", phaseIndex))
		return
	}

	states.Set(agentID, domain.AgentThinking)
	defer states.Set(agentID, domain.AgentIdle)

	snap, err := e.repo.LoadSession(ctx, sess.ID)
	if err != nil {
		e.reportError(sess.ID, agentID, fmt.Sprintf("load session: %v", err))
		return
	}

	closing := phase.ClosingInstructions != "" && lastAgentOf(phase) == agentID
	prompt := BuildContext(snap, BuildOptions{
		Agent:            agent,
		Phase:            phase,
		Closing:          closing,
		FileExcerptLimit: e.cfg.FileExcerptLimit,
	})

	output, err := e.model.Invoke(ctx, agent.SystemPrompt, []llm.Turn{{Role: "user", Content: prompt}})
	if err != nil {
		e.logger.Warn("model invocation failed", "session_id", sess.ID, "agent_id", agentID, "error", err)
		e.reportError(sess.ID, agentID, fmt.Sprintf("model call failed: %v", err))
		return
	}

	if agentID == roster.ResearcherID && e.searcher != nil {
		if queries := e.extractor.SearchQueries(output, e.cfg.MaxSearchesPerTurn); len(queries) > 0 {
			revised, err := e.runSearchPass(ctx, sess.ID, states, agent, prompt, output, queries)
			if err != nil {
				e.logger.Warn("search pass failed", "session_id", sess.ID, "agent_id", agentID, "error", err)
				e.reportError(sess.ID, agentID, fmt.Sprintf("search synthesis failed: %v", err))
				return
			}
			output = revised
		}
	}

	content := e.extractor.StripSearchDirectives(output)
	if content == "" {
		e.reportError(sess.ID, agentID, "model returned an empty contribution")
		return
	}

	states.Set(agentID, domain.AgentSpeaking)

	msg := &domain.Message{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		AgentID:   agentID,
		Content:   content,
		Phase:     phase.Name,
		CreatedAt: time.Now(),
	}
	if err := e.repo.AppendMessage(ctx, msg); err != nil {
		e.logger.Error("failed to persist message", "session_id", sess.ID, "agent_id", agentID, "error", err)
		e.reportError(sess.ID, agentID, fmt.Sprintf("persist message: %v", err))
		return
	}
	e.sink.Publish(events.Event{
		Type:      events.TypeMessage,
		SessionID: sess.ID,
		Timestamp: time.Now(),
		Payload:   msg,
	})

	for _, question := range e.extractor.EscalationQuestions(content, maxEscalationsPerTurn) {
		esc := &domain.Escalation{
			ID:        uuid.NewString(),
			SessionID: sess.ID,
			AgentID:   agentID,
			Question:  question,
			Status:    domain.EscalationPending,
			CreatedAt: time.Now(),
		}
		if err := e.ledger.Create(ctx, esc); err != nil {
			e.logger.Error("failed to record escalation", "session_id", sess.ID, "agent_id", agentID, "error", err)
		}
	}

	e.pause(ctx)
}

// RunFollowUp executes the single ad-hoc synthesis turn triggered by a
// human message on a finished session.
func (e *TurnExecutor) RunFollowUp(ctx context.Context, sessionID string) {
	agent, err := roster.Lookup(roster.SynthesizerID)
	if err != nil {
		e.reportError(sessionID, roster.SynthesizerID, fmt.Sprintf("follow-up skipped: %v", err))
		return
	}
	phase, _ := roster.PhaseAt(roster.PhaseCount() - 1)

	states := NewStateTracker(sessionID, e.sink)
	states.Set(agent.ID, domain.AgentThinking)
	defer states.Set(agent.ID, domain.AgentIdle)

	snap, err := e.repo.LoadSession(ctx, sessionID)
	if err != nil {
		e.reportError(sessionID, agent.ID, fmt.Sprintf("load session: %v", err))
		return
	}

	prompt := BuildContext(snap, BuildOptions{
		Agent:            agent,
		Phase:            phase,
		FollowUp:         true,
		FileExcerptLimit: e.cfg.FileExcerptLimit,
	})

	output, err := e.model.Invoke(ctx, agent.SystemPrompt, []llm.Turn{{Role: "user", Content: prompt}})
	if err != nil {
		e.logger.Warn("follow-up model invocation failed", "session_id", sessionID, "error", err)
		e.reportError(sessionID, agent.ID, fmt.Sprintf("model call failed: %v", err))
		return
	}
	content := e.extractor.StripSearchDirectives(output)
	if content == "" {
		e.reportError(sessionID, agent.ID, "model returned an empty contribution")
		return
	}

	states.Set(agent.ID, domain.AgentSpeaking)

	msg := &domain.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		AgentID:   agent.ID,
		Content:   content,
		Phase:     phase.Name,
		CreatedAt: time.Now(),
	}
	if err := e.repo.AppendMessage(ctx, msg); err != nil {
		e.reportError(sessionID, agent.ID, fmt.Sprintf("persist message: %v", err))
		return
	}
	e.sink.Publish(events.Event{
		Type:      events.TypeMessage,
		SessionID: sessionID,
		Timestamp: time.Now(),
		Payload:   msg,
	})
}

// runSearchPass executes the queries and issues the second model call.
// Per-query failures become failure markers in the results block; only
// a failed second model call aborts the pass.
func (e *TurnExecutor) runSearchPass(ctx context.Context, sessionID string, states *StateTracker,
	agent domain.Agent, prompt, firstOutput string, queries []string) (string, error) {

	states.Set(agent.ID, domain.AgentSearching)
	e.sink.Publish(events.Event{
		Type:      events.TypeSearchStarted,
		SessionID: sessionID,
		Timestamp: time.Now(),
		Payload:   events.SearchActivity{AgentID: agent.ID, Queries: queries},
	})

	results := make([]*search.Result, len(queries))
	failures := make([]error, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			res, err := e.searcher.Search(gctx, q)
			results[i], failures[i] = res, err
			return nil
		})
	}
	_ = g.Wait() // per-query errors are captured, never returned

	total := 0
	for _, res := range results {
		if res != nil {
			total += len(res.Sources)
		}
	}
	e.sink.Publish(events.Event{
		Type:      events.TypeSearchComplete,
		SessionID: sessionID,
		Timestamp: time.Now(),
		Payload:   events.SearchActivity{AgentID: agent.ID, Done: true, ResultCount: total},
	})

	states.Set(agent.ID, domain.AgentThinking)

	second := []llm.Turn{
		{Role: "user", Content: prompt},
		{Role: "assistant", Content: firstOutput},
		{Role: "user", Content: formatSearchResults(queries, results, failures)},
	}
	return e.model.Invoke(ctx, agent.SystemPrompt, second)
}

func formatSearchResults(queries []string, results []*search.Result, failures []error) string {
	var b strings.Builder
	b.WriteString("Search results:\n")
	for i, q := range queries {
		fmt.Fprintf(&b, "\n### Query: %q\n", q)
		switch {
		case failures[i] != nil:
			fmt.Fprintf(&b, "[search failed: %v]\n", failures[i])
		case results[i] == nil || len(results[i].Sources) == 0:
			b.WriteString("[no results]\n")
		default:
			if results[i].Summary != "" {
				fmt.Fprintf(&b, "Summary: %s\n", results[i].Summary)
			}
			for n, src := range results[i].Sources {
				fmt.Fprintf(&b, "%d. %s (%s)\n   %s\n", n+1, src.Title, src.URL, src.Snippet)
			}
		}
	}
	b.WriteString("\nIntegrate these findings into a revised contribution. Do not emit further SEARCH directives.\n")
	return b.String()
}

func (e *TurnExecutor) reportError(sessionID, agentID, reason string) {
	e.sink.Publish(events.Event{
		Type:      events.TypeError,
		SessionID: sessionID,
		Timestamp: time.Now(),
		Payload:   events.ErrorInfo{AgentID: agentID, Reason: reason},
	})
}

// pause inserts the fixed inter-turn cadence, cut short on cancellation.
func (e *TurnExecutor) pause(ctx context.Context) {
	if e.cfg.TurnPause <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(e.cfg.TurnPause):
	}
}

func lastAgentOf(phase roster.Phase) string {
	if len(phase.Agents) == 0 {
		return ""
	}
	return phase.Agents[len(phase.Agents)-1]
}
