package deliberation

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/conclave/internal/config"
	"github.com/ashureev/conclave/internal/events"
	"github.com/ashureev/conclave/internal/llm"
	"github.com/ashureev/conclave/internal/search"
	"github.com/ashureev/conclave/internal/store"
)

// recordSink captures every published event for assertions.
type recordSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *recordSink) Publish(evt events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

func (s *recordSink) byType(typ events.Type) []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Event
	for _, evt := range s.events {
		if evt.Type == typ {
			out = append(out, evt)
		}
	}
	return out
}

// waitFor polls until at least n events of the given type arrived.
func (s *recordSink) waitFor(t *testing.T, typ events.Type, n int, timeout time.Duration) []events.Event {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		got := s.byType(typ)
		if len(got) >= n {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %d %q events, have %d", n, typ, len(got))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type modelCall struct {
	N      int
	System string
	Conv   []llm.Turn
}

// fakeModel scripts gateway responses and records every call.
type fakeModel struct {
	mu      sync.Mutex
	calls   []modelCall
	respond func(ctx context.Context, call modelCall) (string, error)
}

func (m *fakeModel) Invoke(ctx context.Context, systemPrompt string, conversation []llm.Turn) (string, error) {
	m.mu.Lock()
	call := modelCall{N: len(m.calls) + 1, System: systemPrompt, Conv: conversation}
	m.calls = append(m.calls, call)
	respond := m.respond
	m.mu.Unlock()

	if respond != nil {
		return respond(ctx, call)
	}
	return fmt.Sprintf("contribution %d", call.N), nil
}

func (m *fakeModel) callsFor(agentName string) []modelCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []modelCall
	for _, c := range m.calls {
		if strings.Contains(c.System, agentName) {
			out = append(out, c)
		}
	}
	return out
}

// fakeSearch records queries and returns a canned result set.
type fakeSearch struct {
	mu      sync.Mutex
	queries []string
	result  *search.Result
	err     error
}

func (s *fakeSearch) Search(ctx context.Context, query string) (*search.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	return s.result, s.err
}

func (s *fakeSearch) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

type testEnv struct {
	repo   store.Repository
	sink   *recordSink
	model  *fakeModel
	mgr    *Manager
	ledger *Ledger
}

func testDeliberationConfig() config.DeliberationConfig {
	return config.DeliberationConfig{
		TurnPause:          0,
		EscalationPoll:     10 * time.Millisecond,
		EscalationCeiling:  10 * time.Second,
		FileExcerptLimit:   10000,
		MaxSearchesPerTurn: 5,
	}
}

func newTestEnv(t *testing.T, cfg config.DeliberationConfig, searcher search.Gateway) *testEnv {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})

	logger := slog.Default()
	sink := &recordSink{}
	model := &fakeModel{}
	ledger := NewLedger(repo, sink)
	exec := NewTurnExecutor(repo, sink, model, searcher, MarkerExtractor{}, ledger, cfg, logger)
	mgr := NewManager(repo, sink, exec, ledger, cfg, logger)

	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mgr.Shutdown(shutdownCtx)
	})

	return &testEnv{repo: repo, sink: sink, model: model, mgr: mgr, ledger: ledger}
}

// waitComplete blocks until the session's deliberation-complete event.
func (e *testEnv) waitComplete(t *testing.T, sessionID string) events.Event {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for {
		for _, evt := range e.sink.byType(events.TypeDeliberationComplete) {
			if evt.SessionID == sessionID {
				return evt
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for deliberation-complete for %s", sessionID)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
