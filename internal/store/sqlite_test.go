package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/conclave/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return repo
}

func testSession(id string) *domain.Session {
	return &domain.Session{
		ID:        id,
		Problem:   "Should we use microservices?",
		Active:    true,
		CreatedAt: time.Now(),
	}
}

func TestSessionRoundTrip(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	sess := testSession("s1")
	sess.Files = []domain.FileRef{{Name: "notes.txt", Size: 42, Mime: "text/plain", Text: "context"}}
	if err := repo.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	got, err := repo.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Problem != sess.Problem {
		t.Errorf("Expected problem %q, got %q", sess.Problem, got.Problem)
	}
	if !got.Active {
		t.Error("Expected session to be active")
	}
	if got.CurrentPhase != 0 {
		t.Errorf("Expected phase 0, got %d", got.CurrentPhase)
	}
	if len(got.Files) != 1 || got.Files[0].Name != "notes.txt" {
		t.Errorf("Expected one file ref notes.txt, got %+v", got.Files)
	}
}

func TestGetSessionUnknown(t *testing.T) {
	repo := newTestStore(t)

	_, err := repo.GetSession(context.Background(), "nope")
	if !errors.Is(err, domain.ErrUnknownSession) {
		t.Errorf("Expected ErrUnknownSession, got %v", err)
	}
}

func TestUpdateSessionPhaseAndActive(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	if err := repo.CreateSession(ctx, testSession("s1")); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if err := repo.UpdateSessionPhase(ctx, "s1", 3); err != nil {
		t.Fatalf("UpdateSessionPhase failed: %v", err)
	}
	if err := repo.SetSessionActive(ctx, "s1", false); err != nil {
		t.Fatalf("SetSessionActive failed: %v", err)
	}

	got, err := repo.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.CurrentPhase != 3 {
		t.Errorf("Expected phase 3, got %d", got.CurrentPhase)
	}
	if got.Active {
		t.Error("Expected session to be inactive")
	}

	if err := repo.UpdateSessionPhase(ctx, "missing", 1); !errors.Is(err, domain.ErrUnknownSession) {
		t.Errorf("Expected ErrUnknownSession for missing session, got %v", err)
	}
}

func TestMessagesOrderedByCreation(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	if err := repo.CreateSession(ctx, testSession("s1")); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	base := time.Now()
	for i, id := range []string{"m1", "m2", "m3"} {
		msg := &domain.Message{
			ID:        id,
			SessionID: "s1",
			AgentID:   "analyst",
			Content:   "contribution " + id,
			Phase:     "Framing",
			CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		}
		if err := repo.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("AppendMessage %s failed: %v", id, err)
		}
	}

	snap, err := repo.LoadSession(ctx, "s1")
	if err != nil {
		t.Fatalf("LoadSession failed: %v", err)
	}
	if len(snap.Messages) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(snap.Messages))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if snap.Messages[i].ID != want {
			t.Errorf("Message %d: expected %s, got %s", i, want, snap.Messages[i].ID)
		}
	}
}

func TestHumanMessageHasNoAgent(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	if err := repo.CreateSession(ctx, testSession("s1")); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	msg := &domain.Message{
		ID:        "m1",
		SessionID: "s1",
		Content:   "a human note",
		Phase:     "Framing",
		CreatedAt: time.Now(),
	}
	if err := repo.AppendMessage(ctx, msg); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	snap, err := repo.LoadSession(ctx, "s1")
	if err != nil {
		t.Fatalf("LoadSession failed: %v", err)
	}
	if snap.Messages[0].AgentID != "" {
		t.Errorf("Expected empty agent id, got %q", snap.Messages[0].AgentID)
	}
}

func TestEscalationLifecycle(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	if err := repo.CreateSession(ctx, testSession("s1")); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	esc := &domain.Escalation{
		ID:        "e1",
		SessionID: "s1",
		AgentID:   "analyst",
		Question:  "What is the budget?",
		Status:    domain.EscalationPending,
		CreatedAt: time.Now(),
	}
	if err := repo.CreateEscalation(ctx, esc); err != nil {
		t.Fatalf("CreateEscalation failed: %v", err)
	}

	pending, err := repo.PendingEscalations(ctx, "s1")
	if err != nil {
		t.Fatalf("PendingEscalations failed: %v", err)
	}
	if len(pending) != 1 || pending[0].Question != "What is the budget?" {
		t.Fatalf("Expected one pending escalation with question text, got %+v", pending)
	}

	answered, err := repo.AnswerEscalation(ctx, "s1", "e1", "About $50k")
	if err != nil {
		t.Fatalf("AnswerEscalation failed: %v", err)
	}
	if answered.Status != domain.EscalationAnswered {
		t.Errorf("Expected status answered, got %s", answered.Status)
	}
	if answered.Answer == nil || *answered.Answer != "About $50k" {
		t.Errorf("Expected answer to be recorded, got %v", answered.Answer)
	}
	if answered.AnsweredAt == nil || answered.AnsweredAt.Before(answered.CreatedAt) {
		t.Errorf("Expected answered_at >= created_at, got %v / %v", answered.AnsweredAt, answered.CreatedAt)
	}

	pending, err = repo.PendingEscalations(ctx, "s1")
	if err != nil {
		t.Fatalf("PendingEscalations failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Expected no pending escalations, got %d", len(pending))
	}
}

func TestAnswerEscalationRejections(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	if err := repo.CreateSession(ctx, testSession("s1")); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := repo.CreateSession(ctx, testSession("s2")); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	esc := &domain.Escalation{
		ID: "e1", SessionID: "s1", AgentID: "analyst",
		Question: "Q?", Status: domain.EscalationPending, CreatedAt: time.Now(),
	}
	if err := repo.CreateEscalation(ctx, esc); err != nil {
		t.Fatalf("CreateEscalation failed: %v", err)
	}

	// Wrong session id does not reach the escalation.
	if _, err := repo.AnswerEscalation(ctx, "s2", "e1", "A"); !errors.Is(err, domain.ErrUnknownEscalation) {
		t.Errorf("Expected ErrUnknownEscalation for wrong session, got %v", err)
	}
	if _, err := repo.AnswerEscalation(ctx, "s1", "missing", "A"); !errors.Is(err, domain.ErrUnknownEscalation) {
		t.Errorf("Expected ErrUnknownEscalation for missing id, got %v", err)
	}

	if _, err := repo.AnswerEscalation(ctx, "s1", "e1", "first"); err != nil {
		t.Fatalf("AnswerEscalation failed: %v", err)
	}
	if _, err := repo.AnswerEscalation(ctx, "s1", "e1", "second"); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Errorf("Expected ErrAlreadyAnswered, got %v", err)
	}

	// The rejected second answer must not overwrite the first.
	snap, err := repo.LoadSession(ctx, "s1")
	if err != nil {
		t.Fatalf("LoadSession failed: %v", err)
	}
	if *snap.Escalations[0].Answer != "first" {
		t.Errorf("Expected answer to stay %q, got %q", "first", *snap.Escalations[0].Answer)
	}
}

func TestDeleteSessionCascades(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	if err := repo.CreateSession(ctx, testSession("s1")); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := repo.AppendMessage(ctx, &domain.Message{
		ID: "m1", SessionID: "s1", AgentID: "analyst", Content: "x", Phase: "Framing", CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if err := repo.CreateEscalation(ctx, &domain.Escalation{
		ID: "e1", SessionID: "s1", AgentID: "analyst", Question: "Q?",
		Status: domain.EscalationPending, CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("CreateEscalation failed: %v", err)
	}
	if err := repo.AppendInterjection(ctx, &domain.Interjection{
		ID: "i1", SessionID: "s1", Content: "note", CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("AppendInterjection failed: %v", err)
	}

	if err := repo.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}

	if _, err := repo.GetSession(ctx, "s1"); !errors.Is(err, domain.ErrUnknownSession) {
		t.Errorf("Expected ErrUnknownSession after delete, got %v", err)
	}
	if pending, err := repo.PendingEscalations(ctx, "s1"); err != nil || len(pending) != 0 {
		t.Errorf("Expected no pending escalations after delete, got %v / %v", pending, err)
	}

	if err := repo.DeleteSession(ctx, "s1"); !errors.Is(err, domain.ErrUnknownSession) {
		t.Errorf("Expected ErrUnknownSession on second delete, got %v", err)
	}
}

func TestLoadSessionIncludesInterjections(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	if err := repo.CreateSession(ctx, testSession("s1")); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := repo.AppendInterjection(ctx, &domain.Interjection{
		ID: "i1", SessionID: "s1", Content: "keep costs low", CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("AppendInterjection failed: %v", err)
	}

	snap, err := repo.LoadSession(ctx, "s1")
	if err != nil {
		t.Fatalf("LoadSession failed: %v", err)
	}
	if len(snap.Interjections) != 1 || snap.Interjections[0].Content != "keep costs low" {
		t.Errorf("Expected one interjection, got %+v", snap.Interjections)
	}
	if len(snap.Messages) != 0 {
		t.Errorf("Expected empty messages, got %d", len(snap.Messages))
	}
}
