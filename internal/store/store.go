// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/conclave/internal/domain"
)

// Repository defines the interface for persisting deliberation records.
type Repository interface {
	// CreateSession persists a new session record.
	CreateSession(ctx context.Context, sess *domain.Session) error

	// GetSession retrieves a session by id, or domain.ErrUnknownSession.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// UpdateSessionPhase records a phase transition.
	UpdateSessionPhase(ctx context.Context, sessionID string, phase int) error

	// SetSessionActive flips the active flag.
	SetSessionActive(ctx context.Context, sessionID string, active bool) error

	// DeleteSession removes the session and all of its messages,
	// escalations, and interjections.
	DeleteSession(ctx context.Context, sessionID string) error

	// AppendMessage persists one transcript message.
	AppendMessage(ctx context.Context, msg *domain.Message) error

	// CreateEscalation persists a pending escalation.
	CreateEscalation(ctx context.Context, esc *domain.Escalation) error

	// AnswerEscalation applies the pending -> answered transition.
	// Returns domain.ErrUnknownEscalation if the id does not belong to
	// the session, domain.ErrAlreadyAnswered if already answered.
	AnswerEscalation(ctx context.Context, sessionID, escalationID, answer string) (*domain.Escalation, error)

	// PendingEscalations lists a session's unanswered escalations in
	// creation order.
	PendingEscalations(ctx context.Context, sessionID string) ([]*domain.Escalation, error)

	// AppendInterjection persists one human interjection.
	AppendInterjection(ctx context.Context, ij *domain.Interjection) error

	// LoadSession returns the full session snapshot: the session row
	// plus all messages, escalations, and interjections, each ordered
	// by creation time.
	LoadSession(ctx context.Context, sessionID string) (*domain.Snapshot, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
