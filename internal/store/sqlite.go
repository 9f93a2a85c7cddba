package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/conclave/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db           *sql.DB
	escalationMu sync.Mutex // Serializes escalation transitions to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		problem TEXT NOT NULL,
		files_json TEXT,
		current_phase INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		message_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		agent_id TEXT,
		content TEXT NOT NULL,
		phase TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);

	CREATE TABLE IF NOT EXISTS escalations (
		escalation_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		question TEXT NOT NULL,
		answer TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at INTEGER NOT NULL,
		answered_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_escalations_session ON escalations(session_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_escalations_pending ON escalations(session_id) WHERE status = 'pending';

	CREATE TABLE IF NOT EXISTS interjections (
		interjection_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_interjections_session ON interjections(session_id, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateSession persists a new session record.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess *domain.Session) error {
	filesJSON, err := encodeFiles(sess.Files)
	if err != nil {
		return fmt.Errorf("encode file refs: %w", err)
	}

	query := `
	INSERT INTO sessions (session_id, problem, files_json, current_phase, active, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		sess.ID, sess.Problem, filesJSON,
		sess.CurrentPhase, boolToInt(sess.Active), sess.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by id.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	query := `
		SELECT session_id, problem, files_json, current_phase, active, created_at
		FROM sessions WHERE session_id = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownSession, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return sess, nil
}

// UpdateSessionPhase records a phase transition.
func (s *SQLiteStore) UpdateSessionPhase(ctx context.Context, sessionID string, phase int) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET current_phase = ? WHERE session_id = ?`, phase, sessionID)
	if err != nil {
		return fmt.Errorf("update session phase: %w", err)
	}
	return requireRow(result, sessionID)
}

// SetSessionActive flips the active flag.
func (s *SQLiteStore) SetSessionActive(ctx context.Context, sessionID string, active bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET active = ? WHERE session_id = ?`, boolToInt(active), sessionID)
	if err != nil {
		return fmt.Errorf("update session active: %w", err)
	}
	return requireRow(result, sessionID)
}

// DeleteSession removes the session and all dependent records.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.Warn("rollback after session delete failed", "session_id", sessionID, "error", rbErr)
		}
	}()

	result, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %q", domain.ErrUnknownSession, sessionID)
	}

	for _, stmt := range []string{
		`DELETE FROM messages WHERE session_id = ?`,
		`DELETE FROM escalations WHERE session_id = ?`,
		`DELETE FROM interjections WHERE session_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, sessionID); err != nil {
			return fmt.Errorf("delete session records: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session delete: %w", err)
	}
	return nil
}

// AppendMessage persists one transcript message.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	query := `
	INSERT INTO messages (message_id, session_id, agent_id, content, phase, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	var agentID interface{}
	if msg.AgentID != "" {
		agentID = msg.AgentID
	}

	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.SessionID, agentID, msg.Content, msg.Phase, msg.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// CreateEscalation persists a pending escalation.
func (s *SQLiteStore) CreateEscalation(ctx context.Context, esc *domain.Escalation) error {
	query := `
	INSERT INTO escalations (escalation_id, session_id, agent_id, question, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		esc.ID, esc.SessionID, esc.AgentID, esc.Question, string(esc.Status), esc.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert escalation: %w", err)
	}
	return nil
}

// AnswerEscalation applies the pending -> answered transition.
func (s *SQLiteStore) AnswerEscalation(ctx context.Context, sessionID, escalationID, answer string) (*domain.Escalation, error) {
	s.escalationMu.Lock()
	defer s.escalationMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin answer tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.Warn("rollback after escalation answer failed", "escalation_id", escalationID, "error", rbErr)
		}
	}()

	var status string
	row := tx.QueryRowContext(ctx,
		`SELECT status FROM escalations WHERE escalation_id = ? AND session_id = ?`,
		escalationID, sessionID)
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", domain.ErrUnknownEscalation, escalationID)
		}
		return nil, fmt.Errorf("scan escalation status: %w", err)
	}
	if status == string(domain.EscalationAnswered) {
		return nil, fmt.Errorf("%w: %q", domain.ErrAlreadyAnswered, escalationID)
	}

	answeredAt := time.Now()
	_, err = tx.ExecContext(ctx,
		`UPDATE escalations SET answer = ?, status = ?, answered_at = ? WHERE escalation_id = ?`,
		answer, string(domain.EscalationAnswered), answeredAt.UnixNano(), escalationID)
	if err != nil {
		return nil, fmt.Errorf("update escalation: %w", err)
	}

	esc, err := scanEscalation(tx.QueryRowContext(ctx,
		escalationColumns+` FROM escalations WHERE escalation_id = ?`, escalationID))
	if err != nil {
		return nil, fmt.Errorf("reload answered escalation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit escalation answer: %w", err)
	}
	return esc, nil
}

// PendingEscalations lists a session's unanswered escalations.
func (s *SQLiteStore) PendingEscalations(ctx context.Context, sessionID string) ([]*domain.Escalation, error) {
	rows, err := s.db.QueryContext(ctx,
		escalationColumns+` FROM escalations WHERE session_id = ? AND status = 'pending' ORDER BY created_at, escalation_id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("query pending escalations: %w", err)
	}
	defer closeRows(rows, "pending escalations")

	var out []*domain.Escalation
	for rows.Next() {
		esc, err := scanEscalation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending escalation: %w", err)
		}
		out = append(out, esc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending escalations: %w", err)
	}
	return out, nil
}

// AppendInterjection persists one human interjection.
func (s *SQLiteStore) AppendInterjection(ctx context.Context, ij *domain.Interjection) error {
	query := `
	INSERT INTO interjections (interjection_id, session_id, content, created_at)
	VALUES (?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query, ij.ID, ij.SessionID, ij.Content, ij.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert interjection: %w", err)
	}
	return nil
}

// LoadSession returns the full session snapshot.
func (s *SQLiteStore) LoadSession(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	snap := &domain.Snapshot{
		Session:       sess,
		Messages:      []*domain.Message{},
		Escalations:   []*domain.Escalation{},
		Interjections: []*domain.Interjection{},
	}

	msgRows, err := s.db.QueryContext(ctx,
		`SELECT message_id, session_id, agent_id, content, phase, created_at
		 FROM messages WHERE session_id = ? ORDER BY created_at, message_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer closeRows(msgRows, "messages")
	for msgRows.Next() {
		var msg domain.Message
		var agentID sql.NullString
		var createdAt int64
		if err := msgRows.Scan(&msg.ID, &msg.SessionID, &agentID, &msg.Content, &msg.Phase, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.AgentID = agentID.String
		msg.CreatedAt = time.Unix(0, createdAt)
		snap.Messages = append(snap.Messages, &msg)
	}
	if err := msgRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	escRows, err := s.db.QueryContext(ctx,
		escalationColumns+` FROM escalations WHERE session_id = ? ORDER BY created_at, escalation_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query escalations: %w", err)
	}
	defer closeRows(escRows, "escalations")
	for escRows.Next() {
		esc, err := scanEscalation(escRows)
		if err != nil {
			return nil, fmt.Errorf("scan escalation row: %w", err)
		}
		snap.Escalations = append(snap.Escalations, esc)
	}
	if err := escRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate escalations: %w", err)
	}

	ijRows, err := s.db.QueryContext(ctx,
		`SELECT interjection_id, session_id, content, created_at
		 FROM interjections WHERE session_id = ? ORDER BY created_at, interjection_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query interjections: %w", err)
	}
	defer closeRows(ijRows, "interjections")
	for ijRows.Next() {
		var ij domain.Interjection
		var createdAt int64
		if err := ijRows.Scan(&ij.ID, &ij.SessionID, &ij.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan interjection row: %w", err)
		}
		ij.CreatedAt = time.Unix(0, createdAt)
		snap.Interjections = append(snap.Interjections, &ij)
	}
	if err := ijRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interjections: %w", err)
	}

	return snap, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
