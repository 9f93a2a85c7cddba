package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/conclave/internal/domain"
)

const escalationColumns = `SELECT escalation_id, session_id, agent_id, question, answer, status, created_at, answered_at`

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var sess domain.Session
	var filesJSON sql.NullString
	var active int
	var createdAt int64

	err := row.Scan(&sess.ID, &sess.Problem, &filesJSON, &sess.CurrentPhase, &active, &createdAt)
	if err != nil {
		return nil, err
	}

	sess.Active = active != 0
	sess.CreatedAt = time.Unix(0, createdAt)
	if filesJSON.Valid && filesJSON.String != "" {
		if err := json.Unmarshal([]byte(filesJSON.String), &sess.Files); err != nil {
			return nil, fmt.Errorf("decode file refs: %w", err)
		}
	}
	return &sess, nil
}

func scanEscalation(row rowScanner) (*domain.Escalation, error) {
	var esc domain.Escalation
	var answer sql.NullString
	var status string
	var createdAt int64
	var answeredAt sql.NullInt64

	err := row.Scan(&esc.ID, &esc.SessionID, &esc.AgentID, &esc.Question,
		&answer, &status, &createdAt, &answeredAt)
	if err != nil {
		return nil, err
	}

	esc.Status = domain.EscalationStatus(status)
	esc.CreatedAt = time.Unix(0, createdAt)
	if answer.Valid {
		esc.Answer = &answer.String
	}
	if answeredAt.Valid {
		ts := time.Unix(0, answeredAt.Int64)
		esc.AnsweredAt = &ts
	}
	return &esc, nil
}

func encodeFiles(files []domain.FileRef) (interface{}, error) {
	if len(files) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(files)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func requireRow(result sql.Result, sessionID string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %q", domain.ErrUnknownSession, sessionID)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "query", what, "error", err)
	}
}
