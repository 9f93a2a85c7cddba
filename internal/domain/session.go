// Package domain defines the core records of a deliberation.
package domain

import (
	"time"
)

// Session is one deliberation over a submitted problem.
// Owned exclusively by its scheduler loop while Active; read-only once
// the loop has finished.
type Session struct {
	ID           string    `json:"id"`
	Problem      string    `json:"problem"`
	Files        []FileRef `json:"files,omitempty"`
	CurrentPhase int       `json:"current_phase"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// FileRef describes a file attached to the problem statement. Text is
// the pre-extracted content, empty for binary files.
type FileRef struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Mime string `json:"mime"`
	Text string `json:"text,omitempty"`
}
