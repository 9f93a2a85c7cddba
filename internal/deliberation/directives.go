// Package deliberation implements the deliberation orchestrator: turn
// execution, escalation gating, and the phase-by-phase scheduler.
package deliberation

import (
	"regexp"
	"strings"
)

// Extractor pulls structured directives out of free-text model output.
// The parsing strategy is pluggable so the upstream text contract can
// change without touching the scheduler.
type Extractor interface {
	// SearchQueries returns up to max embedded search requests, in
	// order of appearance.
	SearchQueries(output string, max int) []string

	// EscalationQuestions returns up to max embedded human-input
	// requests, in order of appearance.
	EscalationQuestions(output string, max int) []string

	// StripSearchDirectives removes search-request lines so they never
	// reach the persisted transcript.
	StripSearchDirectives(output string) string
}

var (
	searchDirectiveRe = regexp.MustCompile(`(?m)^\s*SEARCH:\s*(.+?)\s*$`)
	escalationRe      = regexp.MustCompile(`(?m)^\s*NEED_HUMAN_INPUT:\s*(.+?)\s*$`)
)

// MarkerExtractor scans for the line-oriented sentinel markers emitted
// by the agent prompts: "SEARCH: <query>" and "NEED_HUMAN_INPUT:
// <question>".
type MarkerExtractor struct{}

// SearchQueries returns the literal queries of SEARCH directives.
func (MarkerExtractor) SearchQueries(output string, max int) []string {
	return capture(searchDirectiveRe, output, max)
}

// EscalationQuestions returns the literal questions of
// NEED_HUMAN_INPUT directives.
func (MarkerExtractor) EscalationQuestions(output string, max int) []string {
	return capture(escalationRe, output, max)
}

// StripSearchDirectives removes SEARCH lines from the output.
func (MarkerExtractor) StripSearchDirectives(output string) string {
	lines := strings.Split(output, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if searchDirectiveRe.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func capture(re *regexp.Regexp, output string, max int) []string {
	if max <= 0 {
		return nil
	}
	matches := re.FindAllStringSubmatch(output, max)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

var _ Extractor = MarkerExtractor{}
