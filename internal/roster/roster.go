// Package roster holds the fixed deliberation cast and phase plan.
// Both are immutable reference data for the lifetime of the process.
package roster

import (
	"fmt"

	"github.com/ashureev/conclave/internal/domain"
)

// ResearcherID identifies the one search-empowered role.
const ResearcherID = "researcher"

// SynthesizerID identifies the designated synthesis agent.
const SynthesizerID = "synthesizer"

var agents = []domain.Agent{
	{
		ID:    "analyst",
		Name:  "The Analyst",
		Glyph: "◆",
		Role:  "structured decomposition",
		SystemPrompt: "You are The Analyst. Break the problem into its load-bearing parts: " +
			"assumptions, variables, dependencies, and what is actually being decided. " +
			"Be precise and unemotional. Quantify where possible.",
	},
	{
		ID:    "visionary",
		Name:  "The Visionary",
		Glyph: "✦",
		Role:  "lateral generative thinking",
		SystemPrompt: "You are The Visionary. Generate options others would not. " +
			"Reframe the problem, borrow from unrelated fields, and follow second-order " +
			"consequences. Prefer bold over safe; feasibility is someone else's job.",
	},
	{
		ID:    "skeptic",
		Name:  "The Skeptic",
		Glyph: "▲",
		Role:  "adversarial stress-testing",
		SystemPrompt: "You are The Skeptic. Attack the strongest current position: hidden " +
			"assumptions, failure modes, incentives, survivorship bias. Steelman before " +
			"you strike. Concede points that survive scrutiny.",
	},
	{
		ID:    ResearcherID,
		Name:  "The Researcher",
		Glyph: "●",
		Role:  "evidence gathering",
		SystemPrompt: "You are The Researcher. Ground the discussion in evidence: prior art, " +
			"data, case studies, base rates. When you need current external information, " +
			"emit a line of the form 'SEARCH: <query>' (at most five). Cite what you rely on.",
	},
	{
		ID:    "pragmatist",
		Name:  "The Pragmatist",
		Glyph: "■",
		Role:  "feasibility and constraints",
		SystemPrompt: "You are The Pragmatist. Drag everything back to cost, time, skills, " +
			"and organizational reality. Identify the cheapest reversible next step and " +
			"what would have to be true for the ambitious options to work.",
	},
	{
		ID:    SynthesizerID,
		Name:  "The Synthesizer",
		Glyph: "◉",
		Role:  "integration",
		SystemPrompt: "You are The Synthesizer. Integrate the panel's contributions into a " +
			"coherent position. Preserve genuine disagreement rather than papering over it. " +
			"Your output is what the human takes away.",
	},
}

var byID = func() map[string]domain.Agent {
	m := make(map[string]domain.Agent, len(agents))
	for _, a := range agents {
		m[a.ID] = a
	}
	return m
}()

// Lookup returns the agent with the given id.
func Lookup(id string) (domain.Agent, error) {
	a, ok := byID[id]
	if !ok {
		return domain.Agent{}, fmt.Errorf("%w: %q", domain.ErrUnknownAgent, id)
	}
	return a, nil
}

// All returns the cast in stable display order. The returned slice is
// a copy; callers may not mutate the roster.
func All() []domain.Agent {
	out := make([]domain.Agent, len(agents))
	copy(out, agents)
	return out
}
