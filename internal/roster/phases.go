package roster

// Phase is one named stage of the deliberation. Agents lists the ids
// that must run, in order. ClosingInstructions, when non-empty, is
// appended to the context of the phase's final agent.
type Phase struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Agents              []string `json:"agents"`
	ClosingInstructions string   `json:"-"`
}

const synthesisClosing = `Structure your final contribution with exactly these sections:
1. Key Findings & Recommendations
2. Confidence Level for each recommendation (high/medium/low, with reasoning)
3. Open Uncertainties
4. Dissenting Views Considered
5. Recommended Next Steps`

var phases = []Phase{
	{
		ID:     "framing",
		Name:   "Framing",
		Agents: []string{"analyst", "researcher", "pragmatist"},
	},
	{
		ID:     "divergence",
		Name:   "Divergence",
		Agents: []string{"visionary", "researcher", "analyst", "pragmatist"},
	},
	{
		ID:     "convergence",
		Name:   "Convergence",
		Agents: []string{"analyst", "pragmatist", "skeptic", "synthesizer"},
	},
	{
		ID:     "redteam",
		Name:   "RedTeam",
		Agents: []string{"skeptic", "researcher", "visionary"},
	},
	{
		ID:                  "synthesis",
		Name:                "Synthesis",
		Agents:              []string{SynthesizerID},
		ClosingInstructions: synthesisClosing,
	},
}

// Phases returns the phase plan in execution order. The returned slice
// is a copy; the plan itself is immutable.
func Phases() []Phase {
	out := make([]Phase, len(phases))
	copy(out, phases)
	return out
}

// PhaseAt returns the phase at the given index and whether it exists.
func PhaseAt(i int) (Phase, bool) {
	if i < 0 || i >= len(phases) {
		return Phase{}, false
	}
	return phases[i], true
}

// PhaseCount returns the number of phases in the plan.
func PhaseCount() int {
	return len(phases)
}
