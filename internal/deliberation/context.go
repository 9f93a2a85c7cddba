package deliberation

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ashureev/conclave/internal/domain"
	"github.com/ashureev/conclave/internal/roster"
)

// BuildOptions selects the target of one context build.
type BuildOptions struct {
	Agent            domain.Agent
	Phase            roster.Phase
	Closing          bool // append the phase's closing instructions
	FollowUp         bool // post-completion follow-up turn
	FileExcerptLimit int
}

// BuildContext assembles the prompt input for one agent turn from the
// session snapshot. Deterministic for identical inputs: the only
// timestamps it emits are the ones already recorded on interjections.
// Never mutates the snapshot.
func BuildContext(snap *domain.Snapshot, opts BuildOptions) string {
	var b strings.Builder

	b.WriteString("Problem statement:\n")
	b.WriteString(snap.Session.Problem)
	b.WriteString("\n\nCurrent phase: ")
	b.WriteString(opts.Phase.Name)
	b.WriteString("\n")

	writeFileExcerpts(&b, snap.Session.Files, opts.FileExcerptLimit)
	writeInterjections(&b, snap.Interjections)
	writeTranscript(&b, snap.Messages)
	writeAnsweredEscalations(&b, snap.Escalations, opts.Agent.ID)

	b.WriteString("\n")
	if opts.FollowUp {
		fmt.Fprintf(&b, "The deliberation has concluded. As %s, respond to the human's latest message in light of the full transcript above, staying consistent with your assigned persona.\n",
			opts.Agent.Name)
	} else {
		fmt.Fprintf(&b, "Contribute to the %s phase now. Respond as %s, staying consistent with your assigned persona.\n",
			opts.Phase.Name, opts.Agent.Name)
	}

	if opts.Closing && opts.Phase.ClosingInstructions != "" {
		b.WriteString("\n")
		b.WriteString(opts.Phase.ClosingInstructions)
		b.WriteString("\n")
	}

	return b.String()
}

func writeFileExcerpts(b *strings.Builder, files []domain.FileRef, limit int) {
	if len(files) == 0 {
		return
	}
	b.WriteString("\nAttached files:\n")
	for _, f := range files {
		if f.Text == "" {
			fmt.Fprintf(b, "--- %s (%s, %d bytes; no extracted text) ---\n", f.Name, f.Mime, f.Size)
			continue
		}
		fmt.Fprintf(b, "--- %s (%s, %d bytes) ---\n", f.Name, f.Mime, f.Size)
		text := f.Text
		if limit > 0 && len(text) > limit {
			// Trim back to a rune boundary so the cap never splits a
			// multi-byte character.
			cut := limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			b.WriteString(text[:cut])
			fmt.Fprintf(b, "\n[truncated at %d characters]\n", limit)
		} else {
			b.WriteString(text)
			b.WriteString("\n")
		}
	}
}

func writeInterjections(b *strings.Builder, ijs []*domain.Interjection) {
	if len(ijs) == 0 {
		return
	}
	b.WriteString("\nHuman notes:\n")
	for _, ij := range ijs {
		fmt.Fprintf(b, "[%s] %s\n", ij.CreatedAt.UTC().Format(time.RFC3339), ij.Content)
	}
}

func writeTranscript(b *strings.Builder, msgs []*domain.Message) {
	if len(msgs) == 0 {
		return
	}
	b.WriteString("\nTranscript so far:\n")
	for _, msg := range msgs {
		fmt.Fprintf(b, "%s: %s\n\n", speakerLabel(msg.AgentID), msg.Content)
	}
}

func writeAnsweredEscalations(b *strings.Builder, escs []*domain.Escalation, agentID string) {
	// The target agent's own answers come first, then everyone else's,
	// each block in creation order.
	for _, esc := range escs {
		if esc.Status != domain.EscalationAnswered || esc.Answer == nil || esc.AgentID != agentID {
			continue
		}
		fmt.Fprintf(b, "\nHuman answered your question %q: %s\n", esc.Question, *esc.Answer)
	}
	for _, esc := range escs {
		if esc.Status != domain.EscalationAnswered || esc.Answer == nil || esc.AgentID == agentID {
			continue
		}
		fmt.Fprintf(b, "\nHuman answered a question from %s (%q): %s\n",
			speakerLabel(esc.AgentID), esc.Question, *esc.Answer)
	}
}

func speakerLabel(agentID string) string {
	if agentID == "" {
		return "Human"
	}
	if a, err := roster.Lookup(agentID); err == nil {
		return a.Name
	}
	return agentID
}
