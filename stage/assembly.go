package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/fateloom/fateloom/core"
)

// ContextAssembly builds the bounded context window handed to the referee
// and narrator: campaign brief plus character sheet plus as much recent turn
// history as fits the token budget. Eviction is age-based: when the budget
// is exceeded the oldest turns go first and are replaced by a short rolling
// summary, since recency is what matters for narrative coherence.
type ContextAssembly struct {
	// Budget is the approximate token budget for retained history.
	Budget int
}

// Name implements Stage.
func (a *ContextAssembly) Name() string { return "context_assembly" }

// Run implements Stage.
func (a *ContextAssembly) Run(_ context.Context, st *State) error {
	kept := st.History
	if a.Budget > 0 {
		used := 0
		keepFrom := len(st.History)
		for i := len(st.History) - 1; i >= 0; i-- {
			cost := estimateTokens(st.History[i].Narrative)
			if used+cost > a.Budget {
				break
			}
			used += cost
			keepFrom = i
		}
		if evicted := st.History[:keepFrom]; len(evicted) > 0 {
			st.Summary = summarize(evicted)
		}
		kept = st.History[keepFrom:]
	}

	window := []core.Message{{Role: "system", Content: campaignBrief(st)}}
	if st.Summary != "" {
		window = append(window, core.Message{Role: "system", Content: "Earlier events, summarized: " + st.Summary})
	}
	for _, turn := range kept {
		if turn.Narrative != "" {
			window = append(window, core.Message{Role: "assistant", Content: turn.Narrative})
		}
	}
	window = append(window, core.Message{Role: "user", Content: playerAction(st)})

	st.Window = window
	return nil
}

// estimateTokens approximates the token cost of text. Four characters per
// token is close enough for budget enforcement.
func estimateTokens(text string) int { return len(text)/4 + 1 }

// summarize collapses evicted turns into one rolling line, oldest first.
func summarize(evicted []*core.TurnResult) string {
	var parts []string
	for _, turn := range evicted {
		if s := firstSentence(turn.Narrative); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, ".!?"); i >= 0 {
		text = text[:i+1]
	}
	const maxLen = 140
	if len(text) > maxLen {
		text = text[:maxLen]
	}
	return text
}

func campaignBrief(st *State) string {
	var sb strings.Builder
	if st.Campaign != nil {
		fmt.Fprintf(&sb, "Campaign: %s. Setting: %s. Tone: %s.", st.Campaign.Name, st.Campaign.Setting, st.Campaign.Tone)
		if st.Campaign.Homebrew != "" {
			fmt.Fprintf(&sb, " House rules: %s", st.Campaign.Homebrew)
		}
	}
	if c := st.ActingCharacter(); c != nil {
		fmt.Fprintf(&sb, "\nActive character: %s, a %s %s (%d HP).", c.Name, c.Race, c.Class, c.State.HitPoints)
		if c.Backstory != "" {
			fmt.Fprintf(&sb, " Backstory: %s", c.Backstory)
		}
	}
	return sb.String()
}

func playerAction(st *State) string {
	if c := st.ActingCharacter(); c != nil {
		return fmt.Sprintf("%s: %s", c.Name, st.Request.Input)
	}
	return st.Request.Input
}
