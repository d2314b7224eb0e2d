package stage

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/fateloom/fateloom/core"
)

// freeformRuling is the generic fallback applied when the referee cannot
// produce a ruling: the action is treated as freeform narration.
const freeformRuling = "Freeform: no rules check applies; narrate the action as stated."

var diceSpecRe = regexp.MustCompile(`\b(\d+d\d+(?:[+-]\d+)?)\b`)

// checkKeywords are action verbs that call for an ability check when the
// player did not name a dice spec explicitly.
var checkKeywords = []string{
	"search", "attack", "strike", "sneak", "hide", "persuade",
	"climb", "jump", "dodge", "grapple", "pick the lock", "disarm",
}

// Referee interprets the player's stated intent against campaign rules,
// invoking the dice engine for checks, and asks the provider for a ruling.
type Referee struct {
	Provider core.Provider
	Retry    retryPolicy
}

// Name implements Stage.
func (r *Referee) Name() string { return "referee" }

// Run implements Stage. Dice are resolved before the provider call so the
// roll stream position is consumed deterministically even when the ruling
// itself fails and falls back.
func (r *Referee) Run(ctx context.Context, st *State) error {
	ResolveDice(st)

	prompt := r.buildPrompt(st)
	out, attempts, err := r.Retry.do(ctx, func(ctx context.Context) (string, error) {
		return r.Provider.ChatComplete(ctx, prompt, core.Params{MaxTokens: 512})
	})
	st.lastAttempts = attempts
	if err != nil {
		return fmt.Errorf("referee ruling: %w", err)
	}

	st.Ruling = strings.TrimSpace(out)
	return nil
}

// ResolveDice rolls any checks the player's action calls for: explicit specs
// in the input first, otherwise a d20 check when an action keyword matches.
// Outcomes are appended to the state along with a per-character delta.
func ResolveDice(st *State) {
	if st.Roller == nil {
		return
	}

	specs := diceSpecRe.FindAllString(strings.ToLower(st.Request.Input), -1)
	if len(specs) == 0 && needsCheck(st.Request.Input) {
		specs = []string{"1d20"}
	}

	for _, spec := range specs {
		roll, err := st.Roller.Roll(spec)
		if err != nil {
			// Malformed embedded spec; the roll index was still consumed.
			continue
		}
		st.Rolls = append(st.Rolls, roll)
		if c := st.ActingCharacter(); c != nil {
			st.Deltas = append(st.Deltas, core.StateDelta{
				CharacterID: c.ID,
				Changes:     map[string]any{"last_roll_spec": roll.Spec, "last_roll_total": roll.Total},
			})
		}
	}
}

func needsCheck(input string) bool {
	lower := strings.ToLower(input)
	for _, kw := range checkKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (r *Referee) buildPrompt(st *State) []core.Message {
	var sb strings.Builder
	sb.WriteString("You are the rules referee for a tabletop RPG session. ")
	sb.WriteString("Rule on the player's stated action in one or two sentences.")
	if st.Campaign != nil && st.Campaign.Homebrew != "" {
		sb.WriteString(" House rules: " + st.Campaign.Homebrew)
	}

	msgs := []core.Message{{Role: "system", Content: sb.String()}}

	var action strings.Builder
	action.WriteString(playerAction(st))
	for _, roll := range st.Rolls {
		fmt.Fprintf(&action, "\nRolled %s: %v%+d = %d", roll.Spec, roll.Dice, roll.Modifier, roll.Total)
	}
	return append(msgs, core.Message{Role: "user", Content: action.String()})
}
