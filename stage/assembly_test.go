package stage

import (
	"context"
	"strings"
	"testing"

	"github.com/fateloom/fateloom/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func historyTurn(seq uint64, narrative string) *core.TurnResult {
	return &core.TurnResult{SessionID: "s1", Sequence: seq, Narrative: narrative, Status: core.TurnOK}
}

func TestContextAssembly_WindowShape(t *testing.T) {
	st := &State{
		Request:  core.TurnRequest{SessionID: "s1", CharacterID: "c1", Input: "I search the room"},
		Campaign: &core.Campaign{Name: "Heroic Fantasy", Setting: "high fantasy", Tone: "heroic"},
		Characters: []*core.Character{
			{ID: "c1", Name: "Elf Ranger", Race: "elf", Class: "ranger", State: core.CharacterState{HitPoints: 12}},
		},
		History: []*core.TurnResult{historyTurn(1, "The tavern falls silent.")},
	}

	require.NoError(t, (&ContextAssembly{Budget: 4000}).Run(context.Background(), st))

	require.Len(t, st.Window, 3)
	assert.Equal(t, "system", st.Window[0].Role)
	assert.Contains(t, st.Window[0].Content, "Heroic Fantasy")
	assert.Contains(t, st.Window[0].Content, "Elf Ranger")
	assert.Equal(t, "assistant", st.Window[1].Role)
	assert.Equal(t, "Elf Ranger: I search the room", st.Window[2].Content)
}

func TestContextAssembly_EvictsOldestIntoSummary(t *testing.T) {
	long := strings.Repeat("The battle raged on and on across the ruined keep. ", 10)
	st := &State{
		Request: core.TurnRequest{SessionID: "s1", Input: "I rest"},
		History: []*core.TurnResult{
			historyTurn(1, "An ancient gate creaked open! "+long),
			historyTurn(2, "A dragon landed. "+long),
			historyTurn(3, "You slipped past the guards. "+long),
		},
	}

	// Budget fits roughly one long narrative; the two oldest must evict.
	require.NoError(t, (&ContextAssembly{Budget: 150}).Run(context.Background(), st))

	assert.Contains(t, st.Summary, "An ancient gate creaked open!")
	assert.Contains(t, st.Summary, "A dragon landed.")
	assert.NotContains(t, st.Summary, "You slipped past the guards.")

	var kept []string
	for _, msg := range st.Window {
		if msg.Role == "assistant" {
			kept = append(kept, msg.Content)
		}
	}
	require.Len(t, kept, 1)
	assert.Contains(t, kept[0], "You slipped past the guards.")
}

func TestContextAssembly_NoHistory(t *testing.T) {
	st := &State{Request: core.TurnRequest{SessionID: "s1", Input: "I look around"}}

	require.NoError(t, (&ContextAssembly{Budget: 100}).Run(context.Background(), st))

	assert.Empty(t, st.Summary)
	require.Len(t, st.Window, 2)
	assert.Equal(t, "user", st.Window[1].Role)
}
