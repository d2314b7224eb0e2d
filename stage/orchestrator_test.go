package stage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/fateloom/fateloom/config"
	"github.com/fateloom/fateloom/core"
	"github.com/fateloom/fateloom/dice"
	"github.com/fateloom/fateloom/logging"
	"github.com/fateloom/fateloom/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRetry() retryPolicy {
	return retryPolicy{maxTries: 3, baseInterval: time.Millisecond, maxInterval: 5 * time.Millisecond}
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.RetryBaseInterval = time.Millisecond
	cfg.RetryMaxInterval = 5 * time.Millisecond
	cfg.SceneArtTimeout = time.Second
	return cfg
}

func turnState(input string) *State {
	return &State{
		Request:  core.TurnRequest{SessionID: "s1", CharacterID: "c1", Input: input},
		Campaign: &core.Campaign{Name: "Heroic Fantasy", Setting: "high fantasy", Tone: "heroic"},
		Characters: []*core.Character{
			{ID: "c1", CampaignID: "camp1", Name: "Elf Ranger", Race: "elf", Class: "ranger"},
		},
		Roller: dice.NewRoller(42, 0),
	}
}

// stubProvider fails chat calls selectively so referee and narrator
// outcomes can be scripted independently.
type stubProvider struct {
	*model.MockProvider
	failWhen func(system string) error
}

func (s *stubProvider) ChatComplete(ctx context.Context, messages []core.Message, params core.Params) (string, error) {
	if s.failWhen != nil && len(messages) > 0 {
		if err := s.failWhen(messages[0].Content); err != nil {
			return "", err
		}
	}
	return s.MockProvider.ChatComplete(ctx, messages, params)
}

func TestOrchestrator_RunTurn_OK(t *testing.T) {
	provider := model.NewMockProvider()
	o := NewOrchestrator(provider, testConfig(), logging.NoOpLogger{})
	st := turnState("I search the room")

	result := o.RunTurn(context.Background(), st)

	assert.Equal(t, core.TurnOK, result.Status)
	assert.NotEmpty(t, result.Narrative)
	assert.NotEmpty(t, result.Ruling)
	require.Len(t, result.Rolls, 1)
	assert.Equal(t, "1d20", result.Rolls[0].Spec)

	stages := make([]string, 0, len(result.Trace))
	for _, tr := range result.Trace {
		stages = append(stages, tr.Stage)
	}
	assert.Equal(t, []string{"context_assembly", "referee", "narrator"}, stages)
}

func TestOrchestrator_NarratorFailsRefereeSucceeds_Degraded(t *testing.T) {
	provider := &stubProvider{MockProvider: model.NewMockProvider()}
	o := NewOrchestrator(provider, testConfig(), logging.NoOpLogger{})

	// Prime the narrative cache with a successful turn.
	first := o.RunTurn(context.Background(), turnState("I scout ahead"))
	require.Equal(t, core.TurnOK, first.Status)
	cached := first.Narrative

	// Now fail only the narrator. Match on the prompt prefix: the prompts
	// mention each other's roles further in, so substrings are ambiguous.
	provider.failWhen = func(system string) error {
		if strings.HasPrefix(system, "You are the narrator") {
			return &core.ProviderFatalError{Op: "chat", Err: assert.AnError}
		}
		return nil
	}

	result := o.RunTurn(context.Background(), turnState("I attack the goblin"))

	assert.Equal(t, core.TurnDegraded, result.Status)
	assert.NotEmpty(t, result.Ruling)
	assert.Equal(t, cached, result.Narrative)

	var narratorTrace *core.StageTrace
	for i := range result.Trace {
		if result.Trace[i].Stage == "narrator" {
			narratorTrace = &result.Trace[i]
		}
	}
	require.NotNil(t, narratorTrace)
	assert.NotEmpty(t, narratorTrace.Error)
}

func TestOrchestrator_RefereeFailsOnly_DegradedFreeform(t *testing.T) {
	provider := &stubProvider{MockProvider: model.NewMockProvider()}
	provider.failWhen = func(system string) error {
		if strings.HasPrefix(system, "You are the rules referee") {
			return &core.ProviderFatalError{Op: "chat", Err: assert.AnError}
		}
		return nil
	}
	o := NewOrchestrator(provider, testConfig(), logging.NoOpLogger{})

	result := o.RunTurn(context.Background(), turnState("I attack the goblin"))

	assert.Equal(t, core.TurnDegraded, result.Status)
	assert.Equal(t, freeformRuling, result.Ruling)
	assert.NotEmpty(t, result.Narrative)
}

func TestOrchestrator_BothRequiredStagesFail_Failure(t *testing.T) {
	provider := model.NewMockProvider()
	provider.FailChatWith(&core.ProviderFatalError{Op: "chat", Err: assert.AnError})
	o := NewOrchestrator(provider, testConfig(), logging.NoOpLogger{})

	result := o.RunTurn(context.Background(), turnState("I attack the goblin"))

	assert.Equal(t, core.TurnFailed, result.Status)
}

func TestOrchestrator_SceneArtCue(t *testing.T) {
	provider := model.NewMockProvider()
	provider.AddResponse("Elf Ranger: I open the door", "You enter a vast crystal cavern.")
	o := NewOrchestrator(provider, testConfig(), logging.NoOpLogger{})

	result := o.RunTurn(context.Background(), turnState("I open the door"))

	assert.Equal(t, core.TurnOK, result.Status)
	assert.NotEmpty(t, result.SceneImageURL)
	assert.Equal(t, int64(1), provider.ImageCalls.Load())
}

func TestOrchestrator_SceneArtFailureDoesNotDegrade(t *testing.T) {
	provider := model.NewMockProvider()
	provider.AddResponse("Elf Ranger: I open the door", "You enter a vast crystal cavern.")
	provider.FailImageWith(&core.ProviderTransientError{Op: "image", Err: assert.AnError})
	o := NewOrchestrator(provider, testConfig(), logging.NoOpLogger{})

	result := o.RunTurn(context.Background(), turnState("I open the door"))

	assert.Equal(t, core.TurnOK, result.Status)
	assert.Empty(t, result.SceneImageURL)
}

func TestOrchestrator_NoSceneChangeNoImageCall(t *testing.T) {
	provider := model.NewMockProvider()
	provider.AddResponse("Elf Ranger: I rest by the fire", "You doze off peacefully.")
	o := NewOrchestrator(provider, testConfig(), logging.NoOpLogger{})

	result := o.RunTurn(context.Background(), turnState("I rest by the fire"))

	assert.Equal(t, core.TurnOK, result.Status)
	assert.Empty(t, result.SceneImageURL)
	assert.Equal(t, int64(0), provider.ImageCalls.Load())
}

func TestOrchestrator_RunTurnDegraded(t *testing.T) {
	provider := model.NewMockProvider()
	o := NewOrchestrator(provider, testConfig(), logging.NoOpLogger{})

	// Seed the cache, then short-circuit.
	first := o.RunTurn(context.Background(), turnState("I scout ahead"))
	require.Equal(t, core.TurnOK, first.Status)
	calls := provider.ChatCalls.Load()

	result := o.RunTurnDegraded(context.Background(), turnState("I search the cellar"))

	assert.Equal(t, core.TurnDegraded, result.Status)
	assert.Equal(t, first.Narrative, result.Narrative)
	assert.Len(t, result.Rolls, 1)
	// No provider traffic while known-down.
	assert.Equal(t, calls, provider.ChatCalls.Load())
	for _, tr := range result.Trace {
		assert.True(t, tr.Skipped, tr.Stage)
	}
}

func TestOrchestrator_CancelledContext(t *testing.T) {
	provider := model.NewMockProvider()
	o := NewOrchestrator(provider, testConfig(), logging.NoOpLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := o.RunTurn(ctx, turnState("I search the room"))

	assert.Equal(t, core.TurnFailed, result.Status)
}
