package stage

import (
	"context"
	"time"

	"github.com/fateloom/fateloom/config"
	"github.com/fateloom/fateloom/core"
	"github.com/fateloom/fateloom/logging"
)

// pipelineStage pairs a stage with its failure policy. A nil fallback means
// the stage's failure is recorded but nothing replaces its output.
type pipelineStage struct {
	stage    Stage
	required bool // required stages count toward total pipeline failure
	fallback func(o *Orchestrator, st *State)
}

// Orchestrator sequences the specialist stages of one turn: context
// assembly, rules referee, narrator and the opportunistic scene-art cue.
// Each stage runs under its own timeout; only the referee and narrator both
// failing produces a Failure-flagged result, any lesser combination yields
// Degraded with partial content.
type Orchestrator struct {
	provider core.Provider
	cfg      config.Config
	logger   *logging.GameLogger
	cache    *narrativeCache
	pipeline []pipelineStage
	sceneArt *SceneArt
}

// NewOrchestrator wires the stage pipeline against a provider.
func NewOrchestrator(provider core.Provider, cfg config.Config, logger logging.Logger) *Orchestrator {
	o := &Orchestrator{
		provider: provider,
		cfg:      cfg,
		logger:   logging.NewGameLogger(logger),
		cache:    newNarrativeCache(),
	}

	retry := retryPolicy{
		maxTries:     uint(max(cfg.MaxRetries, 1)),
		baseInterval: cfg.RetryBaseInterval,
		maxInterval:  cfg.RetryMaxInterval,
	}

	o.pipeline = []pipelineStage{
		{stage: &ContextAssembly{Budget: cfg.HistoryBudget}},
		{
			stage:    &Referee{Provider: provider, Retry: retry},
			required: true,
			fallback: func(_ *Orchestrator, st *State) { st.Ruling = freeformRuling },
		},
		{
			stage:    &Narrator{Provider: provider, Retry: retry, Cache: o.cache},
			required: true,
			fallback: func(o *Orchestrator, st *State) {
				st.Narrative = o.cache.get(st.Request.SessionID)
			},
		},
	}
	o.sceneArt = &SceneArt{Provider: provider}

	return o
}

// Provider returns the wired LLM capability, exposed for health checks.
func (o *Orchestrator) Provider() core.Provider { return o.provider }

// ForgetSession discards cached narrative state for a torn-down session.
func (o *Orchestrator) ForgetSession(sessionID string) { o.cache.drop(sessionID) }

// RunTurn executes the full pipeline over a prepared turn state. It always
// returns a TurnResult; partial stage failures are encoded in the Status and
// Trace fields, never raised as errors.
func (o *Orchestrator) RunTurn(ctx context.Context, st *State) *core.TurnResult {
	logger := o.logger.WithSession(st.Request.SessionID)
	result := &core.TurnResult{
		SessionID:       st.Request.SessionID,
		SubmissionToken: st.Request.SubmissionToken,
		Created:         time.Now().UTC(),
	}

	requiredFailures := 0
	degraded := false
	for _, ps := range o.pipeline {
		if ctx.Err() != nil {
			result.Trace = append(result.Trace, StageTraceSkipped(ps.stage.Name()))
			if ps.required {
				requiredFailures++
			}
			continue
		}

		trace := o.runStage(ctx, ps.stage, st)
		result.Trace = append(result.Trace, trace)
		logger.LogStage(trace.Stage, trace.Attempts, trace.Duration, stageErr(trace))

		if trace.Error != "" {
			degraded = true
			if ps.required {
				requiredFailures++
			}
			if ps.fallback != nil {
				ps.fallback(o, st)
			}
		}
	}

	switch {
	case requiredFailures >= 2:
		result.Status = core.TurnFailed
	case degraded:
		result.Status = core.TurnDegraded
	default:
		result.Status = core.TurnOK
	}

	if result.Status != core.TurnFailed && ctx.Err() == nil {
		o.runSceneArt(ctx, st, result)
	}

	result.Narrative = st.Narrative
	result.Ruling = st.Ruling
	result.Rolls = st.Rolls
	result.Deltas = st.Deltas
	result.SceneImageURL = st.SceneImageURL
	return result
}

// RunTurnDegraded short-circuits a turn while the provider is known-down:
// dice still resolve deterministically, but no provider call is attempted
// and the cached narrative backs the response. Used by the turn coordinator
// to avoid wasted retries.
func (o *Orchestrator) RunTurnDegraded(_ context.Context, st *State) *core.TurnResult {
	ResolveDice(st)
	st.Ruling = freeformRuling
	st.Narrative = o.cache.get(st.Request.SessionID)

	result := &core.TurnResult{
		SessionID:       st.Request.SessionID,
		SubmissionToken: st.Request.SubmissionToken,
		Status:          core.TurnDegraded,
		Narrative:       st.Narrative,
		Ruling:          st.Ruling,
		Rolls:           st.Rolls,
		Deltas:          st.Deltas,
		Created:         time.Now().UTC(),
	}
	for _, ps := range o.pipeline {
		result.Trace = append(result.Trace, StageTraceSkipped(ps.stage.Name()))
	}
	return result
}

func (o *Orchestrator) runStage(ctx context.Context, s Stage, st *State) core.StageTrace {
	stageCtx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
	defer cancel()

	start := time.Now()
	err := s.Run(stageCtx, st)
	trace := core.StageTrace{
		Stage:    s.Name(),
		Attempts: st.takeAttempts(),
		Duration: time.Since(start),
	}
	if err != nil {
		trace.Error = err.Error()
	}
	return trace
}

// runSceneArt fires the opportunistic cue concurrently and waits at most its
// own budget. Failure or expiry is traced but never changes the status.
func (o *Orchestrator) runSceneArt(ctx context.Context, st *State, result *core.TurnResult) {
	DetectSceneChange(st)
	if !st.SceneChanged {
		return
	}

	cueCtx, cancel := context.WithTimeout(ctx, o.cfg.SceneArtTimeout)
	defer cancel()

	// The cue runs on a shallow copy so an abandoned goroutine can never
	// race with the finished turn's state.
	cueState := *st
	done := make(chan error, 1)
	start := time.Now()
	go func() { done <- o.sceneArt.Run(cueCtx, &cueState) }()

	trace := core.StageTrace{Stage: o.sceneArt.Name(), Attempts: 1}
	select {
	case err := <-done:
		trace.Duration = time.Since(start)
		if err != nil {
			trace.Error = err.Error()
		} else {
			st.SceneImageURL = cueState.SceneImageURL
		}
	case <-cueCtx.Done():
		trace.Duration = time.Since(start)
		trace.Skipped = true
	}
	result.Trace = append(result.Trace, trace)
}

// StageTraceSkipped records a stage that never ran.
func StageTraceSkipped(name string) core.StageTrace {
	return core.StageTrace{Stage: name, Skipped: true}
}

func stageErr(trace core.StageTrace) error {
	if trace.Error == "" {
		return nil
	}
	return errString(trace.Error)
}

type errString string

func (e errString) Error() string { return string(e) }
