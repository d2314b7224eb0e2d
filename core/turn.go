package core

import "time"

// TurnStatus reports how much of the agent pipeline contributed to a result.
type TurnStatus string

const (
	// TurnOK means every required stage completed.
	TurnOK TurnStatus = "ok"
	// TurnDegraded means at least one stage fell back but the narrative
	// still advanced.
	TurnDegraded TurnStatus = "degraded"
	// TurnFailed means both the referee and the narrator failed; the turn
	// carries no usable content beyond its trace.
	TurnFailed TurnStatus = "failed"
)

// TurnRequest is a single player action submitted for adjudication.
// SubmissionToken lets clients resubmit after a network failure without
// running the turn twice.
type TurnRequest struct {
	SessionID       string `json:"session_id"`
	CharacterID     string `json:"character_id"`
	Input           string `json:"input"`
	SubmissionToken string `json:"submission_token,omitempty"`
}

// DiceRoll is one resolved dice-spec outcome. Once recorded in a TurnResult
// it is immutable and reproducible from the session seed and Index.
type DiceRoll struct {
	Spec     string `json:"spec"`
	Index    uint64 `json:"index"`
	Dice     []int  `json:"dice"`
	Modifier int    `json:"modifier"`
	Total    int    `json:"total"`
}

// StateDelta describes one character or world change produced by a turn.
type StateDelta struct {
	CharacterID string         `json:"character_id,omitempty"`
	Changes     map[string]any `json:"changes"`
}

// StageTrace records one pipeline stage's execution for diagnostics.
type StageTrace struct {
	Stage    string        `json:"stage"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
	Skipped  bool          `json:"skipped,omitempty"`
}

// TurnResult is the adjudicated outcome of one TurnRequest. Sequence is the
// only externally visible ordering signal; within a session it is strictly
// increasing with no gaps or reuse.
type TurnResult struct {
	SessionID       string       `json:"session_id"`
	Sequence        uint64       `json:"sequence"`
	SubmissionToken string       `json:"submission_token,omitempty"`
	Narrative       string       `json:"narrative"`
	Ruling          string       `json:"ruling,omitempty"`
	SceneImageURL   string       `json:"scene_image_url,omitempty"`
	Rolls           []DiceRoll   `json:"rolls,omitempty"`
	Deltas          []StateDelta `json:"deltas,omitempty"`
	Trace           []StageTrace `json:"trace,omitempty"`
	Status          TurnStatus   `json:"status"`
	Created         time.Time    `json:"created"`
}

// Clone returns a deep copy safe for independent mutation.
func (r *TurnResult) Clone() *TurnResult {
	clone := *r
	if r.Rolls != nil {
		clone.Rolls = make([]DiceRoll, len(r.Rolls))
		for i, roll := range r.Rolls {
			clone.Rolls[i] = roll
			clone.Rolls[i].Dice = append([]int(nil), roll.Dice...)
		}
	}
	if r.Deltas != nil {
		clone.Deltas = make([]StateDelta, len(r.Deltas))
		for i, d := range r.Deltas {
			clone.Deltas[i] = d
			if d.Changes != nil {
				clone.Deltas[i].Changes = make(map[string]any, len(d.Changes))
				for k, v := range d.Changes {
					clone.Deltas[i].Changes[k] = v
				}
			}
		}
	}
	clone.Trace = append([]StageTrace(nil), r.Trace...)
	return &clone
}
