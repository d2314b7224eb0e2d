// Package core provides the foundational domain types, interfaces and error
// taxonomy used across the Fateloom engine. It defines:
//
//   - Entities (Campaign, Character, Session) and their lifecycle records
//   - Turn types (TurnRequest, TurnResult, StageTrace, DiceRoll, StateDelta)
//   - Pluggable capability interfaces (Provider for LLM access, Repository
//     for persistence)
//   - The error taxonomy shared by every component
//
// The package intentionally keeps implementation concerns (stores, the
// orchestration pipeline, transport) out of scope, exposing small interfaces
// so consumers can plug custom backends.
package core
