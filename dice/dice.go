// Package dice implements deterministic, seed-based dice resolution. Every
// roll is reproducible from the session seed and a strictly increasing roll
// index, enabling replay and audit across process restarts.
package dice

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"

	"github.com/fateloom/fateloom/core"
)

const (
	maxCount = 100
	maxSides = 1000
)

// ParseError reports a malformed dice spec, naming the first invalid token.
type ParseError struct {
	Spec  string
	Token string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid dice spec %q: bad token %q", e.Spec, e.Token)
}

// Spec is a parsed dice specification of the form <count>d<sides>[+|-modifier].
type Spec struct {
	Count    int
	Sides    int
	Modifier int
}

// Parse parses a spec like "2d6+3". The first invalid token is reported in
// the returned *ParseError.
func Parse(spec string) (Spec, error) {
	s := strings.TrimSpace(strings.ToLower(spec))

	countStr, rest, found := strings.Cut(s, "d")
	if !found {
		return Spec{}, &ParseError{Spec: spec, Token: s}
	}
	count, err := strconv.Atoi(countStr)
	if err != nil || count < 1 || count > maxCount {
		return Spec{}, &ParseError{Spec: spec, Token: countStr}
	}

	sidesStr := rest
	modStr := ""
	if i := strings.IndexAny(rest, "+-"); i >= 0 {
		sidesStr, modStr = rest[:i], rest[i:]
	}
	sides, err := strconv.Atoi(sidesStr)
	if err != nil || sides < 2 || sides > maxSides {
		return Spec{}, &ParseError{Spec: spec, Token: sidesStr}
	}

	modifier := 0
	if modStr != "" {
		modifier, err = strconv.Atoi(modStr)
		if err != nil {
			return Spec{}, &ParseError{Spec: spec, Token: modStr}
		}
	}

	return Spec{Count: count, Sides: sides, Modifier: modifier}, nil
}

// NewSeed generates a session seed using crypto/rand. The seed is fixed at
// session creation and persisted; it is never re-derived from wall-clock.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// mix folds a roll index into the session seed with splitmix64 finalization
// so consecutive indexes produce uncorrelated dice streams.
func mix(seed int64, index uint64) int64 {
	z := uint64(seed) + index*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return int64(z ^ (z >> 31))
}

// RollAt deterministically resolves spec at a fixed (seed, index) position.
// Used for replay and audit of recorded outcomes.
func RollAt(seed int64, index uint64, spec string) (core.DiceRoll, error) {
	parsed, err := Parse(spec)
	if err != nil {
		return core.DiceRoll{}, err
	}

	rng := rand.New(rand.NewSource(mix(seed, index)))
	dice := make([]int, parsed.Count)
	total := parsed.Modifier
	for i := range dice {
		dice[i] = rng.Intn(parsed.Sides) + 1
		total += dice[i]
	}

	return core.DiceRoll{
		Spec:     spec,
		Index:    index,
		Dice:     dice,
		Modifier: parsed.Modifier,
		Total:    total,
	}, nil
}

// Roller resolves rolls for a single session. It holds the session seed and
// the next roll index; the index advances exactly once per Roll call
// regardless of outcome, keeping the mapping from index to dice-stream
// position stable even when a malformed spec is rejected.
type Roller struct {
	seed int64

	mu   sync.Mutex
	next uint64
}

// NewRoller constructs a roller from persisted session randomness state.
func NewRoller(seed int64, nextIndex uint64) *Roller {
	return &Roller{seed: seed, next: nextIndex}
}

// Roll resolves a spec like "2d6+3" at the current roll index.
func (r *Roller) Roll(spec string) (core.DiceRoll, error) {
	r.mu.Lock()
	index := r.next
	r.next++
	r.mu.Unlock()

	return RollAt(r.seed, index, spec)
}

// NextIndex returns the index the next Roll will consume. Persist this
// alongside the seed so replay stays aligned across restarts.
func (r *Roller) NextIndex() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next
}

// Seed returns the session seed the roller was built with.
func (r *Roller) Seed() int64 { return r.seed }
