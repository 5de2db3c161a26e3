package sim

import (
	"fmt"

	"atc-sim/internal/rand"
)

// Rules holds the tunable traffic constants.
type Rules struct {
	Capacity         int     // spawning stops at this many live aircraft
	SpawnProbability float64 // per sim tick, while below capacity
	InitialAircraft  int     // aircraft present after a reset
}

func DefaultRules() Rules {
	return Rules{
		Capacity:         6,
		SpawnProbability: 0.02,
		InitialAircraft:  3,
	}
}

// State is one snapshot of a game session. States are never modified in
// place: every operation returns a new State, and slices reachable from a
// published State are never written again, so snapshots may be shared
// freely between goroutines.
type State struct {
	Aircraft   []Aircraft // spawn order
	Score      int
	Collisions int
	Playing    bool
	GameTime   int // seconds
	Tick       uint64

	// SelectedID refers to an aircraft by id and may dangle once that
	// aircraft is removed; use Selected to resolve it.
	SelectedID string

	// Conflicts lists the pairs found on the most recent sim tick.
	Conflicts []Conflict
}

// NewState returns the initial, paused state with rules.InitialAircraft
// freshly spawned aircraft.
func NewState(r *rand.Rand, rules Rules) State {
	aircraft := make([]Aircraft, 0, rules.Capacity)
	for range rules.InitialAircraft {
		aircraft = append(aircraft, NewAircraft(NewAircraftID(r), r))
	}
	return State{Aircraft: aircraft}
}

func (s State) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, a := range s.Aircraft {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func (s State) Find(id string) (Aircraft, bool) {
	if i := s.indexOf(id); i >= 0 {
		return s.Aircraft[i], true
	}
	return Aircraft{}, false
}

// Selected resolves the selection. A selection whose aircraft has left
// the display reports false, the same as no selection.
func (s State) Selected() (Aircraft, bool) {
	return s.Find(s.SelectedID)
}

type TickKind int

const (
	TickSim   TickKind = iota // integrate, lifecycle, conflicts, score
	TickClock                 // one second of game time
)

func (k TickKind) String() string {
	switch k {
	case TickSim:
		return "sim"
	case TickClock:
		return "clock"
	default:
		return fmt.Sprintf("TickKind(%d)", int(k))
	}
}

// TickReport describes what a sim tick changed beyond the state itself.
type TickReport struct {
	Removed   []Aircraft
	Spawned   *Aircraft
	Conflicts []Conflict
}

// Advance runs one sim tick. Every aircraft is integrated from its own
// pre-tick values; then aircraft out of bounds are dropped, one may
// spawn, all pairs are checked for conflicts and the score grows by the
// number of aircraft left.
func Advance(s State, r *rand.Rand, rules Rules) (State, TickReport) {
	moved := make([]Aircraft, len(s.Aircraft))
	for i, a := range s.Aircraft {
		moved[i] = Integrate(a)
	}

	var rep TickReport
	var aircraft []Aircraft
	aircraft, rep.Removed = RemoveOutOfBounds(moved)
	aircraft, rep.Spawned = MaybeSpawn(aircraft, r, rules)
	rep.Conflicts = DetectConflicts(aircraft)

	s.Aircraft = aircraft
	s.Conflicts = rep.Conflicts
	s.Collisions += len(rep.Conflicts)
	s.Score += len(aircraft)
	s.Tick++
	return s, rep
}

// Step applies one scheduled tick of the given kind.
func Step(s State, kind TickKind, r *rand.Rand, rules Rules) State {
	switch kind {
	case TickSim:
		s, _ = Advance(s, r, rules)
	case TickClock:
		s.GameTime++
	}
	return s
}

// Select focuses the aircraft with the given id, or clears the selection
// if it is already focused.
func Select(s State, id string) State {
	if s.SelectedID == id {
		s.SelectedID = ""
	} else {
		s.SelectedID = id
	}
	return s
}

func TogglePlay(s State) State {
	s.Playing = !s.Playing
	return s
}

// Reset discards the session and starts over, paused, with fresh traffic.
func Reset(r *rand.Rand, rules Rules) State {
	return NewState(r, rules)
}

// FormatGameTime renders seconds as mm:ss.
func FormatGameTime(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
