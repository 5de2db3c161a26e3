package sim

import "atc-sim/internal/rand"

// Aircraft are allowed a margin outside the display before removal.
const (
	BoundsMin = -10.0
	BoundsMax = 110.0
)

func InBounds(p Position) bool {
	return p.X >= BoundsMin && p.X <= BoundsMax && p.Y >= BoundsMin && p.Y <= BoundsMax
}

// RemoveOutOfBounds splits list into aircraft still in bounds and those
// that have left. Neither result aliases list.
func RemoveOutOfBounds(list []Aircraft) (kept, removed []Aircraft) {
	kept = make([]Aircraft, 0, len(list))
	for _, a := range list {
		if InBounds(a.Position) {
			kept = append(kept, a)
		} else {
			removed = append(removed, a)
		}
	}
	return kept, removed
}

// MaybeSpawn appends one new aircraft when list is below capacity and the
// per-tick spawn trial succeeds. The trial is only drawn below capacity.
func MaybeSpawn(list []Aircraft, r *rand.Rand, rules Rules) ([]Aircraft, *Aircraft) {
	if len(list) >= rules.Capacity || !r.Bernoulli(rules.SpawnProbability) {
		return list, nil
	}
	a := NewAircraft(NewAircraftID(r), r)
	return append(list, a), &a
}
