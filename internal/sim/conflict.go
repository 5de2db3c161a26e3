package sim

import "math"

// Separation minima. A pair closer than both is a conflict.
const (
	LateralSeparation  = 3.0  // display percent
	VerticalSeparation = 1000 // feet
)

// Conflict is one pair of aircraft in violation during a tick.
type Conflict struct {
	A, B         string
	Distance     float64
	AltitudeDiff int
}

func separation(a, b Aircraft) (float64, int) {
	dx := a.Position.X - b.Position.X
	dy := a.Position.Y - b.Position.Y
	dalt := a.Altitude - b.Altitude
	if dalt < 0 {
		dalt = -dalt
	}
	return math.Sqrt(dx*dx + dy*dy), dalt
}

// InConflict reports whether a and b are inside both separation minima.
func InConflict(a, b Aircraft) bool {
	d, dalt := separation(a, b)
	return d < LateralSeparation && dalt < VerticalSeparation
}

// DetectConflicts scans every unordered pair. Pairs are reported in
// (i<j) order of list, so the result is deterministic.
func DetectConflicts(list []Aircraft) []Conflict {
	var conflicts []Conflict
	for i := 0; i < len(list); i++ {
		for j := i + 1; j < len(list); j++ {
			a, b := list[i], list[j]
			if InConflict(a, b) {
				d, dalt := separation(a, b)
				conflicts = append(conflicts, Conflict{A: a.ID, B: b.ID, Distance: d, AltitudeDiff: dalt})
			}
		}
	}
	return conflicts
}
