package sim

import "atc-sim/internal/rand"

// steady returns an aircraft with every target equal to its current value.
func steady(id string, x, y, heading float64, altitude, speed int) Aircraft {
	return Aircraft{
		ID:             id,
		CallSign:       "TST" + id,
		Type:           TypeCommercial,
		Position:       Position{X: x, Y: y},
		Heading:        heading,
		Altitude:       altitude,
		Speed:          speed,
		TargetHeading:  heading,
		TargetAltitude: altitude,
		TargetSpeed:    speed,
		Status:         StatusEnroute,
	}
}

// quietRules never spawns, so scenario tests see only their own traffic.
func quietRules() Rules {
	r := DefaultRules()
	r.SpawnProbability = 0
	return r
}

func playing(aircraft ...Aircraft) State {
	return State{Aircraft: aircraft, Playing: true}
}

func newTestRand() *rand.Rand {
	return rand.New(1234)
}
