package sim

import (
	"math"

	"github.com/google/uuid"

	"atc-sim/internal/rand"
)

// Spawn zones. Aircraft enter a few percent inside the edge they spawn
// on, pointed roughly across the display.
const (
	spawnInset     = 5.0
	spawnJitterDeg = 30.0

	minSpawnAltitude   = 20000
	spawnAltitudeRange = 15000
	minSpawnSpeed      = 300
	spawnSpeedRange    = 200
)

type spawnEdge int

const (
	edgeTop spawnEdge = iota
	edgeRight
	edgeBottom
	edgeLeft
)

// baseHeading points away from the edge: top aircraft fly south, right
// aircraft west, and so on.
var baseHeading = [...]float64{
	edgeTop:    180,
	edgeRight:  270,
	edgeBottom: 0,
	edgeLeft:   90,
}

// NewAircraftID draws a random (v4) uuid from r so that seeded runs
// produce the same ids.
func NewAircraftID(r *rand.Rand) string {
	id, err := uuid.NewRandomFromReader(r)
	if err != nil {
		// rand.Rand.Read cannot fail.
		panic(err)
	}
	return id.String()
}

// NewAircraft returns a freshly spawned aircraft on a random edge, flying
// steadily: every target equals the corresponding current value.
func NewAircraft(id string, r *rand.Rand) Aircraft {
	callSign := rand.SampleSlice(r, CallSigns)
	typ := rand.SampleSlice(r, AircraftTypes)

	edge := spawnEdge(r.Intn(4))
	var pos Position
	switch edge {
	case edgeTop:
		pos = Position{X: r.Range(0, 100), Y: spawnInset}
	case edgeRight:
		pos = Position{X: 100 - spawnInset, Y: r.Range(0, 100)}
	case edgeBottom:
		pos = Position{X: r.Range(0, 100), Y: 100 - spawnInset}
	default:
		pos = Position{X: spawnInset, Y: r.Range(0, 100)}
	}

	jitter := r.Range(-spawnJitterDeg, spawnJitterDeg)
	heading := NormalizeHeading(math.Round(baseHeading[edge] + jitter))
	altitude := minSpawnAltitude + r.Intn(spawnAltitudeRange)
	speed := minSpawnSpeed + r.Intn(spawnSpeedRange)

	return Aircraft{
		ID:             id,
		CallSign:       callSign,
		Type:           typ,
		Position:       pos,
		Heading:        heading,
		Altitude:       altitude,
		Speed:          speed,
		TargetHeading:  heading,
		TargetAltitude: altitude,
		TargetSpeed:    speed,
		Status:         StatusEnroute,
	}
}
