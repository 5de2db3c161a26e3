package sim

import "time"

// AircraftType only affects rendering.
type AircraftType string

const (
	TypeCommercial AircraftType = "commercial"
	TypeCargo      AircraftType = "cargo"
	TypePrivate    AircraftType = "private"
)

var AircraftTypes = []AircraftType{TypeCommercial, TypeCargo, TypePrivate}

// Status is descriptive only; it does not drive physics.
type Status string

const (
	StatusEnroute   Status = "enroute"
	StatusApproach  Status = "approach"
	StatusDeparture Status = "departure"
	StatusHolding   Status = "holding"
)

// CallSigns is the pool spawned aircraft draw their labels from. Labels
// are decorative and may repeat.
var CallSigns = []string{
	"UAL123", "DAL456", "AAL789", "SWA101", "JBU202", "VIR303",
	"BAW404", "LUF505", "AFR606", "KLM707", "ANA808", "JAL909",
}

// Position is in percent of the display extent on each axis. y grows
// downward, so heading 0 moves toward smaller y.
type Position struct {
	X float64
	Y float64
}

// Aircraft is a value type; a State never shares a mutable Aircraft
// between snapshots.
type Aircraft struct {
	ID       string
	CallSign string
	Type     AircraftType
	Position Position

	Heading  float64 // degrees, [0,360)
	Altitude int     // feet
	Speed    int     // knots

	TargetHeading  float64
	TargetAltitude int
	TargetSpeed    int

	Status      Status
	LastCommand string
	CommandTime time.Time
}

type AltitudeTrend string

const (
	TrendClimbing   AltitudeTrend = "climbing"
	TrendDescending AltitudeTrend = "descending"
	TrendLevel      AltitudeTrend = "level"
)

// Trend compares the commanded altitude with the current one.
func (a Aircraft) Trend() AltitudeTrend {
	switch {
	case a.TargetAltitude > a.Altitude:
		return TrendClimbing
	case a.TargetAltitude < a.Altitude:
		return TrendDescending
	default:
		return TrendLevel
	}
}
