package sim

import "math"

// Per-tick rate limits. Heading holds once within HeadingStep of its
// target. Altitude and speed take a full step while at least a step away,
// so setpoints that are whole multiples of the step are reached exactly;
// smaller residuals are held, never snapped.
const (
	HeadingStep  = 2.0 // degrees
	AltitudeStep = 100 // feet
	SpeedStep    = 5   // knots

	// speedScale converts knots into display percent per tick.
	speedScale = 10000.0
)

// Integrate advances one aircraft by a single tick: heading, altitude and
// speed each move toward their targets by at most one step, then the
// position moves along the (updated) heading.
func Integrate(a Aircraft) Aircraft {
	if diff := HeadingSignedTurn(a.Heading, a.TargetHeading); math.Abs(diff) > HeadingStep {
		a.Heading = NormalizeHeading(a.Heading + math.Copysign(HeadingStep, diff))
	}

	a.Altitude = stepToward(a.Altitude, a.TargetAltitude, AltitudeStep)
	a.Speed = stepToward(a.Speed, a.TargetSpeed, SpeedStep)

	factor := float64(a.Speed) / speedScale
	rad := a.Heading * math.Pi / 180
	a.Position.X += math.Sin(rad) * factor
	a.Position.Y -= math.Cos(rad) * factor

	return a
}

func stepToward(cur, target, step int) int {
	switch d := target - cur; {
	case d >= step:
		return cur + step
	case d <= -step:
		return cur - step
	default:
		return cur
	}
}
