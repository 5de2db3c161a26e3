package sim

import "math"

// NormalizeHeading reduces h to [0,360).
func NormalizeHeading(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	if h >= 360 {
		// -tiny + 360 rounds to 360
		h = 0
	}
	return h
}

// HeadingSignedTurn returns the shortest signed rotation from cur to
// target, in (-180,180]. Positive is clockwise.
func HeadingSignedTurn(cur, target float64) float64 {
	d := NormalizeHeading(target - cur)
	if d > 180 {
		d -= 360
	}
	return d
}

// Compass names the closest of the eight compass points.
func Compass(heading float64) string {
	h := NormalizeHeading(heading + 22.5)
	return [...]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}[int(h/45)]
}
