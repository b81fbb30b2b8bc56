package tracking

import "math"

// AngleDifference returns a-b wrapped into (-pi, pi]. It handles inputs that
// are any number of full turns apart.
func AngleDifference(a, b float64) float64 {
	d := math.Mod(a-b, 2.0*math.Pi)
	if d > math.Pi {
		d -= 2.0 * math.Pi
	} else if d <= -math.Pi {
		d += 2.0 * math.Pi
	}
	return d
}

// DeltaTheta returns the difference between two angles accounting for the
// pi-periodic ambiguity of orientation estimates: a heading and its reverse
// are treated as the same orientation, so the result lies in (-pi/2, pi/2].
func DeltaTheta(a, b float64) float64 {
	d := AngleDifference(a, b)
	if d > math.Pi/2.0 {
		d -= math.Pi
	} else if d <= -math.Pi/2.0 {
		d += math.Pi
	}
	return d
}

// wrapAngle normalizes an angle into (-pi, pi].
func wrapAngle(a float64) float64 {
	return AngleDifference(a, 0.0)
}
