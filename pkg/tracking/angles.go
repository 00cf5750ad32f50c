package tracking

import "math"

// NormalizeAngle wraps an angle into (-π, π].
//
// Values already in range come back unchanged, which keeps the function
// exactly idempotent. Others go through atan2(sin, cos), which has no jump
// when the raw difference crosses ±π; its range is [-π, π], so the single
// point -π is folded onto +π.
func NormalizeAngle(a float64) float64 {
	if a > -math.Pi && a <= math.Pi {
		return a
	}
	n := math.Atan2(math.Sin(a), math.Cos(a))
	if n <= -math.Pi {
		return math.Pi
	}
	return n
}

// OffsetError returns the horizontal offset of x from the image centre,
// scaled so the image edges sit at -1 and +1.
func OffsetError(x, imageWidth float64) float64 {
	half := imageWidth / 2
	return (x - half) / half
}

// Degrees converts radians to degrees for logging/display.
func Degrees(radians float64) float64 {
	return radians * 180.0 / math.Pi
}

// Radians converts degrees to radians.
func Radians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}
