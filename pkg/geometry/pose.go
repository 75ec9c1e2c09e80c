package geometry

import (
	"math"
)

// Pose2D represents a position and rotation in the plane. X and Y are in
// physical units (millimeters) unless a caller documents otherwise; Theta
// is in radians, normalized to (-pi, pi]. Pose2D is an immutable value type.
type Pose2D struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// NewPose2D creates a pose with the angle normalized to (-pi, pi].
func NewPose2D(x, y, theta float64) Pose2D {
	return Pose2D{X: x, Y: y, Theta: NormalizeAngle(theta)}
}

// Add returns the pose translated and rotated by another pose. The
// resulting angle is normalized.
func (p Pose2D) Add(other Pose2D) Pose2D {
	return NewPose2D(p.X+other.X, p.Y+other.Y, p.Theta+other.Theta)
}

// ScalePosition returns the pose with its position scaled by a factor.
// The rotation is unchanged: garment sizing stretches placement, it does
// not rotate logos.
func (p Pose2D) ScalePosition(factor float64) Pose2D {
	return Pose2D{X: p.X * factor, Y: p.Y * factor, Theta: p.Theta}
}

// IsZero returns true if all components are exactly zero.
func (p Pose2D) IsZero() bool {
	return p.X == 0 && p.Y == 0 && p.Theta == 0
}

// LinearError returns the Euclidean magnitude of the translational part.
func (p Pose2D) LinearError() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y)
}

// NormalizeAngle maps an angle in radians into (-pi, pi].
func NormalizeAngle(theta float64) float64 {
	t := math.Mod(theta, 2*math.Pi)
	if t > math.Pi {
		t -= 2 * math.Pi
	} else if t <= -math.Pi {
		t += 2 * math.Pi
	}
	return t
}

// Difference returns observed minus expected, component-wise, with angular
// wraparound. The result's Theta is normalized to (-pi, pi] so that a
// reading of 359 degrees against a 0 degree target reports -1 degree, not
// +359.
func Difference(expected, observed Pose2D) Pose2D {
	return Pose2D{
		X:     observed.X - expected.X,
		Y:     observed.Y - expected.Y,
		Theta: NormalizeAngle(observed.Theta - expected.Theta),
	}
}

// WithinTolerance reports whether a pose difference is inside the given
// bounds: Euclidean linear error within toleranceLinear and absolute
// angular error within toleranceAngular.
func WithinTolerance(diff Pose2D, toleranceLinear, toleranceAngular float64) bool {
	return diff.LinearError() <= toleranceLinear && math.Abs(diff.Theta) <= toleranceAngular
}

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// RadToDeg converts radians to degrees.
func RadToDeg(rad float64) float64 {
	return rad * 180.0 / math.Pi
}
