package tracking

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Thresholds deciding whether an object counts as moving. Below them the
// object is treated as static for lifecycle purposes.
const (
	dynamicSpeedThreshold    = 0.2 // m/s
	dynamicTurnRateThreshold = 0.1 // rad/s
)

// TrackedObject holds an object's physical state (position, orientation,
// size, kinematics) together with its classification, free-form attributes
// and the filter by-products needed for association.
//
// Velocity and acceleration are body-relative: vx points forward along yaw,
// vy points left.
type TrackedObject struct {
	ID int

	// Position in meters.
	X, Y, Z float64
	// Extent in meters.
	Length, Width, Height float64
	// Orientation about the Z axis in radians.
	Yaw float64
	// Turn rate about the Z axis in rad/s.
	W float64
	// Body-relative velocity in m/s.
	VX, VY float64
	// Body-relative acceleration in m/s^2.
	AX, AY float64

	// Corrected is true iff this state resulted from a measurement
	// correction step rather than a pure prediction.
	Corrected bool

	Classification Classification
	// Attributes is free-form metadata, not interpreted by the tracker.
	Attributes map[string]string

	// MeasurementMean and MeasurementCovariance are the filter's predicted
	// measurement [x, y, yaw] and its uncertainty. ErrorCovariance is the
	// state estimation error covariance. All three are nil for raw
	// detections that never passed through an estimator.
	MeasurementMean       *mat.VecDense
	MeasurementCovariance *mat.Dense
	ErrorCovariance       *mat.Dense
}

// IsDynamic reports whether the object is considered to be moving rather
// than a static detection.
func (o *TrackedObject) IsDynamic() bool {
	speed := math.Hypot(o.VX, o.VY)
	return speed > dynamicSpeedThreshold || math.Abs(o.W) > dynamicTurnRateThreshold
}

// String renders the object state in a compact human-readable form.
func (o *TrackedObject) String() string {
	return fmt.Sprintf(
		"TrackedObject{id: %d, xyz: (%.3f, %.3f, %.3f), lwh: (%.2f, %.2f, %.2f), yaw: %.3f, w: %.3f, v: (%.3f, %.3f), a: (%.3f, %.3f), corrected: %t}",
		o.ID, o.X, o.Y, o.Z, o.Length, o.Width, o.Height, o.Yaw, o.W, o.VX, o.VY, o.AX, o.AY, o.Corrected,
	)
}

// stateVector projects the object into the shared filter state space
// [x, y, yaw, vx, vy, w, ax, ay].
func (o *TrackedObject) stateVector() *mat.VecDense {
	return mat.NewVecDense(stateDim, []float64{o.X, o.Y, o.Yaw, o.VX, o.VY, o.W, o.AX, o.AY})
}

// applyStateVector writes the filter state back into the object's kinematic
// fields. Extent, z and metadata are left untouched.
func (o *TrackedObject) applyStateVector(x *mat.VecDense) {
	o.X = x.AtVec(ixX)
	o.Y = x.AtVec(ixY)
	o.Yaw = wrapAngle(x.AtVec(ixYaw))
	o.VX = x.AtVec(ixVX)
	o.VY = x.AtVec(ixVY)
	o.W = x.AtVec(ixW)
	o.AX = x.AtVec(ixAX)
	o.AY = x.AtVec(ixAY)
}
