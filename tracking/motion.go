package tracking

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Indices into the shared filter state vector.
const (
	ixX = iota
	ixY
	ixYaw
	ixVX
	ixVY
	ixW
	ixAX
	ixAY

	stateDim = 8
	// Measurement vector is [x, y, yaw].
	measurementDim = 3
)

// MotionModel identifies one of the motion hypotheses run by the estimator.
type MotionModel uint16

const (
	// CV is the constant velocity model.
	CV MotionModel = iota
	// CA is the constant acceleration model.
	CA
	// CP is the constant position model.
	CP
	// CTRV is the constant turn-rate and velocity model.
	CTRV
)

func (m MotionModel) String() string {
	switch m {
	case CV:
		return "CV"
	case CA:
		return "CA"
	case CP:
		return "CP"
	case CTRV:
		return "CTRV"
	}
	return "Unknown"
}

// ParseMotionModel converts a model name to its enum value.
func ParseMotionModel(name string) (MotionModel, error) {
	switch name {
	case "CV":
		return CV, nil
	case "CA":
		return CA, nil
	case "CP":
		return CP, nil
	case "CTRV":
		return CTRV, nil
	}
	return CV, errors.Errorf("unknown motion model %q", name)
}

// MarshalYAML renders the model as its name.
func (m MotionModel) MarshalYAML() (interface{}, error) {
	return m.String(), nil
}

// UnmarshalYAML parses a model name.
func (m *MotionModel) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var name string
	if err := unmarshal(&name); err != nil {
		return err
	}
	parsed, err := ParseMotionModel(name)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// transitionFunc propagates a state vector by dt seconds under one motion
// hypothesis. Implementations must not mutate the input.
type transitionFunc func(x *mat.VecDense, dt float64) *mat.VecDense

// transitionFor dispatches from model tag to its transition function.
func transitionFor(model MotionModel) (transitionFunc, error) {
	switch model {
	case CV:
		return transitionCV, nil
	case CA:
		return transitionCA, nil
	case CP:
		return transitionCP, nil
	case CTRV:
		return transitionCTRV, nil
	}
	return nil, errors.Errorf("unsupported motion model %d", model)
}

func transitionCV(x *mat.VecDense, dt float64) *mat.VecDense {
	yaw := x.AtVec(ixYaw)
	vx, vy := x.AtVec(ixVX), x.AtVec(ixVY)
	cy, sy := math.Cos(yaw), math.Sin(yaw)

	out := mat.NewVecDense(stateDim, nil)
	out.SetVec(ixX, x.AtVec(ixX)+(vx*cy-vy*sy)*dt)
	out.SetVec(ixY, x.AtVec(ixY)+(vx*sy+vy*cy)*dt)
	out.SetVec(ixYaw, yaw)
	out.SetVec(ixVX, vx)
	out.SetVec(ixVY, vy)
	return out
}

func transitionCA(x *mat.VecDense, dt float64) *mat.VecDense {
	yaw := x.AtVec(ixYaw)
	vx, vy := x.AtVec(ixVX), x.AtVec(ixVY)
	ax, ay := x.AtVec(ixAX), x.AtVec(ixAY)
	cy, sy := math.Cos(yaw), math.Sin(yaw)
	halfDt2 := 0.5 * dt * dt

	out := mat.NewVecDense(stateDim, nil)
	out.SetVec(ixX, x.AtVec(ixX)+(vx*cy-vy*sy)*dt+(ax*cy-ay*sy)*halfDt2)
	out.SetVec(ixY, x.AtVec(ixY)+(vx*sy+vy*cy)*dt+(ax*sy+ay*cy)*halfDt2)
	out.SetVec(ixYaw, yaw)
	out.SetVec(ixVX, vx+ax*dt)
	out.SetVec(ixVY, vy+ay*dt)
	out.SetVec(ixAX, ax)
	out.SetVec(ixAY, ay)
	return out
}

func transitionCP(x *mat.VecDense, dt float64) *mat.VecDense {
	out := mat.NewVecDense(stateDim, nil)
	out.SetVec(ixX, x.AtVec(ixX))
	out.SetVec(ixY, x.AtVec(ixY))
	out.SetVec(ixYaw, x.AtVec(ixYaw))
	return out
}

func transitionCTRV(x *mat.VecDense, dt float64) *mat.VecDense {
	w := x.AtVec(ixW)
	if math.Abs(w) < 1e-6 {
		// Degenerates to straight-line motion, keep the turn rate.
		out := transitionCV(x, dt)
		out.SetVec(ixW, w)
		return out
	}
	yaw := x.AtVec(ixYaw)
	vx, vy := x.AtVec(ixVX), x.AtVec(ixVY)
	yawNext := yaw + w*dt
	sinDelta := math.Sin(yawNext) - math.Sin(yaw)
	cosDelta := math.Cos(yawNext) - math.Cos(yaw)

	out := mat.NewVecDense(stateDim, nil)
	out.SetVec(ixX, x.AtVec(ixX)+(vx*sinDelta+vy*cosDelta)/w)
	out.SetVec(ixY, x.AtVec(ixY)+(-vx*cosDelta+vy*sinDelta)/w)
	out.SetVec(ixYaw, yawNext)
	out.SetVec(ixVX, vx)
	out.SetVec(ixVY, vy)
	out.SetVec(ixW, w)
	return out
}
