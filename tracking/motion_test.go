package tracking

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func stateVectorWith(set func(x *mat.VecDense)) *mat.VecDense {
	x := mat.NewVecDense(stateDim, nil)
	set(x)
	return x
}

func TestTransitionCVFollowsHeading(t *testing.T) {
	// Body-frame velocity points along the yaw axis.
	x := stateVectorWith(func(x *mat.VecDense) {
		x.SetVec(ixYaw, math.Pi/2)
		x.SetVec(ixVX, 1.0)
	})
	out := transitionCV(x, 2.0)

	assert.InDelta(t, 0.0, out.AtVec(ixX), 1e-12)
	assert.InDelta(t, 2.0, out.AtVec(ixY), 1e-12)
	assert.InDelta(t, math.Pi/2, out.AtVec(ixYaw), 1e-12)

	// Lateral velocity moves the state to the body-frame left.
	x = stateVectorWith(func(x *mat.VecDense) {
		x.SetVec(ixVY, 1.0)
	})
	out = transitionCV(x, 1.0)
	assert.InDelta(t, 0.0, out.AtVec(ixX), 1e-12)
	assert.InDelta(t, 1.0, out.AtVec(ixY), 1e-12)
}

func TestTransitionCAIntegratesAcceleration(t *testing.T) {
	x := stateVectorWith(func(x *mat.VecDense) {
		x.SetVec(ixVX, 1.0)
		x.SetVec(ixAX, 2.0)
	})
	out := transitionCA(x, 1.0)

	// x = v*t + a*t^2/2
	assert.InDelta(t, 2.0, out.AtVec(ixX), 1e-12)
	assert.InDelta(t, 3.0, out.AtVec(ixVX), 1e-12)
	assert.InDelta(t, 2.0, out.AtVec(ixAX), 1e-12)
}

func TestTransitionCPHoldsPoseAndDropsKinematics(t *testing.T) {
	x := stateVectorWith(func(x *mat.VecDense) {
		x.SetVec(ixX, 3.0)
		x.SetVec(ixY, -2.0)
		x.SetVec(ixYaw, 0.7)
		x.SetVec(ixVX, 5.0)
		x.SetVec(ixW, 1.0)
	})
	out := transitionCP(x, 10.0)

	assert.InDelta(t, 3.0, out.AtVec(ixX), 1e-12)
	assert.InDelta(t, -2.0, out.AtVec(ixY), 1e-12)
	assert.InDelta(t, 0.7, out.AtVec(ixYaw), 1e-12)
	assert.InDelta(t, 0.0, out.AtVec(ixVX), 1e-12)
	assert.InDelta(t, 0.0, out.AtVec(ixW), 1e-12)
}

func TestTransitionCTRVQuarterTurn(t *testing.T) {
	// A left quarter turn at v = 1, w = pi/2 follows a circle of radius
	// 2/pi centered at (0, 2/pi).
	x := stateVectorWith(func(x *mat.VecDense) {
		x.SetVec(ixVX, 1.0)
		x.SetVec(ixW, math.Pi/2)
	})
	out := transitionCTRV(x, 1.0)

	radius := 2.0 / math.Pi
	assert.InDelta(t, radius, out.AtVec(ixX), 1e-12)
	assert.InDelta(t, radius, out.AtVec(ixY), 1e-12)
	assert.InDelta(t, math.Pi/2, out.AtVec(ixYaw), 1e-12)
	assert.InDelta(t, math.Pi/2, out.AtVec(ixW), 1e-12)
}

func TestTransitionCTRVSmallTurnRateMatchesCV(t *testing.T) {
	x := stateVectorWith(func(x *mat.VecDense) {
		x.SetVec(ixVX, 2.0)
		x.SetVec(ixVY, 0.5)
		x.SetVec(ixW, 1e-9)
	})
	straight := transitionCV(x, 0.5)
	turning := transitionCTRV(x, 0.5)

	assert.InDelta(t, straight.AtVec(ixX), turning.AtVec(ixX), 1e-9)
	assert.InDelta(t, straight.AtVec(ixY), turning.AtVec(ixY), 1e-9)
	assert.InDelta(t, 1e-9, turning.AtVec(ixW), 1e-15)
}

func TestTransitionsDoNotMutateInput(t *testing.T) {
	x := stateVectorWith(func(x *mat.VecDense) {
		x.SetVec(ixX, 1.0)
		x.SetVec(ixVX, 1.0)
		x.SetVec(ixW, 0.5)
	})
	snapshot := mat.VecDenseCopyOf(x)

	for _, model := range []MotionModel{CV, CA, CP, CTRV} {
		transition, err := transitionFor(model)
		require.NoError(t, err)
		transition(x, 1.0)
		assert.True(t, mat.EqualApprox(snapshot, x, 0), "model %s mutated its input", model)
	}
}
