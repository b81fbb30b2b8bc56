package tracking

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAngleDifference(t *testing.T) {
	assert.InDelta(t, 0.0, AngleDifference(1.0, 1.0), 1e-12)
	assert.InDelta(t, 0.2, AngleDifference(0.1, -0.1), 1e-12)
	assert.InDelta(t, -0.2, AngleDifference(-0.1, 0.1), 1e-12)
	// Wraps across the boundary.
	assert.InDelta(t, 0.2, AngleDifference(-math.Pi+0.1, math.Pi-0.1), 1e-12)
	// Any number of full turns apart.
	assert.InDelta(t, 0.0, AngleDifference(6.0*math.Pi, 0.0), 1e-9)
	assert.InDelta(t, 0.5, AngleDifference(4.0*math.Pi+0.5, 0.0), 1e-9)
}

func TestDeltaTheta(t *testing.T) {
	// A reversed heading is the same orientation.
	assert.InDelta(t, 0.0, DeltaTheta(math.Pi, 0.0), 1e-12)
	assert.InDelta(t, 0.1, DeltaTheta(math.Pi+0.1, 0.0), 1e-12)
	assert.InDelta(t, -0.1, DeltaTheta(math.Pi-0.1, 0.0), 1e-12)
	assert.InDelta(t, 0.3, DeltaTheta(0.3, 0.0), 1e-12)
}
