package tracking

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTrackManagerConfig(t *testing.T) {
	cfg := DefaultTrackManagerConfig()

	assert.Equal(t, 10, cfg.NonMeasurementFramesDynamic)
	assert.Equal(t, 30, cfg.NonMeasurementFramesStatic)
	assert.Equal(t, 5, cfg.MaxNumberOfUnreliableFrames)
	assert.Equal(t, 2, cfg.ReactivationFrames)
	assert.InDelta(t, 1.0, cfg.NonMeasurementTimeDynamic, 1e-12)
	assert.InDelta(t, 5.0, cfg.NonMeasurementTimeStatic, 1e-12)
	assert.InDelta(t, 0.4, cfg.MaxUnreliableTime, 1e-12)
	assert.InDelta(t, 1e-6, cfg.DefaultProcessNoise, 1e-18)
	assert.InDelta(t, 1e-4, cfg.DefaultMeasurementNoise, 1e-16)
	assert.InDelta(t, 1.0, cfg.InitStateCovariance, 1e-12)
	assert.Equal(t, []MotionModel{CV, CA, CTRV}, cfg.MotionModels)

	rendered := cfg.String()
	assert.Contains(t, rendered, "non_measurement_frames_dynamic: 10")
	assert.Contains(t, rendered, "motion_models: [CV CA CTRV]")
}

func TestLoadTrackManagerConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.yaml")
	raw := []byte(`
non_measurement_frames_dynamic: 4
max_unreliable_time: 1.5
default_process_noise: 1.0e-5
motion_models: [CV, CTRV]
`)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	cfg, err := LoadTrackManagerConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.NonMeasurementFramesDynamic)
	assert.InDelta(t, 1.5, cfg.MaxUnreliableTime, 1e-12)
	assert.InDelta(t, 1e-5, cfg.DefaultProcessNoise, 1e-17)
	assert.Equal(t, []MotionModel{CV, CTRV}, cfg.MotionModels)

	// Fields absent from the file keep their defaults.
	assert.Equal(t, 30, cfg.NonMeasurementFramesStatic)
	assert.InDelta(t, 1e-4, cfg.DefaultMeasurementNoise, 1e-16)
}

func TestLoadTrackManagerConfigErrors(t *testing.T) {
	_, err := LoadTrackManagerConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("motion_models: [NoSuchModel]"), 0o644))
	_, err = LoadTrackManagerConfig(path)
	assert.Error(t, err)
}

func TestUpdateFrameRate(t *testing.T) {
	cfg := DefaultTrackManagerConfig()
	cfg.NonMeasurementTimeDynamic = 1.0
	cfg.NonMeasurementTimeStatic = 3.0
	cfg.MaxUnreliableTime = 0.25

	require.NoError(t, cfg.UpdateFrameRate(10.0))
	assert.Equal(t, 10, cfg.NonMeasurementFramesDynamic)
	assert.Equal(t, 30, cfg.NonMeasurementFramesStatic)
	assert.Equal(t, 3, cfg.MaxNumberOfUnreliableFrames)

	// Tiny windows still keep at least one frame.
	cfg.MaxUnreliableTime = 0.01
	require.NoError(t, cfg.UpdateFrameRate(10.0))
	assert.Equal(t, 1, cfg.MaxNumberOfUnreliableFrames)

	assert.Error(t, cfg.UpdateFrameRate(0.0))
	assert.Error(t, cfg.UpdateFrameRate(-5.0))
}

func TestMotionModelYAMLRoundTrip(t *testing.T) {
	for _, model := range []MotionModel{CV, CA, CP, CTRV} {
		parsed, err := ParseMotionModel(model.String())
		require.NoError(t, err)
		assert.Equal(t, model, parsed)
	}

	_, err := ParseMotionModel("warp")
	assert.Error(t, err)
}
