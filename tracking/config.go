package tracking

import (
	"fmt"
	"math"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// TrackManagerConfig holds the lifecycle policy and estimator defaults used
// by the TrackManager. All time windows are in seconds.
type TrackManagerConfig struct {
	// NonMeasurementFramesDynamic is the number of consecutive missed
	// frames after which a dynamic track is deleted.
	NonMeasurementFramesDynamic int `yaml:"non_measurement_frames_dynamic"`
	// NonMeasurementFramesStatic is the number of consecutive missed frames
	// after which a static track is suspended.
	NonMeasurementFramesStatic int `yaml:"non_measurement_frames_static"`
	// MaxNumberOfUnreliableFrames is the number of measured frames before a
	// track is considered reliable.
	MaxNumberOfUnreliableFrames int `yaml:"max_number_of_unreliable_frames"`
	// ReactivationFrames is the number of consecutive measured frames a
	// reactivated track needs before becoming reliable again.
	ReactivationFrames int `yaml:"reactivation_frames"`

	// NonMeasurementTimeDynamic is the missed-time window deleting a
	// dynamic track.
	NonMeasurementTimeDynamic float64 `yaml:"non_measurement_time_dynamic"`
	// NonMeasurementTimeStatic is the missed-time window suspending a
	// static track.
	NonMeasurementTimeStatic float64 `yaml:"non_measurement_time_static"`
	// MaxUnreliableTime is the measured-time span before a track can become
	// reliable.
	MaxUnreliableTime float64 `yaml:"max_unreliable_time"`

	// Estimator defaults passed to Initialize.
	DefaultProcessNoise     float64 `yaml:"default_process_noise"`
	DefaultMeasurementNoise float64 `yaml:"default_measurement_noise"`
	InitStateCovariance     float64 `yaml:"init_state_covariance"`

	// MotionModels is the model set for new tracks. Defaults to
	// [CV, CA, CTRV].
	MotionModels []MotionModel `yaml:"motion_models"`
}

// DefaultTrackManagerConfig returns the documented defaults.
func DefaultTrackManagerConfig() TrackManagerConfig {
	return TrackManagerConfig{
		NonMeasurementFramesDynamic: 10,
		NonMeasurementFramesStatic:  30,
		MaxNumberOfUnreliableFrames: 5,
		ReactivationFrames:          2,
		NonMeasurementTimeDynamic:   1.0,
		NonMeasurementTimeStatic:    5.0,
		MaxUnreliableTime:           0.4,
		DefaultProcessNoise:         1e-6,
		DefaultMeasurementNoise:     1e-4,
		InitStateCovariance:         1.0,
		MotionModels:                []MotionModel{CV, CA, CTRV},
	}
}

// LoadTrackManagerConfig reads a YAML rendering of the config from path.
// Missing fields keep their defaults.
func LoadTrackManagerConfig(path string) (TrackManagerConfig, error) {
	cfg := DefaultTrackManagerConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "can't read config file %s", path)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "can't parse config file %s", path)
	}
	if len(cfg.MotionModels) == 0 {
		cfg.MotionModels = []MotionModel{CV, CA, CTRV}
	}
	return cfg, nil
}

// UpdateFrameRate recomputes the frame-count thresholds from their time
// windows and the given frame rate, keeping time-based and frame-based
// policies consistent.
func (c *TrackManagerConfig) UpdateFrameRate(frameRate float64) error {
	if frameRate <= 0.0 {
		return errors.Errorf("frame rate must be positive, got %f", frameRate)
	}
	c.NonMeasurementFramesDynamic = atLeastOneFrame(c.NonMeasurementTimeDynamic * frameRate)
	c.NonMeasurementFramesStatic = atLeastOneFrame(c.NonMeasurementTimeStatic * frameRate)
	c.MaxNumberOfUnreliableFrames = atLeastOneFrame(c.MaxUnreliableTime * frameRate)
	return nil
}

func atLeastOneFrame(frames float64) int {
	n := int(math.Round(frames))
	if n < 1 {
		n = 1
	}
	return n
}

// String renders the configuration in a human-readable form.
func (c TrackManagerConfig) String() string {
	models := make([]string, len(c.MotionModels))
	for i, m := range c.MotionModels {
		models[i] = m.String()
	}
	return fmt.Sprintf(
		"TrackManagerConfig{non_measurement_frames_dynamic: %d, non_measurement_frames_static: %d, max_number_of_unreliable_frames: %d, reactivation_frames: %d, non_measurement_time_dynamic: %.3f, non_measurement_time_static: %.3f, max_unreliable_time: %.3f, default_process_noise: %g, default_measurement_noise: %g, init_state_covariance: %g, motion_models: %v}",
		c.NonMeasurementFramesDynamic, c.NonMeasurementFramesStatic, c.MaxNumberOfUnreliableFrames,
		c.ReactivationFrames, c.NonMeasurementTimeDynamic, c.NonMeasurementTimeStatic, c.MaxUnreliableTime,
		c.DefaultProcessNoise, c.DefaultMeasurementNoise, c.InitStateCovariance, models,
	)
}

// estimatorOptions projects the config into estimator init parameters.
func (c TrackManagerConfig) estimatorOptions() EstimatorOptions {
	return EstimatorOptions{
		ProcessNoise:        c.DefaultProcessNoise,
		MeasurementNoise:    c.DefaultMeasurementNoise,
		InitStateCovariance: c.InitStateCovariance,
		MotionModels:        c.MotionModels,
	}
}
