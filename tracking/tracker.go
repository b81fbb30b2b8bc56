package tracking

import (
	stderrors "errors"
	"time"

	"github.com/pkg/errors"
)

// Matching defaults used by MultipleObjectTracker when the caller does not
// pick a distance type and threshold.
const (
	DefaultDistanceType         = MultiClassEuclidean
	DefaultDistanceThreshold    = 1.0
	DefaultProbabilityThreshold = 0.5
)

// MultipleObjectTracker runs the full per-frame pipeline on top of a
// TrackManager: predict all tracks, associate detections with the gated
// matcher, correct matched tracks and spawn tracks for unmatched
// detections. Unmatched tracks age out through the manager's lifecycle
// rules.
type MultipleObjectTracker struct {
	manager      *TrackManager
	distanceType DistanceType
	threshold    float64
}

// NewMultipleObjectTracker creates a tracker with the default config and
// matching parameters.
func NewMultipleObjectTracker() *MultipleObjectTracker {
	return NewMultipleObjectTrackerWithMatching(DefaultTrackManagerConfig(), DefaultDistanceType, DefaultDistanceThreshold)
}

// NewMultipleObjectTrackerWithConfig creates a tracker with the given
// manager config and default matching parameters.
func NewMultipleObjectTrackerWithConfig(config TrackManagerConfig) *MultipleObjectTracker {
	return NewMultipleObjectTrackerWithMatching(config, DefaultDistanceType, DefaultDistanceThreshold)
}

// NewMultipleObjectTrackerWithMatching creates a tracker with the given
// manager config, distance type and gating threshold.
func NewMultipleObjectTrackerWithMatching(config TrackManagerConfig, distanceType DistanceType, threshold float64) *MultipleObjectTracker {
	return &MultipleObjectTracker{
		manager:      NewTrackManagerWithConfig(config),
		distanceType: distanceType,
		threshold:    threshold,
	}
}

// Track runs one frame step with the tracker's default distance type and
// threshold. Detections whose maximum class probability is below
// probabilityThreshold may still correct a matched track but never spawn a
// new one.
func (t *MultipleObjectTracker) Track(objects []TrackedObject, timestamp time.Time, probabilityThreshold float64) error {
	return t.TrackWith(objects, timestamp, t.distanceType, t.threshold, probabilityThreshold)
}

// TrackWith runs one frame step with an explicit distance type and gating
// threshold.
func (t *MultipleObjectTracker) TrackWith(objects []TrackedObject, timestamp time.Time, distanceType DistanceType, threshold, probabilityThreshold float64) error {
	var failures []error
	if err := t.manager.PredictTo(timestamp); err != nil {
		failures = append(failures, err)
	}

	tracks := t.manager.GetTracks()
	assignments, _, unassignedObjects, err := Match(objects, tracks, distanceType, threshold)
	if err != nil {
		return stderrors.Join(append(failures, err)...)
	}
	for _, assignment := range assignments {
		if err := t.manager.SetMeasurement(tracks[assignment.TrackIndex].ID, objects[assignment.MeasurementIndex]); err != nil {
			failures = append(failures, err)
		}
	}
	if err := t.manager.Correct(); err != nil {
		failures = append(failures, err)
	}
	failures = append(failures, t.spawnTracks(objects, unassignedObjects, timestamp, probabilityThreshold)...)
	return stderrors.Join(failures...)
}

// TrackPerCamera runs one frame step over per-camera detection sets sharing
// the track collection. Matching runs per camera; when two cameras claim
// the same track the lower-cost match wins and the losing measurement goes
// back to the unassigned pool. Cameras are processed in input order and a
// cost tie keeps the earlier camera's match.
func (t *MultipleObjectTracker) TrackPerCamera(objectsPerCamera [][]TrackedObject, timestamp time.Time, probabilityThreshold float64) error {
	return t.TrackPerCameraWith(objectsPerCamera, timestamp, t.distanceType, t.threshold, probabilityThreshold)
}

// TrackPerCameraWith is TrackPerCamera with an explicit distance type and
// gating threshold.
func (t *MultipleObjectTracker) TrackPerCameraWith(objectsPerCamera [][]TrackedObject, timestamp time.Time, distanceType DistanceType, threshold, probabilityThreshold float64) error {
	var failures []error
	if err := t.manager.PredictTo(timestamp); err != nil {
		failures = append(failures, err)
	}

	tracks := t.manager.GetTracks()

	type claim struct {
		measurement TrackedObject
		cost        float64
	}
	claims := make(map[int]claim, len(tracks))
	leftovers := make([]TrackedObject, 0)

	for _, objects := range objectsPerCamera {
		assignments, _, unassignedObjects, err := Match(objects, tracks, distanceType, threshold)
		if err != nil {
			return stderrors.Join(append(failures, err)...)
		}
		for _, assignment := range assignments {
			measurement := objects[assignment.MeasurementIndex]
			cost, err := distanceBetween(&measurement, &tracks[assignment.TrackIndex], distanceType)
			if err != nil {
				failures = append(failures, errors.Wrapf(err, "track %d", tracks[assignment.TrackIndex].ID))
				continue
			}
			previous, claimed := claims[assignment.TrackIndex]
			if !claimed {
				claims[assignment.TrackIndex] = claim{measurement: measurement, cost: cost}
				continue
			}
			if cost < previous.cost {
				claims[assignment.TrackIndex] = claim{measurement: measurement, cost: cost}
				leftovers = append(leftovers, previous.measurement)
			} else {
				leftovers = append(leftovers, measurement)
			}
		}
		for _, idx := range unassignedObjects {
			leftovers = append(leftovers, objects[idx])
		}
	}

	for trackIdx, winner := range claims {
		if err := t.manager.SetMeasurement(tracks[trackIdx].ID, winner.measurement); err != nil {
			failures = append(failures, err)
		}
	}
	if err := t.manager.Correct(); err != nil {
		failures = append(failures, err)
	}
	for _, measurement := range leftovers {
		if measurement.Classification.MaxProbability() < probabilityThreshold {
			continue
		}
		if _, err := t.manager.CreateTrack(measurement, timestamp); err != nil {
			failures = append(failures, err)
		}
	}
	return stderrors.Join(failures...)
}

func (t *MultipleObjectTracker) spawnTracks(objects []TrackedObject, unassigned []int, timestamp time.Time, probabilityThreshold float64) []error {
	var failures []error
	for _, idx := range unassigned {
		if objects[idx].Classification.MaxProbability() < probabilityThreshold {
			continue
		}
		if _, err := t.manager.CreateTrack(objects[idx], timestamp); err != nil {
			failures = append(failures, err)
		}
	}
	return failures
}

// GetTracks returns all active track states.
func (t *MultipleObjectTracker) GetTracks() []TrackedObject {
	return t.manager.GetTracks()
}

// GetReliableTracks returns all reliable track states.
func (t *MultipleObjectTracker) GetReliableTracks() []TrackedObject {
	return t.manager.GetReliableTracks()
}

// Timestamp returns the tracker's current frame time.
func (t *MultipleObjectTracker) Timestamp() time.Time {
	return t.manager.Timestamp()
}

// UpdateTrackerParams recomputes the manager's frame-based thresholds from
// the given frame rate.
func (t *MultipleObjectTracker) UpdateTrackerParams(frameRate float64) error {
	return t.manager.UpdateTrackerConfig(frameRate)
}

// Manager exposes the underlying TrackManager for id-addressed queries.
func (t *MultipleObjectTracker) Manager() *TrackManager {
	return t.manager
}

// TrackTracker is the association-free orchestrator: every input object
// carries a pre-assigned id, known ids are corrected and unknown ids spawn
// new tracks.
type TrackTracker struct {
	manager *TrackManager
}

// NewTrackTracker creates a TrackTracker with the default config.
func NewTrackTracker() *TrackTracker {
	return NewTrackTrackerWithConfig(DefaultTrackManagerConfig())
}

// NewTrackTrackerWithConfig creates a TrackTracker with the given config.
func NewTrackTrackerWithConfig(config TrackManagerConfig) *TrackTracker {
	return &TrackTracker{manager: NewTrackManagerWithIDMode(config, false)}
}

// Track runs one frame step applying each object to the track with its id,
// creating tracks for unknown ids.
func (t *TrackTracker) Track(objects []TrackedObject, timestamp time.Time) error {
	var failures []error
	if err := t.manager.PredictTo(timestamp); err != nil {
		failures = append(failures, err)
	}
	newcomers := make([]TrackedObject, 0)
	for _, object := range objects {
		if !t.manager.HasID(object.ID) {
			newcomers = append(newcomers, object)
			continue
		}
		if err := t.manager.SetMeasurement(object.ID, object); err != nil {
			failures = append(failures, err)
		}
	}
	if err := t.manager.Correct(); err != nil {
		failures = append(failures, err)
	}
	for _, object := range newcomers {
		if _, err := t.manager.CreateTrack(object, timestamp); err != nil {
			failures = append(failures, err)
		}
	}
	return stderrors.Join(failures...)
}

// GetTracks returns all active track states.
func (t *TrackTracker) GetTracks() []TrackedObject {
	return t.manager.GetTracks()
}

// GetReliableTracks returns all reliable track states.
func (t *TrackTracker) GetReliableTracks() []TrackedObject {
	return t.manager.GetReliableTracks()
}

// Timestamp returns the tracker's current frame time.
func (t *TrackTracker) Timestamp() time.Time {
	return t.manager.Timestamp()
}

// Manager exposes the underlying TrackManager for id-addressed queries.
func (t *TrackTracker) Manager() *TrackManager {
	return t.manager
}
