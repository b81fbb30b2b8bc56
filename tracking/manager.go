package tracking

import (
	stderrors "errors"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned by id-addressed operations on an unknown track id.
var ErrNotFound = errors.New("track id not found")

// TrackStatus is the stored lifecycle state of a track. Deleted tracks are
// removed from the manager; "drifting" is a derived view, not a status.
type TrackStatus uint16

const (
	// StatusUnreliable marks a freshly created track that has not yet been
	// measured long enough to be trusted.
	StatusUnreliable TrackStatus = iota
	// StatusReliable marks a track measured for long enough to be trusted.
	StatusReliable
	// StatusSuspended marks a static track frozen after going unmeasured;
	// it is excluded from predict and correct until reactivated.
	StatusSuspended
)

func (s TrackStatus) String() string {
	switch s {
	case StatusUnreliable:
		return "unreliable"
	case StatusReliable:
		return "reliable"
	case StatusSuspended:
		return "suspended"
	}
	return "unknown"
}

// track is the managed unit: the latest blended state, its estimator and the
// lifecycle bookkeeping.
type track struct {
	state     TrackedObject
	estimator *MultiModelKalmanEstimator
	status    TrackStatus

	measuredFrames    int
	missedFrames      int
	reactivating      bool
	reactivatedFrames int

	firstSeen    time.Time
	lastMeasured time.Time

	pending *TrackedObject
}

// TrackManager owns the collection of tracks and applies the lifecycle
// policy. It is frame-driven and not safe for concurrent use.
type TrackManager struct {
	config TrackManagerConfig
	// autoID switches between manager-allocated monotonically increasing
	// ids and caller-supplied ids.
	autoID bool
	nextID int

	tracks    map[int]*track
	timestamp time.Time

	log logrus.FieldLogger
}

// NewTrackManager creates a manager with the default config and automatic
// id generation.
func NewTrackManager() *TrackManager {
	return NewTrackManagerWithIDMode(DefaultTrackManagerConfig(), true)
}

// NewTrackManagerWithConfig creates a manager with the given config and
// automatic id generation.
func NewTrackManagerWithConfig(config TrackManagerConfig) *TrackManager {
	return NewTrackManagerWithIDMode(config, true)
}

// NewTrackManagerWithIDMode creates a manager with the given config. With
// autoIDGeneration disabled the id already assigned to the object is used.
func NewTrackManagerWithIDMode(config TrackManagerConfig, autoIDGeneration bool) *TrackManager {
	return &TrackManager{
		config: config,
		autoID: autoIDGeneration,
		nextID: 1,
		tracks: make(map[int]*track),
		log:    logrus.StandardLogger(),
	}
}

// SetLogger replaces the lifecycle event logger.
func (m *TrackManager) SetLogger(log logrus.FieldLogger) {
	if log != nil {
		m.log = log
	}
}

// Config returns the current configuration.
func (m *TrackManager) Config() TrackManagerConfig {
	return m.config
}

// UpdateTrackerConfig recomputes the frame-count thresholds that derive
// from time windows using the given frame rate.
func (m *TrackManager) UpdateTrackerConfig(frameRate float64) error {
	return m.config.UpdateFrameRate(frameRate)
}

// CreateTrack registers a new track for the object with an initialized
// estimator and returns its id. In auto-id mode a fresh id is allocated,
// otherwise the object's own id is used and must not collide with an
// existing track.
func (m *TrackManager) CreateTrack(object TrackedObject, timestamp time.Time) (int, error) {
	id := object.ID
	if m.autoID {
		id = m.nextID
		m.nextID++
	} else if _, ok := m.tracks[id]; ok {
		return 0, errors.Errorf("track id %d already exists", id)
	}
	object.ID = id

	estimator := NewMultiModelKalmanEstimator()
	if err := estimator.Initialize(object, timestamp, m.config.estimatorOptions()); err != nil {
		if m.autoID {
			m.nextID--
		}
		return 0, errors.Wrapf(err, "can't initialize estimator for track %d", id)
	}

	m.tracks[id] = &track{
		state:          estimator.CurrentState(),
		estimator:      estimator,
		status:         StatusUnreliable,
		measuredFrames: 1,
		firstSeen:      timestamp,
		lastMeasured:   timestamp,
	}
	if timestamp.After(m.timestamp) {
		m.timestamp = timestamp
	}
	m.log.WithFields(logrus.Fields{"track_id": id}).Debug("track created")
	return id, nil
}

// PredictBy advances all active tracks by deltaT seconds. A failure on one
// track does not abort the others; failures are reported in aggregate.
func (m *TrackManager) PredictBy(deltaT float64) error {
	return m.predict(func(tr *track) error { return tr.estimator.PredictBy(deltaT) },
		m.timestamp.Add(time.Duration(deltaT*float64(time.Second))))
}

// PredictTo advances all active tracks to the given timestamp.
func (m *TrackManager) PredictTo(timestamp time.Time) error {
	return m.predict(func(tr *track) error { return tr.estimator.PredictTo(timestamp) }, timestamp)
}

func (m *TrackManager) predict(step func(*track) error, next time.Time) error {
	var failures []error
	for _, id := range m.sortedIDs() {
		tr := m.tracks[id]
		if tr.status == StatusSuspended {
			continue
		}
		if err := step(tr); err != nil {
			failures = append(failures, errors.Wrapf(err, "track %d", id))
			continue
		}
		tr.state = tr.estimator.CurrentState()
	}
	m.timestamp = next
	return stderrors.Join(failures...)
}

// SetMeasurement stages a measurement for the given track; it is consumed
// by the next Correct call.
func (m *TrackManager) SetMeasurement(id int, measurement TrackedObject) error {
	tr, ok := m.tracks[id]
	if !ok {
		return errors.Wrapf(ErrNotFound, "track %d", id)
	}
	staged := measurement
	tr.pending = &staged
	return nil
}

// Correct consumes the staged measurements, corrects the matching tracks
// and evaluates the lifecycle transitions for every track. Suspended tracks
// stay frozen. A failure on one track does not abort the others.
func (m *TrackManager) Correct() error {
	var failures []error
	for _, id := range m.sortedIDs() {
		tr := m.tracks[id]
		if tr.status == StatusSuspended {
			tr.pending = nil
			continue
		}
		if tr.pending != nil {
			measurement := *tr.pending
			tr.pending = nil
			if err := tr.estimator.Correct(measurement); err != nil {
				failures = append(failures, errors.Wrapf(err, "track %d", id))
				continue
			}
			tr.state = tr.estimator.CurrentState()
			tr.measuredFrames++
			tr.missedFrames = 0
			tr.lastMeasured = m.timestamp
			m.applyMeasuredTransitions(id, tr)
			continue
		}
		tr.missedFrames++
		if tr.reactivating {
			// Reactivation requires consecutive measured frames.
			tr.reactivatedFrames = 0
		}
		m.applyMissedTransitions(id, tr)
	}
	return stderrors.Join(failures...)
}

func (m *TrackManager) applyMeasuredTransitions(id int, tr *track) {
	if tr.reactivating {
		tr.reactivatedFrames++
		if tr.reactivatedFrames >= m.config.ReactivationFrames {
			tr.reactivating = false
			tr.status = StatusReliable
			m.log.WithFields(logrus.Fields{"track_id": id}).Debug("track reactivated to reliable")
		}
		return
	}
	if tr.status != StatusUnreliable {
		return
	}
	measuredSpan := m.timestamp.Sub(tr.firstSeen).Seconds()
	if tr.measuredFrames >= m.config.MaxNumberOfUnreliableFrames && measuredSpan >= m.config.MaxUnreliableTime {
		tr.status = StatusReliable
		m.log.WithFields(logrus.Fields{"track_id": id}).Debug("track promoted to reliable")
	}
}

func (m *TrackManager) applyMissedTransitions(id int, tr *track) {
	missedTime := m.timestamp.Sub(tr.lastMeasured).Seconds()
	if tr.state.IsDynamic() {
		if tr.missedFrames >= m.config.NonMeasurementFramesDynamic || missedTime >= m.config.NonMeasurementTimeDynamic {
			delete(m.tracks, id)
			m.log.WithFields(logrus.Fields{"track_id": id, "missed_frames": tr.missedFrames}).Debug("dynamic track deleted")
		}
		return
	}
	if tr.missedFrames >= m.config.NonMeasurementFramesStatic || missedTime >= m.config.NonMeasurementTimeStatic {
		tr.status = StatusSuspended
		m.log.WithFields(logrus.Fields{"track_id": id, "missed_frames": tr.missedFrames}).Debug("static track suspended")
	}
}

// GetTracks returns all active (not suspended) track states sorted by id.
func (m *TrackManager) GetTracks() []TrackedObject {
	return m.collect(func(tr *track) bool { return tr.status != StatusSuspended })
}

// GetReliableTracks returns all tracks classified as reliable.
func (m *TrackManager) GetReliableTracks() []TrackedObject {
	return m.collect(func(tr *track) bool { return tr.status == StatusReliable })
}

// GetUnreliableTracks returns all tracks classified as unreliable.
func (m *TrackManager) GetUnreliableTracks() []TrackedObject {
	return m.collect(func(tr *track) bool { return tr.status == StatusUnreliable })
}

// GetSuspendedTracks returns all suspended tracks.
func (m *TrackManager) GetSuspendedTracks() []TrackedObject {
	return m.collect(func(tr *track) bool { return tr.status == StatusSuspended })
}

// GetDriftingTracks returns active dynamic tracks unmeasured for more than
// half of the dynamic deletion window, signalling imminent deletion risk.
func (m *TrackManager) GetDriftingTracks() []TrackedObject {
	return m.collect(func(tr *track) bool {
		if tr.status == StatusSuspended || !tr.state.IsDynamic() {
			return false
		}
		missedTime := m.timestamp.Sub(tr.lastMeasured).Seconds()
		return tr.missedFrames > m.config.NonMeasurementFramesDynamic/2 ||
			missedTime > m.config.NonMeasurementTimeDynamic/2.0
	})
}

// GetTrack returns the stored state for the given id.
func (m *TrackManager) GetTrack(id int) (TrackedObject, error) {
	tr, ok := m.tracks[id]
	if !ok {
		return TrackedObject{}, errors.Wrapf(ErrNotFound, "track %d", id)
	}
	return tr.state, nil
}

// GetKalmanEstimator returns the estimator backing the given track.
func (m *TrackManager) GetKalmanEstimator(id int) (*MultiModelKalmanEstimator, error) {
	tr, ok := m.tracks[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "track %d", id)
	}
	return tr.estimator, nil
}

// HasID reports whether the id is registered in the manager.
func (m *TrackManager) HasID(id int) bool {
	_, ok := m.tracks[id]
	return ok
}

// DeleteTrack removes the track from the manager.
func (m *TrackManager) DeleteTrack(id int) error {
	if _, ok := m.tracks[id]; !ok {
		return errors.Wrapf(ErrNotFound, "track %d", id)
	}
	delete(m.tracks, id)
	m.log.WithFields(logrus.Fields{"track_id": id}).Debug("track deleted")
	return nil
}

// SuspendTrack freezes the track until it is reactivated.
func (m *TrackManager) SuspendTrack(id int) error {
	tr, ok := m.tracks[id]
	if !ok {
		return errors.Wrapf(ErrNotFound, "track %d", id)
	}
	tr.status = StatusSuspended
	tr.reactivating = false
	tr.reactivatedFrames = 0
	m.log.WithFields(logrus.Fields{"track_id": id}).Debug("track suspended")
	return nil
}

// ReactivateTrack moves a suspended track back to the active set. The track
// becomes reliable again once it has been measured for
// config.ReactivationFrames consecutive frames.
func (m *TrackManager) ReactivateTrack(id int) error {
	tr, ok := m.tracks[id]
	if !ok {
		return errors.Wrapf(ErrNotFound, "track %d", id)
	}
	if tr.status != StatusSuspended {
		return errors.Errorf("track %d is not suspended", id)
	}
	tr.status = StatusUnreliable
	tr.reactivating = true
	tr.reactivatedFrames = 0
	tr.missedFrames = 0
	tr.lastMeasured = m.timestamp
	m.log.WithFields(logrus.Fields{"track_id": id}).Debug("track reactivating")
	return nil
}

// IsReliable reports whether the given track is reliable.
func (m *TrackManager) IsReliable(id int) (bool, error) {
	tr, ok := m.tracks[id]
	if !ok {
		return false, errors.Wrapf(ErrNotFound, "track %d", id)
	}
	return tr.status == StatusReliable, nil
}

// IsSuspended reports whether the given track is suspended.
func (m *TrackManager) IsSuspended(id int) (bool, error) {
	tr, ok := m.tracks[id]
	if !ok {
		return false, errors.Wrapf(ErrNotFound, "track %d", id)
	}
	return tr.status == StatusSuspended, nil
}

// Timestamp returns the manager's current frame time.
func (m *TrackManager) Timestamp() time.Time {
	return m.timestamp
}

func (m *TrackManager) collect(keep func(*track) bool) []TrackedObject {
	out := make([]TrackedObject, 0, len(m.tracks))
	for _, id := range m.sortedIDs() {
		if tr := m.tracks[id]; keep(tr) {
			out = append(out, tr.state)
		}
	}
	return out
}

func (m *TrackManager) sortedIDs() []int {
	ids := make([]int, 0, len(m.tracks))
	for id := range m.tracks {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
