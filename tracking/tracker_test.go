package tracking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultipleObjectTrackerConstantVelocity(t *testing.T) {
	cd := NewClassificationData([]string{"Car", "Bike", "Pedestrian"})
	car, err := cd.Classification("Car", 0.9)
	require.NoError(t, err)
	bike, err := cd.Classification("Bike", 0.9)
	require.NoError(t, err)

	tracker := NewMultipleObjectTrackerWithMatching(staticConfig(), MultiClassEuclidean, 1.0)
	start := time.Now()

	// Two well-separated objects on straight constant-velocity paths.
	step := 0.1
	for i := 0; i < 50; i++ {
		elapsed := float64(i) * step
		timestamp := start.Add(time.Duration(elapsed * float64(time.Second)))
		detections := []TrackedObject{
			objectAt(2.0*elapsed, 1.0*elapsed, 0, car),
			objectAt(20.0-1.0*elapsed, 20.0+0.5*elapsed, 0, bike),
		}
		require.NoError(t, tracker.Track(detections, timestamp, DefaultProbabilityThreshold))
	}

	reliable := tracker.GetReliableTracks()
	require.Len(t, reliable, 2)
	assert.Len(t, tracker.GetTracks(), 2)

	first, second := reliable[0], reliable[1]
	assert.InDelta(t, 2.0, first.VX, 0.05)
	assert.InDelta(t, 1.0, first.VY, 0.05)
	assert.InDelta(t, -1.0, second.VX, 0.05)
	assert.InDelta(t, 0.5, second.VY, 0.05)

	carName, err := cd.Class(first.Classification)
	require.NoError(t, err)
	assert.Equal(t, "Car", carName)
	bikeName, err := cd.Class(second.Classification)
	require.NoError(t, err)
	assert.Equal(t, "Bike", bikeName)
}

func TestMultipleObjectTrackerProbabilityThreshold(t *testing.T) {
	cd := NewClassificationData([]string{"Car", "Bike", "Pedestrian"})
	weak, err := cd.Classification("Car", 0.4)
	require.NoError(t, err)
	strong, err := cd.Classification("Car", 0.9)
	require.NoError(t, err)

	tracker := NewMultipleObjectTrackerWithConfig(staticConfig())
	start := time.Now()

	// A detection below the probability threshold never opens a track.
	require.NoError(t, tracker.Track([]TrackedObject{objectAt(0, 0, 0, weak)}, start, 0.5))
	assert.Empty(t, tracker.GetTracks())

	require.NoError(t, tracker.Track([]TrackedObject{objectAt(0, 0, 0, strong)}, start.Add(100*time.Millisecond), 0.5))
	require.Len(t, tracker.GetTracks(), 1)

	// Once the track exists a weak detection still corrects it.
	require.NoError(t, tracker.Track([]TrackedObject{objectAt(0.1, 0, 0, weak)}, start.Add(200*time.Millisecond), 0.5))
	tracks := tracker.GetTracks()
	require.Len(t, tracks, 1)
	assert.Greater(t, tracks[0].X, 0.01)
}

func TestTrackPerCameraSharesTracks(t *testing.T) {
	cd := NewClassificationData([]string{"Car", "Bike", "Pedestrian"})
	strong, err := cd.Classification("Car", 0.9)
	require.NoError(t, err)
	weak, err := cd.Classification("Car", 0.4)
	require.NoError(t, err)

	tracker := NewMultipleObjectTrackerWithMatching(staticConfig(), MultiClassEuclidean, 1.0)
	start := time.Now()

	// Only the first camera sees the object initially.
	perCamera := [][]TrackedObject{
		{objectAt(0, 0, 0, strong)},
		{},
	}
	require.NoError(t, tracker.TrackPerCamera(perCamera, start, 0.5))
	require.Len(t, tracker.GetTracks(), 1)

	// Both cameras observe the same object; the closer measurement wins and
	// the losing one stays below the spawn threshold.
	perCamera = [][]TrackedObject{
		{objectAt(0.3, 0, 0, weak)},
		{objectAt(0.05, 0, 0, weak)},
	}
	require.NoError(t, tracker.TrackPerCamera(perCamera, start.Add(100*time.Millisecond), 0.5))

	tracks := tracker.GetTracks()
	require.Len(t, tracks, 1)
	assert.InDelta(t, 0.05, tracks[0].X, 0.05)
}

func TestTrackPerCameraSpawnsFromLeftovers(t *testing.T) {
	cd := NewClassificationData([]string{"Car"})
	car, err := cd.Classification("Car", 1.0)
	require.NoError(t, err)

	tracker := NewMultipleObjectTrackerWithMatching(staticConfig(), MultiClassEuclidean, 1.0)
	start := time.Now()

	perCamera := [][]TrackedObject{
		{objectAt(0, 0, 0, car)},
		{objectAt(30, 30, 0, car)},
	}
	require.NoError(t, tracker.TrackPerCamera(perCamera, start, 0.5))
	assert.Len(t, tracker.GetTracks(), 2)
}

func TestTrackTrackerKeepsCallerIDs(t *testing.T) {
	cd := NewClassificationData([]string{"Car"})
	car, err := cd.Classification("Car", 1.0)
	require.NoError(t, err)

	tracker := NewTrackTrackerWithConfig(staticConfig())
	start := time.Now()

	step := 0.1
	for i := 0; i < 30; i++ {
		elapsed := float64(i) * step
		timestamp := start.Add(time.Duration(elapsed * float64(time.Second)))

		first := objectAt(1.0*elapsed, 0, 0, car)
		first.ID = 7
		second := objectAt(10, 10+0.5*elapsed, 0, car)
		second.ID = 9
		require.NoError(t, tracker.Track([]TrackedObject{first, second}, timestamp))
	}

	tracks := tracker.GetTracks()
	require.Len(t, tracks, 2)
	assert.Equal(t, 7, tracks[0].ID)
	assert.Equal(t, 9, tracks[1].ID)
	assert.InDelta(t, 1.0, tracks[0].VX, 0.05)
	assert.InDelta(t, 0.5, tracks[1].VY, 0.05)

	reliable := tracker.GetReliableTracks()
	assert.Len(t, reliable, 2)

	// A fresh id spawns a new track mid-stream.
	extra := objectAt(-5, -5, 0, car)
	extra.ID = 11
	require.NoError(t, tracker.Track([]TrackedObject{extra}, start.Add(3100*time.Millisecond)))
	assert.True(t, tracker.Manager().HasID(11))
	assert.Len(t, tracker.GetTracks(), 3)
}
