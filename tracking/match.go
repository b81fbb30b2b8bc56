package tracking

import (
	"sort"

	"github.com/arthurkushman/go-hungarian"
)

// Assignment pairs a measurement index with the track index it was matched
// to.
type Assignment struct {
	MeasurementIndex int
	TrackIndex       int
}

// Match associates measurements with tracks using the selected distance
// metric. Pairs whose cost exceeds threshold are infeasible; the remaining
// pairs are solved as a minimum-cost bipartite assignment. It returns the
// assignments plus the indices of tracks and measurements left unassigned.
// Output ordering is deterministic (ascending indices).
func Match(measurements, tracks []TrackedObject, distanceType DistanceType, threshold float64) ([]Assignment, []int, []int, error) {
	if len(measurements) == 0 || len(tracks) == 0 {
		return []Assignment{}, indexRange(len(tracks)), indexRange(len(measurements)), nil
	}

	costs := make([][]float64, len(measurements))
	for i := range measurements {
		costs[i] = make([]float64, len(tracks))
		for j := range tracks {
			cost, err := distanceBetween(&measurements[i], &tracks[j], distanceType)
			if err != nil {
				return nil, nil, nil, err
			}
			costs[i][j] = cost
		}
	}

	// The solver maximizes, so feasible pairs are scored by their margin
	// below the threshold and gated pairs score zero. Zero is also the pad
	// value for the square matrix, so a gated or padded cell can never beat
	// a feasible one; assignments landing on them are filtered out after
	// solving.
	size := len(measurements)
	if len(tracks) > size {
		size = len(tracks)
	}
	scores := make([][]float64, size)
	for i := 0; i < size; i++ {
		scores[i] = make([]float64, size)
		if i >= len(measurements) {
			continue
		}
		for j := range tracks {
			if costs[i][j] <= threshold {
				scores[i][j] = threshold - costs[i][j] + 1.0
			}
		}
	}

	solved := hungarian.SolveMax(scores)

	assignments := make([]Assignment, 0, len(measurements))
	assignedTracks := make(map[int]struct{}, len(tracks))
	assignedMeasurements := make(map[int]struct{}, len(measurements))
	for i, row := range solved {
		if i >= len(measurements) {
			continue
		}
		for j := range row {
			if j >= len(tracks) {
				continue
			}
			if costs[i][j] > threshold {
				continue
			}
			assignments = append(assignments, Assignment{MeasurementIndex: i, TrackIndex: j})
			assignedMeasurements[i] = struct{}{}
			assignedTracks[j] = struct{}{}
		}
	}
	sort.Slice(assignments, func(a, b int) bool {
		return assignments[a].MeasurementIndex < assignments[b].MeasurementIndex
	})

	unassignedTracks := make([]int, 0, len(tracks))
	for j := range tracks {
		if _, ok := assignedTracks[j]; !ok {
			unassignedTracks = append(unassignedTracks, j)
		}
	}
	unassignedMeasurements := make([]int, 0, len(measurements))
	for i := range measurements {
		if _, ok := assignedMeasurements[i]; !ok {
			unassignedMeasurements = append(unassignedMeasurements, i)
		}
	}
	return assignments, unassignedTracks, unassignedMeasurements, nil
}

func indexRange(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
