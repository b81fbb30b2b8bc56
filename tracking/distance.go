package tracking

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrUnknownDistance is returned for an unsupported DistanceType value.
var ErrUnknownDistance = errors.New("unsupported distance type")

// DistanceType selects the metric used by Match to compare a measurement
// against a track.
type DistanceType uint16

const (
	// Euclidean is the planar distance between positions.
	Euclidean DistanceType = iota
	// Mahalanobis compares the measurement against the track's predicted
	// measurement, normalized by the predicted measurement covariance.
	Mahalanobis
	// MultiClassEuclidean is the Euclidean distance scaled up by the
	// conflict between the class probability vectors.
	MultiClassEuclidean
	// MCEMahalanobis is the Mahalanobis distance scaled up by the conflict
	// between the class probability vectors.
	MCEMahalanobis
)

func (d DistanceType) String() string {
	switch d {
	case Euclidean:
		return "Euclidean"
	case Mahalanobis:
		return "Mahalanobis"
	case MultiClassEuclidean:
		return "MultiClassEuclidean"
	case MCEMahalanobis:
		return "MCEMahalanobis"
	}
	return "Unknown"
}

// distanceBetween evaluates the selected metric for one measurement/track
// pair. The track is expected to carry a predicted measurement when a
// Mahalanobis-type metric is requested.
func distanceBetween(measurement, track *TrackedObject, distanceType DistanceType) (float64, error) {
	switch distanceType {
	case Euclidean:
		return euclideanDistance(measurement, track), nil
	case Mahalanobis:
		return mahalanobisDistance(measurement, track)
	case MultiClassEuclidean:
		scale := 1.0 + Distance(measurement.Classification, track.Classification)
		return euclideanDistance(measurement, track) * scale, nil
	case MCEMahalanobis:
		d, err := mahalanobisDistance(measurement, track)
		if err != nil {
			return 0.0, err
		}
		scale := 1.0 + Distance(measurement.Classification, track.Classification)
		return d * scale, nil
	}
	return 0.0, errors.Wrapf(ErrUnknownDistance, "distance type %d", distanceType)
}

func euclideanDistance(a, b *TrackedObject) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// mahalanobisDistance computes sqrt(y^T S^-1 y) with y the innovation of
// the measurement against the track's predicted measurement and S the
// predicted measurement covariance.
func mahalanobisDistance(measurement, track *TrackedObject) (float64, error) {
	if track.MeasurementMean == nil || track.MeasurementCovariance == nil {
		return 0.0, errors.Errorf("track %d has no predicted measurement, can't compute Mahalanobis distance", track.ID)
	}
	innovation := mat.NewVecDense(measurementDim, []float64{
		measurement.X - track.MeasurementMean.AtVec(0),
		measurement.Y - track.MeasurementMean.AtVec(1),
		DeltaTheta(measurement.Yaw, track.MeasurementMean.AtVec(2)),
	})

	s := mat.NewSymDense(measurementDim, nil)
	for i := 0; i < measurementDim; i++ {
		for j := i; j < measurementDim; j++ {
			s.SetSym(i, j, 0.5*(track.MeasurementCovariance.At(i, j)+track.MeasurementCovariance.At(j, i)))
		}
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(s); !ok {
		return 0.0, errors.Errorf("measurement covariance of track %d is not positive definite", track.ID)
	}
	var solved mat.VecDense
	if err := chol.SolveVecTo(&solved, innovation); err != nil {
		return 0.0, errors.Wrapf(err, "can't invert measurement covariance of track %d", track.ID)
	}
	return math.Sqrt(mat.Dot(innovation, &solved)), nil
}
