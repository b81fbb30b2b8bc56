package tracking

import (
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Estimator failure conditions.
var (
	// ErrNotInitialized is returned when predicting or correcting an
	// estimator before Initialize.
	ErrNotInitialized = errors.New("estimator is not initialized")
	// ErrInvalidTimestamp is returned when predicting to a timestamp before
	// the estimator's current one.
	ErrInvalidTimestamp = errors.New("timestamp is before the current estimator time")
)

// Self-transition probability of the default model-transition matrix. The
// remainder leaks uniformly to the other models.
const defaultKeepProbability = 0.95

// EstimatorOptions carries the noise and model-set parameters for
// MultiModelKalmanEstimator.Initialize. Non-positive noise values fall back
// to the defaults.
type EstimatorOptions struct {
	ProcessNoise        float64
	MeasurementNoise    float64
	InitStateCovariance float64
	MotionModels        []MotionModel
}

// DefaultEstimatorOptions returns the default initialization parameters:
// process noise 1e-6, measurement noise 1e-4, initial state covariance 1.0
// and the [CV, CA, CTRV] model set.
func DefaultEstimatorOptions() EstimatorOptions {
	return EstimatorOptions{
		ProcessNoise:        1e-6,
		MeasurementNoise:    1e-4,
		InitStateCovariance: 1.0,
		MotionModels:        []MotionModel{CV, CA, CTRV},
	}
}

// MultiModelKalmanEstimator implements the Interacting Multiple Model (IMM)
// Kalman estimator: it runs one filter per configured motion model, mixes
// them by model probability and exposes a single blended state. Initialize
// must be called before any other operation.
type MultiModelKalmanEstimator struct {
	models  []MotionModel
	filters []*kalmanFilter

	modelProbability []float64
	// transition[i*n+j] is the probability of switching from model i to
	// model j between frames.
	transition []float64
	// conditional[i*n+j] are the mixing weights from the latest mixing step.
	conditional []float64

	state       TrackedObject
	timestamp   time.Time
	initialized bool
}

// NewMultiModelKalmanEstimator creates an estimator. Initialize must be
// called before use.
func NewMultiModelKalmanEstimator() *MultiModelKalmanEstimator {
	return &MultiModelKalmanEstimator{}
}

// Initialize seeds one Kalman filter per motion model with the given state,
// sets uniform model probabilities and the default high-self-transition
// model-transition matrix.
func (e *MultiModelKalmanEstimator) Initialize(object TrackedObject, timestamp time.Time, opts EstimatorOptions) error {
	if len(opts.MotionModels) == 0 {
		return errors.New("can't initialize estimator with an empty motion model set")
	}
	defaults := DefaultEstimatorOptions()
	if opts.ProcessNoise <= 0.0 {
		opts.ProcessNoise = defaults.ProcessNoise
	}
	if opts.MeasurementNoise <= 0.0 {
		opts.MeasurementNoise = defaults.MeasurementNoise
	}
	if opts.InitStateCovariance <= 0.0 {
		opts.InitStateCovariance = defaults.InitStateCovariance
	}

	n := len(opts.MotionModels)
	seed := object.stateVector()
	filters := make([]*kalmanFilter, n)
	for i, model := range opts.MotionModels {
		kf, err := newKalmanFilter(model, seed, opts.ProcessNoise, opts.MeasurementNoise, opts.InitStateCovariance)
		if err != nil {
			return errors.Wrapf(err, "can't create filter for model %s", model)
		}
		filters[i] = kf
	}

	e.models = make([]MotionModel, n)
	copy(e.models, opts.MotionModels)
	e.filters = filters

	e.modelProbability = make([]float64, n)
	for i := range e.modelProbability {
		e.modelProbability[i] = 1.0 / float64(n)
	}

	e.transition = make([]float64, n*n)
	leak := 0.0
	if n > 1 {
		leak = (1.0 - defaultKeepProbability) / float64(n-1)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				if n == 1 {
					e.transition[i*n+j] = 1.0
				} else {
					e.transition[i*n+j] = defaultKeepProbability
				}
			} else {
				e.transition[i*n+j] = leak
			}
		}
	}

	e.conditional = make([]float64, n*n)
	e.refreshConditional()

	e.state = object
	e.timestamp = timestamp
	e.initialized = true
	e.refreshBlendedState(false)
	return nil
}

// PredictBy advances the estimator by deltaT seconds: IMM mixing followed by
// a per-model prediction step. No measurement is consumed.
func (e *MultiModelKalmanEstimator) PredictBy(deltaT float64) error {
	if !e.initialized {
		return errors.WithStack(ErrNotInitialized)
	}
	if deltaT < 0.0 {
		return errors.Wrapf(ErrInvalidTimestamp, "deltaT %f is negative", deltaT)
	}
	e.mix()
	for _, kf := range e.filters {
		kf.predict(deltaT)
	}
	e.timestamp = e.timestamp.Add(time.Duration(deltaT * float64(time.Second)))
	e.refreshBlendedState(false)
	return nil
}

// PredictTo advances the estimator to the given timestamp.
func (e *MultiModelKalmanEstimator) PredictTo(timestamp time.Time) error {
	if !e.initialized {
		return errors.WithStack(ErrNotInitialized)
	}
	if timestamp.Before(e.timestamp) {
		return errors.Wrapf(ErrInvalidTimestamp, "predict to %s but estimator is at %s", timestamp, e.timestamp)
	}
	deltaT := timestamp.Sub(e.timestamp).Seconds()
	e.mix()
	for _, kf := range e.filters {
		kf.predict(deltaT)
	}
	e.timestamp = timestamp
	e.refreshBlendedState(false)
	return nil
}

// Correct updates every model filter with the measurement, updates the model
// probabilities from the measurement likelihoods and blends the per-model
// states into the output state.
func (e *MultiModelKalmanEstimator) Correct(measurement TrackedObject) error {
	if !e.initialized {
		return errors.WithStack(ErrNotInitialized)
	}
	z := [measurementDim]float64{measurement.X, measurement.Y, measurement.Yaw}

	n := len(e.filters)
	likelihoods := make([]float64, n)
	for i, kf := range e.filters {
		likelihood, err := kf.correct(z)
		if err != nil {
			return errors.Wrapf(err, "can't correct model %s", e.models[i])
		}
		likelihoods[i] = likelihood
	}

	// mu_j = L_j * cbar_j, renormalized. When every likelihood underflows
	// the probabilities reset to uniform rather than collapsing to NaN.
	sum := 0.0
	for i := range e.modelProbability {
		e.modelProbability[i] *= likelihoods[i]
		sum += e.modelProbability[i]
	}
	if sum > 1e-300 {
		for i := range e.modelProbability {
			e.modelProbability[i] /= sum
		}
	} else {
		for i := range e.modelProbability {
			e.modelProbability[i] = 1.0 / float64(n)
		}
	}

	e.absorbMeasurement(measurement)
	e.refreshBlendedState(true)
	return nil
}

// Track is the convenience step: predict to the timestamp, then correct.
func (e *MultiModelKalmanEstimator) Track(measurement TrackedObject, timestamp time.Time) error {
	if err := e.PredictTo(timestamp); err != nil {
		return err
	}
	return e.Correct(measurement)
}

// CurrentState returns the blended output state.
func (e *MultiModelKalmanEstimator) CurrentState() TrackedObject {
	return e.state
}

// CurrentStates returns a per-model snapshot of the internal states, for
// diagnostics.
func (e *MultiModelKalmanEstimator) CurrentStates() []TrackedObject {
	out := make([]TrackedObject, len(e.filters))
	for i, kf := range e.filters {
		snapshot := e.state
		snapshot.applyStateVector(kf.x)
		snapshot.ErrorCovariance = kf.errorCovariance()
		mean := kf.predictedMeasurement()
		snapshot.MeasurementMean = mat.NewVecDense(measurementDim, []float64{mean[0], mean[1], mean[2]})
		snapshot.MeasurementCovariance = kf.measurementCovariance()
		out[i] = snapshot
	}
	return out
}

// Timestamp returns the estimator's current time.
func (e *MultiModelKalmanEstimator) Timestamp() time.Time {
	return e.timestamp
}

// KalmanFilterErrorCovariance returns the error covariance of the n-th
// model filter.
func (e *MultiModelKalmanEstimator) KalmanFilterErrorCovariance(n int) (*mat.Dense, error) {
	if n < 0 || n >= len(e.filters) {
		return nil, errors.Errorf("filter index %d out of range [0, %d)", n, len(e.filters))
	}
	return e.filters[n].errorCovariance(), nil
}

// KalmanFilterMeasurementCovariance returns the measurement covariance of
// the n-th model filter.
func (e *MultiModelKalmanEstimator) KalmanFilterMeasurementCovariance(n int) (*mat.Dense, error) {
	if n < 0 || n >= len(e.filters) {
		return nil, errors.Errorf("filter index %d out of range [0, %d)", n, len(e.filters))
	}
	return e.filters[n].measurementCovariance(), nil
}

// ModelProbability returns the probability of each motion model.
func (e *MultiModelKalmanEstimator) ModelProbability() map[MotionModel]float64 {
	out := make(map[MotionModel]float64, len(e.models))
	for i, model := range e.models {
		out[model] = e.modelProbability[i]
	}
	return out
}

// TransitionProbability returns the model-transition probability table.
func (e *MultiModelKalmanEstimator) TransitionProbability() map[MotionModel]map[MotionModel]float64 {
	return e.probabilityTable(e.transition)
}

// ConditionalProbability returns the mixing weights of the latest mixing
// step.
func (e *MultiModelKalmanEstimator) ConditionalProbability() map[MotionModel]map[MotionModel]float64 {
	return e.probabilityTable(e.conditional)
}

func (e *MultiModelKalmanEstimator) probabilityTable(flat []float64) map[MotionModel]map[MotionModel]float64 {
	n := len(e.models)
	out := make(map[MotionModel]map[MotionModel]float64, n)
	for i, from := range e.models {
		row := make(map[MotionModel]float64, n)
		for j, to := range e.models {
			row[to] = flat[i*n+j]
		}
		out[from] = row
	}
	return out
}

// mix recomputes the mixed initial conditions of every model filter from
// the current model probabilities and the transition matrix, then replaces
// the model probabilities with the mixing-predicted ones.
func (e *MultiModelKalmanEstimator) mix() {
	n := len(e.filters)
	if n == 1 {
		e.conditional[0] = 1.0
		return
	}

	// cbar_j = sum_i p_ij mu_i; omega_ij = p_ij mu_i / cbar_j
	cbar := make([]float64, n)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			cbar[j] += e.transition[i*n+j] * e.modelProbability[i]
		}
	}
	for j := 0; j < n; j++ {
		if cbar[j] <= 0.0 {
			for i := 0; i < n; i++ {
				e.conditional[i*n+j] = 1.0 / float64(n)
			}
			continue
		}
		for i := 0; i < n; i++ {
			e.conditional[i*n+j] = e.transition[i*n+j] * e.modelProbability[i] / cbar[j]
		}
	}

	states := make([]*mat.VecDense, n)
	covariances := make([]*mat.Dense, n)
	for i, kf := range e.filters {
		states[i] = mat.VecDenseCopyOf(kf.x)
		covariances[i] = kf.errorCovariance()
	}

	weights := make([]float64, n)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			weights[i] = e.conditional[i*n+j]
		}
		mixedState := blendStateVectors(weights, states)
		mixedCovariance := blendCovariances(weights, states, covariances, mixedState)
		e.filters[j].setState(mixedState, mixedCovariance)
	}

	copy(e.modelProbability, cbar)
}

func (e *MultiModelKalmanEstimator) refreshConditional() {
	n := len(e.filters)
	for j := 0; j < n; j++ {
		cbar := 0.0
		for i := 0; i < n; i++ {
			cbar += e.transition[i*n+j] * e.modelProbability[i]
		}
		for i := 0; i < n; i++ {
			if cbar > 0.0 {
				e.conditional[i*n+j] = e.transition[i*n+j] * e.modelProbability[i] / cbar
			} else {
				e.conditional[i*n+j] = 1.0 / float64(n)
			}
		}
	}
}

// absorbMeasurement folds the non-filtered parts of the measurement into
// the output state: extent, z, classification and attributes.
func (e *MultiModelKalmanEstimator) absorbMeasurement(measurement TrackedObject) {
	e.state.Z = measurement.Z
	e.state.Length = measurement.Length
	e.state.Width = measurement.Width
	e.state.Height = measurement.Height

	if len(measurement.Classification) > 0 {
		combined, err := Combine(e.state.Classification, measurement.Classification)
		if err != nil {
			combined = measurement.Classification
		}
		e.state.Classification = combined
	}
	if len(measurement.Attributes) > 0 {
		if e.state.Attributes == nil {
			e.state.Attributes = make(map[string]string, len(measurement.Attributes))
		}
		for k, v := range measurement.Attributes {
			e.state.Attributes[k] = v
		}
	}
}

// refreshBlendedState recomputes the blended output state and its
// covariances from the per-model filters.
func (e *MultiModelKalmanEstimator) refreshBlendedState(corrected bool) {
	n := len(e.filters)
	states := make([]*mat.VecDense, n)
	covariances := make([]*mat.Dense, n)
	for i, kf := range e.filters {
		states[i] = kf.x
		covariances[i] = kf.p
	}

	blended := blendStateVectors(e.modelProbability, states)
	errorCovariance := blendCovariances(e.modelProbability, states, covariances, blended)

	e.state.applyStateVector(blended)
	e.state.Corrected = corrected
	e.state.ErrorCovariance = errorCovariance

	e.state.MeasurementMean = mat.NewVecDense(measurementDim, []float64{
		blended.AtVec(ixX), blended.AtVec(ixY), wrapAngle(blended.AtVec(ixYaw)),
	})
	measurementCovariance := mat.NewDense(measurementDim, measurementDim, nil)
	for i, kf := range e.filters {
		weight := e.modelProbability[i]
		if weight <= 0.0 {
			continue
		}
		s := kf.innovationCovariance()
		mean := kf.predictedMeasurement()
		spread := [measurementDim]float64{
			mean[0] - blended.AtVec(ixX),
			mean[1] - blended.AtVec(ixY),
			AngleDifference(mean[2], blended.AtVec(ixYaw)),
		}
		for r := 0; r < measurementDim; r++ {
			for c := 0; c < measurementDim; c++ {
				v := measurementCovariance.At(r, c) + weight*(s.At(r, c)+spread[r]*spread[c])
				measurementCovariance.Set(r, c, v)
			}
		}
	}
	e.state.MeasurementCovariance = measurementCovariance
}

// blendStateVectors computes the probability-weighted state mean. The yaw
// component is averaged circularly around the heaviest component's heading.
func blendStateVectors(weights []float64, states []*mat.VecDense) *mat.VecDense {
	refIdx := 0
	for i := range weights {
		if weights[i] > weights[refIdx] {
			refIdx = i
		}
	}
	refYaw := states[refIdx].AtVec(ixYaw)

	out := mat.NewVecDense(stateDim, nil)
	yaw := 0.0
	for i, state := range states {
		w := weights[i]
		for k := 0; k < stateDim; k++ {
			if k == ixYaw {
				continue
			}
			out.SetVec(k, out.AtVec(k)+w*state.AtVec(k))
		}
		yaw += w * AngleDifference(state.AtVec(ixYaw), refYaw)
	}
	out.SetVec(ixYaw, refYaw+yaw)
	return out
}

// blendCovariances computes the probability-weighted covariance including
// the spread-of-means term.
func blendCovariances(weights []float64, states []*mat.VecDense, covariances []*mat.Dense, mean *mat.VecDense) *mat.Dense {
	out := mat.NewDense(stateDim, stateDim, nil)
	diff := make([]float64, stateDim)
	for i, covariance := range covariances {
		w := weights[i]
		if w <= 0.0 {
			continue
		}
		for k := 0; k < stateDim; k++ {
			if k == ixYaw {
				diff[k] = AngleDifference(states[i].AtVec(k), mean.AtVec(k))
			} else {
				diff[k] = states[i].AtVec(k) - mean.AtVec(k)
			}
		}
		for r := 0; r < stateDim; r++ {
			for c := 0; c < stateDim; c++ {
				out.Set(r, c, out.At(r, c)+w*(covariance.At(r, c)+diff[r]*diff[c]))
			}
		}
	}
	symmetrize(out)
	return out
}
